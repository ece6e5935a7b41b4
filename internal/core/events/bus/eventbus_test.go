package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu        sync.Mutex
	delivered int
	lastErr   error
}

func (o *countingObserver) OnDelivered(_ string, handlers int, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered += handlers
	o.lastErr = err
}

func TestPublishSubscribe(t *testing.T) {
	b := New()
	var got Event
	_, err := b.Subscribe("tile.attached", func(e Event) error {
		got = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(NewEvent("tile.attached", "engine", 42)))
	require.NotNil(t, got)
	assert.Equal(t, "engine", got.Source())
	assert.Equal(t, 42, got.Data())
	assert.False(t, got.Timestamp().IsZero())
}

func TestWildcardReceivesEverything(t *testing.T) {
	b := New()
	var types []string
	_, err := b.Subscribe(Wildcard, func(e Event) error {
		types = append(types, e.Type())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(NewEvent("a", "s", nil)))
	require.NoError(t, b.Publish(NewEvent("b", "s", nil)))
	assert.Equal(t, []string{"a", "b"}, types)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var calls atomic.Int32
	sub, err := b.Subscribe("x", func(Event) error { calls.Add(1); return nil })
	require.NoError(t, err)

	require.NoError(t, b.Publish(NewEvent("x", "s", nil)))
	require.NoError(t, b.Unsubscribe(sub))
	require.NoError(t, sub.Cancel())
	require.NoError(t, b.Publish(NewEvent("x", "s", nil)))

	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, sub.IsActive())
	assert.NotEmpty(t, sub.ID())
	assert.Zero(t, b.Metrics().Subscribers)
	require.NoError(t, b.Unsubscribe(nil))
}

func TestHandlerErrorsAreJoined(t *testing.T) {
	b := New()
	e1, e2 := errors.New("one"), errors.New("two")
	_, _ = b.Subscribe("x", func(Event) error { return e1 })
	_, _ = b.Subscribe(Wildcard, func(Event) error { return e2 })

	err := b.Publish(NewEvent("x", "s", nil))
	require.ErrorIs(t, err, e1)
	require.ErrorIs(t, err, e2)

	select {
	case err = <-b.PublishAsync(NewEvent("x", "s", nil)):
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("async publish did not complete")
	}
	assert.EqualValues(t, 2, b.Metrics().Errors)
}

func TestSubscribeValidation(t *testing.T) {
	b := New()
	_, err := b.Subscribe("", func(Event) error { return nil })
	require.ErrorIs(t, err, ErrEmptyEventType)
	_, err = b.Subscribe("x", nil)
	require.ErrorIs(t, err, ErrNilHandler)
}

func TestObserverAndMetrics(t *testing.T) {
	b := New()
	obs := &countingObserver{}
	b.AddObserver(obs)
	_, _ = b.Subscribe("e", func(Event) error { return nil })
	_, _ = b.Subscribe("e", func(Event) error { return nil })

	require.NoError(t, b.Publish(NewEvent("e", "s", nil)))
	require.NoError(t, b.Publish(NewEvent("other", "s", nil)))

	m := b.Metrics()
	assert.EqualValues(t, 2, m.Published)
	assert.EqualValues(t, 2, m.DeliveredHandlers)
	assert.EqualValues(t, 2, m.Subscribers)
	assert.Equal(t, 2, obs.delivered)

	b.RemoveObserver(obs)
	require.NoError(t, b.Publish(NewEvent("e", "s", nil)))
	assert.Equal(t, 2, obs.delivered)
}

func TestFiltered(t *testing.T) {
	b := New()
	var seen []any
	h := Filtered(func(e Event) error {
		seen = append(seen, e.Data())
		return nil
	}, func(e Event) bool { return e.Data() != nil })
	_, _ = b.Subscribe("x", h)

	_ = b.Publish(NewEvent("x", "s", nil))
	_ = b.Publish(NewEvent("x", "s", 1))
	assert.Equal(t, []any{1}, seen)
}

func TestConcurrentPublish(t *testing.T) {
	b := New()
	var calls atomic.Int64
	_, _ = b.Subscribe("x", func(Event) error { calls.Add(1); return nil })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Publish(NewEvent("x", "s", j))
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 800, calls.Load())
}
