package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/tilestream/internal/core/events/bus"
	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/producer"
	"github.com/zeusync/tilestream/internal/core/stream"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
	"github.com/zeusync/tilestream/internal/core/systems/physics/space"
	"github.com/zeusync/tilestream/internal/core/tile"
	"github.com/zeusync/tilestream/internal/transport/observer"
)

type fixture struct {
	engine *stream.Engine
	space  *space.Space
	hub    *observer.Hub
	bus    bus.EventBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := stream.Config{
		Tile:    tile.BuilderConfig{BlockSize: 17, VerticalScale: 10},
		View:    grid.Uniform(1),
		Workers: 2,
	}
	b, err := tile.NewBuilder(cfg.Tile)
	require.NoError(t, err)

	f := &fixture{bus: bus.New()}
	f.space = space.New(b.Quantizer(), log.NewNop())
	f.engine, err = stream.New(cfg, producer.NewFlat(b),
		stream.WithSink(f.space),
		stream.WithEventBus(f.bus),
		stream.WithLogger(log.NewNop()))
	require.NoError(t, err)
	f.hub, err = observer.New(observer.DefaultConfig(), f.bus, nil, log.NewNop())
	require.NoError(t, err)
	return f
}

func TestNewServerValidation(t *testing.T) {
	f := newFixture(t)
	t.Cleanup(func() { _ = f.engine.Close() })

	_, err := NewServer(DefaultServerConfig(), nil, nil, nil, StaticViewer{}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewServer(DefaultServerConfig(), f.engine, nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewServer(Config{}, f.engine, nil, nil, StaticViewer{}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestManualTickLoadsWorld(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultServerConfig()
	cfg.ListenAddr = ""
	srv, err := NewServer(cfg, f.engine, f.space, nil, StaticViewer{X: 4, Z: 4}, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	require.Eventually(t, func() bool {
		srv.Tick()
		return f.engine.Loaded()
	}, 3*time.Second, time.Millisecond)

	assert.Equal(t, 9, f.space.Len())
	st := srv.Stats()
	assert.Equal(t, 9, st.Engine.Active)
	assert.Equal(t, 9, st.Bodies)
	assert.NotZero(t, st.Mutations)
	assert.InDelta(t, cfg.Clearance, st.Viewer.Y, 1e-9)
	assert.False(t, st.Running)
}

func TestServerServesStatsAndObservers(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.TickInterval = time.Millisecond
	srv, err := NewServer(cfg, f.engine, f.space, f.hub, f.hub, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, srv.Start(ctx))
	require.ErrorIs(t, srv.Start(ctx), ErrServerAlreadyRunning)
	require.NotEmpty(t, srv.Addr())

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/observe", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteJSON(observer.ClientMessage{Type: observer.TypeViewer, Pos: [3]float64{40, 0, 8}}))

	// the viewer tile for (40, 8) with span 16 and offset 8 is (3, 1)
	require.Eventually(t, func() bool {
		return f.engine.Stats().Loaded && f.space.Has(grid.TileCoord{X: 4, Z: 2})
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var sawAttach bool
	for !sawAttach {
		var m observer.Message
		require.NoError(t, conn.ReadJSON(&m))
		sawAttach = m.Type == observer.TypeEvent && m.Event == stream.EventTileAttached
	}

	resp, err := http.Get("http://" + srv.Addr() + "/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.Observers)
	assert.NotZero(t, st.Ticks)
	assert.Equal(t, 40.0, st.Viewer.X)

	health, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = health.Body.Close()
	assert.Equal(t, http.StatusNoContent, health.StatusCode)

	require.NoError(t, srv.Stop())
	require.ErrorIs(t, srv.Stop(), ErrServerNotRunning)
	require.NoError(t, srv.Close())
	require.ErrorIs(t, srv.Start(ctx), ErrServerClosed)
	assert.Equal(t, stream.ActionIdle, f.engine.Update(physics.Vec3{}))
}

func TestStoppedServerDoesNotRestart(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultServerConfig()
	cfg.ListenAddr = ""
	cfg.TickInterval = time.Millisecond
	srv, err := NewServer(cfg, f.engine, f.space, nil, StaticViewer{}, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	require.Eventually(t, func() bool { return srv.Stats().Ticks > 0 }, 3*time.Second, time.Millisecond)
	require.NoError(t, srv.Stop())

	require.ErrorIs(t, srv.Start(ctx), ErrServerStopped)
	assert.False(t, srv.Stats().Running)
}

func TestFlyoverMovesLinearly(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	f := NewFlyover(physics.Vec3{X: 10, Y: 5}, physics.Vec3{X: 2, Z: -4})
	f.now = func() time.Time { return now }

	p, ok := f.Viewer()
	require.True(t, ok)
	assert.Equal(t, physics.Vec3{X: 10, Y: 5}, p)

	now = base.Add(2500 * time.Millisecond)
	p, _ = f.Viewer()
	assert.Equal(t, physics.Vec3{X: 15, Y: 5, Z: -10}, p)
}
