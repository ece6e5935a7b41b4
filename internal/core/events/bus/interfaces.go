package bus

import "time"

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// EventBus is a thread-safe, in-process pub/sub bus.
//
// Handlers subscribe by Event.Type() or by Wildcard. Publish calls handlers
// synchronously in the publishing goroutine and joins their errors, so
// handlers should be quick or hand work off to their own goroutine.
type EventBus interface {
	// Publish delivers event to every active subscriber of its type and to
	// wildcard subscribers.
	Publish(event Event) error
	// PublishAsync publishes in a new goroutine. The returned channel receives
	// the joined handler error (or nil) and is then closed.
	PublishAsync(event Event) <-chan error

	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels sub. A nil subscription is ignored.
	Unsubscribe(sub Subscription) error

	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	Metrics() Metrics
}

// Event is an immutable message carried by the bus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

type (
	EventHandler func(event Event) error
	// EventFilter reports whether an event should reach the wrapped handler.
	EventFilter func(event Event) bool
)

// Subscription is a registered handler. Cancel is idempotent.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	Cancel() error
}

// Observer is told about each delivery. Observers must return quickly.
type Observer interface {
	OnDelivered(eventType string, handlers int, err error, took time.Duration)
}

// Metrics is a snapshot of bus counters.
type Metrics struct {
	Published         uint64 `json:"published"`
	DeliveredHandlers uint64 `json:"delivered_handlers"`
	Errors            uint64 `json:"errors"`
	Subscribers       uint64 `json:"subscribers"`
}
