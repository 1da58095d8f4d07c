// Package bus is a small in-process pub/sub bus. The simulator client uses
// it to fan run-state transitions and connection lifecycle events out to
// listeners registered by callers.
package bus

import "time"

// EventBus delivers events synchronously to the handlers subscribed to
// their type. All methods are safe for concurrent use.
//
// Handlers run in the publisher's goroutine and should return quickly.
// When several handlers fail, Publish returns their errors joined.
type EventBus interface {
	Publish(event Event) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)

	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

// Event is an immutable message carried by the bus.
type Event interface {
	Type() string
	Source() string
	Data() any
}

type EventHandler func(event Event) error

// Subscription is a registered handler. Cancel may be called more than once.
type Subscription interface {
	Cancel() error
}

// Observer is told about every delivery once all handlers have returned.
// err is the joined handler error.
type Observer interface {
	OnDelivered(event Event, handlers int, err error, took time.Duration)
}
