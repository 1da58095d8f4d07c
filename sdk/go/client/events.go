package client

import (
	"time"

	"github.com/zeusync/vrepclient/internal/core/events/bus"
	"github.com/zeusync/vrepclient/internal/core/observability/log"
	"github.com/zeusync/vrepclient/internal/core/vrep"
)

// EventType represents different types of client events
type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	// EventTypeStateChanged fires when a drained info message flips the
	// run state.
	EventTypeStateChanged EventType = "state_changed"
)

const eventSource = "vrep-client"

// Event represents a client event
type Event struct {
	Type      EventType
	Timestamp time.Time
	URL       string
	Running   bool
	// Info is the message that caused a state change.
	Info *vrep.Info
	// Error is why the connection went away; nil after Close.
	Error error
}

// EventHandler defines a function type for handling client events
type EventHandler func(event Event)

// OnEvent registers handler for eventType. The returned function removes it.
func (c *Client) OnEvent(eventType EventType, handler EventHandler) (cancel func()) {
	sub, err := c.events.Subscribe(string(eventType), func(e bus.Event) error {
		if ev, ok := e.Data().(Event); ok {
			handler(ev)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("Failed to register event handler", log.String("event", string(eventType)), log.Error(err))
		return func() {}
	}
	return func() { _ = sub.Cancel() }
}

// OnStateChange calls fn with the new run state every time it flips.
func (c *Client) OnStateChange(fn func(running bool)) (cancel func()) {
	return c.OnEvent(EventTypeStateChanged, func(e Event) { fn(e.Running) })
}

// emitEvent publishes event. Handler errors reach the logger through
// deliveryLogger.
func (c *Client) emitEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = c.events.Publish(bus.NewEvent(string(event.Type), eventSource, event))
}

// deliveryLogger is the bus observer every client registers.
type deliveryLogger struct {
	logger log.Log
}

func (d *deliveryLogger) OnDelivered(e bus.Event, handlers int, err error, took time.Duration) {
	if err != nil {
		d.logger.Warn("Event handler failed",
			log.String("event", e.Type()),
			log.String("source", e.Source()),
			log.Int("handlers", handlers),
			log.Error(err))
		return
	}
	d.logger.Debug("Event delivered",
		log.String("event", e.Type()),
		log.String("source", e.Source()),
		log.Int("handlers", handlers),
		log.Duration("took", took))
}
