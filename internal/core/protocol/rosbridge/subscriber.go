package rosbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
)

// Subscriber queues the messages published on one topic until its owner
// applies them with SpinOnce or Spin. When the queue is full the oldest
// delivery is dropped.
type Subscriber struct {
	conn     *Conn
	id       string
	topic    string
	capacity int

	mu     sync.Mutex
	queue  []json.RawMessage
	closed bool

	notify  chan struct{}
	done    chan struct{}
	dropped atomic.Uint64
	applied atomic.Uint64
}

func newSubscriber(conn *Conn, id, topic string, capacity int) *Subscriber {
	if capacity < 1 {
		capacity = 1
	}
	return &Subscriber{
		conn:     conn,
		id:       id,
		topic:    topic,
		capacity: capacity,
		queue:    make([]json.RawMessage, 0, capacity),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Topic returns the subscribed topic.
func (s *Subscriber) Topic() string { return s.topic }

// Pending returns the number of queued deliveries.
func (s *Subscriber) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Dropped returns how many deliveries were discarded because the queue was full.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Applied returns how many deliveries were handed to a callback.
func (s *Subscriber) Applied() uint64 { return s.applied.Load() }

// Done is closed when the subscriber is closed, either explicitly or
// because its connection went away.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Ready receives a value after new deliveries were queued. Several
// deliveries may share one notification.
func (s *Subscriber) Ready() <-chan struct{} { return s.notify }

// SpinOnce hands every queued delivery to fn in arrival order and returns
// how many were applied. Errors from fn do not stop the drain; they are
// joined and returned.
func (s *Subscriber) SpinOnce(fn func(json.RawMessage) error) (int, error) {
	s.mu.Lock()
	batch := s.queue
	s.queue = make([]json.RawMessage, 0, s.capacity)
	s.mu.Unlock()

	var errs []error
	for _, msg := range batch {
		if err := fn(msg); err != nil {
			errs = append(errs, err)
		}
	}
	s.applied.Add(uint64(len(batch)))

	return len(batch), errors.Join(errs...)
}

// Spin applies deliveries as they arrive until ctx ends or the subscriber
// is closed. Callback errors are passed to onError when it is not nil.
func (s *Subscriber) Spin(ctx context.Context, fn func(json.RawMessage) error, onError func(error)) error {
	for {
		if _, err := s.SpinOnce(fn); err != nil && onError != nil {
			onError(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			// apply whatever arrived before the close
			if _, err := s.SpinOnce(fn); err != nil && onError != nil {
				onError(err)
			}
			return ErrSubscriptionClosed
		case <-s.notify:
		}
	}
}

// Close stops the subscription and tells the bridge to stop forwarding.
func (s *Subscriber) Close() error {
	if !s.markClosed() {
		return nil
	}
	return s.conn.unsubscribe(s)
}

func (s *Subscriber) enqueue(msg json.RawMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) == s.capacity {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.dropped.Add(1)
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscriber) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.done)
	return true
}
