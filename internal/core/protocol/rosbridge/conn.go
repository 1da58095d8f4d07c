package rosbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/vrepclient/internal/core/observability/log"
)

// Config holds connection settings.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval enables websocket keepalive pings when positive. The
	// connection is dropped when no pong or frame arrives within
	// PingInterval+PongTimeout.
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	Header         http.Header
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     15 * time.Second,
		PongTimeout:      10 * time.Second,
		MaxMessageSize:   16 * 1024 * 1024,
	}
}

// Stats is a snapshot of connection counters.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	BytesSent      uint64
	BytesReceived  uint64
	PendingCalls   int
	Subscriptions  int
	ConnectedAt    time.Time
	LastActivity   time.Time
}

// Conn is a rosbridge client connection. It is safe for concurrent use.
type Conn struct {
	ws     *websocket.Conn
	url    string
	config Config
	logger log.Log

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Frame
	subs    map[string]map[*Subscriber]struct{}

	closing   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	cancel    context.CancelFunc

	connectedAt    time.Time
	lastActivity   atomic.Int64
	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64
}

// Dial connects to a rosbridge websocket endpoint such as ws://localhost:9090.
func Dial(ctx context.Context, url string, config Config, logger log.Log) (*Conn, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, config.Header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial rosbridge %s", url)
	}

	if config.MaxMessageSize > 0 {
		ws.SetReadLimit(config.MaxMessageSize)
	}

	now := time.Now()
	c := &Conn{
		ws:          ws,
		url:         url,
		config:      config,
		logger:      logger.With(log.String("component", "rosbridge"), log.String("url", url)),
		pending:     make(map[string]chan Frame),
		subs:        make(map[string]map[*Subscriber]struct{}),
		done:        make(chan struct{}),
		connectedAt: now,
	}
	c.lastActivity.Store(now.UnixNano())

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	group, groupCtx := errgroup.WithContext(loopCtx)
	group.Go(c.readLoop)
	group.Go(func() error { return c.pingLoop(groupCtx) })

	go func() {
		c.shutdown(group.Wait())
	}()

	c.logger.Info("Connected to rosbridge")

	return c, nil
}

// URL returns the endpoint this connection was dialed to.
func (c *Conn) URL() string {
	return c.url
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection shut down, or nil while it is open
// or after a clean Close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

// IsClosed reports whether the connection has shut down.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	pending := len(c.pending)
	subs := 0
	for _, set := range c.subs {
		subs += len(set)
	}
	c.mu.Unlock()

	return Stats{
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		PendingCalls:   pending,
		Subscriptions:  subs,
		ConnectedAt:    c.connectedAt,
		LastActivity:   time.Unix(0, c.lastActivity.Load()),
	}
}

// CallService invokes service with args and decodes the response values
// into reply. It blocks until the bridge answers, ctx ends or the
// connection closes. reply may be nil when the values are not needed.
func (c *Conn) CallService(ctx context.Context, service string, args, reply any) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	rawArgs := json.RawMessage("{}")
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return errors.Wrapf(err, "marshal %s arguments", service)
		}
		rawArgs = data
	}

	id := OpCallService + ":" + service + ":" + uuid.NewString()
	ch := make(chan Frame, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.logger.Debug("Calling service", log.String("service", service), log.String("id", id))

	if err := c.writeFrame(Frame{Op: OpCallService, ID: id, Service: service, Args: rawArgs}); err != nil {
		return err
	}

	select {
	case frame := <-ch:
		if frame.Op == OpStatus {
			return &ServiceError{Service: service, Message: Text(frame.Msg)}
		}
		if !frame.Succeeded() {
			return &ServiceError{Service: service, Message: Text(frame.Values)}
		}
		if reply == nil || len(frame.Values) == 0 {
			return nil
		}
		if err := json.Unmarshal(frame.Values, reply); err != nil {
			return errors.Wrapf(ErrInvalidFrame, "decode %s response: %v", service, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closedError()
	}
}

// Subscribe asks the bridge to forward topic and returns a Subscriber that
// queues up to queueLength deliveries. queueLength below 1 means 1.
func (c *Conn) Subscribe(ctx context.Context, topic, msgType string, queueLength int) (*Subscriber, error) {
	if c.IsClosed() {
		return nil, ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscriber(c, OpSubscribe+":"+topic+":"+uuid.NewString(), topic, queueLength)

	c.mu.Lock()
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[*Subscriber]struct{})
	}
	c.subs[topic][sub] = struct{}{}
	c.mu.Unlock()

	err := c.writeFrame(Frame{
		Op:          OpSubscribe,
		ID:          sub.id,
		Topic:       topic,
		Type:        msgType,
		QueueLength: sub.capacity,
	})
	if err != nil {
		c.removeSubscriber(sub)
		return nil, err
	}

	c.logger.Info("Subscribed to topic", log.String("topic", topic), log.String("type", msgType))

	return sub, nil
}

// Close shuts the connection down. Pending calls fail with
// ErrConnectionClosed and every subscriber is closed.
func (c *Conn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"), deadline)

	c.cancel()
	err := c.ws.Close()
	<-c.done

	c.logger.Info("Disconnected from rosbridge")

	return err
}

func (c *Conn) unsubscribe(sub *Subscriber) error {
	if !c.removeSubscriber(sub) || c.IsClosed() {
		return nil
	}
	return c.writeFrame(Frame{Op: OpUnsubscribe, ID: sub.id, Topic: sub.topic})
}

func (c *Conn) removeSubscriber(sub *Subscriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.subs[sub.topic]
	if !ok {
		return false
	}
	if _, ok = set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(c.subs, sub.topic)
	}
	return true
}

func (c *Conn) writeFrame(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "failed to marshal frame")
	}

	if c.config.MaxMessageSize > 0 && int64(len(data)) > c.config.MaxMessageSize {
		return errors.Wrapf(ErrMessageTooLarge, "frame size %d exceeds limit %d", len(data), c.config.MaxMessageSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsClosed() {
		return ErrConnectionClosed
	}

	if c.config.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	if err = c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}

	c.framesSent.Add(1)
	c.bytesSent.Add(uint64(len(data)))
	c.lastActivity.Store(time.Now().UnixNano())

	return nil
}

func (c *Conn) readLoop() error {
	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return nil
			}
			return errors.Wrap(err, "failed to read frame")
		}

		c.extendReadDeadline()
		c.framesReceived.Add(1)
		c.bytesReceived.Add(uint64(len(data)))
		c.lastActivity.Store(time.Now().UnixNano())

		if messageType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", log.Int("type", messageType))
			continue
		}

		var frame Frame
		if err = json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("Dropping malformed frame", log.Error(err), log.Int("size", len(data)))
			continue
		}

		c.dispatch(frame)
	}
}

func (c *Conn) dispatch(frame Frame) {
	switch frame.Op {
	case OpServiceResponse:
		if !c.deliverResponse(frame) {
			c.logger.Debug("Response for unknown call", log.String("id", frame.ID), log.String("service", frame.Service))
		}

	case OpPublish:
		c.mu.Lock()
		targets := make([]*Subscriber, 0, len(c.subs[frame.Topic]))
		for sub := range c.subs[frame.Topic] {
			targets = append(targets, sub)
		}
		c.mu.Unlock()

		for _, sub := range targets {
			sub.enqueue(frame.Msg)
		}

	case OpStatus:
		msg := Text(frame.Msg)
		fields := []log.Field{log.String("level", frame.Level), log.String("id", frame.ID)}
		switch frame.Level {
		case "error":
			c.logger.Error("Bridge status: "+msg, fields...)
			if frame.ID != "" {
				c.deliverResponse(frame)
			}
		case "warning":
			c.logger.Warn("Bridge status: "+msg, fields...)
		case "info":
			c.logger.Info("Bridge status: "+msg, fields...)
		default:
			c.logger.Debug("Bridge status: "+msg, fields...)
		}

	default:
		c.logger.Debug("Ignoring frame", log.String("op", frame.Op))
	}
}

func (c *Conn) deliverResponse(frame Frame) bool {
	c.mu.Lock()
	ch, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.mu.Unlock()

	if ok {
		ch <- frame
	}
	return ok
}

func (c *Conn) pingLoop(ctx context.Context) error {
	if c.config.PingInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if c.config.WriteTimeout <= 0 {
				deadline = time.Now().Add(c.config.PingInterval)
			}
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if c.closing.Load() {
					return nil
				}
				_ = c.ws.Close()
				return errors.Wrap(err, "keepalive ping failed")
			}
		}
	}
}

func (c *Conn) extendReadDeadline() {
	if c.config.PingInterval <= 0 {
		return
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout))
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		c.closing.Store(true)
		c.cancel()
		if cause != nil {
			c.logger.Warn("Connection lost", log.Error(cause))
			_ = c.ws.Close()
		}

		c.mu.Lock()
		subs := make([]*Subscriber, 0)
		for _, set := range c.subs {
			for sub := range set {
				subs = append(subs, sub)
			}
		}
		c.subs = make(map[string]map[*Subscriber]struct{})
		c.mu.Unlock()

		close(c.done)

		for _, sub := range subs {
			sub.markClosed()
		}
	})
}

func (c *Conn) closedError() error {
	if c.closeErr != nil {
		return errors.Wrapf(ErrConnectionClosed, "%v", c.closeErr)
	}
	return ErrConnectionClosed
}
