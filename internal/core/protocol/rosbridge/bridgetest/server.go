// Package bridgetest provides an in-process rosbridge server for tests.
package bridgetest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/vrepclient/internal/core/protocol/rosbridge"
)

// ErrNoReply makes a handler leave the call unanswered.
var ErrNoReply = errors.New("bridgetest: no reply")

// Handler produces the response values of a service call. A non-nil error
// is reported to the client as a failed call.
type Handler func(args json.RawMessage) (any, error)

// Call is one recorded service invocation.
type Call struct {
	ID      string
	Service string
	Args    json.RawMessage
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	topics  map[string]string
}

func (p *peer) write(frame rosbridge.Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(frame)
}

// Server speaks enough of rosbridge v2 to exercise service calls and topic
// subscriptions.
type Server struct {
	t        testing.TB
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	peers    map[*peer]struct{}
}

// NewServer starts a server that is shut down when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		t:        t,
		handlers: make(map[string]Handler),
		peers:    make(map[*peer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(s.Close)
	return s
}

// URL returns the websocket endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Handle registers the behaviour of service.
func (s *Server) Handle(service string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[service] = h
}

// HandleValues makes service always answer with values.
func (s *Server) HandleValues(service string, values any) {
	s.Handle(service, func(json.RawMessage) (any, error) { return values, nil })
}

// Calls returns the recorded invocations of service, or of every service
// when service is empty.
func (s *Server) Calls(service string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Call, 0, len(s.calls))
	for _, c := range s.calls {
		if service == "" || c.Service == service {
			out = append(out, c)
		}
	}
	return out
}

// Subscribers returns how many client subscriptions exist for topic.
func (s *Server) Subscribers(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for p := range s.peers {
		if _, ok := p.topics[topic]; ok {
			n++
		}
	}
	return n
}

// WaitSubscribed blocks until a client subscribed to topic or the timeout
// elapses, failing the test in the latter case.
func (s *Server) WaitSubscribed(topic string, timeout time.Duration) {
	s.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Subscribers(topic) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("no subscriber for %s after %v", topic, timeout)
}

// Publish sends msg to every client subscribed to topic.
func (s *Server) Publish(topic string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	targets := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		if _, ok := p.topics[topic]; ok {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	for _, p := range targets {
		if err = p.write(rosbridge.Frame{Op: rosbridge.OpPublish, Topic: topic, Msg: data}); err != nil {
			return err
		}
	}
	return nil
}

// SendStatus sends a status frame to every client.
func (s *Server) SendStatus(level, id, msg string) {
	text, _ := json.Marshal(msg)

	s.mu.Lock()
	targets := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		targets = append(targets, p)
	}
	s.mu.Unlock()

	for _, p := range targets {
		_ = p.write(rosbridge.Frame{Op: rosbridge.OpStatus, Level: level, ID: id, Msg: text})
	}
}

// DropConnections closes every client socket without a close handshake.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.peers {
		_ = p.conn.Close()
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := &peer{conn: conn, topics: make(map[string]string)}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var frame rosbridge.Frame
		if err = conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Op {
		case rosbridge.OpCallService:
			s.serveCall(p, frame)
		case rosbridge.OpSubscribe:
			s.mu.Lock()
			p.topics[frame.Topic] = frame.ID
			s.mu.Unlock()
		case rosbridge.OpUnsubscribe:
			s.mu.Lock()
			delete(p.topics, frame.Topic)
			s.mu.Unlock()
		}
	}
}

func (s *Server) serveCall(p *peer, frame rosbridge.Frame) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{ID: frame.ID, Service: frame.Service, Args: frame.Args})
	h, ok := s.handlers[frame.Service]
	s.mu.Unlock()

	resp := rosbridge.Frame{Op: rosbridge.OpServiceResponse, ID: frame.ID, Service: frame.Service}

	if !ok {
		resp.Result = boolPtr(false)
		resp.Values = quote("service " + frame.Service + " does not exist")
		_ = p.write(resp)
		return
	}

	values, err := h(frame.Args)
	switch {
	case errors.Is(err, ErrNoReply):
		return
	case err != nil:
		resp.Result = boolPtr(false)
		resp.Values = quote(err.Error())
	default:
		data, merr := json.Marshal(values)
		if merr != nil {
			resp.Result = boolPtr(false)
			resp.Values = quote(merr.Error())
			break
		}
		resp.Result = boolPtr(true)
		resp.Values = data
	}
	_ = p.write(resp)
}

func quote(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

func boolPtr(b bool) *bool { return &b }
