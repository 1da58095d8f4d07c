// Package server exposes a simulator client as a JSON-RPC 1.0 service over
// HTTP so tools outside Go can drive the simulator.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json"
	"github.com/pkg/errors"

	"github.com/zeusync/vrepclient/internal/core/observability/log"
	"github.com/zeusync/vrepclient/internal/core/vrep"
)

// Paths served by the HTTP handler.
const (
	RPCPath    = "/rpc"
	HealthPath = "/healthz"
)

// ServiceName is the JSON-RPC service prefix, as in "Simulator.Start".
const ServiceName = "Simulator"

// Simulator is the subset of the simulator client the server forwards to.
type Simulator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	GetHandle(ctx context.Context, name string) (vrep.Handle, error)
	MoveObject(ctx context.Context, handle vrep.Handle, position vrep.Point) error
	MoveObjectByName(ctx context.Context, name string, position vrep.Point) error
	CopyObject(ctx context.Context, handle vrep.Handle) (vrep.Handle, error)
	GetPose(ctx context.Context, handle vrep.Handle) (vrep.PoseStamped, error)
	LoadScene(ctx context.Context, path string) error
	LoadPackageScene(ctx context.Context, problem, relativePath, packageName string) error
	IsRunning() bool
	IsConnected() bool
}

// Config holds server configuration
type Config struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:8765",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Server serves the Simulator service and a health endpoint.
type Server struct {
	config Config
	sim    Simulator
	logger log.Log

	rpc     *rpc.Server
	handler http.Handler

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	serveErr chan error

	running atomic.Bool
	closed  atomic.Bool
}

// NewServer builds a server forwarding to sim. Nothing listens until Start.
func NewServer(config Config, sim Simulator, logger log.Log) (*Server, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		config: config,
		sim:    sim,
		logger: logger.With(log.String("component", "rpc-server")),
		rpc:    rpc.NewServer(),
	}

	s.rpc.RegisterCodec(json.NewCodec(), "application/json")
	if err := s.rpc.RegisterService(&SimulatorService{sim: sim, logger: s.logger}, ServiceName); err != nil {
		return nil, errors.Wrap(err, "register simulator service")
	}

	mux := http.NewServeMux()
	mux.Handle(RPCPath, s.rpc)
	mux.HandleFunc(HealthPath, s.handleHealth)
	s.handler = s.logRequests(mux)

	return s, nil
}

// Handler returns the HTTP handler, for mounting elsewhere or testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on Config.ListenAddr and serves in the background.
func (s *Server) Start(_ context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		s.running.Store(false)
		s.logger.Error("Failed to create listener", log.Error(err))
		return errors.Wrapf(ErrListenerFailed, "%s: %v", s.config.ListenAddr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	s.serveErr = make(chan error, 1)
	srv, serveErr := s.http, s.serveErr
	s.mu.Unlock()

	go func() {
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped unexpectedly", log.Error(err))
			serveErr <- err
		}
		close(serveErr)
	}()

	s.logger.Info("Server listening", log.String("addr", listener.Addr().String()))

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done is closed when the server stops serving. It receives the error that
// stopped it, if any. It returns nil before Start.
func (s *Server) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	if _, ok := ctx.Deadline(); !ok && s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}

	s.logger.Info("Server stopped")
	return nil
}

// Close stops the server if it is running and prevents restarts.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrServerNotRunning) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Handled request",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Duration("took", time.Since(start)))
	})
}
