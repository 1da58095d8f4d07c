// Package client drives a V-REP / CoppeliaSim simulator through the ROS
// services its plugin advertises, reached over a rosbridge websocket.
//
// Every call blocks until the simulator answers. The run state is fed by
// the simulator's info topic; deliveries queue up until IsRunning, SpinOnce
// or Spin applies them.
package client

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/zeusync/vrepclient/internal/core/events/bus"
	"github.com/zeusync/vrepclient/internal/core/observability/log"
	"github.com/zeusync/vrepclient/internal/core/protocol/rosbridge"
	"github.com/zeusync/vrepclient/internal/core/rospack"
	"github.com/zeusync/vrepclient/internal/core/vars"
	"github.com/zeusync/vrepclient/internal/core/vrep"
)

type (
	startService  = rosbridge.ServiceClient[vrep.StartSimulationRequest, vrep.StartSimulationResponse]
	stopService   = rosbridge.ServiceClient[vrep.StopSimulationRequest, vrep.StopSimulationResponse]
	handleService = rosbridge.ServiceClient[vrep.GetObjectHandleRequest, vrep.GetObjectHandleResponse]
	moveService   = rosbridge.ServiceClient[vrep.SetObjectPositionRequest, vrep.SetObjectPositionResponse]
	copyService   = rosbridge.ServiceClient[vrep.CopyPasteObjectsRequest, vrep.CopyPasteObjectsResponse]
	poseService   = rosbridge.ServiceClient[vrep.GetObjectPoseRequest, vrep.GetObjectPoseResponse]
	loadService   = rosbridge.ServiceClient[vrep.LoadSceneRequest, vrep.LoadSceneResponse]
)

// session is everything bound to one bridge connection.
type session struct {
	conn *rosbridge.Conn
	info *rosbridge.Subscriber

	start  *startService
	stop   *stopService
	handle *handleService
	move   *moveService
	copy   *copyService
	pose   *poseService
	load   *loadService
}

func newSession(conn *rosbridge.Conn, ns string) *session {
	name := func(svc string) string { return vrep.ServiceName(ns, svc) }
	return &session{
		conn:   conn,
		start:  rosbridge.NewServiceClient[vrep.StartSimulationRequest, vrep.StartSimulationResponse](conn, name(vrep.ServiceStartSimulation)),
		stop:   rosbridge.NewServiceClient[vrep.StopSimulationRequest, vrep.StopSimulationResponse](conn, name(vrep.ServiceStopSimulation)),
		handle: rosbridge.NewServiceClient[vrep.GetObjectHandleRequest, vrep.GetObjectHandleResponse](conn, name(vrep.ServiceGetObjectHandle)),
		move:   rosbridge.NewServiceClient[vrep.SetObjectPositionRequest, vrep.SetObjectPositionResponse](conn, name(vrep.ServiceSetObjectPosition)),
		copy:   rosbridge.NewServiceClient[vrep.CopyPasteObjectsRequest, vrep.CopyPasteObjectsResponse](conn, name(vrep.ServiceCopyPasteObjects)),
		pose:   rosbridge.NewServiceClient[vrep.GetObjectPoseRequest, vrep.GetObjectPoseResponse](conn, name(vrep.ServiceGetObjectPose)),
		load:   rosbridge.NewServiceClient[vrep.LoadSceneRequest, vrep.LoadSceneResponse](conn, name(vrep.ServiceLoadScene)),
	}
}

// Client is a simulator connection. It is safe for concurrent use.
type Client struct {
	config   Config
	logger   log.Log
	events   bus.EventBus
	observer *deliveryLogger
	packages PackageResolver

	mu      sync.RWMutex
	session *session

	running  *vars.AtomicBool
	lastInfo atomic.Pointer[vrep.Info]
	// drainMu keeps info messages applied in arrival order when several
	// goroutines drain at once.
	drainMu sync.Mutex
	changes []Event

	closed  atomic.Bool
	watchWG sync.WaitGroup
}

// New creates a client. Nothing is dialed until Connect.
func New(config Config, opts ...Option) *Client {
	if config.InfoTopic == "" {
		config.InfoTopic = vrep.ServiceName(config.Namespace, "info")
	}
	if config.InfoQueueLength < 1 {
		config.InfoQueueLength = 1
	}

	c := &Client{
		config:  config,
		events:  bus.New(),
		running: vars.NewAtomicBool(false),
	}
	c.logger = log.New(config.LogLevel)

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With(log.String("component", "vrep-client"))
	c.observer = &deliveryLogger{logger: c.logger}
	c.events.AddObserver(c.observer)
	if c.packages == nil {
		c.packages = rospack.FromEnv(config.PackagePaths,
			rospack.WithOverrides(config.PackageOverrides),
			rospack.WithLogger(c.logger))
	}

	return c
}

// Connect dials the bridge, binds the simulator services and subscribes to
// the info topic.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	c.emitEvent(Event{Type: EventTypeConnected, URL: c.config.URL})
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Close may have run between the check above and the lock.
	if c.closed.Load() {
		return ErrClientClosed
	}

	if c.session != nil && !c.session.conn.IsClosed() {
		return ErrAlreadyConnected
	}

	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	c.logger.Info("Connecting to simulator bridge", log.String("url", c.config.URL))

	conn, err := rosbridge.Dial(ctx, c.config.URL, c.config.Bridge, c.logger)
	if err != nil {
		c.logger.Error("Failed to connect to simulator bridge", log.String("url", c.config.URL), log.Error(err))
		return err
	}

	s := newSession(conn, c.config.Namespace)
	for _, name := range vrep.Services {
		c.logger.Debug("Bound simulator service",
			log.String("service", vrep.ServiceName(c.config.Namespace, name)),
			log.String("type", vrep.ServiceType(name)))
	}
	s.info, err = conn.Subscribe(ctx, c.config.InfoTopic, vrep.InfoType, c.config.InfoQueueLength)
	if err != nil {
		_ = conn.Close()
		return errors.Wrapf(err, "subscribe %s", c.config.InfoTopic)
	}
	c.session = s

	c.watchWG.Add(1)
	go c.watch(s)

	return nil
}

// Close disconnects and makes every further call fail with ErrClientClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	var err error
	if s != nil {
		_ = s.info.Close()
		err = s.conn.Close()
	}
	c.watchWG.Wait()
	c.events.RemoveObserver(c.observer)

	c.logger.Info("Client closed")
	return err
}

// IsConnected reports whether the bridge connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil && !c.session.conn.IsClosed()
}

// IsClosed reports whether Close was called.
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// Start starts the simulation.
func (c *Client) Start(ctx context.Context) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := s.start.Call(ctx, &vrep.StartSimulationRequest{})
	if err != nil {
		return c.callFailed(s.start.Name(), err)
	}
	return c.checkResult(s.start.Name(), resp.Result)
}

// Stop stops the simulation.
func (c *Client) Stop(ctx context.Context) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := s.stop.Call(ctx, &vrep.StopSimulationRequest{})
	if err != nil {
		return c.callFailed(s.stop.Name(), err)
	}
	return c.checkResult(s.stop.Name(), resp.Result)
}

// GetHandle looks an object up by name. A missing object yields
// vrep.InvalidHandle and an error matching ErrObjectNotFound.
func (c *Client) GetHandle(ctx context.Context, name string) (vrep.Handle, error) {
	s, err := c.current()
	if err != nil {
		return vrep.InvalidHandle, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := s.handle.Call(ctx, &vrep.GetObjectHandleRequest{ObjectName: name})
	if err != nil {
		return vrep.InvalidHandle, c.callFailed(s.handle.Name(), err)
	}
	if !resp.Handle.Valid() {
		c.logger.Warn("Object not found", log.String("object", name))
		return vrep.InvalidHandle, errors.Wrapf(ErrObjectNotFound, "%q", name)
	}
	return resp.Handle, nil
}

// MoveObject places handle at position in the world frame.
func (c *Client) MoveObject(ctx context.Context, handle vrep.Handle, position vrep.Point) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := s.move.Call(ctx, &vrep.SetObjectPositionRequest{
		Handle:                 handle,
		RelativeToObjectHandle: vrep.RelativeToWorld,
		Position:               position,
	})
	if err != nil {
		return c.callFailed(s.move.Name(), err)
	}
	return c.checkResult(s.move.Name(), resp.Result)
}

// MoveObjectByName resolves name and moves the object. Nothing is moved
// when the lookup fails.
func (c *Client) MoveObjectByName(ctx context.Context, name string, position vrep.Point) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	handle, err := c.GetHandle(ctx, name)
	if err != nil {
		return err
	}
	return c.MoveObject(ctx, handle, position)
}

// CopyObject duplicates handle and returns the handle of the copy.
func (c *Client) CopyObject(ctx context.Context, handle vrep.Handle) (vrep.Handle, error) {
	s, err := c.current()
	if err != nil {
		return vrep.InvalidHandle, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := s.copy.Call(ctx, &vrep.CopyPasteObjectsRequest{ObjectHandles: []vrep.Handle{handle}})
	if err != nil {
		return vrep.InvalidHandle, c.callFailed(s.copy.Name(), err)
	}
	if len(resp.NewObjectHandles) == 0 || !resp.NewObjectHandles[0].Valid() {
		c.logger.Warn("Copy returned no object", log.String("handle", handle.String()))
		return vrep.InvalidHandle, &OperationError{Op: s.copy.Name(), Result: vrep.ResultFailure}
	}
	return resp.NewObjectHandles[0], nil
}

// GetPose returns the pose of handle in the world frame.
func (c *Client) GetPose(ctx context.Context, handle vrep.Handle) (vrep.PoseStamped, error) {
	s, err := c.current()
	if err != nil {
		return vrep.PoseStamped{}, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := s.pose.Call(ctx, &vrep.GetObjectPoseRequest{
		Handle:                 handle,
		RelativeToObjectHandle: vrep.RelativeToWorld,
	})
	if err != nil {
		return vrep.PoseStamped{}, c.callFailed(s.pose.Name(), err)
	}
	if err = c.checkResult(s.pose.Name(), resp.Result); err != nil {
		return vrep.PoseStamped{}, err
	}
	return resp.Pose, nil
}

// LoadScene loads the scene file at path, which is resolved on the
// simulator's host.
func (c *Client) LoadScene(ctx context.Context, path string) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := s.load.Call(ctx, &vrep.LoadSceneRequest{FileName: path})
	if err != nil {
		return c.callFailed(s.load.Name(), err)
	}
	if resp.Result != vrep.LoadSceneSuccess {
		c.logger.Warn("Scene was not loaded", log.String("path", path), log.Int32("result", resp.Result))
		return &OperationError{Op: s.load.Name(), Result: resp.Result}
	}

	c.logger.Info("Scene loaded", log.String("path", path))
	return nil
}

// ScenePath returns <package dir>/problems/<problem>/<relativePath>. An
// empty packageName means Config.DefaultPackage.
func (c *Client) ScenePath(problem, relativePath, packageName string) (string, error) {
	if packageName == "" {
		packageName = c.config.DefaultPackage
	}
	dir, err := c.packages.Find(packageName)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "problems", problem, relativePath), nil
}

// LoadPackageScene loads a scene stored under a ROS package.
func (c *Client) LoadPackageScene(ctx context.Context, problem, relativePath, packageName string) error {
	path, err := c.ScenePath(problem, relativePath, packageName)
	if err != nil {
		return err
	}
	return c.LoadScene(ctx, path)
}

// IsRunning applies the pending info messages and reports whether the
// simulation is running. It is false until the first message arrives.
func (c *Client) IsRunning() bool {
	if _, err := c.SpinOnce(); err != nil && !errors.Is(err, ErrNotConnected) && !errors.Is(err, ErrClientClosed) {
		c.logger.Warn("Failed to apply info messages", log.Error(err))
	}
	return c.running.Get()
}

// LastInfo returns the most recently applied info message.
func (c *Client) LastInfo() (vrep.Info, bool) {
	info := c.lastInfo.Load()
	if info == nil {
		return vrep.Info{}, false
	}
	return *info, true
}

// StateVersion increases every time an info message is applied.
func (c *Client) StateVersion() uint64 {
	return c.running.Version()
}

// SpinOnce applies every pending info message and returns how many there
// were.
func (c *Client) SpinOnce() (int, error) {
	s, err := c.current()
	if err != nil {
		return 0, err
	}
	return c.drain(s.info)
}

// Spin applies info messages as they arrive until ctx ends or the
// connection goes away.
func (c *Client) Spin(ctx context.Context) error {
	s, err := c.current()
	if err != nil {
		return err
	}

	for {
		if _, err = c.drain(s.info); err != nil {
			c.logger.Warn("Failed to apply info messages", log.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.info.Done():
			_, _ = c.drain(s.info)
			return rosbridge.ErrSubscriptionClosed
		case <-s.info.Ready():
		}
	}
}

func (c *Client) drain(sub *rosbridge.Subscriber) (int, error) {
	c.drainMu.Lock()
	n, err := sub.SpinOnce(c.applyInfo)
	changes := c.changes
	c.changes = nil
	c.drainMu.Unlock()

	// handlers may call back into the client, so they run unlocked
	for _, ev := range changes {
		c.emitEvent(ev)
	}
	return n, err
}

// applyInfo runs with drainMu held.
func (c *Client) applyInfo(raw json.RawMessage) error {
	info, err := rosbridge.Decode[vrep.Info](raw)
	if err != nil {
		return errors.Wrap(err, "decode info message")
	}

	c.lastInfo.Store(&info)
	running := info.Running()
	if c.running.Set(running) {
		c.logger.Info("Simulation state changed",
			log.Bool("running", running),
			log.Int32("simulator_state", info.SimulatorState.Data))
		c.changes = append(c.changes, Event{Type: EventTypeStateChanged, URL: c.config.URL, Running: running, Info: &info})
	}
	return nil
}

// watch reports the end of s. It exits when the connection closes.
func (c *Client) watch(s *session) {
	defer c.watchWG.Done()
	<-s.conn.Done()

	cause := s.conn.Err()
	if cause != nil {
		c.logger.Warn("Lost connection to simulator bridge", log.Error(cause))
	}
	c.emitEvent(Event{Type: EventTypeDisconnected, URL: c.config.URL, Error: cause})
}

func (c *Client) current() (*session, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()

	if s == nil {
		return nil, ErrNotConnected
	}
	if s.conn.IsClosed() {
		if cause := s.conn.Err(); cause != nil {
			return nil, errors.Wrapf(ErrNotConnected, "%v", cause)
		}
		return nil, ErrNotConnected
	}
	return s, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.CallTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.CallTimeout)
}

func (c *Client) checkResult(service string, result int32) error {
	if result == vrep.ResultFailure {
		c.logger.Warn("Simulator reported failure", log.String("service", service), log.Int32("result", result))
		return &OperationError{Op: service, Result: result}
	}
	return nil
}

func (c *Client) callFailed(service string, err error) error {
	c.logger.Error("Failed to call service", log.String("service", service), log.Error(err))
	return errors.Wrapf(err, "call %s", service)
}
