package server

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/rpc/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/vrepclient/internal/core/observability/log"
	"github.com/zeusync/vrepclient/internal/core/vrep"
)

var errNotFound = errors.New("object not found")

type fakeSimulator struct {
	mu        sync.Mutex
	connected bool
	running   bool
	handles   map[string]vrep.Handle
	moves     map[vrep.Handle]vrep.Point
	scenes    []string
	startErr  error
}

func newFakeSimulator() *fakeSimulator {
	return &fakeSimulator{
		connected: true,
		handles:   map[string]vrep.Handle{"Rover": 3},
		moves:     make(map[vrep.Handle]vrep.Point),
	}
}

func (f *fakeSimulator) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeSimulator) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *fakeSimulator) GetHandle(_ context.Context, name string) (vrep.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.handles[name]; ok {
		return h, nil
	}
	return vrep.InvalidHandle, fmt.Errorf("%w: %q", errNotFound, name)
}

func (f *fakeSimulator) MoveObject(_ context.Context, h vrep.Handle, p vrep.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves[h] = p
	return nil
}

func (f *fakeSimulator) MoveObjectByName(ctx context.Context, name string, p vrep.Point) error {
	h, err := f.GetHandle(ctx, name)
	if err != nil {
		return err
	}
	return f.MoveObject(ctx, h, p)
}

func (f *fakeSimulator) CopyObject(_ context.Context, h vrep.Handle) (vrep.Handle, error) {
	return h + 100, nil
}

func (f *fakeSimulator) GetPose(_ context.Context, h vrep.Handle) (vrep.PoseStamped, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.moves[h]
	if !ok {
		return vrep.PoseStamped{}, errNotFound
	}
	return vrep.PoseStamped{Header: vrep.Header{FrameID: "world"}, Pose: vrep.Pose{Position: p}}, nil
}

func (f *fakeSimulator) LoadScene(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenes = append(f.scenes, path)
	return nil
}

func (f *fakeSimulator) LoadPackageScene(ctx context.Context, problem, rel, pkg string) error {
	return f.LoadScene(ctx, pkg+":"+problem+"/"+rel)
}

func (f *fakeSimulator) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeSimulator) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func newTestServer(t *testing.T, sim Simulator) *httptest.Server {
	t.Helper()
	s, err := NewServer(DefaultConfig(), sim, log.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method string, args, reply any) error {
	t.Helper()
	body, err := json.EncodeClientRequest(ServiceName+"."+method, args)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+RPCPath, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return json.DecodeClientResponse(resp.Body, reply)
}

func TestStartStopAndStatus(t *testing.T) {
	sim := newFakeSimulator()
	ts := newTestServer(t, sim)

	var res Result
	require.NoError(t, call(t, ts, "Start", &NoArgs{}, &res))
	assert.True(t, res.OK)

	var status StatusReply
	require.NoError(t, call(t, ts, "IsRunning", &NoArgs{}, &status))
	assert.Equal(t, StatusReply{Connected: true, Running: true}, status)

	require.NoError(t, call(t, ts, "Stop", &NoArgs{}, &res))
	require.NoError(t, call(t, ts, "IsRunning", &NoArgs{}, &status))
	assert.False(t, status.Running)
}

func TestErrorsReachTheCaller(t *testing.T) {
	sim := newFakeSimulator()
	sim.startErr = errors.New("simulator operation failed: start returned -1")
	ts := newTestServer(t, sim)

	var res Result
	err := call(t, ts, "Start", &NoArgs{}, &res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned -1")

	var h HandleReply
	err = call(t, ts, "GetHandle", &HandleArgs{Name: "Ghost"}, &h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ghost")

	err = call(t, ts, "GetHandle", &HandleArgs{}, &h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrInvalidArgs.Error())
}

func TestObjectCalls(t *testing.T) {
	sim := newFakeSimulator()
	ts := newTestServer(t, sim)

	var h HandleReply
	require.NoError(t, call(t, ts, "GetHandle", &HandleArgs{Name: "Rover"}, &h))
	assert.Equal(t, vrep.Handle(3), h.Handle)

	var res Result
	require.NoError(t, call(t, ts, "MoveObject", &MoveArgs{Name: "Rover", Position: vrep.Point{X: 1}}, &res))
	assert.True(t, res.OK)

	handle := vrep.Handle(8)
	require.NoError(t, call(t, ts, "MoveObject", &MoveArgs{Handle: &handle, Position: vrep.Point{Y: 2}}, &res))
	assert.Error(t, call(t, ts, "MoveObject", &MoveArgs{}, &res))

	var pose PoseReply
	require.NoError(t, call(t, ts, "GetPose", &ObjectArgs{Handle: 3}, &pose))
	assert.Equal(t, vrep.Point{X: 1}, pose.Pose.Pose.Position)
	assert.Equal(t, "world", pose.Pose.Header.FrameID)
	require.NoError(t, call(t, ts, "GetPose", &ObjectArgs{Handle: 8}, &pose))
	assert.Equal(t, vrep.Point{Y: 2}, pose.Pose.Pose.Position)

	require.NoError(t, call(t, ts, "CopyObject", &ObjectArgs{Handle: 3}, &h))
	assert.Equal(t, vrep.Handle(103), h.Handle)
}

func TestSceneCalls(t *testing.T) {
	sim := newFakeSimulator()
	ts := newTestServer(t, sim)

	var res Result
	require.NoError(t, call(t, ts, "LoadScene", &LoadSceneArgs{Path: "/scenes/a.ttt"}, &res))
	require.NoError(t, call(t, ts, "LoadPackageScene", &LoadPackageSceneArgs{Problem: "tag", RelativePath: "tag.ttt", Package: "tapir"}, &res))
	assert.Error(t, call(t, ts, "LoadScene", &LoadSceneArgs{}, &res))
	assert.Error(t, call(t, ts, "LoadPackageScene", &LoadPackageSceneArgs{Problem: "tag"}, &res))

	assert.Equal(t, []string{"/scenes/a.ttt", "tapir:tag/tag.ttt"}, sim.scenes)
}

func TestHealth(t *testing.T) {
	sim := newFakeSimulator()
	ts := newTestServer(t, sim)

	get := func() (int, Health) {
		resp, err := http.Get(ts.URL + HealthPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		var h Health
		require.NoError(t, stdjson.NewDecoder(resp.Body).Decode(&h))
		return resp.StatusCode, h
	}

	code, h := get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, Health{Status: "ok", Connected: true}, h)

	sim.mu.Lock()
	sim.connected = false
	sim.mu.Unlock()

	code, h = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "disconnected", h.Status)

	resp, err := http.Post(ts.URL+HealthPath, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	s, err := NewServer(cfg, newFakeSimulator(), nil)
	require.NoError(t, err)
	assert.Nil(t, s.Addr())

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrServerAlreadyRunning)

	resp, err := http.Get("http://" + s.Addr().String() + HealthPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, s.Stop(ctx), ErrServerNotRunning)

	select {
	case err, ok := <-s.Done():
		assert.False(t, ok, "unexpected serve error %v", err)
	case <-time.After(time.Second):
		t.Fatal("serve loop did not exit")
	}

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Start(context.Background()), ErrServerClosed)
}

func TestListenFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "256.0.0.1:1"
	s, err := NewServer(cfg, newFakeSimulator(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Start(context.Background()), ErrListenerFailed)
}
