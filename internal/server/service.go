package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/zeusync/vrepclient/internal/core/observability/log"
	"github.com/zeusync/vrepclient/internal/core/vrep"
)

type NoArgs struct{}

// Result is the reply of calls that only succeed or fail.
type Result struct {
	OK bool `json:"ok"`
}

type HandleArgs struct {
	Name string `json:"name"`
}

type HandleReply struct {
	Handle vrep.Handle `json:"handle"`
}

// MoveArgs addresses the object by Handle when set, by Name otherwise.
type MoveArgs struct {
	Handle   *vrep.Handle `json:"handle,omitempty"`
	Name     string       `json:"name,omitempty"`
	Position vrep.Point   `json:"position"`
}

type ObjectArgs struct {
	Handle vrep.Handle `json:"handle"`
}

type PoseReply struct {
	Pose vrep.PoseStamped `json:"pose"`
}

type LoadSceneArgs struct {
	Path string `json:"path"`
}

type LoadPackageSceneArgs struct {
	Problem      string `json:"problem"`
	RelativePath string `json:"relativePath"`
	Package      string `json:"package,omitempty"`
}

type StatusReply struct {
	Connected bool `json:"connected"`
	Running   bool `json:"running"`
}

// SimulatorService is registered with the RPC server. Each exported method
// is one JSON-RPC method.
type SimulatorService struct {
	sim    Simulator
	logger log.Log
}

func (s *SimulatorService) Start(r *http.Request, _ *NoArgs, reply *Result) error {
	return s.done(reply, "Start", s.sim.Start(r.Context()))
}

func (s *SimulatorService) Stop(r *http.Request, _ *NoArgs, reply *Result) error {
	return s.done(reply, "Stop", s.sim.Stop(r.Context()))
}

func (s *SimulatorService) GetHandle(r *http.Request, args *HandleArgs, reply *HandleReply) error {
	if args.Name == "" {
		return errors.Wrap(ErrInvalidArgs, "name is required")
	}
	h, err := s.sim.GetHandle(r.Context(), args.Name)
	reply.Handle = h
	return s.failed("GetHandle", err)
}

func (s *SimulatorService) MoveObject(r *http.Request, args *MoveArgs, reply *Result) error {
	switch {
	case args.Handle != nil:
		return s.done(reply, "MoveObject", s.sim.MoveObject(r.Context(), *args.Handle, args.Position))
	case args.Name != "":
		return s.done(reply, "MoveObject", s.sim.MoveObjectByName(r.Context(), args.Name, args.Position))
	default:
		return errors.Wrap(ErrInvalidArgs, "handle or name is required")
	}
}

func (s *SimulatorService) CopyObject(r *http.Request, args *ObjectArgs, reply *HandleReply) error {
	h, err := s.sim.CopyObject(r.Context(), args.Handle)
	reply.Handle = h
	return s.failed("CopyObject", err)
}

func (s *SimulatorService) GetPose(r *http.Request, args *ObjectArgs, reply *PoseReply) error {
	pose, err := s.sim.GetPose(r.Context(), args.Handle)
	if err != nil {
		return s.failed("GetPose", err)
	}
	reply.Pose = pose
	return nil
}

func (s *SimulatorService) LoadScene(r *http.Request, args *LoadSceneArgs, reply *Result) error {
	if args.Path == "" {
		return errors.Wrap(ErrInvalidArgs, "path is required")
	}
	return s.done(reply, "LoadScene", s.sim.LoadScene(r.Context(), args.Path))
}

func (s *SimulatorService) LoadPackageScene(r *http.Request, args *LoadPackageSceneArgs, reply *Result) error {
	if args.Problem == "" || args.RelativePath == "" {
		return errors.Wrap(ErrInvalidArgs, "problem and relativePath are required")
	}
	err := s.sim.LoadPackageScene(r.Context(), args.Problem, args.RelativePath, args.Package)
	return s.done(reply, "LoadPackageScene", err)
}

func (s *SimulatorService) IsRunning(_ *http.Request, _ *NoArgs, reply *StatusReply) error {
	reply.Connected = s.sim.IsConnected()
	reply.Running = s.sim.IsRunning()
	return nil
}

func (s *SimulatorService) done(reply *Result, method string, err error) error {
	reply.OK = err == nil
	return s.failed(method, err)
}

func (s *SimulatorService) failed(method string, err error) error {
	if err != nil {
		s.logger.Warn("RPC call failed", log.String("method", ServiceName+"."+method), log.Error(err))
	}
	return err
}
