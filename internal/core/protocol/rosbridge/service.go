package rosbridge

import "context"

// Caller is anything that can invoke a named service.
type Caller interface {
	CallService(ctx context.Context, service string, args, reply any) error
}

var _ Caller = (*Conn)(nil)

// ServiceClient is bound to one service and its request/response types.
type ServiceClient[Req, Resp any] struct {
	caller Caller
	name   string
}

// NewServiceClient binds name on caller.
func NewServiceClient[Req, Resp any](caller Caller, name string) *ServiceClient[Req, Resp] {
	return &ServiceClient[Req, Resp]{caller: caller, name: name}
}

// Name returns the fully resolved service name.
func (s *ServiceClient[Req, Resp]) Name() string {
	return s.name
}

// Call sends req and waits for the response.
func (s *ServiceClient[Req, Resp]) Call(ctx context.Context, req *Req) (*Resp, error) {
	var resp Resp
	var args any
	if req != nil {
		args = req
	}
	if err := s.caller.CallService(ctx, s.name, args, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
