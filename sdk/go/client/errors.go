package client

import (
	"errors"
	"fmt"
)

var (
	ErrClientClosed     = errors.New("client is closed")
	ErrNotConnected     = errors.New("client is not connected")
	ErrAlreadyConnected = errors.New("client is already connected")
	ErrOperationFailed  = errors.New("simulator operation failed")
	ErrObjectNotFound   = errors.New("object not found")
)

// OperationError is returned when the simulator answered a call with a
// failure code.
type OperationError struct {
	Op     string
	Result int32
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s returned %d", ErrOperationFailed, e.Op, e.Result)
}

func (e *OperationError) Unwrap() error { return ErrOperationFailed }
