package rosbridge

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed   = errors.New("rosbridge connection is closed")
	ErrServiceFailed      = errors.New("service call failed")
	ErrSubscriptionClosed = errors.New("subscription is closed")
	ErrMessageTooLarge    = errors.New("message too large")
	ErrInvalidFrame       = errors.New("invalid rosbridge frame")
)

// ServiceError is returned when the bridge reports a failed service call.
type ServiceError struct {
	Service string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", ErrServiceFailed, e.Service)
	}
	return fmt.Sprintf("%s: %s: %s", ErrServiceFailed, e.Service, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return ErrServiceFailed
}
