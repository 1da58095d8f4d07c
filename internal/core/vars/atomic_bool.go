// Package vars holds small versioned state cells shared between a delivery
// goroutine and readers.
package vars

import "sync/atomic"

// AtomicBool is a bool whose version increases on every write, including
// writes that store the value it already holds.
type AtomicBool struct {
	value   atomic.Bool
	version atomic.Uint64
}

// NewAtomicBool creates an AtomicBool at version 1.
func NewAtomicBool(initialValue bool) *AtomicBool {
	a := &AtomicBool{}
	a.value.Store(initialValue)
	a.version.Store(1)
	return a
}

func (a *AtomicBool) Get() bool {
	return a.value.Load()
}

// Set stores value and reports whether it differs from the previous one.
func (a *AtomicBool) Set(value bool) (changed bool) {
	old := a.value.Swap(value)
	a.version.Add(1)
	return old != value
}

func (a *AtomicBool) Version() uint64 {
	return a.version.Load()
}
