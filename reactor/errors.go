//go:build linux || darwin

package reactor

import (
	"errors"
	"fmt"
)

var (
	// ErrReentrantRun is returned when Run is called while the reactor is
	// already running, including from within one of its callbacks.
	ErrReentrantRun = errors.New("reactor: cannot call Run while already running")

	// ErrClosed is returned when operations are attempted on a closed
	// reactor.
	ErrClosed = errors.New("reactor: reactor has been closed")

	ErrFDOutOfRange        = errors.New("reactor: fd out of range")
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
)

// PanicError is the error a reactor stops with when a callback panics.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Kind is the kind of the watcher whose callback panicked.
	Kind Kind
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("reactor: %s watcher callback panicked: %v", e.Kind, e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
