package fluxcore

import (
	"errors"
	"syscall"
)

// Error kinds. Every error returned by this module matches exactly one of
// these via [errors.Is], in addition to any underlying cause.
var (
	// ErrInvalidArgument is returned for malformed matches, negative timer
	// parameters, out of range tag lengths, and similar caller mistakes.
	ErrInvalidArgument = errors.New("fluxcore: invalid argument")

	// ErrNotSupported is returned when a transport doesn't implement the
	// requested capability.
	ErrNotSupported = errors.New("fluxcore: operation not supported")

	// ErrOutOfMemory is returned when a fixed size resource is exhausted.
	ErrOutOfMemory = errors.New("fluxcore: out of memory")

	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("fluxcore: not found")

	// ErrTransport wraps failures propagated from a transport.
	ErrTransport = errors.New("fluxcore: transport error")

	// ErrInterrupted is reported by a reactor stopped with a nil error.
	ErrInterrupted = errors.New("fluxcore: interrupted")
)

// Error pairs an error kind with the operation that failed, and an optional
// cause, e.g. a [syscall.Errno] from the transport.
type Error struct {
	// Kind is one of the Err* sentinels in this package.
	Kind error
	// Err is the underlying cause, which may be nil.
	Err error
	// Op names the failed operation, e.g. "send".
	Op string
}

// NewError builds an [*Error].
func NewError(op string, kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var s string
	if e.Op != `` {
		s = e.Op + `: `
	}
	if e.Kind != nil {
		s += e.Kind.Error()
	} else {
		s += `error`
	}
	if e.Err != nil {
		s += `: ` + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause, so [errors.Is] matches either.
func (e *Error) Unwrap() []error {
	switch {
	case e.Kind != nil && e.Err != nil:
		return []error{e.Kind, e.Err}
	case e.Kind != nil:
		return []error{e.Kind}
	case e.Err != nil:
		return []error{e.Err}
	default:
		return nil
	}
}

// TransportError wraps a transport failure as [ErrTransport], unless it is
// already classified by one of the kinds in this package.
func TransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return NewError(op, ErrTransport, err)
}

// Classified reports whether err already matches one of the error kinds.
func Classified(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotSupported) ||
		errors.Is(err, ErrOutOfMemory) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrInterrupted)
}

// Errno extracts the errno carried by err, mapping the kinds without one to
// their conventional values. It returns 0 for a nil error.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, ErrNotSupported):
		return syscall.ENOSYS
	case errors.Is(err, ErrOutOfMemory):
		return syscall.ENOMEM
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrInterrupted):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}
