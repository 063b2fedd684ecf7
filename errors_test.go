package fluxcore

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	err := NewError(`send`, ErrTransport, syscall.EPIPE)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, syscall.EPIPE)
	assert.NotErrorIs(t, err, ErrNotSupported)
	assert.Equal(t, `send: fluxcore: transport error: broken pipe`, err.Error())
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, `fluxcore: not found`, (&Error{Kind: ErrNotFound}).Error())
	assert.Equal(t, `error`, (&Error{}).Error())
	assert.Nil(t, (&Error{}).Unwrap())
	assert.Len(t, (&Error{Err: syscall.EIO}).Unwrap(), 1)
}

func TestTransportError(t *testing.T) {
	assert.NoError(t, TransportError(`recv`, nil))

	err := TransportError(`recv`, syscall.EAGAIN)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, syscall.EAGAIN)

	classified := NewError(`recv`, ErrNotSupported, nil)
	assert.Same(t, classified, TransportError(`recv`, classified))
}

func TestErrno(t *testing.T) {
	for _, tc := range [...]struct {
		err   error
		errno syscall.Errno
	}{
		{nil, 0},
		{syscall.ESRCH, syscall.ESRCH},
		{NewError(`x`, ErrTransport, syscall.ECONNRESET), syscall.ECONNRESET},
		{ErrInvalidArgument, syscall.EINVAL},
		{NewError(`x`, ErrNotSupported, nil), syscall.ENOSYS},
		{ErrOutOfMemory, syscall.ENOMEM},
		{ErrNotFound, syscall.ENOENT},
		{ErrInterrupted, syscall.EINTR},
		{errors.New(`other`), syscall.EIO},
	} {
		assert.Equal(t, tc.errno, Errno(tc.err), `%v`, tc.err)
	}
}
