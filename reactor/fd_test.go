//go:build linux || darwin

package reactor

import (
	"context"
	"testing"

	"github.com/joeycumines/go-fluxcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newSocketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	for _, fd := range fds {
		require.NoError(t, unix.SetNonblock(fd, true))
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestNewFDWatcher_invalid(t *testing.T) {
	r := newTestReactor(t)
	_, err := NewFDWatcher(r, -1, EventRead, nil)
	assert.ErrorIs(t, err, fluxcore.ErrInvalidArgument)
}

func TestFDWatcher_transfer(t *testing.T) {
	const total = 10 * 1024 * 1024
	r := newTestReactor(t)
	a, b := newSocketPair(t)

	out := make([]byte, total)
	for i := range out {
		out[i] = byte(i)
	}
	var sent, received int
	var in []byte

	writer, err := NewFDWatcher(r, a, EventWrite, func(w *FDWatcher, revents IOEvents) {
		if revents&EventError != 0 {
			w.Reactor().StopError(unix.EIO)
			return
		}
		n, err := unix.Write(w.FD(), out[sent:])
		if err != nil {
			if err != unix.EAGAIN {
				w.Reactor().StopError(err)
			}
			return
		}
		if sent += n; sent == total {
			w.Stop()
		}
	})
	require.NoError(t, err)

	buf := make([]byte, 64*1024)
	reader, err := NewFDWatcher(r, b, EventRead, func(w *FDWatcher, revents IOEvents) {
		n, err := unix.Read(w.FD(), buf)
		if err != nil {
			if err != unix.EAGAIN {
				w.Reactor().StopError(err)
			}
			return
		}
		in = append(in, buf[:n]...)
		if received += n; received == total {
			w.Stop()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, EventRead, reader.Events())

	require.NoError(t, writer.Start())
	require.NoError(t, reader.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, total, sent)
	assert.Equal(t, total, received)
	assert.Equal(t, out, in)
	assert.Empty(t, r.fds)
}

func TestFDWatcher_sharedDescriptor(t *testing.T) {
	r := newTestReactor(t)
	a, b := newSocketPair(t)
	_, err := unix.Write(b, []byte(`x`))
	require.NoError(t, err)

	var reads, writes int
	read1, err := NewFDWatcher(r, a, EventRead, func(w *FDWatcher, revents IOEvents) {
		assert.Equal(t, EventRead, revents&EventRead)
		reads++
		w.Stop()
	})
	require.NoError(t, err)
	read2, err := NewFDWatcher(r, a, EventRead, func(w *FDWatcher, revents IOEvents) {
		reads++
		w.Stop()
	})
	require.NoError(t, err)
	write, err := NewFDWatcher(r, a, EventWrite, func(w *FDWatcher, revents IOEvents) {
		assert.Zero(t, revents&EventRead)
		writes++
		w.Stop()
	})
	require.NoError(t, err)

	require.NoError(t, read1.Start())
	require.NoError(t, read2.Start())
	require.NoError(t, write.Start())
	assert.Equal(t, EventRead|EventWrite, r.fds[a].events)
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, writes)
	assert.NotContains(t, r.fds, a)
}

func TestFDWatcher_hangup(t *testing.T) {
	r := newTestReactor(t)
	a, b := newSocketPair(t)
	require.NoError(t, unix.Shutdown(b, unix.SHUT_RDWR))

	var got IOEvents
	w, err := NewFDWatcher(r, a, EventRead, func(w *FDWatcher, revents IOEvents) {
		got = revents
		w.Stop()
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.NotZero(t, got&(EventRead|EventHangup))
}
