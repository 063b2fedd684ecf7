//go:build linux || darwin

package reactor

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Notifier is a level-triggered wakeup descriptor: after [Notifier.Notify],
// [Notifier.FD] is readable until [Notifier.Drain]. It is backed by an
// eventfd on Linux and a pipe on Darwin.
//
// All methods are safe for concurrent use.
type Notifier struct {
	mu      sync.RWMutex
	readFD  int
	writeFD int
	closed  bool
}

// NewNotifier creates a [Notifier], which must be closed.
func NewNotifier() (*Notifier, error) {
	r, w, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &Notifier{readFD: r, writeFD: w}, nil
}

// FD returns the descriptor to poll for readability.
func (n *Notifier) FD() int {
	return n.readFD
}

// Notify makes the descriptor readable. Notifying a closed notifier returns
// [ErrClosed].
func (n *Notifier) Notify() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}
	// native endianness, eventfd requires exactly 8 bytes
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	if _, err := unix.Write(n.writeFD, buf); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// Drain consumes every pending notification.
func (n *Notifier) Drain() {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	var buf [64]byte
	for {
		if c, err := unix.Read(n.readFD, buf[:]); err != nil || c == 0 {
			return
		}
	}
}

// Close releases the descriptors. It is idempotent.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	err := unix.Close(n.readFD)
	if n.writeFD != n.readFD {
		if e := unix.Close(n.writeFD); err == nil {
			err = e
		}
	}
	return err
}
