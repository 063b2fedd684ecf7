//go:build linux || darwin

package reactor

import (
	"reflect"
	"slices"

	"github.com/joeycumines/go-fluxcore"
)

// Socket is an edge-notified message socket, such as a transport inbox.
//
// NotifyFD must become readable whenever the socket's readiness may have
// changed. Events returns the current readiness, and may consume pending
// notifications, i.e. NotifyFD needn't stay readable while the socket is.
//
// Sockets are identified with ==, so the dynamic type must be comparable,
// typically a pointer. See [SocketComparable].
type Socket interface {
	NotifyFD() int
	Events() (IOEvents, error)
}

// SocketComparable reports whether sock is non-nil and may be compared with
// ==, or used as a map key, without panicking.
func SocketComparable(sock Socket) bool {
	return sock != nil && reflect.TypeOf(sock).Comparable()
}

// SocketWatcher reports readiness of a [Socket]. Readiness is sampled before
// polling, forcing a non-blocking poll if the socket is already ready, and
// delivered after polling.
type SocketWatcher struct {
	watcher
	sock   Socket
	cb     func(w *SocketWatcher, revents IOEvents)
	events IOEvents
}

// NewSocketWatcher creates a watcher for sock, failing with
// [fluxcore.ErrInvalidArgument] if sock is nil or not comparable.
func NewSocketWatcher(r *Reactor, sock Socket, events IOEvents, cb func(w *SocketWatcher, revents IOEvents)) (*SocketWatcher, error) {
	if r == nil || !SocketComparable(sock) {
		return nil, fluxcore.NewError(`socket watcher`, fluxcore.ErrInvalidArgument, nil)
	}
	w := &SocketWatcher{sock: sock, cb: cb, events: events}
	w.init(r, KindSocket, w)
	return w, nil
}

// Socket returns the watched socket.
func (w *SocketWatcher) Socket() Socket { return w.sock }

// Events returns the events of interest.
func (w *SocketWatcher) Events() IOEvents { return w.events }

func (w *SocketWatcher) start() error {
	if err := w.r.addFDListener(w.sock.NotifyFD(), w); err != nil {
		return err
	}
	w.r.sockets = append(w.r.sockets, w)
	return nil
}

func (w *SocketWatcher) stop() {
	w.r.sockets = removeWatcher(w.r.sockets, w)
	w.r.removeFDListener(w.sock.NotifyFD(), w)
}

// the notification only needs to wake the poll
func (w *SocketWatcher) fdInterest() IOEvents { return EventRead }

func (w *SocketWatcher) fdReady(IOEvents) {}

func (w *SocketWatcher) ready() IOEvents {
	events, err := w.sock.Events()
	revents := events & (w.events | EventError | EventHangup)
	if err != nil {
		revents |= EventError
	}
	return revents
}

func (r *Reactor) socketsReady() bool {
	for _, w := range r.sockets {
		if w.active && w.ready() != 0 {
			return true
		}
	}
	return false
}

func (r *Reactor) dispatchSockets() {
	if len(r.sockets) == 0 {
		return
	}
	for _, w := range slices.Clone(r.sockets) {
		if !w.active {
			continue
		}
		if revents := w.ready(); revents != 0 {
			r.invoke(KindSocket, func() {
				if w.cb != nil {
					w.cb(w, revents)
				}
			})
		}
	}
}
