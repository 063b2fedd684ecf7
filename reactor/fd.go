//go:build linux || darwin

package reactor

import (
	"slices"

	"github.com/joeycumines/go-fluxcore"
)

// FDWatcher reports readiness of a file descriptor. Any number of watchers
// may share a descriptor. Error and hangup conditions are always reported,
// regardless of the requested events.
type FDWatcher struct {
	watcher
	cb     func(w *FDWatcher, revents IOEvents)
	fd     int
	events IOEvents
}

// NewFDWatcher creates a watcher for fd, which must remain open while the
// watcher is active.
func NewFDWatcher(r *Reactor, fd int, events IOEvents, cb func(w *FDWatcher, revents IOEvents)) (*FDWatcher, error) {
	if r == nil || fd < 0 {
		return nil, fluxcore.NewError(`fd watcher`, fluxcore.ErrInvalidArgument, nil)
	}
	w := &FDWatcher{cb: cb, fd: fd, events: events}
	w.init(r, KindFD, w)
	return w, nil
}

// FD returns the watched descriptor.
func (w *FDWatcher) FD() int { return w.fd }

// Events returns the events of interest.
func (w *FDWatcher) Events() IOEvents { return w.events }

func (w *FDWatcher) start() error { return w.r.addFDListener(w.fd, w) }

func (w *FDWatcher) stop() { w.r.removeFDListener(w.fd, w) }

func (w *FDWatcher) fdInterest() IOEvents { return w.events }

func (w *FDWatcher) fdReady(events IOEvents) {
	if !w.active {
		return
	}
	revents := events & (w.events | EventError | EventHangup)
	if revents == 0 {
		return
	}
	w.r.invoke(KindFD, func() {
		if w.cb != nil {
			w.cb(w, revents)
		}
	})
}

// fdListener receives the readiness of a descriptor registered with the
// poller.
type fdListener interface {
	fdInterest() IOEvents
	fdReady(events IOEvents)
}

// fdSet is every listener of one descriptor, and the union of their
// interest, as registered with the poller.
type fdSet struct {
	listeners []fdListener
	events    IOEvents
}

func (r *Reactor) addFDListener(fd int, l fdListener) error {
	set := r.fds[fd]
	if set == nil {
		if err := r.poller.register(fd, l.fdInterest(), func(events IOEvents) {
			r.dispatchFD(fd, events)
		}); err != nil {
			return err
		}
		r.fds[fd] = &fdSet{listeners: []fdListener{l}, events: l.fdInterest()}
		return nil
	}
	if events := set.events | l.fdInterest(); events != set.events {
		if err := r.poller.modify(fd, events); err != nil {
			return err
		}
		set.events = events
	}
	set.listeners = append(set.listeners, l)
	return nil
}

func (r *Reactor) removeFDListener(fd int, l fdListener) {
	set := r.fds[fd]
	if set == nil {
		return
	}
	set.listeners = removeWatcher(set.listeners, l)
	if len(set.listeners) == 0 {
		delete(r.fds, fd)
		if err := r.poller.unregister(fd); err != nil {
			r.logger.Err().Err(err).Int(`fd`, fd).Log(`reactor: failed to unregister fd`)
		}
		return
	}
	var events IOEvents
	for _, v := range set.listeners {
		events |= v.fdInterest()
	}
	if events != set.events {
		if err := r.poller.modify(fd, events); err != nil {
			r.logger.Err().Err(err).Int(`fd`, fd).Log(`reactor: failed to modify fd`)
			return
		}
		set.events = events
	}
}

func (r *Reactor) dispatchFD(fd int, events IOEvents) {
	set := r.fds[fd]
	if set == nil {
		return
	}
	for _, l := range slices.Clone(set.listeners) {
		l.fdReady(events)
	}
}
