//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// poller multiplexes descriptor readiness using kqueue.
//
// It is only used from the goroutine running the reactor.
type poller struct {
	fds      map[int]*kqEntry
	eventBuf [256]unix.Kevent_t
	kq       int
	closed   bool
}

type kqEntry struct {
	cb     ioCallback
	events IOEvents
}

func (p *poller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	p.fds = make(map[int]*kqEntry)
	return nil
}

func (p *poller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.fds = nil
	return unix.Close(p.kq)
}

func (p *poller) register(fd int, events IOEvents, cb ioCallback) error {
	if p.closed {
		return ErrClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if _, ok := p.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	if kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
		if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = &kqEntry{cb: cb, events: events}
	return nil
}

func (p *poller) modify(fd int, events IOEvents) error {
	if p.closed {
		return ErrClosed
	}
	entry, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	old := entry.events
	entry.events = events
	if del := eventsToKevents(fd, old&^events, unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(p.kq, del, nil, nil)
	}
	if add := eventsToKevents(fd, events&^old, unix.EV_ADD|unix.EV_ENABLE); len(add) > 0 {
		if _, err := unix.Kevent(p.kq, add, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *poller) unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	entry, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	// closing a descriptor removes its filters, so errors here are expected
	if del := eventsToKevents(fd, entry.events, unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(p.kq, del, nil, nil)
	}
	return nil
}

// poll waits up to timeoutMs (negative blocks indefinitely), then runs the
// callback of every ready descriptor, returning how many events were ready.
func (p *poller) poll(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		if entry := p.fds[int(p.eventBuf[i].Ident)]; entry != nil {
			entry.cb(keventToEvents(&p.eventBuf[i]))
		}
	}
	return n, nil
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
