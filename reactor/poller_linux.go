//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// poller multiplexes descriptor readiness using epoll.
//
// It is only used from the goroutine running the reactor.
type poller struct {
	fds      map[int]ioCallback
	eventBuf [256]unix.EpollEvent
	epfd     int
	closed   bool
}

func (p *poller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	p.fds = make(map[int]ioCallback)
	return nil
}

func (p *poller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.fds = nil
	return unix.Close(p.epfd)
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
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	p.fds[fd] = cb
	return nil
}

func (p *poller) modify(fd int, events IOEvents) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *poller) unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	// the fd may already be closed by its owner, which removes it from the set
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.EBADF && err != unix.ENOENT {
		return err
	}
	return nil
}

// poll waits up to timeoutMs (negative blocks indefinitely), then runs the
// callback of every ready descriptor, returning how many were ready.
func (p *poller) poll(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		// callbacks may unregister descriptors later in the buffer
		if cb := p.fds[int(p.eventBuf[i].Fd)]; cb != nil {
			cb(epollToEvents(p.eventBuf[i].Events))
		}
	}
	return n, nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventHangup
	}
	return events
}
