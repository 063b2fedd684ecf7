//go:build linux || darwin

// Package loopback implements an in-process transport, where every message
// sent is received by the same handle.
package loopback

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/go-fluxcore/handle"
	"github.com/joeycumines/go-fluxcore/message"
	"github.com/joeycumines/go-fluxcore/reactor"
	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New(`loopback: transport closed`)

type (
	// Transport implements [handle.Ops]. Inbound messages are queued, and
	// while the reactor runs, routed to the bound handle's dispatch table.
	//
	// Only [Transport.Inject] and [Transport.Wake] may be called from
	// goroutines other than the one driving the handle.
	Transport struct {
		handle.UnimplementedOps

		r        *reactor.Reactor
		h        *handle.Handle
		logger   *logiface.Logger[logiface.Event]
		notifier *reactor.Notifier
		inboxW   *reactor.SocketWatcher
		fds      map[fdKey]*reactor.FDWatcher
		sockets  map[socketKey]*reactor.SocketWatcher
		timers   map[int]*reactor.TimerWatcher

		// guarded by mu
		inbox   *queue.Queue
		putBack *queue.Queue
		mu      sync.Mutex

		subs      []string
		nextTimer int
		rank      uint32
		ownsR     bool
		closed    bool
	}

	fdKey struct {
		fd     int
		events reactor.IOEvents
	}

	socketKey struct {
		sock   reactor.Socket
		events reactor.IOEvents
	}
)

var (
	_ handle.Ops     = (*Transport)(nil)
	_ handle.Binder  = (*Transport)(nil)
	_ reactor.Socket = (*Transport)(nil)
)

// New creates a transport, and a handle bound to it. Closing the handle
// closes the transport.
func New(opts ...Option) (*handle.Handle, error) {
	cfg, err := resolveTransportOptions(opts)
	if err != nil {
		return nil, err
	}
	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	handleOpts := cfg.handleOpts
	if cfg.logger != nil {
		handleOpts = append([]handle.Option{handle.WithLogger(cfg.logger)}, handleOpts...)
	}
	h, err := handle.New(t, handleOpts...)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return h, nil
}

// NewTransport creates an unbound transport, see [handle.New].
func NewTransport(opts ...Option) (*Transport, error) {
	cfg, err := resolveTransportOptions(opts)
	if err != nil {
		return nil, err
	}
	return newTransport(cfg)
}

func newTransport(cfg *transportOptions) (*Transport, error) {
	t := &Transport{
		r:       cfg.reactor,
		logger:  cfg.logger,
		fds:     make(map[fdKey]*reactor.FDWatcher),
		sockets: make(map[socketKey]*reactor.SocketWatcher),
		timers:  make(map[int]*reactor.TimerWatcher),
		inbox:   queue.New(),
		putBack: queue.New(),
		rank:    cfg.rank,
	}
	if t.r == nil {
		r, err := reactor.New(reactor.WithLogger(cfg.logger))
		if err != nil {
			return nil, err
		}
		t.r, t.ownsR = r, true
	}
	notifier, err := reactor.NewNotifier()
	if err != nil {
		if t.ownsR {
			_ = t.r.Close()
		}
		return nil, err
	}
	t.notifier = notifier
	t.inboxW, err = reactor.NewSocketWatcher(t.r, t, reactor.EventRead, t.onInbox)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

// Bind attaches the handle that readiness is routed to.
func (t *Transport) Bind(h *handle.Handle) { t.h = h }

// Reactor returns the reactor the transport runs on.
func (t *Transport) Reactor() *reactor.Reactor { return t.r }

// NotifyFD implements [reactor.Socket], becoming readable when a message
// is queued.
func (t *Transport) NotifyFD() int { return t.notifier.FD() }

// Events implements [reactor.Socket]. The transport is always writable.
func (t *Transport) Events() (reactor.IOEvents, error) {
	t.notifier.Drain()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	events := reactor.EventWrite
	if t.putBack.Length() != 0 || t.inbox.Length() != 0 {
		events |= reactor.EventRead
	}
	return events, nil
}

// Inject queues msg as if it had arrived from the network. It is safe to
// call from any goroutine.
func (t *Transport) Inject(msg *message.Message) error {
	if msg == nil {
		return fluxcore.NewError(`inject`, fluxcore.ErrInvalidArgument, nil)
	}
	return t.enqueue(t.inbox, msg)
}

// Wake interrupts a blocking receive, or the reactor's poll. It is safe to
// call from any goroutine.
func (t *Transport) Wake() error { return t.notifier.Notify() }

func (t *Transport) enqueue(q *queue.Queue, msg *message.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	q.Add(msg)
	t.mu.Unlock()
	return t.notifier.Notify()
}

func (t *Transport) dequeue() (*message.Message, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false, ErrClosed
	}
	for _, q := range [...]*queue.Queue{t.putBack, t.inbox} {
		if q.Length() != 0 {
			return q.Remove().(*message.Message), true, nil
		}
	}
	return nil, false, nil
}

// Send loops a copy of msg back to the inbox. Events are only delivered if
// a subscription prefixes their topic.
func (t *Transport) Send(msg *message.Message) error {
	if msg.Type == message.TypeEvent && !t.subscribed(msg.Topic) {
		return nil
	}
	return t.enqueue(t.inbox, msg.Copy())
}

func (t *Transport) subscribed(topic string) bool {
	for _, prefix := range t.subs {
		if strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

// Receive returns put back messages first, then the inbox. A non-blocking
// receive on an empty transport fails with EAGAIN.
func (t *Transport) Receive(nonblock bool) (*message.Message, error) {
	for {
		msg, ok, err := t.dequeue()
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}
		if nonblock {
			return nil, unix.EAGAIN
		}
		if err := t.waitNotify(); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) waitNotify() error {
	fds := []unix.PollFd{{Fd: int32(t.notifier.FD()), Events: unix.POLLIN}}
	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		t.notifier.Drain()
		return nil
	}
}

func (t *Transport) PutBack(msg *message.Message) error {
	return t.enqueue(t.putBack, msg)
}

// Subscribe delivers events whose topic starts with prefix. The empty prefix
// matches every event.
func (t *Transport) Subscribe(prefix string) error {
	t.subs = append(t.subs, prefix)
	return nil
}

func (t *Transport) Unsubscribe(prefix string) error {
	i := slices.Index(t.subs, prefix)
	if i < 0 {
		return fluxcore.NewError(`unsubscribe`, fluxcore.ErrNotFound, nil)
	}
	t.subs = slices.Delete(t.subs, i, i+1)
	return nil
}

func (t *Transport) Rank() (uint32, error) { return t.rank, nil }

// Context returns the transport's [reactor.Reactor].
func (t *Transport) Context() (any, error) { return t.r, nil }

func (t *Transport) ReactorFDAdd(fd int, events reactor.IOEvents) error {
	key := fdKey{fd: fd, events: events}
	if _, ok := t.fds[key]; ok {
		return reactor.ErrFDAlreadyRegistered
	}
	w, err := reactor.NewFDWatcher(t.r, fd, events, func(_ *reactor.FDWatcher, revents reactor.IOEvents) {
		t.route(`fd`, t.h.DispatchFD(fd, revents))
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	t.fds[key] = w
	return nil
}

func (t *Transport) ReactorFDRemove(fd int, events reactor.IOEvents) error {
	key := fdKey{fd: fd, events: events}
	if w, ok := t.fds[key]; ok {
		w.Destroy()
		delete(t.fds, key)
	}
	return nil
}

// ReactorSocketAdd watches sock, which must be comparable, see
// [reactor.SocketComparable].
func (t *Transport) ReactorSocketAdd(sock reactor.Socket, events reactor.IOEvents) error {
	if !reactor.SocketComparable(sock) {
		return fluxcore.NewError(`loopback socket add`, fluxcore.ErrInvalidArgument, nil)
	}
	key := socketKey{sock: sock, events: events}
	if _, ok := t.sockets[key]; ok {
		return reactor.ErrFDAlreadyRegistered
	}
	w, err := reactor.NewSocketWatcher(t.r, sock, events, func(_ *reactor.SocketWatcher, revents reactor.IOEvents) {
		t.route(`socket`, t.h.DispatchSocket(sock, revents))
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	t.sockets[key] = w
	return nil
}

func (t *Transport) ReactorSocketRemove(sock reactor.Socket, events reactor.IOEvents) error {
	if !reactor.SocketComparable(sock) {
		return fluxcore.NewError(`loopback socket remove`, fluxcore.ErrInvalidArgument, nil)
	}
	key := socketKey{sock: sock, events: events}
	if w, ok := t.sockets[key]; ok {
		w.Destroy()
		delete(t.sockets, key)
	}
	return nil
}

// ReactorTimeoutAdd arms a timer firing after d, then every d unless
// oneshot.
func (t *Transport) ReactorTimeoutAdd(d time.Duration, oneshot bool) (int, error) {
	repeat := d
	if oneshot {
		repeat = 0
	} else if repeat <= 0 {
		return -1, fluxcore.NewError(`reactor timeout add`, fluxcore.ErrInvalidArgument, nil)
	}
	id := t.nextTimer
	w, err := reactor.NewTimerWatcher(t.r, d, repeat, func(*reactor.TimerWatcher) {
		t.route(`timeout`, t.h.DispatchTimeout(id))
	})
	if err != nil {
		return -1, err
	}
	if err := w.Start(); err != nil {
		return -1, err
	}
	t.nextTimer++
	t.timers[id] = w
	return id, nil
}

func (t *Transport) ReactorTimeoutRemove(id int) error {
	if w, ok := t.timers[id]; ok {
		w.Destroy()
		delete(t.timers, id)
	}
	return nil
}

// ReactorRun runs the reactor, routing queued messages to the bound
// handle, until stopped.
func (t *Transport) ReactorRun(ctx context.Context) error {
	if t.h == nil {
		return fluxcore.NewError(`reactor run`, fluxcore.ErrInvalidArgument, errors.New(`no handle bound`))
	}
	if err := t.inboxW.Start(); err != nil {
		return err
	}
	defer t.inboxW.Stop()
	return t.r.Run(ctx, reactor.RunDefault)
}

func (t *Transport) ReactorStop(err error) error {
	if err != nil {
		t.r.StopError(err)
	} else {
		t.r.Stop()
	}
	return nil
}

// onInbox routes one message per readiness, so that a stop requested by
// a handler takes effect before the next.
func (t *Transport) onInbox(_ *reactor.SocketWatcher, revents reactor.IOEvents) {
	if revents&reactor.EventError != 0 {
		t.route(`inbox`, ErrClosed)
		return
	}
	msg, ok, err := t.dequeue()
	if err != nil || !ok {
		t.route(`inbox`, err)
		return
	}
	t.route(`msg`, t.h.DispatchMsg(msg))
}

// route error-stops the reactor if a handler failed.
func (t *Transport) route(source string, err error) {
	if err == nil {
		return
	}
	t.logger.Debug().
		Str(`source`, source).
		Err(err).
		Log(`loopback: handler failed, stopping reactor`)
	t.r.StopError(err)
}

// Close destroys the transport's watchers, and its reactor if it created
// one. Queued messages are dropped.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.inbox, t.putBack = queue.New(), queue.New()
	t.mu.Unlock()

	if t.inboxW != nil {
		t.inboxW.Destroy()
	}
	for _, w := range t.fds {
		w.Destroy()
	}
	for _, w := range t.sockets {
		w.Destroy()
	}
	for _, w := range t.timers {
		w.Destroy()
	}
	clear(t.fds)
	clear(t.sockets)
	clear(t.timers)

	var err error
	if t.ownsR {
		err = t.r.Close()
	}
	if e := t.notifier.Close(); err == nil {
		err = e
	}
	return err
}
