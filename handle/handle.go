//go:build linux || darwin

// Package handle binds a transport to a dispatch table of message, fd,
// socket and timeout handlers.
//
// A [Handle] is not safe for concurrent use. It is driven by one goroutine,
// typically from within the transport's loop, see [Handle.ReactorStart].
package handle

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/go-fluxcore/internal/zlog"
	"github.com/joeycumines/go-fluxcore/matchtag"
	"github.com/joeycumines/go-fluxcore/message"
	"github.com/joeycumines/go-fluxcore/reactor"
	"github.com/joeycumines/logiface"
)

// Flags modify handle behavior.
type Flags uint32

const (
	// FlagTrace logs every message sent or received.
	FlagTrace Flags = 1 << iota
)

// Handle owns a transport, an aux store, a matchtag pool, and a dispatch
// table.
type Handle struct {
	ops      Ops
	logger   *logiface.Logger[logiface.Event]
	nomatch  *catrate.Limiter
	aux      AuxStore
	dispatch dispatchTable
	tags     matchtag.Pool
	flags    Flags
	closed   bool
}

// New wraps ops in a handle. If ops implements [Binder], it is bound to the
// new handle.
func New(ops Ops, opts ...Option) (*Handle, error) {
	if ops == nil {
		return nil, fluxcore.NewError(`handle`, fluxcore.ErrInvalidArgument, nil)
	}
	cfg, err := resolveHandleOptions(opts)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		ops:     ops,
		logger:  cfg.logger,
		nomatch: cfg.nomatch,
		flags:   cfg.flags,
	}
	if b, ok := ops.(Binder); ok {
		b.Bind(h)
	}
	return h, nil
}

// Close releases the transport, then clears the aux store, then drops the
// dispatch table. Aux destructors must not use the transport.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	err := h.ops.Close()
	h.aux.Clear()
	h.dispatch.clear()
	return err
}

func (h *Handle) Flags() Flags { return h.flags }

func (h *Handle) SetFlags(flags Flags) { h.flags |= flags }

func (h *Handle) ClearFlags(flags Flags) { h.flags &^= flags }

// Aux returns the handle's aux store.
func (h *Handle) Aux() *AuxStore { return &h.aux }

// Logger returns the configured logger, which may be nil.
func (h *Handle) Logger() *logiface.Logger[logiface.Event] { return h.logger }

// MatchtagAlloc reserves a block of length matchtags, see [matchtag.Pool].
func (h *Handle) MatchtagAlloc(length int) (matchtag.Tag, error) {
	return h.tags.Alloc(length)
}

func (h *Handle) MatchtagFree(tag matchtag.Tag, length int) { h.tags.Free(tag, length) }

// MatchtagAvailable returns the number of free matchtag blocks.
func (h *Handle) MatchtagAvailable() int { return h.tags.Available() }

// Send passes msg to the transport, tracing it if [FlagTrace] is set.
func (h *Handle) Send(msg *message.Message) error {
	if msg == nil {
		return fluxcore.NewError(`send`, fluxcore.ErrInvalidArgument, nil)
	}
	if h.flags&FlagTrace != 0 {
		h.trace(`send`, msg)
	}
	return fluxcore.TransportError(`send`, h.ops.Send(msg))
}

// Receive returns the next message from the transport. If nonblock is set
// and none is ready, it fails with [fluxcore.ErrTransport] wrapping EAGAIN.
func (h *Handle) Receive(nonblock bool) (*message.Message, error) {
	msg, err := h.ops.Receive(nonblock)
	if err != nil {
		return nil, fluxcore.TransportError(`receive`, err)
	}
	if h.flags&FlagTrace != 0 {
		h.trace(`recv`, msg)
	}
	return msg, nil
}

// ReceiveMatch receives until a message satisfies match. Messages that
// don't are appended to *nomatch, in arrival order, or if nomatch is nil,
// put back to the transport once the call completes.
func (h *Handle) ReceiveMatch(match message.Match, nomatch *[]*message.Message, nonblock bool) (*message.Message, error) {
	if err := match.Compile(); err != nil {
		return nil, err
	}
	var (
		skipped []*message.Message
		msg     *message.Message
		err     error
	)
	for {
		var m *message.Message
		if m, err = h.Receive(nonblock); err != nil {
			break
		}
		if match.Matches(m) {
			msg = m
			break
		}
		skipped = append(skipped, m)
	}
	if len(skipped) != 0 {
		if nomatch != nil {
			*nomatch = append(*nomatch, skipped...)
		} else if perr := h.PutBackAll(skipped); perr != nil && err == nil {
			msg, err = nil, perr
		}
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ReceiveResponse receives the response carrying tag.
func (h *Handle) ReceiveResponse(tag matchtag.Tag, nonblock bool) (*message.Message, error) {
	return h.ReceiveMatch(message.Match{TypeMask: message.TypeResponse, Matchtag: tag}, nil, nonblock)
}

// PutBack returns msg to the transport, to be received again ahead of
// newly arrived messages.
func (h *Handle) PutBack(msg *message.Message) error {
	if msg == nil {
		return fluxcore.NewError(`put back`, fluxcore.ErrInvalidArgument, nil)
	}
	return fluxcore.TransportError(`put back`, h.ops.PutBack(msg))
}

// PutBackAll puts back every message, in order. It attempts every message
// even if some fail, returning the failure with the highest errno.
func (h *Handle) PutBackAll(msgs []*message.Message) error {
	var (
		worst error
		errno syscall.Errno
	)
	for _, msg := range msgs {
		if err := h.PutBack(msg); err != nil {
			if e := fluxcore.Errno(err); worst == nil || e > errno {
				worst, errno = err, e
			}
		}
	}
	return worst
}

// Subscribe requests events with topics starting with topic.
func (h *Handle) Subscribe(topic string) error {
	return fluxcore.TransportError(`subscribe`, h.ops.Subscribe(topic))
}

// Unsubscribe drops a subscription made with [Handle.Subscribe].
func (h *Handle) Unsubscribe(topic string) error {
	return fluxcore.TransportError(`unsubscribe`, h.ops.Unsubscribe(topic))
}

// Rank returns the node id of the transport's endpoint.
func (h *Handle) Rank() (uint32, error) {
	rank, err := h.ops.Rank()
	if err != nil {
		return 0, fluxcore.TransportError(`rank`, err)
	}
	return rank, nil
}

// Context returns the transport's opaque context object.
func (h *Handle) Context() (any, error) {
	v, err := h.ops.Context()
	if err != nil {
		return nil, fluxcore.TransportError(`context`, err)
	}
	return v, nil
}

// AddMsgHandler registers fn for messages matching typeMask and topicGlob.
// It takes precedence over handlers registered before it.
func (h *Handle) AddMsgHandler(typeMask message.Type, topicGlob string, fn MsgHandler) error {
	if fn == nil {
		return fluxcore.NewError(`add msg handler`, fluxcore.ErrInvalidArgument, nil)
	}
	match, err := message.NewMatch(typeMask, message.MatchtagAny, topicGlob)
	if err != nil {
		return err
	}
	h.dispatch.push(&msgEntry{fn: fn, match: match})
	return nil
}

// AddMsgHandlers registers each handler in order, stopping at the first
// failure.
func (h *Handle) AddMsgHandlers(specs ...MsgHandlerSpec) error {
	for _, spec := range specs {
		if err := h.AddMsgHandler(spec.TypeMask, spec.TopicGlob, spec.Handler); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMsgHandler removes the most recently registered handler for exactly
// typeMask and topicGlob.
func (h *Handle) RemoveMsgHandler(typeMask message.Type, topicGlob string) {
	h.removeEntry(func(e dispatchEntry) bool {
		v, ok := e.(*msgEntry)
		return ok && v.match.TypeMask == typeMask && v.match.TopicGlob == topicGlob
	})
}

// AddFDHandler registers fn for readiness of fd, and asks the transport to
// monitor it.
func (h *Handle) AddFDHandler(fd int, events reactor.IOEvents, fn FDHandler) error {
	if fd < 0 || events == 0 || fn == nil {
		return fluxcore.NewError(`add fd handler`, fluxcore.ErrInvalidArgument, nil)
	}
	if err := h.ops.ReactorFDAdd(fd, events); err != nil {
		return fluxcore.TransportError(`add fd handler`, err)
	}
	h.dispatch.append(&fdEntry{fn: fn, fd: fd, events: events})
	return nil
}

// RemoveFDHandler removes the first handler for fd with exactly events. The
// transport is asked to stop monitoring fd regardless.
func (h *Handle) RemoveFDHandler(fd int, events reactor.IOEvents) error {
	h.removeEntry(func(e dispatchEntry) bool {
		v, ok := e.(*fdEntry)
		return ok && v.fd == fd && v.events == events
	})
	return fluxcore.TransportError(`remove fd handler`, h.ops.ReactorFDRemove(fd, events))
}

// AddSocketHandler registers fn for readiness of sock, and asks the transport
// to monitor it. Sockets are compared by identity, so sock must be
// comparable, e.g. a pointer, see [reactor.SocketComparable].
func (h *Handle) AddSocketHandler(sock reactor.Socket, events reactor.IOEvents, fn SocketHandler) error {
	if !reactor.SocketComparable(sock) || events == 0 || fn == nil {
		return fluxcore.NewError(`add socket handler`, fluxcore.ErrInvalidArgument, nil)
	}
	if err := h.ops.ReactorSocketAdd(sock, events); err != nil {
		return fluxcore.TransportError(`add socket handler`, err)
	}
	h.dispatch.append(&socketEntry{sock: sock, fn: fn, events: events})
	return nil
}

// RemoveSocketHandler removes the handler registered for sock and events, and
// asks the transport to stop monitoring it.
func (h *Handle) RemoveSocketHandler(sock reactor.Socket, events reactor.IOEvents) error {
	if !reactor.SocketComparable(sock) {
		return fluxcore.NewError(`remove socket handler`, fluxcore.ErrInvalidArgument, nil)
	}
	h.removeEntry(func(e dispatchEntry) bool {
		v, ok := e.(*socketEntry)
		return ok && v.sock == sock && v.events == events
	})
	return fluxcore.TransportError(`remove socket handler`, h.ops.ReactorSocketRemove(sock, events))
}

// AddTimeoutHandler arms a transport timer, returning its id. A oneshot
// handler is removed after it runs.
func (h *Handle) AddTimeoutHandler(d time.Duration, oneshot bool, fn TimeoutHandler) (int, error) {
	if d < 0 || fn == nil {
		return -1, fluxcore.NewError(`add timeout handler`, fluxcore.ErrInvalidArgument, nil)
	}
	id, err := h.ops.ReactorTimeoutAdd(d, oneshot)
	if err != nil {
		return -1, fluxcore.TransportError(`add timeout handler`, err)
	}
	h.dispatch.append(&timeoutEntry{fn: fn, id: id, oneshot: oneshot})
	return id, nil
}

func (h *Handle) RemoveTimeoutHandler(id int) error {
	h.removeEntry(func(e dispatchEntry) bool {
		v, ok := e.(*timeoutEntry)
		return ok && v.id == id
	})
	return fluxcore.TransportError(`remove timeout handler`, h.ops.ReactorTimeoutRemove(id))
}

// removeEntry stops the reactor if it removed the last entry.
func (h *Handle) removeEntry(fn func(e dispatchEntry) bool) {
	if h.dispatch.remove(fn) && h.dispatch.len() == 0 {
		if err := h.ReactorStop(); err != nil && !errors.Is(err, fluxcore.ErrNotSupported) {
			h.logger.Err().
				Err(err).
				Log(`handle: failed to stop reactor`)
		}
	}
}

// Handlers returns the number of registered handlers.
func (h *Handle) Handlers() int { return h.dispatch.len() }

// DispatchMsg routes msg to the first matching message handler, returning
// its result. Unmatched messages are dropped.
func (h *Handle) DispatchMsg(msg *message.Message) error {
	if msg == nil {
		return fluxcore.NewError(`dispatch msg`, fluxcore.ErrInvalidArgument, nil)
	}
	if e := h.dispatch.findMsg(msg); e != nil {
		return e.fn(h, msg)
	}
	if h.flags&FlagTrace != 0 {
		if _, ok := h.nomatch.Allow(msg.Topic); ok {
			h.trace(`nomatch`, msg)
		}
	}
	return nil
}

func (h *Handle) DispatchFD(fd int, revents reactor.IOEvents) error {
	if e := h.dispatch.findFD(fd, revents); e != nil {
		return e.fn(h, fd, revents)
	}
	return nil
}

func (h *Handle) DispatchSocket(sock reactor.Socket, revents reactor.IOEvents) error {
	if e := h.dispatch.findSocket(sock, revents); e != nil {
		return e.fn(h, sock, revents)
	}
	return nil
}

// DispatchTimeout runs the handler for timer id, removing it afterward if
// it was registered as oneshot.
func (h *Handle) DispatchTimeout(id int) error {
	e := h.dispatch.findTimeout(id)
	if e == nil {
		return nil
	}
	err := e.fn(h, id)
	if e.oneshot {
		if rerr := h.RemoveTimeoutHandler(id); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// ReactorStart runs the transport's loop until it is stopped, or there are
// no handlers left. It returns immediately if there are no handlers. The
// error passed to [Handle.ReactorStopError] is returned as is.
func (h *Handle) ReactorStart(ctx context.Context) error {
	if h.dispatch.len() == 0 {
		return nil
	}
	return h.ops.ReactorRun(ctx)
}

func (h *Handle) ReactorStop() error {
	return fluxcore.TransportError(`reactor stop`, h.ops.ReactorStop(nil))
}

// ReactorStopError stops the loop, causing ReactorStart to return err.
func (h *Handle) ReactorStopError(err error) error {
	if err == nil {
		err = fluxcore.ErrInterrupted
	}
	return fluxcore.TransportError(`reactor stop`, h.ops.ReactorStop(err))
}

func (h *Handle) trace(direction string, msg *message.Message) {
	logger := h.logger
	if logger == nil {
		logger = defaultTraceLogger
	}
	logger.Info().
		Str(`type`, msg.Type.String()).
		Str(`topic`, msg.Topic).
		Str(`matchtag`, msg.Matchtag.String()).
		Logf(`%s %s '%s'`, direction, msg.Type, msg.Topic)
}

// defaultTraceLogger receives trace records of handles without a logger.
var defaultTraceLogger = zlog.Stderr(logiface.LevelInformational)
