//go:build linux || darwin

package handle

import (
	"github.com/joeycumines/go-fluxcore/message"
	"github.com/joeycumines/go-fluxcore/reactor"
)

type (
	// MsgHandler handles a message routed by [Handle.DispatchMsg].
	MsgHandler func(h *Handle, msg *message.Message) error

	FDHandler func(h *Handle, fd int, revents reactor.IOEvents) error

	SocketHandler func(h *Handle, sock reactor.Socket, revents reactor.IOEvents) error

	TimeoutHandler func(h *Handle, id int) error

	// MsgHandlerSpec describes one handler registered by
	// [Handle.AddMsgHandlers].
	MsgHandlerSpec struct {
		Handler   MsgHandler
		TopicGlob string
		TypeMask  message.Type
	}
)

// dispatchEntry is one of msgEntry, fdEntry, socketEntry or timeoutEntry.
type dispatchEntry interface {
	isDispatchEntry()
}

type (
	msgEntry struct {
		fn    MsgHandler
		match message.Match
	}

	fdEntry struct {
		fn     FDHandler
		fd     int
		events reactor.IOEvents
	}

	socketEntry struct {
		sock   reactor.Socket
		fn     SocketHandler
		events reactor.IOEvents
	}

	timeoutEntry struct {
		fn      TimeoutHandler
		id      int
		oneshot bool
	}
)

func (*msgEntry) isDispatchEntry()     {}
func (*fdEntry) isDispatchEntry()      {}
func (*socketEntry) isDispatchEntry()  {}
func (*timeoutEntry) isDispatchEntry() {}

// dispatchTable is scanned head to tail, the first matching entry wins.
// Message entries are pushed at the head, so the latest registration
// overrides earlier ones. The rest are appended at the tail.
type dispatchTable struct {
	entries []dispatchEntry
}

func (t *dispatchTable) len() int { return len(t.entries) }

func (t *dispatchTable) push(e dispatchEntry) {
	t.entries = append(t.entries, nil)
	copy(t.entries[1:], t.entries)
	t.entries[0] = e
}

func (t *dispatchTable) append(e dispatchEntry) {
	t.entries = append(t.entries, e)
}

// remove deletes the first entry satisfying fn, reporting whether one was
// found.
func (t *dispatchTable) remove(fn func(e dispatchEntry) bool) bool {
	for i, e := range t.entries {
		if fn(e) {
			copy(t.entries[i:], t.entries[i+1:])
			t.entries[len(t.entries)-1] = nil
			t.entries = t.entries[:len(t.entries)-1]
			return true
		}
	}
	return false
}

// find returns the first entry satisfying fn.
func (t *dispatchTable) find(fn func(e dispatchEntry) bool) dispatchEntry {
	for _, e := range t.entries {
		if fn(e) {
			return e
		}
	}
	return nil
}

func (t *dispatchTable) clear() {
	clear(t.entries)
	t.entries = nil
}

func (t *dispatchTable) findMsg(msg *message.Message) *msgEntry {
	e, _ := t.find(func(e dispatchEntry) bool {
		v, ok := e.(*msgEntry)
		return ok && v.match.Matches(msg)
	}).(*msgEntry)
	return e
}

func (t *dispatchTable) findFD(fd int, revents reactor.IOEvents) *fdEntry {
	e, _ := t.find(func(e dispatchEntry) bool {
		v, ok := e.(*fdEntry)
		return ok && v.fd == fd && v.events&revents != 0
	}).(*fdEntry)
	return e
}

func (t *dispatchTable) findSocket(sock reactor.Socket, revents reactor.IOEvents) *socketEntry {
	e, _ := t.find(func(e dispatchEntry) bool {
		v, ok := e.(*socketEntry)
		return ok && v.sock == sock && v.events&revents != 0
	}).(*socketEntry)
	return e
}

func (t *dispatchTable) findTimeout(id int) *timeoutEntry {
	e, _ := t.find(func(e dispatchEntry) bool {
		v, ok := e.(*timeoutEntry)
		return ok && v.id == id
	}).(*timeoutEntry)
	return e
}
