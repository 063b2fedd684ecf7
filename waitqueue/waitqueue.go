//go:build linux || darwin

// Package waitqueue defers work until every queue it waits on has run.
//
// A [Wait] is a run-once continuation. Each [Queue.Add] takes a reference,
// and each run or removal from a queue releases one; the continuation fires
// when the last reference is released by [Queue.Run].
package waitqueue

import (
	"github.com/eapache/queue"
	"github.com/joeycumines/go-fluxcore/handle"
	"github.com/joeycumines/go-fluxcore/message"
)

// Wait is a continuation that runs at most once.
type Wait struct {
	fn       func()
	msg      *message.Message
	pending  int
	fired    bool
	disarmed bool
}

// New returns a wait that calls fn once released by every queue it was
// added to.
func New(fn func()) *Wait {
	return &Wait{fn: fn}
}

// NewMessageWait returns a wait that re-invokes a message handler with a
// copy of msg, e.g. to restart a request that stalled on missing data.
// Handler errors are logged to the handle's logger.
func NewMessageWait(h *handle.Handle, msg *message.Message, fn handle.MsgHandler) *Wait {
	cpy := msg.Copy()
	w := &Wait{msg: cpy}
	w.fn = func() {
		if err := fn(h, cpy.Copy()); err != nil {
			h.Logger().Err().
				Str(`topic`, cpy.Topic).
				Err(err).
				Log(`waitqueue: restarted message handler failed`)
		}
	}
	return w
}

// Pending returns the number of queues holding the wait.
func (w *Wait) Pending() int { return w.pending }

func (w *Wait) Fired() bool { return w.fired }

// Message returns the message of a wait created by [NewMessageWait].
func (w *Wait) Message() *message.Message { return w.msg }

// release drops a reference, firing if run is set and it was the last.
func (w *Wait) release(run bool) {
	w.pending--
	if w.pending == 0 && run && !w.disarmed && !w.fired {
		w.fired = true
		if w.fn != nil {
			w.fn()
		}
	}
}

// Queue holds waits until it is run. It isn't safe for concurrent use.
type Queue struct {
	q *queue.Queue
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{q: queue.New()}
}

func (q *Queue) Len() int { return q.q.Length() }

// Add queues w, taking a reference to it.
func (q *Queue) Add(w *Wait) {
	q.q.Add(w)
	w.pending++
}

// drain empties the queue, returning its waits in order.
func (q *Queue) drain() []*Wait {
	waits := make([]*Wait, 0, q.q.Length())
	for q.q.Length() != 0 {
		waits = append(waits, q.q.Remove().(*Wait))
	}
	return waits
}

// Run empties the queue, then releases each wait in order. Waits added
// while running are kept for the next run.
func (q *Queue) Run() {
	for _, w := range q.drain() {
		w.release(true)
	}
}

// Close empties the queue, releasing each wait without firing it.
func (q *Queue) Close() {
	for _, w := range q.drain() {
		w.release(false)
	}
}

// DestroyMatching removes the message waits whose message satisfies pred,
// disarming them so they never fire, even if held by other queues. It
// returns the number removed.
func (q *Queue) DestroyMatching(pred func(msg *message.Message) bool) int {
	var count int
	for _, w := range q.drain() {
		if w.msg != nil && pred(w.msg) {
			w.disarmed = true
			w.release(false)
			count++
			continue
		}
		q.q.Add(w)
	}
	return count
}
