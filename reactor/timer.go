//go:build linux || darwin

package reactor

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/joeycumines/go-fluxcore"
)

// TimerWatcher fires after a delay, then every repeat interval if non-zero.
// A one-shot timer is deactivated before its callback runs, so the callback
// may restart it.
type TimerWatcher struct {
	watcher
	when   time.Time
	cb     func(w *TimerWatcher)
	after  time.Duration
	repeat time.Duration
	seq    uint64
	index  int
}

// NewTimerWatcher creates a timer, failing with
// [fluxcore.ErrInvalidArgument] if after or repeat is negative.
func NewTimerWatcher(r *Reactor, after, repeat time.Duration, cb func(w *TimerWatcher)) (*TimerWatcher, error) {
	if err := validateTimer(r, after, repeat); err != nil {
		return nil, err
	}
	w := &TimerWatcher{cb: cb, after: after, repeat: repeat, index: -1}
	w.init(r, KindTimer, w)
	return w, nil
}

func validateTimer(r *Reactor, after, repeat time.Duration) error {
	if r == nil || after < 0 || repeat < 0 {
		return fluxcore.NewError(`timer watcher`, fluxcore.ErrInvalidArgument, fmt.Errorf(`after=%s repeat=%s`, after, repeat))
	}
	return nil
}

// Reset changes the delay and repeat interval. An active timer is
// rescheduled relative to now.
func (w *TimerWatcher) Reset(after, repeat time.Duration) error {
	if err := validateTimer(w.r, after, repeat); err != nil {
		return err
	}
	w.after = after
	w.repeat = repeat
	if w.active && !w.r.closed {
		w.stop()
		return w.start()
	}
	return nil
}

// After returns the initial delay.
func (w *TimerWatcher) After() time.Duration { return w.after }

// Repeat returns the repeat interval, zero for a one-shot timer.
func (w *TimerWatcher) Repeat() time.Duration { return w.repeat }

// Deadline returns when an active timer will next fire.
func (w *TimerWatcher) Deadline() time.Time { return w.when }

func (w *TimerWatcher) start() error {
	w.schedule(w.r.clock().Add(w.after))
	return nil
}

func (w *TimerWatcher) stop() {
	if w.index >= 0 {
		heap.Remove(&w.r.timers, w.index)
	}
}

func (w *TimerWatcher) schedule(when time.Time) {
	w.when = when
	w.r.timerSeq++
	w.seq = w.r.timerSeq
	heap.Push(&w.r.timers, w)
}

func (w *TimerWatcher) fire() {
	if w.cb != nil {
		w.cb(w)
	}
}

// runTimers fires every timer due at the cached time. Timers rescheduled by
// a callback are not considered until the next iteration.
func (r *Reactor) runTimers() {
	var due []*TimerWatcher
	for len(r.timers) > 0 && !r.timers[0].when.After(r.now) {
		due = append(due, heap.Pop(&r.timers).(*TimerWatcher))
	}
	for _, w := range due {
		// may have been stopped, or restarted, by an earlier callback
		if !w.active || w.index >= 0 {
			continue
		}
		if w.repeat > 0 {
			next := w.when.Add(w.repeat)
			if !next.After(r.now) {
				next = r.now.Add(w.repeat)
			}
			w.schedule(next)
		} else {
			w.deactivate()
		}
		r.invoke(KindTimer, w.fire)
	}
}

// timerHeap is a min-heap of timers, ordered by deadline then start order.
type timerHeap []*TimerWatcher

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	w := x.(*TimerWatcher)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}
