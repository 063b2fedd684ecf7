//go:build linux || darwin

package reactor

import (
	"slices"

	"github.com/joeycumines/go-fluxcore"
)

// PhaseWatcher runs its callback every iteration, in the idle, prepare or
// check phase.
type PhaseWatcher struct {
	watcher
	cb func(w *PhaseWatcher)
}

// NewIdleWatcher creates a watcher run at the end of any iteration that
// delivered no events. While active, the reactor doesn't block.
func NewIdleWatcher(r *Reactor, cb func(w *PhaseWatcher)) (*PhaseWatcher, error) {
	return newPhaseWatcher(r, KindIdle, cb)
}

// NewPrepareWatcher creates a watcher run before polling.
func NewPrepareWatcher(r *Reactor, cb func(w *PhaseWatcher)) (*PhaseWatcher, error) {
	return newPhaseWatcher(r, KindPrepare, cb)
}

// NewCheckWatcher creates a watcher run after polling.
func NewCheckWatcher(r *Reactor, cb func(w *PhaseWatcher)) (*PhaseWatcher, error) {
	return newPhaseWatcher(r, KindCheck, cb)
}

func newPhaseWatcher(r *Reactor, kind Kind, cb func(w *PhaseWatcher)) (*PhaseWatcher, error) {
	if r == nil {
		return nil, fluxcore.NewError(kind.String()+` watcher`, fluxcore.ErrInvalidArgument, nil)
	}
	w := &PhaseWatcher{cb: cb}
	w.init(r, kind, w)
	return w, nil
}

func phaseIndex(kind Kind) int { return int(kind - KindIdle) }

func (w *PhaseWatcher) start() error {
	i := phaseIndex(w.kind)
	w.r.phases[i] = append(w.r.phases[i], w)
	return nil
}

func (w *PhaseWatcher) stop() {
	i := phaseIndex(w.kind)
	w.r.phases[i] = removeWatcher(w.r.phases[i], w)
}

func (r *Reactor) runPhase(kind Kind) {
	watchers := r.phases[phaseIndex(kind)]
	if len(watchers) == 0 {
		return
	}
	for _, w := range slices.Clone(watchers) {
		if !w.active {
			continue
		}
		r.invoke(kind, func() {
			if w.cb != nil {
				w.cb(w)
			}
		})
	}
}
