//go:build linux || darwin

package reactor

import (
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/joeycumines/go-fluxcore"
)

// SignalWatcher reports deliveries of a signal to the process. Each
// delivery observed by the runtime results in one callback, for every active
// watcher of the signal.
type SignalWatcher struct {
	watcher
	cb  func(w *SignalWatcher)
	sig syscall.Signal
}

// NewSignalWatcher creates a watcher for sig. The signal is only
// intercepted while at least one watcher of it is active.
func NewSignalWatcher(r *Reactor, sig syscall.Signal, cb func(w *SignalWatcher)) (*SignalWatcher, error) {
	if r == nil || sig <= 0 {
		return nil, fluxcore.NewError(`signal watcher`, fluxcore.ErrInvalidArgument, nil)
	}
	w := &SignalWatcher{cb: cb, sig: sig}
	w.init(r, KindSignal, w)
	return w, nil
}

func (w *SignalWatcher) Signal() syscall.Signal { return w.sig }

func (w *SignalWatcher) start() error {
	w.r.acquireSignal(w.sig)
	w.r.sigWatchers[w.sig] = append(w.r.sigWatchers[w.sig], w)
	return nil
}

func (w *SignalWatcher) stop() {
	w.r.sigWatchers[w.sig] = removeWatcher(w.r.sigWatchers[w.sig], w)
	if len(w.r.sigWatchers[w.sig]) == 0 {
		delete(w.r.sigWatchers, w.sig)
	}
	w.r.releaseSignal(w.sig)
}

// signalSource funnels one signal into the reactor's wakeup.
type signalSource struct {
	ch   chan os.Signal
	done chan struct{}
	refs int
}

func (r *Reactor) acquireSignal(sig syscall.Signal) {
	src := r.signals[sig]
	if src == nil {
		src = &signalSource{
			ch:   make(chan os.Signal, 64),
			done: make(chan struct{}),
		}
		signal.Notify(src.ch, sig)
		go r.forwardSignals(sig, src)
		r.signals[sig] = src
	}
	src.refs++
}

func (r *Reactor) releaseSignal(sig syscall.Signal) {
	src := r.signals[sig]
	if src == nil {
		return
	}
	if src.refs--; src.refs > 0 {
		return
	}
	r.stopSignal(sig, src)
}

func (r *Reactor) stopSignal(sig syscall.Signal, src *signalSource) {
	signal.Stop(src.ch)
	close(src.done)
	delete(r.signals, sig)
	r.sigMu.Lock()
	delete(r.sigPending, sig)
	r.sigMu.Unlock()
}

func (r *Reactor) closeSignals() {
	for sig, src := range r.signals {
		r.stopSignal(sig, src)
	}
}

// forwardSignals counts deliveries, and wakes the reactor.
func (r *Reactor) forwardSignals(sig syscall.Signal, src *signalSource) {
	for {
		select {
		case <-src.done:
			return
		case <-src.ch:
			r.sigMu.Lock()
			r.sigPending[sig]++
			r.sigMu.Unlock()
			_ = r.notifier.Notify()
		}
	}
}

func (r *Reactor) dispatchSignals() {
	r.sigMu.Lock()
	if len(r.sigPending) == 0 {
		r.sigMu.Unlock()
		return
	}
	pending := r.sigPending
	r.sigPending = make(map[syscall.Signal]int)
	r.sigMu.Unlock()

	sigs := make([]syscall.Signal, 0, len(pending))
	for sig := range pending {
		sigs = append(sigs, sig)
	}
	slices.Sort(sigs)

	for _, sig := range sigs {
		if sig == syscall.SIGCHLD {
			r.reapPending = true
		}
		for n := pending[sig]; n > 0; n-- {
			for _, w := range slices.Clone(r.sigWatchers[sig]) {
				if !w.active {
					continue
				}
				r.invoke(KindSignal, func() {
					if w.cb != nil {
						w.cb(w)
					}
				})
			}
		}
	}
}
