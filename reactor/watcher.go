//go:build linux || darwin

package reactor

import (
	"fmt"
	"slices"
)

// Kind identifies a watcher variant.
type Kind int

const (
	KindTimer Kind = iota
	KindFD
	KindSocket
	KindIdle
	KindPrepare
	KindCheck
	KindSignal
	KindChild
	KindStat
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return `timer`
	case KindFD:
		return `fd`
	case KindSocket:
		return `socket`
	case KindIdle:
		return `idle`
	case KindPrepare:
		return `prepare`
	case KindCheck:
		return `check`
	case KindSignal:
		return `signal`
	case KindChild:
		return `child`
	case KindStat:
		return `stat`
	default:
		return fmt.Sprintf(`Kind(%d)`, int(k))
	}
}

// phase reports whether the kind runs unconditionally in a loop phase.
func (k Kind) phase() bool {
	return k == KindIdle || k == KindPrepare || k == KindCheck
}

// Watcher is implemented by every watcher variant.
type Watcher interface {
	// Start activates the watcher. Starting an active watcher is a no-op.
	Start() error
	// Stop deactivates the watcher. It takes effect before the next would-be
	// invocation, but doesn't interrupt a running callback.
	Stop()
	// Active reports whether the watcher is started.
	Active() bool
	// Destroy stops the watcher and prevents it from being restarted. It is
	// safe to call after the reactor has been closed.
	Destroy()
	Kind() Kind
	Reactor() *Reactor
}

var (
	_ Watcher = (*TimerWatcher)(nil)
	_ Watcher = (*FDWatcher)(nil)
	_ Watcher = (*SocketWatcher)(nil)
	_ Watcher = (*PhaseWatcher)(nil)
	_ Watcher = (*SignalWatcher)(nil)
	_ Watcher = (*ChildWatcher)(nil)
	_ Watcher = (*StatWatcher)(nil)
)

// watcherImpl is the variant specific registration with the reactor.
type watcherImpl interface {
	start() error
	stop()
}

// watcher implements the state shared by every variant.
type watcher struct {
	r         *Reactor
	impl      watcherImpl
	kind      Kind
	active    bool
	destroyed bool
}

func (w *watcher) init(r *Reactor, kind Kind, impl watcherImpl) {
	w.r = r
	w.kind = kind
	w.impl = impl
}

func (w *watcher) Start() error {
	if w.destroyed || w.r.closed {
		return ErrClosed
	}
	if w.active {
		return nil
	}
	if err := w.impl.start(); err != nil {
		return err
	}
	w.active = true
	w.r.active++
	return nil
}

func (w *watcher) Stop() {
	if !w.active {
		return
	}
	w.deactivate()
	if !w.r.closed {
		w.impl.stop()
	}
}

// deactivate clears the active state without unregistering.
func (w *watcher) deactivate() {
	w.active = false
	w.r.active--
}

func (w *watcher) Active() bool { return w.active }

func (w *watcher) Destroy() {
	w.Stop()
	w.destroyed = true
}

func (w *watcher) Kind() Kind { return w.kind }

func (w *watcher) Reactor() *Reactor { return w.r }

// removeWatcher removes the first occurrence of w from s.
func removeWatcher[W comparable](s []W, w W) []W {
	if i := slices.Index(s, w); i >= 0 {
		return slices.Delete(s, i, i+1)
	}
	return s
}
