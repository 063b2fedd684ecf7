//go:build linux || darwin

package reactor

import (
	"slices"

	"github.com/joeycumines/go-fluxcore"
	"golang.org/x/sys/unix"
)

// ChildWatcher reports state changes of a child process, reaping it on
// exit. Requires a reactor created with [WithChildWatchers].
//
// A pid of 0 watches any child, which will also reap children started by
// other means, e.g. os/exec.
type ChildWatcher struct {
	watcher
	cb      func(w *ChildWatcher, pid int, status unix.WaitStatus)
	pid     int
	rpid    int
	rstatus unix.WaitStatus
	trace   bool
}

// NewChildWatcher creates a child watcher. If trace is set, stopped and
// continued children are reported in addition to terminated ones.
//
// Fails with [fluxcore.ErrInvalidArgument] unless the reactor was created
// with child watchers enabled.
func NewChildWatcher(r *Reactor, pid int, trace bool, cb func(w *ChildWatcher, pid int, status unix.WaitStatus)) (*ChildWatcher, error) {
	if r == nil || pid < 0 || !r.cfg.childWatchers {
		return nil, fluxcore.NewError(`child watcher`, fluxcore.ErrInvalidArgument, nil)
	}
	w := &ChildWatcher{cb: cb, pid: pid, trace: trace}
	w.init(r, KindChild, w)
	return w, nil
}

// PID returns the watched process id, 0 for any.
func (w *ChildWatcher) PID() int { return w.pid }

// RPid returns the pid most recently reaped.
func (w *ChildWatcher) RPid() int { return w.rpid }

// RStatus returns the wait status most recently reaped.
func (w *ChildWatcher) RStatus() unix.WaitStatus { return w.rstatus }

func (w *ChildWatcher) start() error {
	w.r.acquireSignal(unix.SIGCHLD)
	w.r.children = append(w.r.children, w)
	// the child may have changed state before SIGCHLD was subscribed
	w.r.reapPending = true
	w.r.forcePoll = true
	return nil
}

func (w *ChildWatcher) stop() {
	w.r.children = removeWatcher(w.r.children, w)
	w.r.releaseSignal(unix.SIGCHLD)
}

func (r *Reactor) reapChildren() {
	if !r.reapPending {
		return
	}
	r.reapPending = false
	for _, w := range slices.Clone(r.children) {
		for w.active {
			pid := w.pid
			if pid == 0 {
				pid = -1
			}
			options := unix.WNOHANG
			if w.trace {
				options |= unix.WUNTRACED | unix.WCONTINUED
			}
			var status unix.WaitStatus
			rpid, err := unix.Wait4(pid, &status, options, nil)
			if err == unix.EINTR {
				continue
			}
			if err != nil || rpid <= 0 {
				break
			}
			w.rpid, w.rstatus = rpid, status
			r.invoke(KindChild, func() {
				if w.cb != nil {
					w.cb(w, rpid, status)
				}
			})
		}
	}
}
