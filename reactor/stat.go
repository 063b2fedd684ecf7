//go:build linux || darwin

package reactor

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/go-fluxcore"
	"golang.org/x/sys/unix"
)

// Stat is a snapshot of path metadata. A path that can't be stat'd is
// represented by the zero value, i.e. a link count of zero.
type Stat struct {
	Size  int64
	Nlink uint64
	Ino   uint64
	Dev   uint64
	Mode  uint32
}

// StatPath stats path.
func StatPath(path string) Stat {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Stat{}
	}
	return Stat{
		Size:  st.Size,
		Nlink: uint64(st.Nlink),
		Ino:   uint64(st.Ino),
		Dev:   uint64(st.Dev),
		Mode:  uint32(st.Mode),
	}
}

// StatWatcher polls the metadata of a path, reporting size changes and
// removal (the link count dropping to zero). It doesn't stop on removal.
//
// Unless disabled with [WithFSNotify], filesystem notifications trigger a
// check before the next polling deadline.
type StatWatcher struct {
	watcher
	next     time.Time
	cb       func(w *StatWatcher, prev, curr Stat)
	path     string
	prev     Stat
	curr     Stat
	interval time.Duration
}

// NewStatWatcher creates a stat watcher. An interval of zero uses the
// reactor default, see [WithStatInterval].
func NewStatWatcher(r *Reactor, path string, interval time.Duration, cb func(w *StatWatcher, prev, curr Stat)) (*StatWatcher, error) {
	if r == nil || path == `` || interval < 0 {
		return nil, fluxcore.NewError(`stat watcher`, fluxcore.ErrInvalidArgument, nil)
	}
	if interval == 0 {
		interval = r.cfg.statInterval
	}
	w := &StatWatcher{cb: cb, path: filepath.Clean(path), interval: interval}
	w.init(r, KindStat, w)
	return w, nil
}

func (w *StatWatcher) Path() string { return w.path }

func (w *StatWatcher) Interval() time.Duration { return w.interval }

// Stats returns the snapshots passed to the most recent callback.
func (w *StatWatcher) Stats() (prev, curr Stat) { return w.prev, w.curr }

func (w *StatWatcher) start() error {
	w.curr = StatPath(w.path)
	w.prev = w.curr
	w.next = w.r.clock().Add(w.interval)
	w.r.stats = append(w.r.stats, w)
	w.r.watchPath(w.path)
	w.r.watchPath(filepath.Dir(w.path))
	return nil
}

func (w *StatWatcher) stop() {
	w.r.stats = removeWatcher(w.r.stats, w)
	w.r.unwatchPath(w.path)
	w.r.unwatchPath(filepath.Dir(w.path))
}

func (r *Reactor) checkStats() {
	if len(r.stats) == 0 {
		return
	}

	r.statMu.Lock()
	dirty := r.statDirty
	if len(dirty) != 0 {
		r.statDirty = make(map[string]struct{})
	} else {
		// the map stays shared with forwardStatEvents
		dirty = nil
	}
	r.statMu.Unlock()

	for _, w := range slices.Clone(r.stats) {
		if !w.active {
			continue
		}
		if _, ok := dirty[w.path]; !ok && r.now.Before(w.next) {
			continue
		}
		w.next = r.now.Add(w.interval)
		prev, curr := w.curr, StatPath(w.path)
		w.curr = curr
		if curr.Size == prev.Size && (prev.Nlink == 0 || curr.Nlink != 0) {
			continue
		}
		w.prev = prev
		r.invoke(KindStat, func() {
			if w.cb != nil {
				w.cb(w, prev, curr)
			}
		})
	}
}

// watchPath adds a filesystem notification for path, lazily starting the
// notification goroutine. Failures fall back to polling.
func (r *Reactor) watchPath(path string) {
	if !r.cfg.fsnotify {
		return
	}
	if r.statFS == nil {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			r.logger.Warning().Err(err).Log(`reactor: fsnotify unavailable, stat watchers will poll`)
			r.cfg.fsnotify = false
			return
		}
		r.statFS = fsw
		go r.forwardStatEvents(fsw)
	}
	if r.statPaths[path]++; r.statPaths[path] == 1 {
		if err := r.statFS.Add(path); err != nil {
			r.logger.Debug().Err(err).Str(`path`, path).Log(`reactor: fsnotify add failed`)
		}
	}
}

func (r *Reactor) unwatchPath(path string) {
	if r.statFS == nil {
		return
	}
	n, ok := r.statPaths[path]
	if !ok {
		return
	}
	if n > 1 {
		r.statPaths[path] = n - 1
		return
	}
	delete(r.statPaths, path)
	// removal of a path also drops its watch
	_ = r.statFS.Remove(path)
}

func (r *Reactor) closeStatNotify() {
	if r.statFS == nil {
		return
	}
	if err := r.statFS.Close(); err != nil {
		r.logger.Debug().Err(err).Log(`reactor: fsnotify close failed`)
	}
	r.statFS = nil
	r.cfg.fsnotify = false
}

func (r *Reactor) forwardStatEvents(fsw *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			r.statMu.Lock()
			r.statDirty[filepath.Clean(ev.Name)] = struct{}{}
			r.statMu.Unlock()
			_ = r.notifier.Notify()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			r.logger.Debug().Err(err).Log(`reactor: fsnotify error`)
		}
	}
}
