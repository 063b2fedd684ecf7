//go:build linux || darwin

package reactor

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/logiface"
)

// RunFlags modify [Reactor.Run].
type RunFlags uint8

const (
	// RunDefault runs until stopped, or no watcher is active.
	RunDefault RunFlags = 0
	// RunNoWait runs a single iteration, without blocking.
	RunNoWait RunFlags = 1
	// RunOnce runs a single iteration, blocking if necessary.
	RunOnce RunFlags = 2
)

// Reactor is a cooperative event loop. See the package documentation.
type Reactor struct {
	now         time.Time
	stopErr     error
	cfg         *reactorOptions
	logger      *logiface.Logger[logiface.Event]
	metrics     *Metrics
	notifier    *Notifier
	statFS      *fsnotify.Watcher
	fds         map[int]*fdSet
	signals     map[syscall.Signal]*signalSource
	sigWatchers map[syscall.Signal][]*SignalWatcher
	sigPending  map[syscall.Signal]int
	statPaths   map[string]int
	statDirty   map[string]struct{}
	timers      timerHeap
	sockets     []*SocketWatcher
	children    []*ChildWatcher
	stats       []*StatWatcher
	phases      [3][]*PhaseWatcher
	poller      poller
	timerSeq    uint64
	active      int
	delivered   int
	sigMu       sync.Mutex
	statMu      sync.Mutex
	running     atomic.Bool
	closed      bool
	stopped     bool
	forcePoll   bool
	reapPending bool
}

// New creates a reactor, which must be closed.
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}

	notifier, err := NewNotifier()
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		now:         time.Now(),
		cfg:         cfg,
		logger:      cfg.logger,
		notifier:    notifier,
		fds:         make(map[int]*fdSet),
		signals:     make(map[syscall.Signal]*signalSource),
		sigWatchers: make(map[syscall.Signal][]*SignalWatcher),
		sigPending:  make(map[syscall.Signal]int),
		statPaths:   make(map[string]int),
		statDirty:   make(map[string]struct{}),
	}
	if cfg.metricsEnabled {
		r.metrics = new(Metrics)
	}

	if err := r.poller.init(); err != nil {
		_ = notifier.Close()
		return nil, err
	}

	if err := r.poller.register(notifier.FD(), EventRead, func(IOEvents) {
		r.notifier.Drain()
	}); err != nil {
		_ = r.poller.close()
		_ = notifier.Close()
		return nil, err
	}

	return r, nil
}

// Run runs the loop until no watcher is active, or until stopped, see
// [Reactor.Stop] and [Reactor.StopError]. Flags may limit it to a single
// iteration.
//
// Run returns the error passed to StopError, if it was called, or the context
// error if ctx is canceled first, which also wakes a blocked poll.
func (r *Reactor) Run(ctx context.Context, flags RunFlags) error {
	if r.closed {
		return ErrClosed
	}
	if !r.running.CompareAndSwap(false, true) {
		return ErrReentrantRun
	}
	defer r.running.Store(false)

	r.stopped = false
	r.stopErr = nil

	if done := ctx.Done(); done != nil {
		exit := make(chan struct{})
		defer close(exit)
		go func() {
			select {
			case <-done:
				_ = r.notifier.Notify()
			case <-exit:
			}
		}()
	}

	for r.active > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.iterate(flags&RunNoWait == 0)
		if r.stopped || r.closed || flags&(RunNoWait|RunOnce) != 0 {
			break
		}
	}

	if r.stopped && r.stopErr != nil {
		return r.stopErr
	}
	return nil
}

// Stop makes Run return nil once the current iteration completes.
func (r *Reactor) Stop() {
	r.stopped = true
}

// StopError makes Run return err once the current iteration completes.
// A nil err is reported as [fluxcore.ErrInterrupted].
func (r *Reactor) StopError(err error) {
	if err == nil {
		err = fluxcore.ErrInterrupted
	}
	r.stopped = true
	r.stopErr = err
}

// Wake interrupts a blocked poll. It is safe to call from any goroutine.
func (r *Reactor) Wake() error {
	return r.notifier.Notify()
}

// Now returns the time cached at the start of the current iteration.
func (r *Reactor) Now() time.Time {
	return r.now
}

// Active returns the number of active watchers.
func (r *Reactor) Active() int {
	return r.active
}

// Running reports whether Run is in progress.
func (r *Reactor) Running() bool {
	return r.running.Load()
}

// Close releases the reactor's resources. Watchers bound to a closed reactor
// are inert: Start fails with [ErrClosed], and Stop and Destroy are no-ops.
// It must not be called concurrently with Run, though it may be called from
// a callback.
func (r *Reactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.stopped = true

	r.closeSignals()
	r.closeStatNotify()

	err := r.poller.close()
	if e := r.notifier.Close(); err == nil {
		err = e
	}
	return err
}

// clock returns the cached iteration time while running, otherwise the
// current time.
func (r *Reactor) clock() time.Time {
	if r.running.Load() {
		return r.now
	}
	return time.Now()
}

func (r *Reactor) iterate(block bool) {
	r.now = time.Now()
	r.delivered = 0
	if r.metrics != nil {
		r.metrics.Iterations++
	}

	r.runPhase(KindPrepare)
	if r.closed {
		return
	}

	timeout := 0
	forced := r.forcePoll
	r.forcePoll = false
	if block && !forced && !r.stopped && len(r.phases[phaseIndex(KindIdle)]) == 0 && !r.socketsReady() {
		timeout = r.pollTimeout()
	}

	start := time.Now()
	if _, err := r.poller.poll(timeout); err != nil {
		r.logger.Crit().
			Err(err).
			Int(`timeout_ms`, timeout).
			Log(`reactor: poll failed, stopping`)
		r.StopError(err)
		return
	}
	r.now = time.Now()
	if r.metrics != nil {
		if timeout != 0 {
			r.metrics.Polls++
		}
		r.metrics.PollWait += r.now.Sub(start)
	}

	for _, step := range [...]func(){
		r.dispatchSignals,
		r.reapChildren,
		r.dispatchSockets,
		r.runTimers,
		r.checkStats,
	} {
		if r.closed {
			return
		}
		step()
	}
	if r.closed {
		return
	}

	r.runPhase(KindCheck)

	if r.delivered == 0 && !r.closed {
		r.runPhase(KindIdle)
	}
}

// pollTimeout returns the milliseconds until the nearest deadline, rounded
// up, or -1 if there is none.
func (r *Reactor) pollTimeout() int {
	var deadline time.Time
	if len(r.timers) > 0 {
		deadline = r.timers[0].when
	}
	for _, w := range r.stats {
		if w.active && (deadline.IsZero() || w.next.Before(deadline)) {
			deadline = w.next
		}
	}
	if deadline.IsZero() {
		return -1
	}
	d := time.Until(deadline)
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}

// invoke runs a callback, recovering any panic as an error-stop.
func (r *Reactor) invoke(kind Kind, fn func()) {
	if !kind.phase() {
		r.delivered++
	}
	if r.metrics != nil {
		r.metrics.Callbacks[kind]++
	}
	defer func() {
		if v := recover(); v != nil {
			if r.metrics != nil {
				r.metrics.Panics++
			}
			r.logger.Crit().
				Str(`kind`, kind.String()).
				Field(`panic`, v).
				Log(`reactor: watcher callback panicked`)
			r.StopError(&PanicError{Value: v, Kind: kind})
		}
	}()
	fn()
}
