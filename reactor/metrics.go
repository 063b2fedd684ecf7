//go:build linux || darwin

package reactor

import (
	"time"
)

// Metrics is a snapshot of reactor activity, collected when enabled with
// [WithMetrics].
type Metrics struct {
	// Callbacks counts callback invocations, indexed by watcher kind.
	Callbacks [kindCount]uint64
	// Iterations counts loop iterations.
	Iterations uint64
	// Polls counts poll calls that were permitted to block.
	Polls uint64
	// Panics counts recovered callback panics.
	Panics uint64
	// PollWait is the total time spent in poll.
	PollWait time.Duration
}

// CallbackCount returns the number of callbacks run for watchers of kind k.
func (m *Metrics) CallbackCount(k Kind) uint64 {
	if k < 0 || k >= kindCount {
		return 0
	}
	return m.Callbacks[k]
}

// Metrics returns a snapshot of the metrics, or the zero value if metrics
// are disabled. It must be called from the reactor goroutine, or while the
// reactor isn't running.
func (r *Reactor) Metrics() Metrics {
	if r.metrics == nil {
		return Metrics{}
	}
	return *r.metrics
}
