// Package reactor implements a cooperative, single goroutine event loop.
//
// A [Reactor] owns watchers of several kinds, each inert until started:
//
//   - [TimerWatcher] fires after a delay, optionally repeating
//   - [FDWatcher] reports readiness of a file descriptor
//   - [SocketWatcher] reports readiness of an edge-notified message socket
//   - [PhaseWatcher] runs in the idle, prepare or check phase
//   - [SignalWatcher] reports delivery of an OS signal
//   - [ChildWatcher] reports state changes of a child process
//   - [StatWatcher] reports size changes and removal of a path
//
// # Iteration
//
// Each iteration of [Reactor.Run] runs prepare watchers, then polls for
// readiness (blocking until the nearest timer or stat deadline, or
// indefinitely if there is none), delivering I/O, signal, child, timer and
// stat events. Check watchers run next. Idle watchers run last, and only when
// nothing was delivered during the iteration; while any idle watcher is
// active the poll doesn't block.
//
// Run returns once no watcher is active, or [Reactor.Stop] or
// [Reactor.StopError] was called.
//
// # Thread Safety
//
// Callbacks run one at a time, to completion, on the goroutine calling Run.
// Only [Reactor.Wake] and [Notifier] methods may be called from other
// goroutines. Descriptors given to watchers are never closed by the reactor.
package reactor
