//go:build linux || darwin

package reactor

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/logiface"
)

// DefaultStatInterval is used by stat watchers created with a zero interval,
// unless overridden by [WithStatInterval].
const DefaultStatInterval = 5 * time.Second

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	logger         *logiface.Logger[logiface.Event]
	statInterval   time.Duration
	childWatchers  bool
	fsnotify       bool
	metricsEnabled bool
}

// Option configures a Reactor instance.
type Option interface {
	applyReactor(*reactorOptions) error
}

// reactorOptionImpl implements Option.
type reactorOptionImpl struct {
	applyReactorFunc func(*reactorOptions) error
}

func (r *reactorOptionImpl) applyReactor(opts *reactorOptions) error {
	return r.applyReactorFunc(opts)
}

// WithChildWatchers enables child process monitoring, which is required to
// create a [ChildWatcher]. The reactor subscribes to SIGCHLD while any child
// watcher is active.
func WithChildWatchers(enabled bool) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		opts.childWatchers = enabled
		return nil
	}}
}

// WithLogger sets the structured logger, used to report failures that can't
// be returned to a caller, e.g. callback panics. A nil logger disables
// logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithStatInterval sets the polling interval of stat watchers created with a
// zero interval.
func WithStatInterval(d time.Duration) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		if d <= 0 {
			return fluxcore.NewError(`reactor option`, fluxcore.ErrInvalidArgument, fmt.Errorf(`stat interval %s`, d))
		}
		opts.statInterval = d
		return nil
	}}
}

// WithFSNotify sets whether stat watchers use filesystem notifications to
// check their path before the next polling deadline. Enabled by default.
func WithFSNotify(enabled bool) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		opts.fsnotify = enabled
		return nil
	}}
}

// WithMetrics enables collection of [Metrics], see [Reactor.Metrics].
func WithMetrics(enabled bool) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveReactorOptions applies Option instances to reactorOptions.
func resolveReactorOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{
		statInterval: DefaultStatInterval,
		fsnotify:     true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
