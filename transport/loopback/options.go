//go:build linux || darwin

package loopback

import (
	"github.com/joeycumines/go-fluxcore/handle"
	"github.com/joeycumines/go-fluxcore/reactor"
	"github.com/joeycumines/logiface"
)

// transportOptions holds configuration options for Transport creation.
type transportOptions struct {
	reactor    *reactor.Reactor
	logger     *logiface.Logger[logiface.Event]
	handleOpts []handle.Option
	rank       uint32
}

// Option configures a Transport instance.
type Option interface {
	applyTransport(*transportOptions) error
}

// transportOptionImpl implements Option.
type transportOptionImpl struct {
	applyTransportFunc func(*transportOptions) error
}

func (t *transportOptionImpl) applyTransport(opts *transportOptions) error {
	return t.applyTransportFunc(opts)
}

// WithRank sets the node id reported by the transport. Defaults to 0.
func WithRank(rank uint32) Option {
	return &transportOptionImpl{func(opts *transportOptions) error {
		opts.rank = rank
		return nil
	}}
}

// WithReactor runs the transport on r, instead of a reactor of its own.
// The transport doesn't close a supplied reactor.
func WithReactor(r *reactor.Reactor) Option {
	return &transportOptionImpl{func(opts *transportOptions) error {
		opts.reactor = r
		return nil
	}}
}

// WithHandleOptions configures the handle created by [New].
func WithHandleOptions(opts ...handle.Option) Option {
	return &transportOptionImpl{func(o *transportOptions) error {
		o.handleOpts = append(o.handleOpts, opts...)
		return nil
	}}
}

// WithLogger sets the logger of the transport, and of the reactor and
// handle it creates. Handle options passed via [WithHandleOptions] take
// precedence.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &transportOptionImpl{func(opts *transportOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveTransportOptions applies Option instances to transportOptions.
func resolveTransportOptions(opts []Option) (*transportOptions, error) {
	cfg := &transportOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyTransport(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
