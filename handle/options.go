//go:build linux || darwin

package handle

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/logiface"
)

// DefaultNomatchRates limits trace records for unmatched messages, per topic.
var DefaultNomatchRates = map[time.Duration]int{
	time.Second: 10,
}

// handleOptions holds configuration options for Handle creation.
type handleOptions struct {
	logger     *logiface.Logger[logiface.Event]
	nomatch    *catrate.Limiter
	flags      Flags
	nomatchSet bool
}

// Option configures a Handle instance.
type Option interface {
	applyHandle(*handleOptions) error
}

// handleOptionImpl implements Option.
type handleOptionImpl struct {
	applyHandleFunc func(*handleOptions) error
}

func (h *handleOptionImpl) applyHandle(opts *handleOptions) error {
	return h.applyHandleFunc(opts)
}

// WithFlags sets the initial flags, see [Handle.SetFlags].
func WithFlags(flags Flags) Option {
	return &handleOptionImpl{func(opts *handleOptions) error {
		opts.flags = flags
		return nil
	}}
}

// WithLogger sets the logger receiving trace records, and transport errors
// that can't be returned to a caller. Without it, trace records are written
// to stderr.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &handleOptionImpl{func(opts *handleOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithNomatchRates sets the per-topic rate limits for unmatched message
// trace records, see [catrate.NewLimiter]. An empty map disables limiting.
func WithNomatchRates(rates map[time.Duration]int) Option {
	return &handleOptionImpl{func(opts *handleOptions) (err error) {
		opts.nomatchSet = true
		if len(rates) == 0 {
			opts.nomatch = nil
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				err = fluxcore.NewError(`handle option`, fluxcore.ErrInvalidArgument, fmt.Errorf(`nomatch rates: %v`, r))
			}
		}()
		opts.nomatch = catrate.NewLimiter(rates)
		return nil
	}}
}

// resolveHandleOptions applies Option instances to handleOptions.
func resolveHandleOptions(opts []Option) (*handleOptions, error) {
	cfg := &handleOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyHandle(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.nomatchSet {
		cfg.nomatch = catrate.NewLimiter(DefaultNomatchRates)
	}
	return cfg, nil
}
