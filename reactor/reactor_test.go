//go:build linux || darwin

package reactor

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_invalidOption(t *testing.T) {
	_, err := New(WithStatInterval(0))
	assert.ErrorIs(t, err, fluxcore.ErrInvalidArgument)
	r, err := New(nil, WithMetrics(false))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestReactor_Run_noWatchers(t *testing.T) {
	r := newTestReactor(t)
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), RunDefault) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal(`run blocked without watchers`)
	}
}

func TestReactor_Run_lastWatcherRemoved(t *testing.T) {
	r := newTestReactor(t)
	w, err := NewTimerWatcher(r, time.Hour, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	assert.Equal(t, 1, r.Active())
	w.Stop()
	w.Stop()
	assert.Equal(t, 0, r.Active())
	assert.NoError(t, r.Run(context.Background(), RunDefault))
}

func TestNewTimerWatcher_invalid(t *testing.T) {
	r := newTestReactor(t)
	_, err := NewTimerWatcher(r, -1, 0, nil)
	assert.ErrorIs(t, err, fluxcore.ErrInvalidArgument)
	_, err = NewTimerWatcher(r, 0, -1, nil)
	assert.ErrorIs(t, err, fluxcore.ErrInvalidArgument)
	_, err = NewTimerWatcher(nil, 0, 0, nil)
	assert.ErrorIs(t, err, fluxcore.ErrInvalidArgument)
}

func TestTimerWatcher_oneShot(t *testing.T) {
	r := newTestReactor(t)
	var count int
	w, err := NewTimerWatcher(r, 0, 0, func(w *TimerWatcher) {
		count++
		assert.False(t, w.Active())
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 1, count)
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 1, count)
	assert.False(t, w.Active())
}

func TestTimerWatcher_restartFromCallback(t *testing.T) {
	r := newTestReactor(t)
	var count int
	w, err := NewTimerWatcher(r, 0, 0, func(w *TimerWatcher) {
		if count++; count < 3 {
			assert.NoError(t, w.Start())
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 3, count)
}

func TestTimerWatcher_repeat(t *testing.T) {
	r := newTestReactor(t)
	countdown := 10
	var fired int
	w, err := NewTimerWatcher(r, time.Millisecond, time.Millisecond, func(w *TimerWatcher) {
		fired++
		if countdown--; countdown == 0 {
			w.Stop()
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 10, fired)
	assert.Zero(t, countdown)
}

func TestTimerWatcher_order(t *testing.T) {
	r := newTestReactor(t)
	var order []int
	for i, d := range [...]time.Duration{3 * time.Millisecond, time.Millisecond, 0, 0} {
		w, err := NewTimerWatcher(r, d, 0, func(*TimerWatcher) { order = append(order, i) })
		require.NoError(t, err)
		require.NoError(t, w.Start())
	}
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, []int{2, 3, 1, 0}, order)
}

func TestTimerWatcher_Reset(t *testing.T) {
	r := newTestReactor(t)
	var fired time.Time
	w, err := NewTimerWatcher(r, time.Hour, 0, func(*TimerWatcher) { fired = time.Now() })
	require.NoError(t, err)
	assert.ErrorIs(t, w.Reset(-1, 0), fluxcore.ErrInvalidArgument)
	require.NoError(t, w.Start())
	start := time.Now()
	require.NoError(t, w.Reset(5*time.Millisecond, 0))
	assert.Equal(t, 5*time.Millisecond, w.After())
	assert.Zero(t, w.Repeat())
	assert.WithinDuration(t, start.Add(5*time.Millisecond), w.Deadline(), time.Second)
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.False(t, fired.IsZero())
	assert.GreaterOrEqual(t, fired.Sub(start), 5*time.Millisecond)
	require.NoError(t, w.Reset(0, 0))
	assert.False(t, w.Active())
}

func TestTimerWatcher_stopOtherDue(t *testing.T) {
	r := newTestReactor(t)
	var first, second int
	var w2 *TimerWatcher
	w1, err := NewTimerWatcher(r, 0, 0, func(*TimerWatcher) {
		first++
		w2.Stop()
	})
	require.NoError(t, err)
	w2, err = NewTimerWatcher(r, 0, 0, func(*TimerWatcher) { second++ })
	require.NoError(t, err)
	require.NoError(t, w1.Start())
	require.NoError(t, w2.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 1, first)
	assert.Zero(t, second)
}

func TestReactor_StopError(t *testing.T) {
	r := newTestReactor(t)
	w, err := NewTimerWatcher(r, 0, 0, func(w *TimerWatcher) {
		w.Reactor().StopError(syscall.ESRCH)
	})
	require.NoError(t, err)
	// keeps the loop alive, so only the stop can end it
	keep, err := NewTimerWatcher(r, time.Hour, 0, nil)
	require.NoError(t, err)
	require.NoError(t, keep.Start())
	require.NoError(t, w.Start())
	err = r.Run(context.Background(), RunDefault)
	assert.Equal(t, syscall.ESRCH, err)

	// the error doesn't persist into the next run
	require.NoError(t, w.Start())
	w2, err := NewTimerWatcher(r, 0, 0, func(w *TimerWatcher) { w.Reactor().Stop() })
	require.NoError(t, err)
	w.cb = nil
	require.NoError(t, w2.Start())
	assert.NoError(t, r.Run(context.Background(), RunDefault))
}

func TestReactor_StopError_nil(t *testing.T) {
	r := newTestReactor(t)
	w, err := NewIdleWatcher(r, func(w *PhaseWatcher) { w.Reactor().StopError(nil) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	assert.ErrorIs(t, r.Run(context.Background(), RunDefault), fluxcore.ErrInterrupted)
}

func TestReactor_Run_reentrant(t *testing.T) {
	r := newTestReactor(t)
	var inner error
	w, err := NewTimerWatcher(r, 0, 0, func(w *TimerWatcher) {
		inner = w.Reactor().Run(context.Background(), RunDefault)
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.ErrorIs(t, inner, ErrReentrantRun)
	assert.False(t, r.Running())
}

func TestReactor_Run_contextCanceled(t *testing.T) {
	r := newTestReactor(t)
	w, err := NewTimerWatcher(r, time.Hour, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Run(ctx, RunDefault), context.DeadlineExceeded)
	assert.True(t, w.Active())
}

func TestReactor_Run_noWait(t *testing.T) {
	r := newTestReactor(t)
	var fired bool
	w, err := NewTimerWatcher(r, time.Hour, 0, func(*TimerWatcher) { fired = true })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	start := time.Now()
	require.NoError(t, r.Run(context.Background(), RunNoWait))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, fired)
}

func TestReactor_Run_once(t *testing.T) {
	r := newTestReactor(t)
	var fired int
	w, err := NewTimerWatcher(r, 5*time.Millisecond, 5*time.Millisecond, func(*TimerWatcher) { fired++ })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	// a poll may wake marginally before the deadline
	for i := 0; fired == 0 && i < 10; i++ {
		require.NoError(t, r.Run(context.Background(), RunOnce))
	}
	assert.Equal(t, 1, fired)
	assert.True(t, w.Active())
}

func TestReactor_Wake(t *testing.T) {
	r := newTestReactor(t)
	var checks int
	c, err := NewCheckWatcher(r, func(w *PhaseWatcher) {
		checks++
		w.Reactor().Stop()
	})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = r.Wake()
	}()
	start := time.Now()
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 1, checks)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestIdleWatcher(t *testing.T) {
	r := newTestReactor(t)
	var count int
	w, err := NewIdleWatcher(r, func(w *PhaseWatcher) {
		if count++; count == 42 {
			w.Stop()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, KindIdle, w.Kind())
	require.NoError(t, w.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 42, count)
}

func TestPrepareCheckWatchers(t *testing.T) {
	r := newTestReactor(t)
	var prepares, checks, timers int
	var trace []string
	prepare, err := NewPrepareWatcher(r, func(*PhaseWatcher) {
		prepares++
		trace = append(trace, `prepare`)
	})
	require.NoError(t, err)
	check, err := NewCheckWatcher(r, func(*PhaseWatcher) {
		checks++
		trace = append(trace, `check`)
	})
	require.NoError(t, err)
	timer, err := NewTimerWatcher(r, time.Millisecond, time.Millisecond, func(w *TimerWatcher) {
		trace = append(trace, `timer`)
		if timers++; timers == 8 {
			r.Stop()
		}
	})
	require.NoError(t, err)
	require.NoError(t, prepare.Start())
	require.NoError(t, check.Start())
	require.NoError(t, timer.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	assert.Equal(t, 8, timers)
	assert.GreaterOrEqual(t, prepares, 8)
	assert.GreaterOrEqual(t, checks, 8)
	assert.Equal(t, prepares, checks)
	// the iteration that stopped the loop still ran its check phase
	require.NotEmpty(t, trace)
	assert.Equal(t, `check`, trace[len(trace)-1])
	// every timer callback is bracketed by prepare and check
	for i, v := range trace {
		if v == `timer` {
			require.Greater(t, i, 0)
			require.Less(t, i, len(trace)-1)
			assert.Equal(t, `prepare`, trace[i-1])
			assert.Equal(t, `check`, trace[i+1])
		}
	}
	assert.True(t, prepare.Active())
	assert.True(t, check.Active())
}

func TestIdleWatcher_onlyWhenNothingDelivered(t *testing.T) {
	r := newTestReactor(t)
	var idles, timers int
	idle, err := NewIdleWatcher(r, func(*PhaseWatcher) { idles++ })
	require.NoError(t, err)
	timer, err := NewTimerWatcher(r, 0, 0, func(*TimerWatcher) { timers++ })
	require.NoError(t, err)
	require.NoError(t, idle.Start())
	require.NoError(t, timer.Start())
	require.NoError(t, r.Run(context.Background(), RunOnce))
	assert.Equal(t, 1, timers)
	assert.Zero(t, idles)
	require.NoError(t, r.Run(context.Background(), RunOnce))
	assert.Equal(t, 1, idles)
}

func TestReactor_panicRecovered(t *testing.T) {
	var log testLog
	r := newTestReactor(t, WithLogger(log.logger()), WithMetrics(true))
	w, err := NewTimerWatcher(r, 0, 0, func(*TimerWatcher) { panic(`boom`) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	err = r.Run(context.Background(), RunDefault)
	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, `boom`, panicErr.Value)
	assert.Equal(t, KindTimer, panicErr.Kind)
	assert.Nil(t, panicErr.Unwrap())
	assert.Equal(t, `reactor: timer watcher callback panicked: boom`, err.Error())
	assert.Equal(t, uint64(1), r.Metrics().Panics)

	events := log.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, logiface.LevelCritical, events[0].level)
	assert.Equal(t, `reactor: watcher callback panicked`, events[0].msg)
	assert.Equal(t, `timer`, events[0].fields[`kind`])
}

func TestPanicError_Unwrap(t *testing.T) {
	err := &PanicError{Value: syscall.EIO, Kind: KindFD}
	assert.ErrorIs(t, err, syscall.EIO)
}

func TestReactor_Metrics(t *testing.T) {
	r := newTestReactor(t, WithMetrics(true))
	var fired int
	w, err := NewTimerWatcher(r, 0, time.Millisecond, func(w *TimerWatcher) {
		if fired++; fired == 3 {
			w.Stop()
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, r.Run(context.Background(), RunDefault))
	m := r.Metrics()
	assert.Equal(t, uint64(3), m.CallbackCount(KindTimer))
	assert.Zero(t, m.CallbackCount(KindFD))
	assert.Zero(t, m.CallbackCount(Kind(-1)))
	assert.GreaterOrEqual(t, m.Iterations, uint64(3))

	disabled := newTestReactor(t)
	assert.Equal(t, Metrics{}, disabled.Metrics())
}

func TestReactor_closeBeforeWatcherDestroy(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	w, err := NewIdleWatcher(r, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, r.Close())
	assert.NotPanics(t, w.Destroy)
	assert.ErrorIs(t, w.Start(), ErrClosed)
	assert.ErrorIs(t, r.Run(context.Background(), RunDefault), ErrClosed)
}

func TestWatcher_destroyPreventsRestart(t *testing.T) {
	r := newTestReactor(t)
	w, err := NewCheckWatcher(r, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	w.Destroy()
	assert.False(t, w.Active())
	assert.ErrorIs(t, w.Start(), ErrClosed)
	assert.Same(t, r, w.Reactor())
}

func TestKind_String(t *testing.T) {
	for k, name := range map[Kind]string{
		KindTimer:   `timer`,
		KindFD:      `fd`,
		KindSocket:  `socket`,
		KindIdle:    `idle`,
		KindPrepare: `prepare`,
		KindCheck:   `check`,
		KindSignal:  `signal`,
		KindChild:   `child`,
		KindStat:    `stat`,
		Kind(99):    `Kind(99)`,
	} {
		assert.Equal(t, name, k.String())
	}
}

func TestIOEvents_String(t *testing.T) {
	assert.Equal(t, `none`, IOEvents(0).String())
	assert.Equal(t, `read|write`, (EventRead | EventWrite).String())
	assert.Equal(t, `error|hangup`, (EventError | EventHangup).String())
}
