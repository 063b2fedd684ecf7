//go:build linux || darwin

package reactor

import (
	"sync"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

// testEvent is a minimal logiface.Event implementation, recording fields.
type testEvent struct {
	logiface.UnimplementedEvent
	fields map[string]any
	msg    string
	level  logiface.Level
}

func (e *testEvent) Level() logiface.Level { return e.level }

func (e *testEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = val
}

func (e *testEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

// testLog records written events.
type testLog struct {
	events []*testEvent
	mu     sync.Mutex
}

func (l *testLog) logger() *logiface.Logger[logiface.Event] {
	return logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](logiface.NewEventFactoryFunc(func(level logiface.Level) *testEvent {
			return &testEvent{level: level}
		})),
		logiface.WithWriter[*testEvent](logiface.NewWriterFunc(func(event *testEvent) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.events = append(l.events, event)
			return nil
		})),
		logiface.WithLevel[*testEvent](logiface.LevelTrace),
	).Logger()
}

func (l *testLog) snapshot() []*testEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*testEvent(nil), l.events...)
}

func newTestReactor(t *testing.T, opts ...Option) *Reactor {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}
