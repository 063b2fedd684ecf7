// Package zlog implements a logiface backend writing through zerolog, used as
// the default diagnostic sink.
package zlog

import (
	"io"
	"os"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

type (
	Event struct {
		logiface.UnimplementedEvent
		Z   *zerolog.Event
		msg string
		lvl logiface.Level
	}

	Logger struct {
		Z zerolog.Logger
	}
)

var (
	// compile time assertions

	_ logiface.Event                = (*Event)(nil)
	_ logiface.EventFactory[*Event] = (*Logger)(nil)
	_ logiface.Writer[*Event]       = (*Logger)(nil)
)

func (x *Event) Level() logiface.Level {
	if x != nil {
		return x.lvl
	}
	return logiface.LevelDisabled
}

func (x *Event) AddField(key string, val any) {
	x.Z.Interface(key, val)
}

func (x *Event) AddMessage(msg string) bool {
	x.msg = msg
	return true
}

func (x *Event) AddError(err error) bool {
	x.Z.Err(err)
	return true
}

func (x *Event) AddString(key string, val string) bool {
	x.Z.Str(key, val)
	return true
}

func (x *Event) AddInt(key string, val int) bool {
	x.Z.Int(key, val)
	return true
}

func (x *Event) AddDuration(key string, val time.Duration) bool {
	x.Z.Dur(key, val)
	return true
}

func (x *Event) AddBool(key string, val bool) bool {
	x.Z.Bool(key, val)
	return true
}

func (x *Event) AddUint64(key string, val uint64) bool {
	x.Z.Uint64(key, val)
	return true
}

// NewEvent maps logiface levels onto zerolog. The fatal and panic levels are
// only used as labels, they never exit or panic.
func (x *Logger) NewEvent(level logiface.Level) *Event {
	if !level.Enabled() {
		return nil
	}
	r := Event{
		lvl: level,
	}
	switch level {
	case logiface.LevelTrace:
		r.Z = x.Z.Trace()
	case logiface.LevelDebug:
		r.Z = x.Z.Debug()
	case logiface.LevelInformational:
		r.Z = x.Z.Info()
	case logiface.LevelNotice, logiface.LevelWarning:
		r.Z = x.Z.Warn()
	case logiface.LevelError:
		r.Z = x.Z.Error()
	case logiface.LevelCritical, logiface.LevelAlert:
		r.Z = x.Z.WithLevel(zerolog.FatalLevel)
	case logiface.LevelEmergency:
		r.Z = x.Z.WithLevel(zerolog.PanicLevel)
	default:
		// >= 9, translate to numeric levels in zerolog (9 -> -2, etc)
		r.Z = x.Z.WithLevel(zerolog.Level(7 - level))
	}
	return &r
}

func (x *Logger) Write(event *Event) error {
	event.Z.Msg(event.msg)
	return nil
}

// WithZerolog configures a logiface logger to write to z.
func WithZerolog(z zerolog.Logger) logiface.Option[*Event] {
	l := &Logger{Z: z}
	return logiface.WithOptions[*Event](
		logiface.WithEventFactory[*Event](l),
		logiface.WithWriter[*Event](l),
	)
}

// New returns a logger writing timestamped JSON lines to w.
func New(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return logiface.New[*Event](
		WithZerolog(zerolog.New(w).With().Timestamp().Logger()),
		logiface.WithLevel[*Event](level),
	).Logger()
}

// Stderr returns a logger writing human-readable lines to stderr.
func Stderr(level logiface.Level) *logiface.Logger[logiface.Event] {
	return New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, level)
}
