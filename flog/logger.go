//go:build linux || darwin

package flog

import (
	"fmt"
	"strings"

	"github.com/joeycumines/go-fluxcore/handle"
	"github.com/joeycumines/logiface"
)

// Event is the logiface event type of loggers returned by [NewLogger].
// Fields are appended to the text as key=value pairs.
type Event struct {
	logiface.UnimplementedEvent
	msg    string
	fields []eventField
	level  logiface.Level
}

type eventField struct {
	val any
	key string
}

var _ logiface.Event = (*Event)(nil)

func (x *Event) Level() logiface.Level {
	if x != nil {
		return x.level
	}
	return logiface.LevelDisabled
}

func (x *Event) AddField(key string, val any) {
	x.fields = append(x.fields, eventField{key: key, val: val})
}

func (x *Event) AddMessage(msg string) bool {
	x.msg = msg
	return true
}

func (x *Event) text() string {
	var b strings.Builder
	b.WriteString(x.msg)
	for _, f := range x.fields {
		if b.Len() != 0 {
			b.WriteByte(' ')
		}
		_, _ = fmt.Fprintf(&b, `%s=%v`, f.key, f.val)
	}
	return b.String()
}

// severity maps logiface levels, which share syslog's numbering, clamping
// trace and custom levels to debug.
func severity(level logiface.Level) Level {
	if level > logiface.LevelDebug {
		return LevelDebug
	}
	return Level(level)
}

// NewLogger returns a logger delivering events via [Log] on h.
func NewLogger(h *handle.Handle, options ...logiface.Option[*Event]) *logiface.Logger[*Event] {
	return logiface.New[*Event](append([]logiface.Option[*Event]{
		logiface.WithEventFactory[*Event](logiface.NewEventFactoryFunc(func(level logiface.Level) *Event {
			return &Event{level: level}
		})),
		logiface.WithWriter[*Event](logiface.NewWriterFunc(func(event *Event) error {
			return Log(h, severity(event.level), `%s`, event.text())
		})),
		logiface.WithLevel[*Event](logiface.LevelInformational),
	}, options...)...)
}
