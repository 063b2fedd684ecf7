//go:build linux || darwin

package handle

import (
	"context"
	"syscall"
	"time"

	"github.com/joeycumines/go-fluxcore/message"
	"github.com/joeycumines/go-fluxcore/reactor"
	"github.com/joeycumines/logiface"
)

// fakeOps is an in-memory transport recording the calls made to it.
type fakeOps struct {
	UnimplementedOps
	inbox    []*message.Message
	sent     []*message.Message
	putBack  []*message.Message
	putErrs  []error
	calls    []string
	stops    []error
	closeErr error
	onClose  func()
	timerID  int
}

func (o *fakeOps) Send(msg *message.Message) error {
	o.sent = append(o.sent, msg)
	return nil
}

func (o *fakeOps) Receive(bool) (*message.Message, error) {
	if len(o.inbox) == 0 {
		return nil, syscall.EAGAIN
	}
	msg := o.inbox[0]
	o.inbox = o.inbox[1:]
	return msg, nil
}

func (o *fakeOps) PutBack(msg *message.Message) error {
	o.calls = append(o.calls, `put back`)
	if len(o.putErrs) != 0 {
		err := o.putErrs[0]
		o.putErrs = o.putErrs[1:]
		if err != nil {
			return err
		}
	}
	o.putBack = append(o.putBack, msg)
	return nil
}

func (o *fakeOps) Subscribe(topic string) error {
	o.calls = append(o.calls, `subscribe `+topic)
	return nil
}

func (o *fakeOps) Rank() (uint32, error) { return 3, nil }

func (o *fakeOps) ReactorFDAdd(int, reactor.IOEvents) error {
	o.calls = append(o.calls, `fd add`)
	return nil
}

func (o *fakeOps) ReactorFDRemove(int, reactor.IOEvents) error {
	o.calls = append(o.calls, `fd remove`)
	return nil
}

func (o *fakeOps) ReactorSocketAdd(reactor.Socket, reactor.IOEvents) error {
	o.calls = append(o.calls, `socket add`)
	return nil
}

func (o *fakeOps) ReactorSocketRemove(reactor.Socket, reactor.IOEvents) error {
	o.calls = append(o.calls, `socket remove`)
	return nil
}

func (o *fakeOps) ReactorTimeoutAdd(time.Duration, bool) (int, error) {
	o.timerID++
	o.calls = append(o.calls, `timeout add`)
	return o.timerID, nil
}

func (o *fakeOps) ReactorTimeoutRemove(int) error {
	o.calls = append(o.calls, `timeout remove`)
	return nil
}

func (o *fakeOps) ReactorRun(context.Context) error {
	o.calls = append(o.calls, `run`)
	return nil
}

func (o *fakeOps) ReactorStop(err error) error {
	o.stops = append(o.stops, err)
	return nil
}

func (o *fakeOps) Close() error {
	o.calls = append(o.calls, `close`)
	if o.onClose != nil {
		o.onClose()
	}
	return o.closeErr
}

// bareOps implements no capabilities.
type bareOps struct {
	UnimplementedOps
}

// sliceSocket is a reactor.Socket that can't be compared with ==.
type sliceSocket []int

func (s sliceSocket) NotifyFD() int { return -1 }

func (s sliceSocket) Events() (reactor.IOEvents, error) { return 0, nil }

// fakeSocket is a comparable reactor.Socket.
type fakeSocket struct {
	fd int
}

func (s *fakeSocket) NotifyFD() int { return s.fd }

func (s *fakeSocket) Events() (reactor.IOEvents, error) { return reactor.EventRead, nil }

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

type testLog struct {
	events []*testEvent
}

func (l *testLog) logger() *logiface.Logger[logiface.Event] {
	return logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](logiface.NewEventFactoryFunc(func(level logiface.Level) *testEvent {
			return &testEvent{level: level}
		})),
		logiface.WithWriter[*testEvent](logiface.NewWriterFunc(func(event *testEvent) error {
			l.events = append(l.events, event)
			return nil
		})),
		logiface.WithLevel[*testEvent](logiface.LevelTrace),
	).Logger()
}

func (l *testLog) messages() []string {
	var out []string
	for _, e := range l.events {
		out = append(out, e.msg)
	}
	return out
}
