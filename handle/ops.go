//go:build linux || darwin

package handle

import (
	"context"
	"time"

	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/go-fluxcore/message"
	"github.com/joeycumines/go-fluxcore/reactor"
)

// Ops is the capability set a transport provides to a [Handle].
//
// Implementations must embed [UnimplementedOps], so that capabilities added
// later, or left out, fail with [fluxcore.ErrNotSupported].
type Ops interface {
	Send(msg *message.Message) error
	// Receive returns the next inbound message. With nonblock set, it fails
	// instead of waiting for one.
	Receive(nonblock bool) (*message.Message, error)
	// PutBack returns msg to the transport, to be received again.
	PutBack(msg *message.Message) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Rank() (uint32, error)
	// Context returns the transport's opaque context object.
	Context() (any, error)

	ReactorFDAdd(fd int, events reactor.IOEvents) error
	ReactorFDRemove(fd int, events reactor.IOEvents) error
	ReactorSocketAdd(sock reactor.Socket, events reactor.IOEvents) error
	ReactorSocketRemove(sock reactor.Socket, events reactor.IOEvents) error
	// ReactorTimeoutAdd arms a timer, returning its id, which the transport
	// passes to [Handle.DispatchTimeout] each time it fires.
	ReactorTimeoutAdd(d time.Duration, oneshot bool) (int, error)
	ReactorTimeoutRemove(id int) error
	// ReactorRun runs the transport's loop, routing readiness to the
	// handle's Dispatch methods, until stopped.
	ReactorRun(ctx context.Context) error
	// ReactorStop stops the loop. A non-nil err is returned by ReactorRun.
	ReactorStop(err error) error

	// Close releases the transport's state.
	Close() error

	mustEmbedUnimplementedOps()
}

// Binder is optionally implemented by transports that need the handle they
// serve, e.g. to route readiness to its dispatch table.
type Binder interface {
	Bind(h *Handle)
}

// UnimplementedOps must be embedded by every [Ops] implementation.
type UnimplementedOps struct{}

var _ Ops = UnimplementedOps{}

func notSupported(op string) error {
	return fluxcore.NewError(op, fluxcore.ErrNotSupported, nil)
}

func (UnimplementedOps) Send(*message.Message) error { return notSupported(`send`) }

func (UnimplementedOps) Receive(bool) (*message.Message, error) {
	return nil, notSupported(`receive`)
}

func (UnimplementedOps) PutBack(*message.Message) error { return notSupported(`put back`) }

func (UnimplementedOps) Subscribe(string) error { return notSupported(`subscribe`) }

func (UnimplementedOps) Unsubscribe(string) error { return notSupported(`unsubscribe`) }

func (UnimplementedOps) Rank() (uint32, error) { return 0, notSupported(`rank`) }

func (UnimplementedOps) Context() (any, error) { return nil, notSupported(`context`) }

func (UnimplementedOps) ReactorFDAdd(int, reactor.IOEvents) error {
	return notSupported(`reactor fd add`)
}

func (UnimplementedOps) ReactorFDRemove(int, reactor.IOEvents) error {
	return notSupported(`reactor fd remove`)
}

func (UnimplementedOps) ReactorSocketAdd(reactor.Socket, reactor.IOEvents) error {
	return notSupported(`reactor socket add`)
}

func (UnimplementedOps) ReactorSocketRemove(reactor.Socket, reactor.IOEvents) error {
	return notSupported(`reactor socket remove`)
}

func (UnimplementedOps) ReactorTimeoutAdd(time.Duration, bool) (int, error) {
	return -1, notSupported(`reactor timeout add`)
}

func (UnimplementedOps) ReactorTimeoutRemove(int) error {
	return notSupported(`reactor timeout remove`)
}

func (UnimplementedOps) ReactorRun(context.Context) error { return notSupported(`reactor run`) }

func (UnimplementedOps) ReactorStop(error) error { return notSupported(`reactor stop`) }

// Close is a no-op, there being no state to release.
func (UnimplementedOps) Close() error { return nil }

func (UnimplementedOps) mustEmbedUnimplementedOps() {}
