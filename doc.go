// Package fluxcore is the transport and event core of a message-passing
// cluster framework.
//
// The module is split by concern:
//
//   - [github.com/joeycumines/go-fluxcore/matchtag] allocates correlation tag blocks
//   - [github.com/joeycumines/go-fluxcore/message] models messages and match predicates
//   - [github.com/joeycumines/go-fluxcore/reactor] is the cooperative event loop
//   - [github.com/joeycumines/go-fluxcore/handle] wraps a transport, its aux store and dispatch table
//   - [github.com/joeycumines/go-fluxcore/transport/loopback] is an in-process transport
//   - [github.com/joeycumines/go-fluxcore/flog] delivers log records through a handle
//   - [github.com/joeycumines/go-fluxcore/waitqueue] parks continuations until they may run
//
// This package holds the error taxonomy shared by all of them.
package fluxcore
