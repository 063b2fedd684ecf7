//go:build linux || darwin

package flog

import (
	"encoding/json"
	"syscall"

	"github.com/joeycumines/go-fluxcore"
	"github.com/joeycumines/go-fluxcore/handle"
	"github.com/joeycumines/go-fluxcore/message"
)

// DmesgFlags modify [Dmesg].
type DmesgFlags int

const (
	// DmesgClear clears the ring buffer, up to the last record fetched.
	DmesgClear DmesgFlags = 1 << iota
	// DmesgFollow keeps fetching as new records arrive.
	DmesgFollow
)

const (
	// DmesgTopic fetches one record from the log service's ring buffer.
	DmesgTopic = `log.dmesg`
	// ClearTopic discards ring buffer records up to a sequence number.
	ClearTopic = `log.clear`
)

type (
	dmesgRequest struct {
		Seq    int  `json:"seq"`
		Follow bool `json:"follow"`
	}

	clearRequest struct {
		Seq int `json:"seq"`
	}

	// dmesgResponse is the body of log service responses. A non-zero
	// Errnum fails the request, ENOENT marking the end of the buffer.
	dmesgResponse struct {
		Buf    string `json:"buf,omitempty"`
		Seq    int    `json:"seq"`
		Errnum int    `json:"errnum,omitempty"`
	}
)

// Dmesg fetches the records held by the log service's ring buffer, in
// order, passing each to fn, e.g. one returned by [FprintRedirect]. With
// [DmesgFollow] the service holds each request until a record is available,
// so Dmesg only returns on error. A nil fn skips fetching, e.g. to only
// clear the buffer.
func Dmesg(h *handle.Handle, flags DmesgFlags, fn RedirectFunc) error {
	if h == nil {
		return fluxcore.NewError(`dmesg`, fluxcore.ErrInvalidArgument, nil)
	}
	seq := -1
	if fn != nil {
		for {
			resp, err := call(h, DmesgTopic, dmesgRequest{Seq: seq, Follow: flags&DmesgFollow != 0})
			if fluxcore.Errno(err) == syscall.ENOENT {
				break
			}
			if err != nil {
				return err
			}
			seq = resp.Seq
			fn([]byte(resp.Buf))
		}
	}
	if flags&DmesgClear != 0 {
		_, err := call(h, ClearTopic, clearRequest{Seq: seq})
		return err
	}
	return nil
}

// call sends a JSON request to topic, returning the decoded response.
func call(h *handle.Handle, topic string, req any) (resp dmesgResponse, err error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, fluxcore.NewError(topic, fluxcore.ErrInvalidArgument, err)
	}
	msg, err := rpc(h, message.NewRequest(topic, payload))
	if err != nil {
		return resp, err
	}
	if len(msg.Payload) != 0 {
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			return resp, fluxcore.NewError(topic, fluxcore.ErrTransport, err)
		}
	}
	if resp.Errnum != 0 {
		return resp, fluxcore.TransportError(topic, syscall.Errno(resp.Errnum))
	}
	return resp, nil
}

// rpc sends req under a freshly allocated matchtag, then blocks for the
// response carrying it.
func rpc(h *handle.Handle, req *message.Message) (*message.Message, error) {
	tag, err := h.MatchtagAlloc(1)
	if err != nil {
		return nil, err
	}
	defer h.MatchtagFree(tag, 1)
	req.Matchtag = tag
	if err := h.Send(req); err != nil {
		return nil, err
	}
	return h.ReceiveResponse(tag, false)
}
