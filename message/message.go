// Package message models the messages exchanged over a transport, and the
// predicates used to select them.
package message

import (
	"fmt"
	"strings"

	"github.com/joeycumines/go-fluxcore/matchtag"
)

// Type is a message type bitmask.
type Type uint8

const (
	TypeRequest Type = 1 << iota
	TypeResponse
	TypeEvent
	TypeKeepalive

	// TypeAny matches every message type.
	TypeAny = TypeRequest | TypeResponse | TypeEvent | TypeKeepalive
)

// String returns the type name, as used in trace output.
func (t Type) String() string {
	switch t {
	case TypeRequest:
		return `request`
	case TypeResponse:
		return `response`
	case TypeEvent:
		return `event`
	case TypeKeepalive:
		return `keepalive`
	case TypeAny:
		return `any`
	}
	var names []string
	for _, v := range [...]Type{TypeRequest, TypeResponse, TypeEvent, TypeKeepalive} {
		if t&v != 0 {
			names = append(names, v.String())
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf(`Type(%d)`, uint8(t))
	}
	return strings.Join(names, `|`)
}

// ShortString returns the single character abbreviation of a type.
func (t Type) ShortString() string {
	switch t {
	case TypeRequest:
		return `>`
	case TypeResponse:
		return `<`
	case TypeEvent:
		return `e`
	case TypeKeepalive:
		return `k`
	default:
		return `?`
	}
}

// Flags modify message handling.
type Flags uint8

const (
	// FlagNoResponse marks a request for which no response is expected.
	FlagNoResponse Flags = 1 << iota
)

// NodeidAny addresses whichever node receives the message first.
const NodeidAny uint32 = ^uint32(0)

// Message is a unit of communication between handles. Payload is opaque,
// and owned by the message once sent.
type Message struct {
	Topic    string
	Payload  []byte
	Matchtag matchtag.Tag
	Nodeid   uint32
	Type     Type
	Flags    Flags
}

// NewRequest builds a request for topic, addressed to any node.
func NewRequest(topic string, payload []byte) *Message {
	return &Message{Type: TypeRequest, Topic: topic, Payload: payload, Nodeid: NodeidAny}
}

// NewResponse builds the response to req, carrying its matchtag.
func NewResponse(req *Message, payload []byte) *Message {
	return &Message{Type: TypeResponse, Topic: req.Topic, Matchtag: req.Matchtag, Nodeid: req.Nodeid, Payload: payload}
}

// NewEvent builds an event, published to subscribers of topic.
func NewEvent(topic string, payload []byte) *Message {
	return &Message{Type: TypeEvent, Topic: topic, Payload: payload}
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	c := *m
	if m.Payload != nil {
		c.Payload = append([]byte(nil), m.Payload...)
	}
	return &c
}

func (m *Message) String() string {
	return fmt.Sprintf(`%s '%s'`, m.Type, m.Topic)
}
