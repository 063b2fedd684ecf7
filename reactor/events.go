//go:build linux || darwin

package reactor

import (
	"strings"
)

// IOEvents is a readiness bitmask.
type IOEvents uint32

const (
	// EventRead indicates the source is readable.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the source is writable.
	EventWrite
	// EventError indicates an error condition on the source.
	EventError
	// EventHangup indicates the peer closed its end.
	EventHangup
)

func (e IOEvents) String() string {
	if e == 0 {
		return `none`
	}
	var parts []string
	for _, v := range [...]struct {
		name string
		bit  IOEvents
	}{
		{`read`, EventRead},
		{`write`, EventWrite},
		{`error`, EventError},
		{`hangup`, EventHangup},
	} {
		if e&v.bit != 0 {
			parts = append(parts, v.name)
		}
	}
	return strings.Join(parts, `|`)
}

// ioCallback receives the readiness of one descriptor.
type ioCallback func(IOEvents)
