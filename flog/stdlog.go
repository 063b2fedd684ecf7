package flog

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/joeycumines/go-fluxcore"
)

const (
	// NilValue stands in for absent header fields and structured data.
	NilValue = `-`

	// FacilityUser is the syslog facility of every record, already shifted.
	FacilityUser = 1 << 3

	MaxAppName  = 48
	MaxProcID   = 128
	MaxHostname = 255
	// MaxRecord bounds an encoded record, longer ones are truncated.
	MaxRecord = 2048

	version = 1

	timestampLayout = `2006-01-02T15:04:05.000000Z`
)

// Header is the RFC 5424 header of a log record.
type Header struct {
	Timestamp string
	Hostname  string
	AppName   string
	ProcID    string
	MsgID     string
	Pri       int
	Version   int
}

// NewHeader returns a header with every field nil.
func NewHeader() Header {
	return Header{
		Timestamp: NilValue,
		Hostname:  NilValue,
		AppName:   NilValue,
		ProcID:    NilValue,
		MsgID:     NilValue,
		Pri:       FacilityUser | int(LevelNotice),
		Version:   version,
	}
}

func (h Header) Severity() Level { return Level(h.Pri & 7) }

func (h Header) Facility() int { return h.Pri &^ 7 }

// Encode formats a record, truncated to [MaxRecord] bytes. Empty header
// fields, or structured data, are encoded as [NilValue].
func Encode(hdr Header, sd, msg string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, `<%d>%d %s %s %s %s %s %s %s`,
		hdr.Pri,
		hdr.Version,
		nilIfEmpty(hdr.Timestamp),
		nilIfEmpty(hdr.Hostname),
		nilIfEmpty(truncate(hdr.AppName, MaxAppName)),
		nilIfEmpty(truncate(hdr.ProcID, MaxProcID)),
		nilIfEmpty(hdr.MsgID),
		nilIfEmpty(sd),
		msg,
	)
	buf := b.Bytes()
	if len(buf) > MaxRecord {
		buf = buf[:MaxRecord]
	}
	return buf
}

// Decode parses a record produced by [Encode].
func Decode(buf []byte) (hdr Header, sd, msg string, err error) {
	fail := func(reason string) (Header, string, string, error) {
		return Header{}, ``, ``, fluxcore.NewError(`decode log record`, fluxcore.ErrInvalidArgument, fmt.Errorf(`%s`, reason))
	}

	if len(buf) == 0 || buf[0] != '<' {
		return fail(`missing priority`)
	}
	end := bytes.IndexByte(buf, '>')
	if end < 0 {
		return fail(`unterminated priority`)
	}
	if hdr.Pri, err = strconv.Atoi(string(buf[1:end])); err != nil || hdr.Pri < 0 {
		return fail(`invalid priority`)
	}
	rest := buf[end+1:]

	var fields [6]string
	for i := range fields {
		sp := bytes.IndexByte(rest, ' ')
		if sp <= 0 {
			return fail(`truncated header`)
		}
		fields[i], rest = string(rest[:sp]), rest[sp+1:]
	}
	if hdr.Version, err = strconv.Atoi(fields[0]); err != nil {
		return fail(`invalid version`)
	}
	hdr.Timestamp = fields[1]
	hdr.Hostname = fields[2]
	hdr.AppName = fields[3]
	hdr.ProcID = fields[4]
	hdr.MsgID = fields[5]

	switch {
	case bytes.HasPrefix(rest, []byte(NilValue+` `)):
		sd, rest = NilValue, rest[len(NilValue)+1:]
	case bytes.Equal(rest, []byte(NilValue)):
		sd, rest = NilValue, nil
	case len(rest) != 0 && rest[0] == '[':
		i := bytes.Index(rest, []byte(`] `))
		if i < 0 {
			if rest[len(rest)-1] != ']' {
				return fail(`unterminated structured data`)
			}
			sd, rest = string(rest), nil
		} else {
			sd, rest = string(rest[:i+1]), rest[i+2:]
		}
	default:
		return fail(`missing structured data`)
	}

	return hdr, sd, string(rest), nil
}

func nilIfEmpty(s string) string {
	if s == `` {
		return NilValue
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
