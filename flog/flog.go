//go:build linux || darwin

// Package flog delivers log records on behalf of a handle, either to a
// redirect installed on the handle, or to the remote log service.
package flog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joeycumines/go-fluxcore/handle"
	"github.com/joeycumines/go-fluxcore/message"
)

// Level is a syslog severity, optionally combined with [Check].
type Level int

const (
	LevelEmerg Level = iota
	LevelAlert
	LevelCrit
	LevelErr
	LevelWarning
	LevelNotice
	LevelInfo
	LevelDebug
)

// Check makes [Log] wait for the log service to acknowledge the record.
const Check Level = 1 << 10

// AppendTopic is the topic of requests sent to the log service.
const AppendTopic = `log.append`

var levelNames = [...]string{
	LevelEmerg:   `emerg`,
	LevelAlert:   `alert`,
	LevelCrit:    `crit`,
	LevelErr:     `err`,
	LevelWarning: `warning`,
	LevelNotice:  `notice`,
	LevelInfo:    `info`,
	LevelDebug:   `debug`,
}

func (l Level) String() string {
	if s := l &^ Check; s >= 0 && int(s) < len(levelNames) {
		return levelNames[s]
	}
	return `unknown`
}

// ParseLevel returns the severity named s.
func ParseLevel(s string) (Level, bool) {
	for i, name := range levelNames {
		if name == s {
			return Level(i), true
		}
	}
	return 0, false
}

// RedirectFunc receives encoded records in place of the log service.
type RedirectFunc func(record []byte)

type logContext struct {
	redirect RedirectFunc
	appName  string
	procID   string
}

// auxKey is the handle aux slot holding the log context.
var auxKey = handle.NewAuxKey[*logContext](`flux::log`)

// stderr receives records logged without a handle.
var stderr io.Writer = os.Stderr

func getContext(h *handle.Handle) *logContext {
	ctx, ok := auxKey.Get(h.Aux())
	if !ok {
		ctx = &logContext{
			appName: truncate(filepath.Base(os.Args[0]), MaxAppName),
			procID:  strconv.Itoa(os.Getpid()),
		}
		auxKey.Set(h.Aux(), ctx, nil)
	}
	return ctx
}

// SetAppName sets the app name of records logged via h. It defaults to the
// program name.
func SetAppName(h *handle.Handle, name string) {
	getContext(h).appName = truncate(name, MaxAppName)
}

// SetProcID sets the process id of records logged via h. It defaults to the
// pid.
func SetProcID(h *handle.Handle, id string) {
	getContext(h).procID = truncate(id, MaxProcID)
}

// SetRedirect delivers records logged via h to fn, instead of the log
// service. A nil fn restores remote delivery.
func SetRedirect(h *handle.Handle, fn RedirectFunc) {
	getContext(h).redirect = fn
}

// Log formats and delivers a record. Without a handle, it prints the
// severity and text to stderr.
func Log(h *handle.Handle, level Level, format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if h == nil {
		_, err := fmt.Fprintf(stderr, "%s: %s\n", level, text)
		return err
	}

	check := level&Check != 0
	level &^= Check

	ctx := getContext(h)
	hdr := NewHeader()
	hdr.Pri = FacilityUser | int(level&7)
	hdr.Timestamp = time.Now().UTC().Format(timestampLayout)
	if rank, err := h.Rank(); err == nil {
		hdr.Hostname = strconv.FormatUint(uint64(rank), 10)
	}
	hdr.AppName = ctx.appName
	hdr.ProcID = ctx.procID
	record := Encode(hdr, NilValue, text)

	if ctx.redirect != nil {
		ctx.redirect(record)
		return nil
	}
	return appendRemote(h, record, check)
}

func appendRemote(h *handle.Handle, record []byte, check bool) error {
	req := message.NewRequest(AppendTopic, record)
	if !check {
		req.Flags |= message.FlagNoResponse
		return h.Send(req)
	}
	_, err := rpc(h, req)
	return err
}

// LogError logs at [LevelErr], appending err to the text.
func LogError(h *handle.Handle, err error, format string, args ...any) error {
	return Log(h, LevelErr, "%s: %v", fmt.Sprintf(format, args...), err)
}

// FprintRedirect returns a redirect printing records to w, one per line, as
// `timestamp appname.severity[nodeid]: text`. Records that can't be decoded
// are printed as is.
func FprintRedirect(w io.Writer) RedirectFunc {
	return func(record []byte) {
		hdr, _, msg, err := Decode(record)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%s\n", record)
			return
		}
		nodeid, _ := strconv.ParseUint(hdr.Hostname, 10, 32)
		_, _ = fmt.Fprintf(w, "%s %s.%s[%d]: %s\n", hdr.Timestamp, hdr.AppName, hdr.Severity(), nodeid, msg)
	}
}
