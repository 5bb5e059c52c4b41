// Package emit serializes lifecycle and I/O records onto the supervisor's
// stdout in the fixed line format documented in spec.md §4.7:
//
//	[TS│]KIND│NAME│PAYLOAD
//
// Writes are serialized so that no two records interleave mid-line.
package emit

import (
	"fmt"
	"io"
	"sync"
	"time"

	"multiplex/internal/color"
)

// Kind is the single-character record discriminator.
type Kind byte

const (
	Spawn   Kind = '$'
	Stdout  Kind = '<'
	Stderr  Kind = '!'
	Exit    Kind = '='
	Message Kind = '*'
)

// field separator between KIND, NAME and PAYLOAD (U+2502 BOX DRAWINGS LIGHT
// VERTICAL). Distinct from the ASCII pipe used before the timestamp.
const sep = "│"

// TimeMode selects whether and how a timestamp prefix is emitted.
type TimeMode int

const (
	NoTime TimeMode = iota
	Absolute
	Relative
)

// Emitter serializes records onto a sink, applying color and an optional
// timestamp prefix. The zero value is not usable; construct with New.
type Emitter struct {
	mu       sync.Mutex
	w        io.Writer
	color    bool
	timeMode TimeMode
	start    time.Time
}

// New returns an Emitter writing to w. colorEnabled controls whether NAME
// fields are wrapped in their channel's ANSI escape. start is the program's
// start time, used for Relative timestamps.
func New(w io.Writer, colorEnabled bool, timeMode TimeMode, start time.Time) *Emitter {
	return &Emitter{w: w, color: colorEnabled, timeMode: timeMode, start: start}
}

// Emit writes one record. name is the channel name ("*" for supervisor-wide
// messages); esc is the channel's color, ignored if HasColor is false.
func (e *Emitter) Emit(kind Kind, name string, esc color.Escape, hasColor bool, payload string) {
	label := name
	if hasColor {
		label = esc.Wrap(name, e.color)
	}
	e.write(kind, label, payload)
}

func (e *Emitter) write(kind Kind, label, payload string) {
	var prefix string
	if e.timeMode != NoTime {
		prefix = e.timestamp() + "|"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "%s%c%s%s%s%s\n", prefix, byte(kind), sep, label, sep, payload)
}

func (e *Emitter) timestamp() string {
	var t time.Time
	switch e.timeMode {
	case Relative:
		t = time.Unix(0, 0).UTC().Add(time.Since(e.start))
	default:
		t = time.Now()
	}
	return t.Format("15:04:05")
}

// SpawnLine emits the "$" record fired immediately after a successful spawn.
func (e *Emitter) SpawnLine(name string, esc color.Escape, hasColor bool, argv string) {
	e.Emit(Spawn, name, esc, hasColor, argv)
}

// Line emits a "<" or "!" stream record.
func (e *Emitter) Line(kind Kind, name string, esc color.Escape, hasColor bool, text string) {
	e.Emit(kind, name, esc, hasColor, text)
}

// ExitLine emits the "=" record carrying the numeric exit code.
func (e *Emitter) ExitLine(name string, esc color.Escape, hasColor bool, code int) {
	e.Emit(Exit, name, esc, hasColor, fmt.Sprintf("%d", code))
}

// Note emits a supervisor-level "*" record; name is "*" for global
// messages or a channel name for per-channel notices.
func (e *Emitter) Note(name, text string) {
	e.Emit(Message, name, color.Escape{}, false, text)
}
