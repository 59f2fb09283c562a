// Package oops attaches a call stack to errors raised by storage and other
// infrastructure code, so a 500 in the access log can be traced to the line
// that failed.
package oops

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
	"github.com/rs/zerolog"
)

// Error is an infrastructure failure: a message describing what was being
// attempted, the underlying cause (may be nil), and where it happened.
type Error struct {
	Msg    string
	Cause  error
	Frames Frames
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Frames is a captured stack, innermost call first.
type Frames []Frame

// MarshalZerologArray renders the stack as the "stack" field of a log event.
func (fs Frames) MarshalZerologArray(a *zerolog.Array) {
	for _, f := range fs {
		a.Object(f)
	}
}

// Frame is one call site.
type Frame struct {
	Func string `json:"function"`
	File string `json:"file"`
	Line int    `json:"line"`
}

func (f Frame) MarshalZerologObject(e *zerolog.Event) {
	e.Str("function", f.Func).Str("file", f.File).Int("line", f.Line)
}

// StackOf finds the innermost *Error in err's chain and returns its frames,
// or nil. The logging package installs it as zerolog.ErrorStackMarshaler.
func StackOf(err error) any {
	var e *Error
	if errors.As(err, &e) {
		return e.Frames
	}
	return nil
}

// New records that an operation failed. The stack starts at New's caller.
func New(cause error, format string, args ...any) error {
	return &Error{
		Msg:    fmt.Sprintf(format, args...),
		Cause:  cause,
		Frames: capture(2),
	}
}

// Here returns the stack of its caller. Used when logging recovered panics
// that carry no *Error.
func Here() Frames {
	return capture(2)
}

// capture skips its own frame plus skip-1 callers.
func capture(skip int) Frames {
	calls := stack.Trace().TrimRuntime()
	if len(calls) < skip {
		return nil
	}
	calls = calls[skip:]
	out := make(Frames, 0, len(calls))
	for _, c := range calls {
		fr := c.Frame()
		out = append(out, Frame{Func: fr.Function, File: fr.File, Line: fr.Line})
	}
	return out
}
