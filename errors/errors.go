// Package errors defines the classified error codes used across tracilink.
//
// Every failure belongs to one of two classes. Recoverable errors leave the
// simulator connection usable: the simulator rejected a command, or the bridge
// refused to send it. Fatal errors mean the connection or native handle is in
// an unknown state and the bridge must not be used again.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Class separates errors the caller may recover from and errors that end the session.
type Class int

const (
	// Recoverable errors leave the transport usable.
	Recoverable Class = iota
	// Fatal errors poison the transport for the rest of the run.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a coded, classified error. Package level values act as templates:
// Args and Wrap return copies carrying the formatted message or a cause, and
// errors.Is matches any copy against its template by code.
type Error struct {
	code    int
	class   Class
	format  string
	message string
	cause   error
}

func define(code int, class Class, format string) *Error {
	return &Error{code: code, class: class, format: format}
}

// Args fills the template's format verbs.
func (e *Error) Args(args ...interface{}) *Error {
	c := *e
	c.message = fmt.Sprintf(e.format, args...)
	return &c
}

// Wrap attaches a cause; args fill the template's format verbs.
func (e *Error) Wrap(cause error, args ...interface{}) *Error {
	c := e.Args(args...)
	c.cause = cause
	return c
}

func (e *Error) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.format
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

// Code returns the numeric code shared by the template and its copies.
func (e *Error) Code() int {
	return e.code
}

// Class returns the error class.
func (e *Error) Class() Class {
	return e.class
}

// Message returns the formatted message without the cause.
func (e *Error) Message() string {
	if e.message == "" {
		return e.format
	}
	return e.message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// ClassOf returns the class of the outermost coded error in err's chain.
// Errors without a code are treated as fatal: an unexplained failure on the
// transport path leaves the connection state unknown.
func ClassOf(err error) Class {
	var e *Error
	if stderrors.As(err, &e) {
		return e.class
	}
	return Fatal
}

// IsFatal reports whether err must end the session.
func IsFatal(err error) bool {
	return err != nil && ClassOf(err) == Fatal
}

// IsRecoverable reports whether the transport is still usable after err.
func IsRecoverable(err error) bool {
	return err != nil && ClassOf(err) == Recoverable
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// New creates an uncoded error.
func New(text string) error { return stderrors.New(text) }
