// Package failure defines the coded errors returned by the game core and the
// layers around it.
package failure

import (
	"errors"
	"fmt"
)

// Code classifies an Error.
type Code string

const (
	// NotFound: a referenced game, player or story does not exist.
	NotFound Code = "not_found"
	// IllegalState: the operation is not allowed in the current state, such as
	// acting out of turn or starting a game twice.
	IllegalState Code = "illegal_state"
	// IllegalArgument: the input is malformed or out of range.
	IllegalArgument Code = "illegal_argument"
	// Conflict: a save raced with another writer of the same game.
	Conflict Code = "conflict"
)

// Error is a coded error. Two Errors match with errors.Is when their codes match.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrNotFound        = &Error{Code: NotFound}
	ErrIllegalState    = &Error{Code: IllegalState}
	ErrIllegalArgument = &Error{Code: IllegalArgument}
	ErrConflict        = &Error{Code: Conflict}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func IllegalStatef(format string, args ...any) *Error {
	return New(IllegalState, fmt.Sprintf(format, args...))
}

func IllegalArgumentf(format string, args ...any) *Error {
	return New(IllegalArgument, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
