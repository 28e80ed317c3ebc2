// Package apperr defines the error kinds surfaced by the routing engine.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for callers and transports.
type Kind string

const (
	// KindValidation marks malformed input: bad dates, missing rubric scores,
	// missing override reasons. Never retried automatically.
	KindValidation Kind = "validation"
	// KindNotFound marks an unknown routing, publication, rubric or slot.
	KindNotFound Kind = "not_found"
	// KindPrecondition marks an operation attempted from an illegal status,
	// including a concurrent status change detected on write. Callers
	// re-fetch and retry.
	KindPrecondition Kind = "precondition"
	// KindConflict marks a double-booked publication+date.
	KindConflict Kind = "conflict"
	// KindConfiguration marks operator misconfiguration of the catalog.
	KindConfiguration Kind = "configuration"
)

// Error is the typed error returned by engine operations.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation returns a KindValidation error.
func Validation(op, format string, args ...any) error {
	return newf(KindValidation, op, format, args...)
}

// NotFound returns a KindNotFound error.
func NotFound(op, format string, args ...any) error {
	return newf(KindNotFound, op, format, args...)
}

// Precondition returns a KindPrecondition error.
func Precondition(op, format string, args ...any) error {
	return newf(KindPrecondition, op, format, args...)
}

// Conflict returns a KindConflict error.
func Conflict(op, format string, args ...any) error {
	return newf(KindConflict, op, format, args...)
}

// Configuration returns a KindConfiguration error.
func Configuration(op, format string, args ...any) error {
	return newf(KindConfiguration, op, format, args...)
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// the chain carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
