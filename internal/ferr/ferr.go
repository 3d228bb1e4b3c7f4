// Package ferr defines the typed error taxonomy shared by every layer of
// filesync (spec.md §7): NotFound, IndexOutOfRange, StreamBroken, IOFailure,
// CatalogFailure, MalformedOp and UnknownOrigin. Callers distinguish kinds
// with errors.Is against Sentinel(kind), and wrap lower-level
// causes with github.com/pkg/errors so the original stack trace survives
// across a service boundary.
package ferr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error categories from spec.md §7.
type Kind string

const (
	NotFound        Kind = "not_found"
	IndexOutOfRange Kind = "index_out_of_range"
	StreamBroken    Kind = "stream_broken"
	IOFailure       Kind = "io_failure"
	CatalogFailure  Kind = "catalog_failure"
	MalformedOp     Kind = "malformed_op"
	UnknownOrigin   Kind = "unknown_origin"
)

// Error pairs a Kind with a message and an optional wrapped cause.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, ferr.New(kind, "")) match on Kind alone, and lets
// callers write errors.Is(err, ferr.Sentinel(kind)) via the helper below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a *Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to a lower-level cause, preserving it via errors.WithStack
// so %+v still prints a stack trace at the point of wrapping.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// Sentinel returns a zero-message *Error of kind, suitable as the target of
// errors.Is(err, ferr.Sentinel(ferr.NotFound)).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }
