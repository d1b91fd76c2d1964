// Package outcome provides the categorized error type shared by the dataset
// components, plus the success/failure report handed back to callers.
//
// Every failure carries a Kind so that callers (CLI, HTTP layer) can branch
// on it without parsing messages. Storage connection failures are always
// reported as BackendUnavailable, whatever kind the failing step asked for.
package outcome

import (
	"errors"
	"fmt"

	"dashboard/internal/storage"
)

// Kind classifies a failure.
type Kind string

const (
	KindParse              Kind = "parse"
	KindSchema             Kind = "schema"
	KindWrite              Kind = "write"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindNotFound           Kind = "not_found"
)

// Sentinels usable with errors.Is; they match any *Error of the same Kind.
var (
	ErrParse              = &Error{Kind: KindParse}
	ErrSchema             = &Error{Kind: KindSchema}
	ErrWrite              = &Error{Kind: KindWrite}
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
	ErrNotFound           = &Error{Kind: KindNotFound}
)

// Error is the structured error returned by ingest, dataset and catalog.
type Error struct {
	Kind   Kind
	Op     string // operation, e.g. "ingest" or "update_row"
	Detail string // human readable context
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error without a cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around err. A nil err yields nil.
// An err that is already an *Error is returned unchanged; an err caused by an
// unreachable backend becomes KindBackendUnavailable.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, storage.ErrUnavailable) {
		kind = KindBackendUnavailable
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from an error chain. It returns "" when err is nil
// or not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsUnavailable reports whether err means the relational backend could not
// be reached.
func IsUnavailable(err error) bool {
	return KindOf(err) == KindBackendUnavailable || errors.Is(err, storage.ErrUnavailable)
}

// Outcome is the caller-facing result of an operation.
type Outcome struct {
	Success bool   `json:"success"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message"`
	Rows    int64  `json:"rows,omitempty"`
}

// Report converts an operation result into an Outcome. Errors that are not
// *Error are reported with KindWrite.
func Report(err error, okMsg string, rows int64) Outcome {
	if err == nil {
		return Outcome{Success: true, Message: okMsg, Rows: rows}
	}
	kind := KindOf(err)
	if kind == "" {
		kind = KindWrite
		if errors.Is(err, storage.ErrUnavailable) {
			kind = KindBackendUnavailable
		}
	}
	return Outcome{Kind: kind, Message: err.Error()}
}
