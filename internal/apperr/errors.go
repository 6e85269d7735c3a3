// Package apperr implements the tagged error-variant classification
// called for in the design notes: rather than matching on concrete
// error types the way the source system switches on exception class,
// every error the core raises carries one Kind, and callers branch on
// that tag.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy of the error-handling design: not-found,
// invalid-input/domain-rule, conflict, transient-infra, critical
// compensation failure, or system-internal.
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindBusiness   Kind = "BUSINESS"
	KindConflict   Kind = "CONFLICT"
	KindTransient  Kind = "TRANSIENT"
	KindCritical   Kind = "CRITICAL"
	KindInternal   Kind = "INTERNAL"
)

// Error wraps an underlying cause with a Kind so orchestration code
// can decide forward-fail vs. retry vs. halt without type-switching on
// concrete error values.
type Error struct {
	kind Kind
	code string
	err  error
}

func (e *Error) Error() string {
	if e.code != "" {
		return fmt.Sprintf("%s: %s", e.code, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the tag used for classification.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the stable machine-readable business error code (e.g.
// "INSUFFICIENT_STOCK"), empty for non-business kinds.
func (e *Error) Code() string { return e.code }

// New wraps err with the given kind and no business code.
func New(kind Kind, err error) *Error {
	return &Error{kind: kind, err: err}
}

// NewBusiness wraps err with KindBusiness and a stable code, used by
// the boundary to pick an HTTP status and a user-facing message.
func NewBusiness(code string, err error) *Error {
	return &Error{kind: KindBusiness, code: code, err: err}
}

// NotFound wraps err with KindNotFound.
func NotFound(err error) *Error { return New(KindNotFound, err) }

// Conflict wraps err with KindConflict (optimistic version mismatch).
func Conflict(err error) *Error { return New(KindConflict, err) }

// Transient wraps err with KindTransient (lock timeout, DB deadlock,
// DB unavailable, event-log publish failure, KV-store failure).
func Transient(err error) *Error { return New(KindTransient, err) }

// Critical wraps err with KindCritical — a compensation failure that
// leaves a durable inconsistency the system cannot self-heal.
func Critical(err error) *Error { return New(KindCritical, err) }

// Internal wraps err with KindInternal (uncategorized).
func Internal(err error) *Error { return New(KindInternal, err) }

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error; otherwise returns KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the orchestrator should retry the
// operation that produced err before giving up (conflict and
// transient errors are retryable up to a small cap; business,
// critical, and internal errors are not).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindTransient:
		return true
	default:
		return false
	}
}
