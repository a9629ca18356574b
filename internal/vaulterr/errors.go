// Package vaulterr defines the error kinds shared by the docvault stores.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure so callers can choose how to surface it.
type Kind string

const (
	KindQuotaExceeded Kind = "quota_exceeded"
	KindStorage       Kind = "storage"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindUnavailable   Kind = "unavailable"
	KindInvalid       Kind = "invalid_argument"
)

// Sentinel errors usable with errors.Is against any *Error of the same kind.
var (
	ErrQuotaExceeded = &Error{Kind: KindQuotaExceeded}
	ErrStorage       = &Error{Kind: KindStorage}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrUnavailable   = &Error{Kind: KindUnavailable}
	ErrInvalid       = &Error{Kind: KindInvalid}
)

// Error is a kinded error with the failing operation and its cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error with the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return other.Kind == e.Kind && other.Op == "" && other.Err == nil
}

// New returns a kinded error for op wrapping err.
func New(kind Kind, op string, err error) error {
	if err == nil {
		err = errors.New(string(kind))
	}
	// An already-kinded cause keeps its kind.
	var existing *Error
	if errors.As(err, &existing) && existing.Kind != "" {
		kind = existing.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Storage wraps an underlying I/O or transaction failure.
func Storage(op string, err error) error {
	return New(KindStorage, op, err)
}

// Quota reports that a write would exceed the storage safety margin.
func Quota(op string, err error) error {
	return New(KindQuotaExceeded, op, err)
}

// Validation reports a content mismatch or other integrity failure.
func Validation(op string, err error) error {
	return New(KindValidation, op, err)
}

// NotFound reports a missing item the caller required to exist.
func NotFound(op string, err error) error {
	return New(KindNotFound, op, err)
}

// Unavailable reports that the underlying store could not be opened.
func Unavailable(op string, err error) error {
	return New(KindUnavailable, op, err)
}

// Invalid reports a bad argument.
func Invalid(op string, err error) error {
	return New(KindInvalid, op, err)
}

// KindOf returns the kind of err, or KindStorage for unkinded errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindStorage
}

// Retryable reports whether the failure is usually transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStorage, KindUnavailable:
		return true
	default:
		return false
	}
}
