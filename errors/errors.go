// Package errors provides error handling for jobscout.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Sentinel errors for pipeline control decisions
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrDuplicatePending) {
//	    // spawn rejected, drop it
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Common sentinel errors for use across jobscout.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrConflict indicates an item was concurrently modified; the caller
	// lost the optimistic-concurrency race and must re-claim or abandon
	ErrConflict = New("concurrent modification conflict")

	// ErrValidation indicates an item was constructed with missing or
	// inconsistent lineage fields. This is a programming error in the
	// caller, not a data problem.
	ErrValidation = New("invalid item")
)

// Spawn rejection sentinels. The spawn guard returns exactly one of these
// when it denies a candidate item. All of them are recoverable: the parent
// item keeps processing, only the spawn is dropped.
var (
	// ErrDepthExceeded indicates the candidate's spawn depth reached the
	// configured ceiling
	ErrDepthExceeded = New("spawn depth exceeded")

	// ErrCircularDependency indicates the candidate's source key already
	// appears in its own ancestry chain
	ErrCircularDependency = New("circular dependency")

	// ErrDuplicatePending indicates the same work is already pending or
	// processing within this lineage
	ErrDuplicatePending = New("duplicate pending work")

	// ErrAlreadyCompleted indicates the same work already succeeded within
	// this lineage
	ErrAlreadyCompleted = New("work already completed")
)

// Stage failure classification. Handlers wrap stage errors with one of
// these so the driver can decide between retry-with-backoff and
// immediate failure.
var (
	// ErrTransient marks a retryable stage failure (network, timeout,
	// rate limit)
	ErrTransient = New("transient stage error")

	// ErrFatal marks a non-retryable stage failure (malformed input,
	// permanently unreachable resource)
	ErrFatal = New("fatal stage error")
)

// IsSpawnRejection reports whether err is one of the four spawn guard
// rejection sentinels.
func IsSpawnRejection(err error) bool {
	return err != nil && IsAny(err,
		ErrDepthExceeded,
		ErrCircularDependency,
		ErrDuplicatePending,
		ErrAlreadyCompleted,
	)
}

// IsTransient reports whether err is or wraps ErrTransient.
func IsTransient(err error) bool {
	return err != nil && Is(err, ErrTransient)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// Transient wraps err as a retryable stage failure with context.
func Transient(err error, context string) error {
	return Wrap(WithSecondary(ErrTransient, err), context)
}

// Fatal wraps err as a non-retryable stage failure with context.
func Fatal(err error, context string) error {
	return Wrap(WithSecondary(ErrFatal, err), context)
}

// WithSecondary attaches cause's message to a sentinel while keeping the
// sentinel identity for errors.Is checks.
func WithSecondary(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return Wrap(sentinel, cause.Error())
}
