// Package errors provides error handling for shelf.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for user-facing messages
//
// On top of that it defines the sentinel taxonomy used by the unit registry,
// the tree parser, the suggestion engine and the pipeline, plus StageError,
// which tags a failure with the pipeline stage and unit that produced it.
//
// Usage:
//
//	if _, err := reg.Run(ctx, "parser", args); err != nil {
//	    return errors.WithStage(err, errors.StageParse, "parser")
//	}
//
//	if errors.Is(err, errors.ErrMaxDepthExceeded) {
//	    // reject the upload
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
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails

	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// Marks let an error match a sentinel without changing its message or chain
var (
	Mark = crdb.Mark
)

// Assertions and panics
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the import pipeline.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrInvalidConfig indicates a unit option is missing, mistyped or out of range
	ErrInvalidConfig = New("invalid config")

	// ErrDuplicateName indicates a unit name is already registered
	ErrDuplicateName = New("duplicate unit name")

	// ErrNotFound indicates the requested unit or bookmark does not exist
	ErrNotFound = New("not found")

	// ErrExecution indicates a unit failed while executing
	ErrExecution = New("execution failed")

	// ErrMaxDepthExceeded indicates a folder tree nested deeper than allowed
	ErrMaxDepthExceeded = New("max nesting depth exceeded")

	// ErrTooLarge indicates a document exceeded the node or byte budget
	ErrTooLarge = New("document too large")

	// ErrMalformedNode marks a skipped node; never fatal to a batch
	ErrMalformedNode = New("malformed node")

	// ErrAnalysisFailed indicates the suggestion stage failed after a successful parse
	ErrAnalysisFailed = New("analysis failed")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}

// NewInvalidConfigError creates an invalid-config error with a formatted message
func NewInvalidConfigError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidConfig, format, args...)
}
