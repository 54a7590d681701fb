// Package errors provides standardized domain errors with codes for the
// watch pipeline.
//
// Usage:
//
//	// In the registry - return typed errors
//	if registered {
//	    return errors.DuplicateWatch("path already watched: " + path)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrWatchLimit) {
//	    // stop registering the remaining paths of the batch
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeTruncatedStream:
//	        ...
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the pipeline.
const (
	// CodePrimitive means a kernel inotify call failed; the wrapped cause
	// carries the OS error.
	CodePrimitive Code = "PRIMITIVE"
	// CodeWatchLimit is the resource-exhaustion subcase of a primitive
	// failure (ENOSPC: fs.inotify.max_user_watches reached). Kept distinct
	// so batch registration can abort instead of failing on every
	// remaining path.
	CodeWatchLimit       Code = "WATCH_LIMIT"
	CodeDuplicateWatch   Code = "DUPLICATE_WATCH"
	CodeUnknownHandle    Code = "UNKNOWN_HANDLE"
	CodeTruncatedStream  Code = "TRUNCATED_STREAM"
	CodeUnknownCategory  Code = "UNKNOWN_EVENT_CATEGORY"
	CodeQueueOverflowed  Code = "QUEUE_OVERFLOWED"
	CodePathUntrusted    Code = "PATH_UNTRUSTED"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeAlreadyAttached  Code = "ALREADY_ATTACHED"
)

// Fatal reports whether an error of this code must stop the current
// processing pass rather than be logged and skipped.
func (c Code) Fatal() bool {
	switch c {
	case CodeTruncatedStream, CodeUnknownCategory:
		return true
	default:
		return false
	}
}

// Error is a domain error with a code, message and optional wrapped cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrPrimitive       = &Error{Code: CodePrimitive, Message: "kernel primitive call failed"}
	ErrWatchLimit      = &Error{Code: CodeWatchLimit, Message: "watch limit exceeded"}
	ErrDuplicateWatch  = &Error{Code: CodeDuplicateWatch, Message: "path already watched"}
	ErrUnknownHandle   = &Error{Code: CodeUnknownHandle, Message: "unknown watch handle"}
	ErrTruncatedStream = &Error{Code: CodeTruncatedStream, Message: "truncated event stream"}
	ErrUnknownCategory = &Error{Code: CodeUnknownCategory, Message: "unknown event category"}
	ErrQueueOverflowed = &Error{Code: CodeQueueOverflowed, Message: "kernel event queue overflowed"}
	ErrPathUntrusted   = &Error{Code: CodePathUntrusted, Message: "watch path can no longer be trusted"}
)

// Constructor functions for creating errors with custom messages.

// Primitive creates a primitive error wrapping the failed kernel call.
func Primitive(msg string, cause error) *Error {
	return &Error{Code: CodePrimitive, Message: msg, cause: cause}
}

// Primitivef creates a primitive error with a formatted message.
func Primitivef(cause error, format string, args ...any) *Error {
	return &Error{Code: CodePrimitive, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WatchLimit creates a watch limit error. Chain WithCause to attach the
// underlying OS error.
func WatchLimit(msg string) *Error {
	return &Error{Code: CodeWatchLimit, Message: msg}
}

// DuplicateWatch creates a duplicate watch error.
func DuplicateWatch(msg string) *Error {
	return &Error{Code: CodeDuplicateWatch, Message: msg}
}

// UnknownHandlef creates an unknown handle error.
func UnknownHandlef(format string, args ...any) *Error {
	return &Error{Code: CodeUnknownHandle, Message: fmt.Sprintf(format, args...)}
}

// TruncatedStream creates a truncated stream error.
func TruncatedStream(msg string) *Error {
	return &Error{Code: CodeTruncatedStream, Message: msg}
}

// UnknownCategoryf creates an unknown event category error.
func UnknownCategoryf(format string, args ...any) *Error {
	return &Error{Code: CodeUnknownCategory, Message: fmt.Sprintf(format, args...)}
}

// PathUntrustedf creates a path untrusted error.
func PathUntrustedf(format string, args ...any) *Error {
	return &Error{Code: CodePathUntrusted, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgumentf creates an invalid argument error.
func InvalidArgumentf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}
