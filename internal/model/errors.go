package model

import (
	"errors"
	"fmt"
)

// Code categorizes engine errors and business outcomes.
type Code string

const (
	// CodeStoreUnavailable: the store connection could not be established
	// after the configured attempts.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	// CodeStoreBusy: the store file stayed locked past the busy timeout and
	// local retries. Retryable by the caller.
	CodeStoreBusy Code = "STORE_BUSY"

	// CodeNotFound: the named record or group does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInsufficientQuantity: a removal asked for more than is held.
	CodeInsufficientQuantity Code = "INSUFFICIENT_QUANTITY"

	// CodeInvalidArgument: malformed input, rejected before any transaction.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Error is the engine's error type. Store-level failures and invalid
// arguments are returned as *Error; NotFound and InsufficientQuantity are
// normally reported through typed results instead.
type Error struct {
	Code    Code
	Message string

	// Name identifies the affected record, if any.
	Name string

	// Err is the underlying driver error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Name != "" {
		msg = fmt.Sprintf("%s (name=%s)", msg, e.Name)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is works against
// the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrStoreUnavailable = &Error{Code: CodeStoreUnavailable, Message: "store unavailable"}
	ErrStoreBusy        = &Error{Code: CodeStoreBusy, Message: "store busy"}
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

// NewStoreUnavailable wraps a connection failure.
func NewStoreUnavailable(err error) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: "could not connect to store", Err: err}
}

// NewStoreBusy wraps a lock timeout.
func NewStoreBusy(err error) *Error {
	return &Error{Code: CodeStoreBusy, Message: "store is locked by another writer", Err: err}
}

// InvalidArgument builds a CodeInvalidArgument error for name.
func InvalidArgument(name, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...), Name: name}
}

// CodeOf extracts the Code from err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsStoreBusy reports whether err is a retryable busy failure.
func IsStoreBusy(err error) bool {
	return CodeOf(err) == CodeStoreBusy
}

// IsStoreUnavailable reports whether err is a connection failure.
func IsStoreUnavailable(err error) bool {
	return CodeOf(err) == CodeStoreUnavailable
}

// IsInvalidArgument reports whether err is an input validation failure.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == CodeInvalidArgument
}
