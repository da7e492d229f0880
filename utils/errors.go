package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an AppError for transport mapping.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindAuth       ErrorKind = "auth"
	KindUpstream   ErrorKind = "upstream"
)

// AppError is the error type returned by services. Code is a stable
// machine-readable identifier, Message is safe to show to the caller.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError reports bad input.
func NewValidationError(code, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(code, message string) *AppError {
	return &AppError{Kind: KindNotFound, Code: code, Message: message}
}

// NewConflictError reports a state conflict such as insufficient stock.
func NewConflictError(code, message string) *AppError {
	return &AppError{Kind: KindConflict, Code: code, Message: message}
}

// NewAuthError reports a missing or invalid credential.
func NewAuthError(code, message string) *AppError {
	return &AppError{Kind: KindAuth, Code: code, Message: message}
}

// NewUpstreamError wraps a provider failure. details carries the provider
// response for operator diagnosis.
func NewUpstreamError(code, message string, details interface{}, err error) *AppError {
	return &AppError{Kind: KindUpstream, Code: code, Message: message, Details: details, Err: err}
}

// AsAppError unwraps err into an *AppError if it is one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
