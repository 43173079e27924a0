// Package errors carries the console's typed error codes and how each maps
// onto an HTTP response and a CLI exit.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is rendered to callers.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	fatal     = false
	retryable = true
	hidden    = false
	shown     = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, fatal, "validation failed", shown},
	CodeUnauthorized:  {http.StatusUnauthorized, fatal, "authentication required", hidden},
	CodeForbidden:     {http.StatusForbidden, fatal, "access denied", hidden},
	CodeNotFound:      {http.StatusNotFound, fatal, "resource not found", hidden},
	CodeConflict:      {http.StatusConflict, fatal, "conflict detected", hidden},
	CodeStateConflict: {http.StatusUnprocessableEntity, fatal, "state transition disallowed", shown},
	CodeIdempotency:   {http.StatusConflict, fatal, "idempotency key reused", shown},
	CodeRateLimit:     {http.StatusTooManyRequests, fatal, "rate limit exceeded", hidden},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", hidden},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", shown},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	meta, ok := metadataByCode[code]
	if !ok {
		return metadataByCode[CodeInternal]
	}
	return meta
}

// Error is a coded error whose message is safe to show the operator.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the payload rendered when the code allows details.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so errors.Is(err, New(CodeNotFound, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the outermost code, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.code
	}
	return CodeInternal
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	return err != nil && stdErrors.Is(err, &Error{code: code})
}
