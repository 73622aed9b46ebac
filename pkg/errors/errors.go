// Package errors carries the typed error every service returns and the
// handlers translate into an HTTP status and a stable JSON code.
package errors

import (
	stdErrors "errors"
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
	CodeInsufficient  Code = "INSUFFICIENT_CREDITS"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// traits decide how a code surfaces to clients. Codes with a caller-facing
// message show the service's own message; the rest show fallback.
type traits struct {
	status   int
	retry    bool
	fallback string
	ownMsg   bool
	details  bool
}

var table = map[Code]traits{
	CodeValidation:    {status: http.StatusBadRequest, fallback: "validation failed", ownMsg: true, details: true},
	CodeUnauthorized:  {status: http.StatusUnauthorized, fallback: "authentication required", ownMsg: true},
	CodeForbidden:     {status: http.StatusForbidden, fallback: "access denied", ownMsg: true},
	CodeNotFound:      {status: http.StatusNotFound, fallback: "resource not found", ownMsg: true},
	CodeConflict:      {status: http.StatusConflict, fallback: "conflict detected", ownMsg: true},
	CodeStateConflict: {status: http.StatusUnprocessableEntity, fallback: "state transition disallowed", ownMsg: true, details: true},
	CodeIdempotency:   {status: http.StatusConflict, fallback: "idempotency key reused", ownMsg: true, details: true},
	CodeRateLimit:     {status: http.StatusTooManyRequests, fallback: "rate limit exceeded", ownMsg: true},
	CodeInsufficient:  {status: http.StatusPaymentRequired, fallback: "insufficient credits", ownMsg: true, details: true},
	CodeInternal:      {status: http.StatusInternalServerError, retry: true, fallback: "internal server error"},
	CodeDependency:    {status: http.StatusServiceUnavailable, retry: true, fallback: "dependency unavailable", details: true},
}

func (c Code) traits() traits {
	if t, ok := table[c]; ok {
		return t
	}
	return table[CodeInternal]
}

// HTTPStatus maps the code to a response status. Unknown codes are 500.
func (c Code) HTTPStatus() int { return c.traits().status }

// Retryable reports whether a client may retry the same request unchanged.
func (c Code) Retryable() bool { return c.traits().retry }

// ExposesDetails reports whether Details may be sent to the client.
func (c Code) ExposesDetails() bool { return c.traits().details }

// Error is a coded error with an optional cause and client-visible details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
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

// PublicMessage is what a client sees: the service message for client-side
// codes and a fixed phrase for server-side ones.
func (e *Error) PublicMessage() string {
	t := e.Code().traits()
	if t.ownMsg && e.Message() != "" {
		return e.Message()
	}
	return t.fallback
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

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

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Coerce returns err as an *Error, wrapping untyped errors as internal.
func Coerce(err error) *Error {
	if typed := As(err); typed != nil {
		return typed
	}
	if err == nil {
		return New(CodeInternal, "unknown error")
	}
	return Wrap(CodeInternal, err, "unexpected error")
}
