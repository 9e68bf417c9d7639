// Package httperr defines the application error taxonomy and the JSON
// envelope every failure is normalized into.
package httperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Symbolic error codes surfaced to API clients.
const (
	CodeAuthenticationFailed  = "AUTHENTICATION_FAILED"
	CodeAuthorizationFailed   = "AUTHORIZATION_FAILED"
	CodeValidation            = "VALIDATION_ERROR"
	CodeResourceNotFound      = "RESOURCE_NOT_FOUND"
	CodeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	CodeBusinessRule          = "BUSINESS_LOGIC_ERROR"
	CodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	CodeExternalService       = "EXTERNAL_SERVICE_ERROR"
	CodeInternal              = "INTERNAL_SERVER_ERROR"
)

// Error is a domain failure carrying a symbolic code and HTTP status.
type Error struct {
	Code    string
	Status  int
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetail attaches a named detail to the error and returns it.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error for server-side logging. The cause
// is never serialized to the client.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Authentication returns a deliberately generic credentials failure. The
// same message covers bad signature, expiry, wrong token type and inactive
// user so callers cannot probe which condition failed.
func Authentication() *Error {
	return &Error{Code: CodeAuthenticationFailed, Status: http.StatusUnauthorized, Message: "could not validate credentials"}
}

// Authorization returns a permission-denied failure.
func Authorization(message string) *Error {
	if message == "" {
		message = "not enough permissions"
	}
	return &Error{Code: CodeAuthorizationFailed, Status: http.StatusForbidden, Message: message}
}

// Validation returns a client input failure.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: message}
}

// NotFound returns a missing-resource failure.
func NotFound(resource string) *Error {
	return &Error{Code: CodeResourceNotFound, Status: http.StatusNotFound, Message: resource + " not found"}
}

// Conflict returns a duplicate-resource failure.
func Conflict(message string) *Error {
	return &Error{Code: CodeResourceAlreadyExists, Status: http.StatusConflict, Message: message}
}

// BusinessRule returns a business-rule violation (illegal status transition,
// booking in the past, and the like).
func BusinessRule(message string) *Error {
	return &Error{Code: CodeBusinessRule, Status: http.StatusUnprocessableEntity, Message: message}
}

// RateLimited returns a rate-limit failure with a retry hint in seconds.
func RateLimited(retryAfter int) *Error {
	e := &Error{Code: CodeRateLimitExceeded, Status: http.StatusTooManyRequests, Message: "rate limit exceeded"}
	return e.WithDetail("retry_after", retryAfter)
}

// External returns an object-store or other external collaborator failure.
func External(service string, err error) *Error {
	e := &Error{Code: CodeExternalService, Status: http.StatusBadGateway, Message: service + " is unavailable"}
	return e.WithCause(err)
}

// Internal returns an opaque internal failure. Detail stays server-side.
func Internal(err error) *Error {
	e := &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "an unexpected error occurred"}
	return e.WithCause(err)
}

// As extracts an *Error from err, unwrapping as needed.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Body is the serialized error payload.
type Body struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Path      string                 `json:"path,omitempty"`
}

// Envelope is the single JSON shape all failures are rendered as.
type Envelope struct {
	Error Body `json:"error"`
}

// NewEnvelope builds the response body for an Error.
func NewEnvelope(e *Error, requestID, path string) Envelope {
	return Envelope{Error: Body{
		Code:      e.Code,
		Message:   e.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   e.Details,
		RequestID: requestID,
		Path:      path,
	}}
}
