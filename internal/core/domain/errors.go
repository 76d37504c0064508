// Package domain holds the types shared by the debate stream client: panelists,
// transcript entries, stream events, session states and the error taxonomy.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorises why a session ended in the error state.
type ErrorKind string

const (
	// ErrorKindTransport indicates the request could not be sent or the
	// connection dropped mid-stream.
	ErrorKindTransport ErrorKind = "transport"

	// ErrorKindTimeout indicates the configured request timeout elapsed.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindProtocol indicates the backend reported failure with an error event.
	ErrorKindProtocol ErrorKind = "protocol"

	// ErrorKindTruncated indicates the stream ended without a done event.
	ErrorKindTruncated ErrorKind = "truncated"

	// ErrorKindHTTPStatus indicates a non-success response status.
	ErrorKindHTTPStatus ErrorKind = "http_status"

	// ErrorKindInvalidRequest indicates the request was rejected before sending.
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
)

// StreamError is the cause attached to a session that transitioned to the
// error state.
type StreamError struct {
	// Kind is the category of failure
	Kind ErrorKind `json:"kind"`

	// Code is the backend's error code, when it supplied one
	Code string `json:"code,omitempty"`

	// Message is the human-readable cause
	Message string `json:"message"`

	// StatusCode is the HTTP status for http_status errors
	StatusCode int `json:"-"`

	retryable bool
	err       error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *StreamError) Unwrap() error {
	return e.err
}

// Retryable reports whether re-starting the session with the same arguments
// may succeed.
func (e *StreamError) Retryable() bool {
	return e.retryable
}

// NewStreamError creates a new stream error.
func NewStreamError(kind ErrorKind, message string) *StreamError {
	return &StreamError{
		Kind:      kind,
		Message:   message,
		retryable: defaultRetryable(kind, 0),
	}
}

// WithCode adds a backend error code.
func (e *StreamError) WithCode(code string) *StreamError {
	e.Code = code
	return e
}

// WithStatusCode records the HTTP status and recomputes retryability.
func (e *StreamError) WithStatusCode(code int) *StreamError {
	e.StatusCode = code
	e.retryable = defaultRetryable(e.Kind, code)
	return e
}

// WithRetryable overrides the default retryability for the kind.
func (e *StreamError) WithRetryable(retryable bool) *StreamError {
	e.retryable = retryable
	return e
}

// WithCause attaches the underlying error.
func (e *StreamError) WithCause(err error) *StreamError {
	e.err = err
	return e
}

func defaultRetryable(kind ErrorKind, status int) bool {
	switch kind {
	case ErrorKindTransport, ErrorKindTimeout, ErrorKindProtocol, ErrorKindTruncated:
		return true
	case ErrorKindHTTPStatus:
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	default:
		return false
	}
}

// Convenience constructors

// ErrTransport creates a transport error wrapping err.
func ErrTransport(err error) *StreamError {
	return NewStreamError(ErrorKindTransport, err.Error()).WithCause(err)
}

// ErrTimeout creates a timeout error wrapping err.
func ErrTimeout(err error) *StreamError {
	return NewStreamError(ErrorKindTimeout, "request timed out").WithCode("TIMEOUT").WithCause(err)
}

// ErrProtocol creates an error for a backend-reported failure.
func ErrProtocol(message string) *StreamError {
	return NewStreamError(ErrorKindProtocol, message)
}

// ErrTruncated creates an error for a stream that ended before done.
func ErrTruncated() *StreamError {
	return NewStreamError(ErrorKindTruncated, "stream ended before the debate was complete")
}

// ErrHTTPStatus creates an error for a non-success response.
func ErrHTTPStatus(status int, message string) *StreamError {
	if message == "" {
		message = http.StatusText(status)
	}
	return NewStreamError(ErrorKindHTTPStatus, message).WithStatusCode(status)
}

// AsStreamError extracts a *StreamError from err's chain.
func AsStreamError(err error) (*StreamError, bool) {
	var se *StreamError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable reports whether err is a retryable stream error.
func IsRetryable(err error) bool {
	se, ok := AsStreamError(err)
	return ok && se.Retryable()
}
