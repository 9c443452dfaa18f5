package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType is the failure category of an upstream call
type ErrorType string

const (
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeServer    ErrorType = "server"
	// ErrorTypeClient covers 4xx answers other than 429, e.g. an unknown protocol slug
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeValidation means a 2xx body that did not decode or lacked a required field
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// UpstreamError is how every failed DeFiLlama call is reported. Retryable
// mirrors the HTTP client's retry conditions; Endpoint is the request path
// when the failure is tied to one.
type UpstreamError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Endpoint   string
	Message    string
	Cause      error
}

func (e *UpstreamError) Error() string {
	prefix := "upstream " + string(e.Type) + " error"
	if e.Endpoint != "" {
		prefix += " on " + e.Endpoint
	}

	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("%s (status %d): %s", prefix, e.StatusCode, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// At records the endpoint that failed and returns e
func (e *UpstreamError) At(endpoint string) *UpstreamError {
	e.Endpoint = endpoint
	return e
}

// NotFound reports whether the upstream answered 404, which for DeFiLlama
// means an unknown protocol slug or coin
func (e *UpstreamError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func NewNetworkError(cause error) *UpstreamError {
	return &UpstreamError{
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "upstream unreachable",
		Cause:     cause,
	}
}

func NewRateLimitError(statusCode int) *UpstreamError {
	return &UpstreamError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "throttled by upstream",
	}
}

func NewServerError(statusCode int) *UpstreamError {
	return &UpstreamError{
		Type:       ErrorTypeServer,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "upstream unavailable",
	}
}

// NewClientError reports a 4xx answer. Retrying cannot help, so it is never retryable.
func NewClientError(statusCode int) *UpstreamError {
	message := "request rejected"
	if statusCode == http.StatusNotFound {
		message = "not found"
	}
	return &UpstreamError{
		Type:       ErrorTypeClient,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewValidationError reports a response body that cannot be used
func NewValidationError(message string) *UpstreamError {
	return &UpstreamError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

func NewTimeoutError(cause error) *UpstreamError {
	return &UpstreamError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "no answer in time",
		Cause:     cause,
	}
}

// ClassifyHTTPError maps a non-2xx status onto an UpstreamError
func ClassifyHTTPError(statusCode int) *UpstreamError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(statusCode)
	case statusCode >= 500:
		return NewServerError(statusCode)
	case statusCode >= 400:
		return NewClientError(statusCode)
	default:
		return &UpstreamError{
			Type:       ErrorTypeUnknown,
			StatusCode: statusCode,
			Message:    "unexpected status",
		}
	}
}

// ClassifyRequestError turns a transport-level failure into an UpstreamError.
// Errors that already are an UpstreamError are returned unchanged.
func ClassifyRequestError(err error) *UpstreamError {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewTimeoutError(err)
	}
	return NewNetworkError(err)
}
