package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		wantType      ErrorType
		wantRetryable bool
	}{
		{"rate limit", 429, ErrorTypeRateLimit, true},
		{"internal server error", 500, ErrorTypeServer, true},
		{"bad gateway", 502, ErrorTypeServer, true},
		{"not found", 404, ErrorTypeClient, false},
		{"bad request", 400, ErrorTypeClient, false},
		{"redirect", 302, ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyHTTPError(tt.statusCode)
			if err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", err.Type, tt.wantType)
			}
			if err.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.wantRetryable)
			}
			if err.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.statusCode)
			}
		})
	}
}

func TestUpstreamError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UpstreamError
		want string
	}{
		{
			name: "with status",
			err:  NewServerError(503),
			want: "upstream server error (status 503): upstream unavailable",
		},
		{
			name: "with cause",
			err:  NewNetworkError(errors.New("dial tcp: refused")),
			want: "upstream network error: upstream unreachable: dial tcp: refused",
		},
		{
			name: "plain",
			err:  NewValidationError("missing coins object"),
			want: "upstream validation error: missing coins object",
		},
		{
			name: "with endpoint",
			err:  ClassifyHTTPError(404).At("/protocol/unknown"),
			want: "upstream client error on /protocol/unknown (status 404): not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("fetch protocols: %w", NewNetworkError(cause))

	if !errors.Is(err, cause) {
		t.Error("errors.Is() did not reach the cause")
	}

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatal("errors.As() did not find *UpstreamError")
	}
}

func TestClassifyRequestError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{"generic", errors.New("connection reset"), ErrorTypeNetwork},
		{"already typed", NewRateLimitError(429), ErrorTypeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyRequestError(tt.err).Type; got != tt.wantType {
				t.Errorf("Type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestUpstreamError_NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  *UpstreamError
		want bool
	}{
		{"404", ClassifyHTTPError(404), true},
		{"400", ClassifyHTTPError(400), false},
		{"503", ClassifyHTTPError(503), false},
		{"network", NewNetworkError(errors.New("refused")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.NotFound(); got != tt.want {
				t.Errorf("NotFound() = %v, want %v", got, tt.want)
			}
		})
	}

	if msg := ClassifyHTTPError(400).Message; msg != "request rejected" {
		t.Errorf("400 Message = %q, want %q", msg, "request rejected")
	}
}
