package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"defifetcher/internal/defi"
	"defifetcher/internal/fetcher"
	"defifetcher/internal/insights"
	"defifetcher/internal/llama"
)

// Envelope wraps every response body
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
	RequestID string `json:"requestId"`
}

// errBadRequest marks request bodies and parameters that could not be parsed
var errBadRequest = errors.New("bad request")

// statusFor maps a core error onto an HTTP status code
func statusFor(err error) int {
	var validationErr *insights.ValidationError
	if errors.As(err, &validationErr) ||
		errors.Is(err, errBadRequest) ||
		errors.Is(err, llama.ErrInvalidCoin) ||
		errors.Is(err, defi.ErrUnknownPeriod) ||
		errors.Is(err, defi.ErrEmptySlug) {
		return http.StatusBadRequest
	}

	// A source missing from a summary is an upstream fault, never a missing route
	var aggErr *defi.AggregationError
	if errors.As(err, &aggErr) {
		return http.StatusBadGateway
	}

	var upstreamErr *fetcher.UpstreamError
	if errors.As(err, &upstreamErr) {
		if upstreamErr.NotFound() {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", body.RequestID)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
