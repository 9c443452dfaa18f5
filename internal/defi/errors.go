package defi

import (
	"errors"
	"fmt"
)

// ErrUnknownPeriod is returned by PriceHistory for a period it has no chart window for
var ErrUnknownPeriod = errors.New("unknown price history period")

// AggregationError reports which required source failed a summary build.
// The source's own error, usually a *fetcher.UpstreamError, is reachable
// through errors.As.
type AggregationError struct {
	Source string
	Err    error
}

// Error implements the error interface
func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed on source %s: %v", e.Source, e.Err)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *AggregationError) Unwrap() error {
	return e.Err
}
