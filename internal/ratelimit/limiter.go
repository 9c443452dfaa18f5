package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the different upstream APIs we interact with
type API string

const (
	// APITVL represents the DeFiLlama TVL API (protocols, chains)
	APITVL API = "tvl"
	// APICoins represents the DeFiLlama coins API (current and historical prices)
	APICoins API = "coins"
	// APIYields represents the DeFiLlama yields API (pools)
	APIYields API = "yields"
)

// Limiter manages rate limits for different APIs
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

// New creates a Limiter from requests-per-second limits. A non-positive limit
// leaves that API unlimited.
func New(limits map[API]float64) *Limiter {
	l := &Limiter{
		limiters: make(map[API]*rate.Limiter, len(limits)),
	}
	for api, rps := range limits {
		l.SetLimit(api, rps)
	}
	return l
}

// Unlimited returns a Limiter that never blocks
func Unlimited() *Limiter {
	return New(nil)
}

// SetLimit replaces the limit for api
func (l *Limiter) SetLimit(api API, rps float64) {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	// Allow short bursts of roughly one second's worth of requests
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	l.mu.Lock()
	l.limiters[api] = rate.NewLimiter(limit, burst)
	l.mu.Unlock()
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		// If no limiter exists for this API, allow the request without limiting
		return nil
	}

	return limiter.Wait(ctx)
}

