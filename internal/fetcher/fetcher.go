package fetcher

import "context"

// Source is a single upstream retrieval that can be cached.
// Each source knows how to retrieve one upstream response and provides a
// hierarchical key identifying the request (endpoint plus query) for caching.
type Source[T any] interface {
	// Fetch performs the upstream request and decodes its response.
	// Failures are reported as *UpstreamError.
	Fetch(ctx context.Context) (T, error)

	// Key returns the cache key for this request.
	// Format: fetcher:{api}:{path}
	// Examples:
	//   - fetcher:tvl:/protocols
	//   - fetcher:tvl:/protocol/ether.fi
	//   - fetcher:coins:/prices/current/ethereum:0xC02a...,ethereum:0x35fA...
	//   - fetcher:yields:/pools
	Key() string
}

// SourceFunc adapts a key and a function to the Source interface
type SourceFunc[T any] struct {
	CacheKey string
	FetchFn  func(ctx context.Context) (T, error)
}

// Fetch implements Source
func (s SourceFunc[T]) Fetch(ctx context.Context) (T, error) {
	return s.FetchFn(ctx)
}

// Key implements Source
func (s SourceFunc[T]) Key() string {
	return s.CacheKey
}
