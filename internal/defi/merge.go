package defi

import (
	"sort"
	"strings"

	"defifetcher/internal/llama"
)

// TopProtocolCount is how many protocols a summary ranks
const TopProtocolCount = 10

// FilterYields keeps the pools whose project contains name, ignoring case,
// in upstream order. An empty name keeps every pool.
func FilterYields(pools []llama.YieldPool, name string) []llama.YieldPool {
	needle := strings.ToLower(strings.TrimSpace(name))

	filtered := make([]llama.YieldPool, 0, len(pools))
	for _, pool := range pools {
		if needle == "" || strings.Contains(strings.ToLower(pool.Project), needle) {
			filtered = append(filtered, pool)
		}
	}
	return filtered
}

// TopProtocols returns the n protocols with the highest TVL, highest first.
// Protocols without a TVL rank as 0 and ties keep upstream order. The input
// slice is not modified.
func TopProtocols(protocols []llama.Protocol, n int) []llama.Protocol {
	ranked := make([]llama.Protocol, len(protocols))
	copy(ranked, protocols)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TVLOrZero() > ranked[j].TVLOrZero()
	})

	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// TotalTVL sums the TVL of every protocol, counting absent values as 0
func TotalTVL(protocols []llama.Protocol) float64 {
	var total float64
	for _, p := range protocols {
		total += p.TVLOrZero()
	}
	return total
}
