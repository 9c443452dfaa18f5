package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"defifetcher/internal/fetcher"
)

// Coin identifiers used by the fixtures
const (
	WETH = "ethereum:0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	EETH = "ethereum:0x35fA164735182de50811E8e2E824cFb9B6118ac2"
)

// MockSource is a mock implementation of the fetcher.Source interface for testing
type MockSource[T any] struct {
	FetchFunc func(ctx context.Context) (T, error)
	KeyFunc   func() string
	calls     atomic.Int32
}

// Fetch implements the fetcher.Source interface
func (m *MockSource[T]) Fetch(ctx context.Context) (T, error) {
	m.calls.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	var zero T
	return zero, nil
}

// Key implements the fetcher.Source interface
func (m *MockSource[T]) Key() string {
	if m.KeyFunc != nil {
		return m.KeyFunc()
	}
	return "mock:key"
}

// Calls reports how many times Fetch was invoked
func (m *MockSource[T]) Calls() int {
	return int(m.calls.Load())
}

// NewMockSource creates a simple mock source with a predefined value
func NewMockSource[T any](key string, value T, err error) *MockSource[T] {
	return &MockSource[T]{
		FetchFunc: func(ctx context.Context) (T, error) {
			return value, err
		},
		KeyFunc: func() string {
			return key
		},
	}
}

var _ fetcher.Source[int] = (*MockSource[int])(nil)

// Default fixture bodies served by LlamaServer
const (
	ProtocolsJSON = `[
		{"id": "182", "name": "Lido", "slug": "lido", "category": "Liquid Staking", "tvl": 30000000000, "change_1d": 0.5, "change_7d": 2.1, "mcap": null},
		{"id": "111", "name": "AAVE V3", "slug": "aave-v3", "category": "Lending", "tvl": 25000000000, "change_1d": -0.3, "change_7d": 1.2, "mcap": 2500000000},
		{"id": "2", "name": "EigenLayer", "slug": "eigenlayer", "category": "Restaking", "tvl": 15000000000},
		{"id": "2626", "name": "ether.fi", "slug": "ether.fi", "category": "Liquid Restaking", "tvl": 6500000000, "change_1d": 1.5, "change_7d": 4.2},
		{"id": "118", "name": "MakerDAO", "slug": "makerdao", "category": "CDP", "tvl": 5000000000},
		{"id": "1", "name": "Uniswap V3", "slug": "uniswap-v3", "category": "Dexes", "tvl": 4000000000},
		{"id": "3", "name": "Pendle", "slug": "pendle", "category": "Yield", "tvl": 3000000000},
		{"id": "4", "name": "Rocket Pool", "slug": "rocket-pool", "category": "Liquid Staking", "tvl": 2500000000},
		{"id": "5", "name": "Curve DEX", "slug": "curve-dex", "category": "Dexes", "tvl": 2000000000},
		{"id": "6", "name": "Compound V3", "slug": "compound-v3", "category": "Lending", "tvl": 1500000000},
		{"id": "7", "name": "Unlisted", "slug": "unlisted", "category": "Dexes", "tvl": null},
		{"id": "8", "name": "Tiny Farm", "slug": "tiny-farm", "category": "Yield", "tvl": 1000000}
	]`

	ProtocolDetailJSON = `{
		"id": "2626",
		"name": "ether.fi",
		"symbol": "ETHFI",
		"category": "Liquid Restaking",
		"chains": ["Ethereum"],
		"tvl": [
			{"date": 1700000000, "totalLiquidityUSD": 6000000000},
			{"date": 1700086400, "totalLiquidityUSD": 6500000000}
		],
		"currentChainTvls": {"Ethereum": 6500000000, "Ethereum-staking": 12000000, "staking": 12000000},
		"change_1d": 1.5,
		"change_7d": 4.2,
		"mcap": null
	}`

	ChainsJSON = `[
		{"gecko_id": "ethereum", "tvl": 60000000000, "tokenSymbol": "ETH", "cmcId": "1027", "name": "Ethereum", "chainId": 1},
		{"gecko_id": "solana", "tvl": 9000000000, "tokenSymbol": "SOL", "cmcId": "5426", "name": "Solana", "chainId": null},
		{"gecko_id": null, "tvl": 1000000, "tokenSymbol": null, "cmcId": null, "name": "Tinychain"}
	]`

	PricesJSON = `{"coins": {
		"` + WETH + `": {"decimals": 18, "symbol": "WETH", "price": 3000, "timestamp": 1700000000, "confidence": 0.99},
		"` + EETH + `": {"decimals": 18, "symbol": "eETH", "price": 3050, "timestamp": 1700000000, "confidence": 0.98}
	}}`

	PoolsJSON = `{"status": "success", "data": [
		{"pool": "p1", "chain": "Ethereum", "project": "ether.fi-stake", "symbol": "EETH", "tvlUsd": 5000000000, "apy": 3.5, "apyBase": 3.5, "apyReward": null, "stablecoin": false, "ilRisk": "no", "exposure": "single"},
		{"pool": "p2", "chain": "Ethereum", "project": "lido", "symbol": "STETH", "tvlUsd": 30000000000, "apy": 2.9, "apyBase": 2.9, "apyReward": null, "stablecoin": false, "ilRisk": "no", "exposure": "single"},
		{"pool": "p3", "chain": "Ethereum", "project": "ether.fi-liquid", "symbol": "LIQUIDETH", "tvlUsd": 400000000, "apy": 4.5, "apyBase": 4.0, "apyReward": 0.5, "stablecoin": false, "ilRisk": "no", "exposure": "single"},
		{"pool": "p4", "chain": "Arbitrum", "project": "Ether.fi-Stake", "symbol": "WEETH", "tvlUsd": 100000000, "apy": 2.5, "apyBase": null, "apyReward": null, "stablecoin": false, "ilRisk": "no", "exposure": "single"}
	]}`

	ChartJSON = `{"coins": {"` + WETH + `": {"symbol": "WETH", "confidence": 0.99, "decimals": 18, "prices": [
		{"timestamp": 1700000000, "price": 2900},
		{"timestamp": 1700007200, "price": 2950},
		{"timestamp": 1700014400, "price": 3000}
	]}}}`
)

// LlamaServer is a fake DeFiLlama backend serving the TVL, coins and yields
// APIs from one httptest server. Bodies can be replaced and routes can be made
// to fail or to hang; every request is counted per route.
type LlamaServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies map[string]string
	fail   map[string]int
	delay  map[string]time.Duration
	hits   map[string]int
}

// Route prefixes understood by LlamaServer
const (
	RouteProtocols     = "/protocols"
	RouteProtocol      = "/protocol/"
	RouteChains        = "/v2/chains"
	RouteCurrentPrices = "/prices/current/"
	RouteChart         = "/chart/"
	RoutePools         = "/pools"
)

var routes = []string{RouteProtocols, RouteProtocol, RouteChains, RouteCurrentPrices, RouteChart, RoutePools}

// NewLlamaServer starts a fake backend loaded with the default fixtures.
// The caller must Close it.
func NewLlamaServer() *LlamaServer {
	s := &LlamaServer{
		bodies: map[string]string{
			RouteProtocols:     ProtocolsJSON,
			RouteProtocol:      ProtocolDetailJSON,
			RouteChains:        ChainsJSON,
			RouteCurrentPrices: PricesJSON,
			RouteChart:         ChartJSON,
			RoutePools:         PoolsJSON,
		},
		fail:  make(map[string]int),
		delay: make(map[string]time.Duration),
		hits:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *LlamaServer) serve(w http.ResponseWriter, r *http.Request) {
	route := ""
	for _, candidate := range routes {
		if r.URL.Path == candidate || (strings.HasSuffix(candidate, "/") && strings.HasPrefix(r.URL.Path, candidate)) {
			route = candidate
			break
		}
	}
	if route == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.mu.Lock()
	s.hits[route]++
	status := s.fail[route]
	body := s.bodies[route]
	delay := s.delay[route]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// SetBody replaces the JSON served for route
func (s *LlamaServer) SetBody(route, body string) {
	s.mu.Lock()
	s.bodies[route] = body
	s.mu.Unlock()
}

// Fail makes route answer with status until Recover is called
func (s *LlamaServer) Fail(route string, status int) {
	s.mu.Lock()
	s.fail[route] = status
	s.mu.Unlock()
}

// Delay holds every answer on route for d before it is written
func (s *LlamaServer) Delay(route string, d time.Duration) {
	s.mu.Lock()
	s.delay[route] = d
	s.mu.Unlock()
}

// Recover makes route answer normally and promptly again
func (s *LlamaServer) Recover(route string) {
	s.mu.Lock()
	delete(s.fail, route)
	delete(s.delay, route)
	s.mu.Unlock()
}

// Hits reports how many requests route has received
func (s *LlamaServer) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// TotalHits reports how many requests the server has received on all routes
func (s *LlamaServer) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}
