package defi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"defifetcher/internal/cache"
	"defifetcher/internal/coordinator"
	"defifetcher/internal/fetcher"
	"defifetcher/internal/llama"
)

// Source names reported by AggregationError
const (
	SourceProtocol  = "protocol"
	SourcePrices    = "prices"
	SourceYields    = "yields"
	SourceProtocols = "protocols"
)

// ErrEmptySlug is returned by Protocol when no slug is given
var ErrEmptySlug = errors.New("protocol slug is required")

// Options selects the tracked protocol and the token pair it is priced in
type Options struct {
	// ProtocolSlug identifies the tracked protocol on the TVL API
	ProtocolSlug string
	// ProtocolName is matched against yield pool projects
	ProtocolName string
	// BaseCoin and DerivativeCoin are "chain:address" coin identifiers
	BaseCoin       string
	DerivativeCoin string
}

// Defaults for Options fields left empty
const (
	DefaultProtocolSlug   = "ether.fi"
	DefaultProtocolName   = "ether.fi"
	DefaultBaseCoin       = "ethereum:0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	DefaultDerivativeCoin = "ethereum:0x35fA164735182de50811E8e2E824cFb9B6118ac2"
	DefaultHistoryPeriod  = "7d"
)

func (o Options) withDefaults() Options {
	if o.ProtocolSlug == "" {
		o.ProtocolSlug = DefaultProtocolSlug
	}
	if o.ProtocolName == "" {
		o.ProtocolName = DefaultProtocolName
	}
	if o.BaseCoin == "" {
		o.BaseCoin = DefaultBaseCoin
	}
	if o.DerivativeCoin == "" {
		o.DerivativeCoin = DefaultDerivativeCoin
	}
	return o
}

// CacheAdmin exposes the administrative side of the response cache
type CacheAdmin interface {
	Clear()
	Stats() cache.Stats
}

// Summary is the composite view of the tracked protocol and the wider market.
// It is rebuilt from cached upstream responses on every call.
type Summary struct {
	Protocol     llama.Protocol    `json:"protocol"`
	Prices       llama.Prices      `json:"prices"`
	YieldPools   []llama.YieldPool `json:"yieldPools"`
	TopProtocols []llama.Protocol  `json:"topProtocols"`
	TotalTVL     float64           `json:"totalTVL"`
}

// Service answers every data query over the cached DeFiLlama sources
type Service struct {
	client *llama.Client
	cached *fetcher.Cached
	admin  CacheAdmin
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Service. A nil logger selects slog.Default().
func New(client *llama.Client, cached *fetcher.Cached, admin CacheAdmin, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		cached: cached,
		admin:  admin,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Options returns the effective options, defaults applied
func (s *Service) Options() Options {
	return s.opts
}

// GetDeFiSummary fetches the tracked protocol, its price pair, all yield pools
// and all protocols concurrently and merges them. It fails with an
// *AggregationError as soon as any of the four has neither fresh nor stale data.
func (s *Service) GetDeFiSummary(ctx context.Context) (Summary, error) {
	var (
		detail    llama.ProtocolDetail
		prices    llama.Prices
		pools     []llama.YieldPool
		protocols []llama.Protocol
	)

	coord := coordinator.New(
		coordinator.Task{Name: SourceProtocol, Run: func(ctx context.Context) error {
			var err error
			detail, err = fetcher.Get(ctx, s.cached, s.client.Protocol(s.opts.ProtocolSlug))
			return err
		}},
		coordinator.Task{Name: SourcePrices, Run: func(ctx context.Context) error {
			var err error
			prices, err = s.TrackedPrices(ctx)
			return err
		}},
		coordinator.Task{Name: SourceYields, Run: func(ctx context.Context) error {
			var err error
			pools, err = fetcher.Get(ctx, s.cached, s.client.YieldPools())
			return err
		}},
		coordinator.Task{Name: SourceProtocols, Run: func(ctx context.Context) error {
			var err error
			protocols, err = fetcher.Get(ctx, s.cached, s.client.Protocols())
			return err
		}},
	)

	start := time.Now()
	if err := coord.Run(ctx); err != nil {
		var taskErr *coordinator.TaskError
		if errors.As(err, &taskErr) {
			s.logger.Error("summary aggregation failed", "source", taskErr.Task, "error", taskErr.Err)
			return Summary{}, &AggregationError{Source: taskErr.Task, Err: taskErr.Err}
		}
		return Summary{}, fmt.Errorf("aggregating summary: %w", err)
	}

	summary := Summary{
		Protocol:     detail.Snapshot(),
		Prices:       prices,
		YieldPools:   FilterYields(pools, s.opts.ProtocolName),
		TopProtocols: TopProtocols(protocols, TopProtocolCount),
		TotalTVL:     TotalTVL(protocols),
	}
	s.logger.Debug("built summary", "protocols", len(protocols), "yieldPools", len(summary.YieldPools), "duration", time.Since(start))

	return summary, nil
}

// TrackedPrices fetches the configured base and derivative coin prices. The
// base price is required; a derivative unknown to the upstream is left nil.
func (s *Service) TrackedPrices(ctx context.Context) (llama.Prices, error) {
	src, err := s.client.CurrentPrices([]string{s.opts.BaseCoin, s.opts.DerivativeCoin})
	if err != nil {
		return llama.Prices{}, err
	}

	coins, err := fetcher.Get(ctx, s.cached, src)
	if err != nil {
		return llama.Prices{}, err
	}

	base, ok := coins[s.opts.BaseCoin]
	if !ok {
		return llama.Prices{}, fetcher.NewValidationError(fmt.Sprintf("no price for base coin %s", s.opts.BaseCoin))
	}

	prices := llama.Prices{Base: base}
	if derivative, ok := coins[s.opts.DerivativeCoin]; ok {
		prices.Derivative = &derivative
	}
	return prices, nil
}

// Prices fetches current prices for arbitrary coins
func (s *Service) Prices(ctx context.Context, coins []string) (map[string]llama.TokenPrice, error) {
	src, err := s.client.CurrentPrices(coins)
	if err != nil {
		return nil, err
	}
	return fetcher.Get(ctx, s.cached, src)
}

// Chains lists the current TVL of every chain
func (s *Service) Chains(ctx context.Context) ([]llama.ChainTVL, error) {
	return fetcher.Get(ctx, s.cached, s.client.Chains())
}

// Protocol fetches one protocol's detail record
func (s *Service) Protocol(ctx context.Context, slug string) (llama.ProtocolDetail, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return llama.ProtocolDetail{}, ErrEmptySlug
	}
	return fetcher.Get(ctx, s.cached, s.client.Protocol(slug))
}

// Yields lists yield pools whose project contains filter, or every pool when
// filter is empty.
func (s *Service) Yields(ctx context.Context, filter string) ([]llama.YieldPool, error) {
	pools, err := fetcher.Get(ctx, s.cached, s.client.YieldPools())
	if err != nil {
		return nil, err
	}
	return FilterYields(pools, filter), nil
}

// ClearCache drops every cached upstream response
func (s *Service) ClearCache() {
	s.admin.Clear()
	s.logger.Info("cache cleared")
}

// CacheStats describes the cached upstream responses
func (s *Service) CacheStats() cache.Stats {
	return s.admin.Stats()
}
