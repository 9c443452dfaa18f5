package llama

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"defifetcher/internal/fetcher"
	"defifetcher/internal/ratelimit"
)

// Default public endpoints. None of them require an API key.
const (
	DefaultTVLBaseURL    = "https://api.llama.fi"
	DefaultCoinsBaseURL  = "https://coins.llama.fi"
	DefaultYieldsBaseURL = "https://yields.llama.fi"
)

// ErrInvalidCoin is returned for an empty or malformed "chain:address" coin identifier
var ErrInvalidCoin = errors.New("invalid coin identifier")

// Config holds the base URLs and HTTP behavior of the upstream client
type Config struct {
	TVLBaseURL    string
	CoinsBaseURL  string
	YieldsBaseURL string
	HTTP          fetcher.ClientOptions
}

// Client builds cacheable requests against the DeFiLlama TVL, coins and yields APIs
type Client struct {
	tvl     *resty.Client
	coins   *resty.Client
	yields  *resty.Client
	limiter *ratelimit.Limiter
	now     func() time.Time
}

// NewClient creates a DeFiLlama client. Empty base URLs select the public
// endpoints and a nil limiter leaves every API unlimited.
func NewClient(cfg Config, limiter *ratelimit.Limiter) *Client {
	if cfg.TVLBaseURL == "" {
		cfg.TVLBaseURL = DefaultTVLBaseURL
	}
	if cfg.CoinsBaseURL == "" {
		cfg.CoinsBaseURL = DefaultCoinsBaseURL
	}
	if cfg.YieldsBaseURL == "" {
		cfg.YieldsBaseURL = DefaultYieldsBaseURL
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}

	return &Client{
		tvl:     fetcher.NewHTTPClient(cfg.TVLBaseURL, cfg.HTTP),
		coins:   fetcher.NewHTTPClient(cfg.CoinsBaseURL, cfg.HTTP),
		yields:  fetcher.NewHTTPClient(cfg.YieldsBaseURL, cfg.HTTP),
		limiter: limiter,
		now:     time.Now,
	}
}

// Key returns the cache key of a request to path on api
func Key(api ratelimit.API, path string) string {
	return fmt.Sprintf("fetcher:%s:%s", api, path)
}

// Protocols lists every protocol tracked by the TVL API
func (c *Client) Protocols() fetcher.Source[[]Protocol] {
	const path = "/protocols"
	return fetcher.SourceFunc[[]Protocol]{
		CacheKey: Key(ratelimit.APITVL, path),
		FetchFn: func(ctx context.Context) ([]Protocol, error) {
			var protocols []Protocol
			if err := c.get(ctx, c.tvl, ratelimit.APITVL, path, nil, &protocols); err != nil {
				return nil, err
			}
			if protocols == nil {
				return nil, fetcher.NewValidationError("protocols response is not a list")
			}
			return protocols, nil
		},
	}
}

// Protocol fetches the detail record of the protocol identified by slug
func (c *Client) Protocol(slug string) fetcher.Source[ProtocolDetail] {
	path := "/protocol/" + url.PathEscape(slug)
	return fetcher.SourceFunc[ProtocolDetail]{
		CacheKey: Key(ratelimit.APITVL, path),
		FetchFn: func(ctx context.Context) (ProtocolDetail, error) {
			var detail ProtocolDetail
			if err := c.get(ctx, c.tvl, ratelimit.APITVL, path, nil, &detail); err != nil {
				return ProtocolDetail{}, err
			}
			if detail.Name == "" {
				return ProtocolDetail{}, fetcher.NewValidationError(fmt.Sprintf("protocol %q response has no name", slug))
			}
			if detail.Slug == "" {
				detail.Slug = slug
			}
			return detail, nil
		},
	}
}

// Chains lists the current TVL of every chain
func (c *Client) Chains() fetcher.Source[[]ChainTVL] {
	const path = "/v2/chains"
	return fetcher.SourceFunc[[]ChainTVL]{
		CacheKey: Key(ratelimit.APITVL, path),
		FetchFn: func(ctx context.Context) ([]ChainTVL, error) {
			var chains []ChainTVL
			if err := c.get(ctx, c.tvl, ratelimit.APITVL, path, nil, &chains); err != nil {
				return nil, err
			}
			if chains == nil {
				return nil, fetcher.NewValidationError("chains response is not a list")
			}
			return chains, nil
		},
	}
}

// CurrentPrices fetches current prices for coins given as "chain:address"
// identifiers. Coins unknown to the upstream are absent from the result.
func (c *Client) CurrentPrices(coins []string) (fetcher.Source[map[string]TokenPrice], error) {
	joined, err := joinCoins(coins)
	if err != nil {
		return nil, err
	}

	path := "/prices/current/" + joined
	return fetcher.SourceFunc[map[string]TokenPrice]{
		CacheKey: Key(ratelimit.APICoins, path),
		FetchFn: func(ctx context.Context) (map[string]TokenPrice, error) {
			var result pricesResponse
			if err := c.get(ctx, c.coins, ratelimit.APICoins, path, nil, &result); err != nil {
				return nil, err
			}
			if result.Coins == nil {
				return nil, fetcher.NewValidationError("prices response has no coins object")
			}
			return result.Coins, nil
		},
	}, nil
}

// YieldPools lists every pool tracked by the yields API
func (c *Client) YieldPools() fetcher.Source[[]YieldPool] {
	const path = "/pools"
	return fetcher.SourceFunc[[]YieldPool]{
		CacheKey: Key(ratelimit.APIYields, path),
		FetchFn: func(ctx context.Context) ([]YieldPool, error) {
			var result poolsResponse
			if err := c.get(ctx, c.yields, ratelimit.APIYields, path, nil, &result); err != nil {
				return nil, err
			}
			if result.Data == nil {
				return nil, fetcher.NewValidationError("pools response has no data list")
			}
			return result.Data, nil
		},
	}
}

// ChartWindow describes how much price history to request and at which resolution
type ChartWindow struct {
	Name     string
	Lookback time.Duration
	Span     int
	Interval string
}

// Chart windows by period name
var ChartWindows = map[string]ChartWindow{
	"24h": {Name: "24h", Lookback: 24 * time.Hour, Span: 24, Interval: "1h"},
	"7d":  {Name: "7d", Lookback: 7 * 24 * time.Hour, Span: 7 * 24 / 2, Interval: "2h"},
	"30d": {Name: "30d", Lookback: 30 * 24 * time.Hour, Span: 30 * 24 / 6, Interval: "6h"},
	"90d": {Name: "90d", Lookback: 90 * 24 * time.Hour, Span: 90, Interval: "1d"},
	"1y":  {Name: "1y", Lookback: 365 * 24 * time.Hour, Span: 365, Interval: "1d"},
}

// PriceChart fetches the price history of coin over window. The start of the
// window moves with the clock, so the cache key names the window instead.
func (c *Client) PriceChart(coin string, window ChartWindow) (fetcher.Source[[]PricePoint], error) {
	if _, err := joinCoins([]string{coin}); err != nil {
		return nil, err
	}

	path := "/chart/" + coin
	return fetcher.SourceFunc[[]PricePoint]{
		CacheKey: Key(ratelimit.APICoins, path+"?period="+window.Name),
		FetchFn: func(ctx context.Context) ([]PricePoint, error) {
			query := map[string]string{
				"start":       strconv.FormatInt(c.now().Add(-window.Lookback).Unix(), 10),
				"span":        strconv.Itoa(window.Span),
				"period":      window.Interval,
				"searchWidth": "600",
			}

			var result chartResponse
			if err := c.get(ctx, c.coins, ratelimit.APICoins, path, query, &result); err != nil {
				return nil, err
			}
			if result.Coins == nil {
				return nil, fetcher.NewValidationError("chart response has no coins object")
			}
			points := result.Coins[coin].Prices
			if points == nil {
				points = []PricePoint{}
			}
			return points, nil
		},
	}, nil
}

// get performs a rate-limited GET and decodes the JSON body into result.
// Every failure is reported as *fetcher.UpstreamError.
func (c *Client) get(ctx context.Context, client *resty.Client, api ratelimit.API, path string, query map[string]string, result any) error {
	if err := c.limiter.Wait(ctx, api); err != nil {
		return fetcher.ClassifyRequestError(fmt.Errorf("waiting for %s rate limit: %w", api, err)).At(path)
	}

	req := client.R().
		SetContext(ctx).
		SetResult(result)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		if resp != nil && resp.IsSuccess() {
			upstreamErr := fetcher.NewValidationError("undecodable response body").At(path)
			upstreamErr.Cause = err
			return upstreamErr
		}
		return fetcher.ClassifyRequestError(err).At(path)
	}

	if !resp.IsSuccess() {
		return fetcher.ClassifyHTTPError(resp.StatusCode()).At(path)
	}

	return nil
}

func joinCoins(coins []string) (string, error) {
	if len(coins) == 0 {
		return "", fmt.Errorf("%w: no coins requested", ErrInvalidCoin)
	}
	for _, coin := range coins {
		if coin == "" || strings.ContainsAny(coin, "/?#, ") {
			return "", fmt.Errorf("%w: %q", ErrInvalidCoin, coin)
		}
	}
	return strings.Join(coins, ","), nil
}
