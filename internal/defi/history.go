package defi

import (
	"context"
	"fmt"

	"defifetcher/internal/fetcher"
	"defifetcher/internal/llama"
)

// PriceHistory is the base coin's price chart over a period. Timestamps are
// unix milliseconds.
type PriceHistory struct {
	Period             string             `json:"period"`
	Coin               string             `json:"coin"`
	CurrentPrice       *float64           `json:"currentPrice"`
	PriceChange        float64            `json:"priceChange"`
	PriceChangePercent float64            `json:"priceChangePercent"`
	DataPoints         int                `json:"dataPoints"`
	History            []llama.PricePoint `json:"history"`
	Fallback           bool               `json:"fallback,omitempty"`
}

// PriceHistory returns the base coin's price chart for period (24h, 7d, 30d,
// 90d or 1y; empty selects 7d). When the chart is unavailable or empty, the
// current price is returned as a single point with Fallback set.
func (s *Service) PriceHistory(ctx context.Context, period string) (PriceHistory, error) {
	if period == "" {
		period = DefaultHistoryPeriod
	}
	window, ok := llama.ChartWindows[period]
	if !ok {
		return PriceHistory{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}

	src, err := s.client.PriceChart(s.opts.BaseCoin, window)
	if err != nil {
		return PriceHistory{}, err
	}

	points, chartErr := fetcher.Get(ctx, s.cached, src)
	if chartErr == nil && len(points) > 0 {
		history := make([]llama.PricePoint, len(points))
		for i, p := range points {
			history[i] = llama.PricePoint{Timestamp: p.Timestamp * 1000, Price: p.Price}
		}
		return newPriceHistory(period, s.opts.BaseCoin, history, false), nil
	}

	if chartErr != nil {
		s.logger.Warn("price chart unavailable, falling back to current price", "period", period, "error", chartErr)
	} else {
		s.logger.Info("price chart empty, falling back to current price", "period", period)
	}

	prices, err := s.TrackedPrices(ctx)
	if err != nil {
		if chartErr != nil {
			return PriceHistory{}, chartErr
		}
		return PriceHistory{}, err
	}

	current := []llama.PricePoint{{Timestamp: s.now().UnixMilli(), Price: prices.Base.Price}}
	return newPriceHistory(period, s.opts.BaseCoin, current, true), nil
}

func newPriceHistory(period, coin string, points []llama.PricePoint, fallback bool) PriceHistory {
	h := PriceHistory{
		Period:     period,
		Coin:       coin,
		DataPoints: len(points),
		History:    points,
		Fallback:   fallback,
	}
	if len(points) == 0 {
		return h
	}

	first, last := points[0].Price, points[len(points)-1].Price
	h.CurrentPrice = &last
	if len(points) > 1 {
		h.PriceChange = last - first
		if first != 0 {
			h.PriceChangePercent = h.PriceChange / first * 100
		}
	}
	return h
}
