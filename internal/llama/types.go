package llama

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Missing numeric values.
//
// Any figure DeFiLlama may legitimately omit (a protocol's TVL or percentage
// changes, market cap, a derivative token's price) is kept as a pointer and is
// never replaced by zero when decoding. Code that needs a number resolves the
// absence through the accessors below, which are the only place a default is
// chosen:
//
//   - Protocol.TVLOrZero, Protocol.Change7DOrZero: absent counts as 0
//   - Prices.Quote: the derivative price, or the base price when absent

// Protocol is one protocol record from the TVL API
type Protocol struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol,omitempty"`
	Slug     string   `json:"slug"`
	Category string   `json:"category"`
	Chain    string   `json:"chain,omitempty"`
	Chains   []string `json:"chains,omitempty"`
	URL      string   `json:"url,omitempty"`
	TVL      *float64 `json:"tvl"`
	Change1H *float64 `json:"change_1h"`
	Change1D *float64 `json:"change_1d"`
	Change7D *float64 `json:"change_7d"`
	MCap     *float64 `json:"mcap"`
	FDV      *float64 `json:"fdv,omitempty"`
}

// TVLOrZero returns the protocol's TVL, or 0 when upstream did not report one
func (p Protocol) TVLOrZero() float64 {
	return valueOrZero(p.TVL)
}

// Change7DOrZero returns the 7-day TVL change in percent, or 0 when absent
func (p Protocol) Change7DOrZero() float64 {
	return valueOrZero(p.Change7D)
}

// TVLPoint is one sample of a protocol's TVL history
type TVLPoint struct {
	Date              int64   `json:"date"`
	TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
}

// ProtocolDetail is the full record returned for a single protocol
type ProtocolDetail struct {
	Protocol
	TVLHistory       []TVLPoint         `json:"tvlHistory,omitempty"`
	CurrentChainTVLs map[string]float64 `json:"currentChainTvls,omitempty"`
}

// Snapshot returns the summary fields of the detail record
func (d ProtocolDetail) Snapshot() Protocol {
	return d.Protocol
}

// UnmarshalJSON accepts the upstream shape, where "tvl" is either a plain
// number or the full TVL history. With a history, the current TVL is the
// latest sample.
func (d *ProtocolDetail) UnmarshalJSON(data []byte) error {
	type plain Protocol
	var wire struct {
		plain
		TVL              json.RawMessage    `json:"tvl"`
		TVLHistory       []TVLPoint         `json:"tvlHistory"`
		CurrentChainTVLs map[string]float64 `json:"currentChainTvls"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	detail := ProtocolDetail{
		Protocol:         Protocol(wire.plain),
		TVLHistory:       wire.TVLHistory,
		CurrentChainTVLs: wire.CurrentChainTVLs,
	}

	raw := bytes.TrimSpace(wire.TVL)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &detail.TVLHistory); err != nil {
			return fmt.Errorf("decode tvl history: %w", err)
		}
	default:
		var tvl float64
		if err := json.Unmarshal(raw, &tvl); err != nil {
			return fmt.Errorf("decode tvl: %w", err)
		}
		detail.TVL = &tvl
	}

	if detail.TVL == nil && len(detail.TVLHistory) > 0 {
		latest := detail.TVLHistory[len(detail.TVLHistory)-1].TotalLiquidityUSD
		detail.TVL = &latest
	}
	if detail.TVL == nil {
		detail.TVL = sumChainTVLs(detail.CurrentChainTVLs)
	}

	*d = detail
	return nil
}

// sumChainTVLs adds up per-chain TVLs, skipping the "Chain-staking" style
// breakdowns and the extra categories DeFiLlama reports alongside them.
func sumChainTVLs(chains map[string]float64) *float64 {
	if len(chains) == 0 {
		return nil
	}

	var total float64
	var counted bool
	for name, tvl := range chains {
		if strings.Contains(name, "-") {
			continue
		}
		switch strings.ToLower(name) {
		case "staking", "pool2", "borrowed", "vesting", "treasury", "offers", "doublecounted", "liquidstaking":
			continue
		}
		total += tvl
		counted = true
	}
	if !counted {
		return nil
	}
	return &total
}

// ChainTVL is one chain from the chains endpoint
type ChainTVL struct {
	Name        string  `json:"name"`
	TVL         float64 `json:"tvl"`
	TokenSymbol *string `json:"tokenSymbol"`
	GeckoID     *string `json:"gecko_id"`
	CMCID       *string `json:"cmcId"`
	ChainID     *int64  `json:"chainId"`
}

// TokenPrice is the current price of one coin
type TokenPrice struct {
	Symbol     string   `json:"symbol"`
	Price      float64  `json:"price"`
	Timestamp  int64    `json:"timestamp"`
	Decimals   *int     `json:"decimals,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Prices is the tracked base asset and its liquid-staking derivative
type Prices struct {
	Base       TokenPrice  `json:"base"`
	Derivative *TokenPrice `json:"derivative"`
}

// Quote returns the price positions in the derivative token are valued at:
// the derivative's own price when known, otherwise the base price.
func (p Prices) Quote() float64 {
	if p.Derivative != nil {
		return p.Derivative.Price
	}
	return p.Base.Price
}

// YieldPool is one pool from the yields API
type YieldPool struct {
	Pool       string   `json:"pool"`
	Chain      string   `json:"chain"`
	Project    string   `json:"project"`
	Symbol     string   `json:"symbol"`
	TVLUsd     float64  `json:"tvlUsd"`
	APY        float64  `json:"apy"`
	APYBase    *float64 `json:"apyBase"`
	APYReward  *float64 `json:"apyReward"`
	APYPct1D   *float64 `json:"apyPct1D"`
	APYPct7D   *float64 `json:"apyPct7D"`
	APYPct30D  *float64 `json:"apyPct30D"`
	Stablecoin bool     `json:"stablecoin"`
	ILRisk     string   `json:"ilRisk,omitempty"`
	Exposure   string   `json:"exposure,omitempty"`
}

// PricePoint is one sample of a coin's price chart
type PricePoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

type pricesResponse struct {
	Coins map[string]TokenPrice `json:"coins"`
}

type poolsResponse struct {
	Status string      `json:"status"`
	Data   []YieldPool `json:"data"`
}

type chartResponse struct {
	Coins map[string]struct {
		Symbol string       `json:"symbol"`
		Prices []PricePoint `json:"prices"`
	} `json:"coins"`
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
