// Package insights turns a user's staking position and a market summary into
// valuations, reward projections and short narrative lines. Nothing here
// performs I/O except Calculator, which fetches the summary first.
package insights

import (
	"context"
	"fmt"
	"math"

	"defifetcher/internal/defi"
)

// NativeUnit labels amounts denominated in the staked asset
const NativeUnit = "ETH"

// tvlGrowthRewardBoost is the reward increase assumed for a 10% TVL increase.
// It is a fixed simplification, not derived from protocol economics.
const tvlGrowthRewardBoost = 0.05

// Position is a user's holdings in the tracked protocol, in native units
type Position struct {
	Staked  float64 `json:"stakedAmount"`
	Wrapped float64 `json:"wrappedAmount"`
	Rewards float64 `json:"rewards"`
}

// ValidationError reports an unusable Position field
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks that every amount is a finite, non-negative number and the
// staked amount is positive.
func (p Position) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"stakedAmount", p.Staked},
		{"wrappedAmount", p.Wrapped},
		{"rewards", p.Rewards},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ValidationError{Field: f.name, Message: "must be a finite number"}
		}
		if f.value < 0 {
			return &ValidationError{Field: f.name, Message: "must not be negative"}
		}
	}
	if p.Staked <= 0 {
		return &ValidationError{Field: "stakedAmount", Message: "must be greater than 0"}
	}
	return nil
}

// Portfolio values the position in the quote currency
type Portfolio struct {
	StakedAmount    float64 `json:"stakedAmount"`
	WrappedAmount   float64 `json:"wrappedAmount"`
	Rewards         float64 `json:"rewards"`
	StakedValueUSD  float64 `json:"stakedValueUSD"`
	WrappedValueUSD float64 `json:"wrappedValueUSD"`
	RewardsValueUSD float64 `json:"rewardsValueUSD"`
	TotalValueUSD   float64 `json:"totalValueUSD"`
}

// Metrics are the market figures the result was computed from
type Metrics struct {
	APY             float64 `json:"apy"`
	BasePrice       float64 `json:"basePrice"`
	DerivativePrice float64 `json:"derivativePrice"`
	ProtocolTVL     float64 `json:"protocolTVL"`
}

// Rewards projects staking rewards in native units and USD
type Rewards struct {
	Daily      float64 `json:"daily"`
	DailyUSD   float64 `json:"dailyUSD"`
	Monthly    float64 `json:"monthly"`
	MonthlyUSD float64 `json:"monthlyUSD"`
	Yearly     float64 `json:"yearly"`
	YearlyUSD  float64 `json:"yearlyUSD"`
}

// Comparisons relate the position to the protocol and its pools
type Comparisons struct {
	ProtocolShare    float64 `json:"protocolShare"`
	AverageAPY       float64 `json:"averageAPY"`
	APYVsAverage     float64 `json:"apyVsAverage"`
	IsAboveAverage   bool    `json:"isAboveAverage"`
	ProtocolChange7D float64 `json:"protocolChange7d"`
	SevenDayImpact   float64 `json:"estimatedPortfolioChange7d"`
}

// TVLGrowth projects rewards if the protocol's TVL grew by 10%
type TVLGrowth struct {
	NewTVL          float64 `json:"newTVL"`
	NewYearlyReward float64 `json:"estimatedNewYearlyReward"`
	GainNative      float64 `json:"potentialGainETH"`
	GainUSD         float64 `json:"potentialGainUSD"`
}

// Result is everything derived for one position. It is never cached.
type Result struct {
	Portfolio        Portfolio   `json:"portfolio"`
	CurrentMetrics   Metrics     `json:"currentMetrics"`
	ProjectedRewards Rewards     `json:"projectedRewards"`
	Comparisons      Comparisons `json:"comparisons"`
	TVLGrowth10      TVLGrowth   `json:"ifTVLGrows10Percent"`
	Insights         []string    `json:"insights"`
}

// Compute derives the insights for pos from summary. It fails with a
// *ValidationError when pos is invalid.
func Compute(pos Position, summary defi.Summary) (Result, error) {
	if err := pos.Validate(); err != nil {
		return Result{}, err
	}

	base := summary.Prices.Base.Price
	quote := summary.Prices.Quote()
	tvl := summary.Protocol.TVLOrZero()
	change7d := summary.Protocol.Change7DOrZero()

	var apy float64
	if len(summary.YieldPools) > 0 {
		apy = summary.YieldPools[0].APY
	}

	portfolio := Portfolio{
		StakedAmount:    pos.Staked,
		WrappedAmount:   pos.Wrapped,
		Rewards:         pos.Rewards,
		StakedValueUSD:  pos.Staked * quote,
		WrappedValueUSD: pos.Wrapped * quote,
		RewardsValueUSD: pos.Rewards * base,
	}
	portfolio.TotalValueUSD = portfolio.StakedValueUSD + portfolio.WrappedValueUSD + portfolio.RewardsValueUSD

	yearly := pos.Staked * apy / 100
	daily := yearly / 365
	monthly := daily * 30
	rewards := Rewards{
		Daily:      daily,
		DailyUSD:   daily * base,
		Monthly:    monthly,
		MonthlyUSD: monthly * base,
		Yearly:     yearly,
		YearlyUSD:  yearly * base,
	}

	var share float64
	if tvl > 0 {
		share = portfolio.TotalValueUSD / tvl * 100
	}
	average := averageAPY(summary)
	comparisons := Comparisons{
		ProtocolShare:    share,
		AverageAPY:       average,
		APYVsAverage:     apy - average,
		IsAboveAverage:   apy > average,
		ProtocolChange7D: change7d,
		SevenDayImpact:   portfolio.TotalValueUSD * change7d / 100,
	}

	increase := yearly * tvlGrowthRewardBoost
	growth := TVLGrowth{
		NewTVL:          tvl * 1.1,
		NewYearlyReward: yearly + increase,
		GainNative:      increase,
		GainUSD:         increase * base,
	}

	result := Result{
		Portfolio: portfolio,
		CurrentMetrics: Metrics{
			APY:             apy,
			BasePrice:       base,
			DerivativePrice: quote,
			ProtocolTVL:     tvl,
		},
		ProjectedRewards: rewards,
		Comparisons:      comparisons,
		TVLGrowth10:      growth,
	}
	result.Insights = narrative(summary.Protocol.Name, apy, comparisons, growth)

	return result, nil
}

func averageAPY(summary defi.Summary) float64 {
	if len(summary.YieldPools) == 0 {
		return 0
	}
	var sum float64
	for _, pool := range summary.YieldPools {
		sum += pool.APY
	}
	return sum / float64(len(summary.YieldPools))
}

// FormatShare renders a protocol share percentage, without the percent sign.
// Shares below 0.01 render as "<0.01".
func FormatShare(share float64) string {
	if share < 0.01 {
		return "<0.01"
	}
	return fmt.Sprintf("%.4f", share)
}

func narrative(protocol string, apy float64, c Comparisons, g TVLGrowth) []string {
	lines := make([]string, 0, 4)

	direction := "below"
	if c.IsAboveAverage {
		direction = "above"
	}
	lines = append(lines, fmt.Sprintf("Your current APY (%.2f%%) is %.2f%% %s the protocol average.",
		apy, math.Abs(c.APYVsAverage), direction))

	if c.ProtocolChange7D > 0 {
		lines = append(lines, fmt.Sprintf("%s's TVL grew %.2f%% in the last 7 days, potentially increasing your rewards by ~$%.2f.",
			protocol, c.ProtocolChange7D, math.Abs(c.SevenDayImpact)))
	} else {
		lines = append(lines, fmt.Sprintf("%s's TVL changed %.2f%% in the last 7 days.", protocol, c.ProtocolChange7D))
	}

	lines = append(lines, fmt.Sprintf("You own %s%% of the total %s protocol TVL.", FormatShare(c.ProtocolShare), protocol))

	lines = append(lines, fmt.Sprintf("If %s's TVL grows by 10%%, your estimated yearly reward could increase by %.4f %s ($%.2f).",
		protocol, g.GainNative, NativeUnit, g.GainUSD))

	return lines
}

// SummaryProvider supplies the market summary insights are computed against
type SummaryProvider interface {
	GetDeFiSummary(ctx context.Context) (defi.Summary, error)
}

// Calculator computes insights against the live summary
type Calculator struct {
	summaries SummaryProvider
}

// NewCalculator creates a Calculator
func NewCalculator(summaries SummaryProvider) *Calculator {
	return &Calculator{summaries: summaries}
}

// ComputeUserInsights validates pos before fetching the summary, so invalid
// input never reaches the upstreams.
func (c *Calculator) ComputeUserInsights(ctx context.Context, pos Position) (Result, error) {
	if err := pos.Validate(); err != nil {
		return Result{}, err
	}

	summary, err := c.summaries.GetDeFiSummary(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetching summary for insights: %w", err)
	}
	return Compute(pos, summary)
}
