package defi

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	briefingTopCount = 5
	notAvailable     = "N/A"
)

// Briefing renders the current summary as the plain-text market briefing
// handed to the assistant as live context.
func (s *Service) Briefing(ctx context.Context) (string, error) {
	summary, err := s.GetDeFiSummary(ctx)
	if err != nil {
		return "", err
	}
	return FormatBriefing(summary, s.now()), nil
}

// FormatBriefing renders summary as of now. Absent values print as N/A.
func FormatBriefing(summary Summary, now time.Time) string {
	var b strings.Builder
	p := summary.Protocol

	fmt.Fprintf(&b, "LIVE DEFI DATA (current as of %s):\n\n", now.UTC().Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintf(&b, "%s Price: $%.2f\n", symbolOr(summary.Prices.Base.Symbol, "Base"), summary.Prices.Base.Price)
	if d := summary.Prices.Derivative; d != nil {
		fmt.Fprintf(&b, "%s Price: $%.2f\n", symbolOr(d.Symbol, "Derivative"), d.Price)
	} else {
		fmt.Fprintf(&b, "Derivative Price: %s\n", notAvailable)
	}

	fmt.Fprintf(&b, "\n%s Protocol:\n", p.Name)
	fmt.Fprintf(&b, "- Total Value Locked (TVL): %s\n", billions(p.TVL))
	fmt.Fprintf(&b, "- 24h Change: %s\n", percent(p.Change1D))
	fmt.Fprintf(&b, "- 7d Change: %s\n", percent(p.Change7D))
	if len(summary.YieldPools) > 0 {
		apy := summary.YieldPools[0].APY
		fmt.Fprintf(&b, "- Current APY: %s\n", percent(&apy))
	} else {
		fmt.Fprintf(&b, "- Current APY: %s\n", notAvailable)
	}
	fmt.Fprintf(&b, "- Market Cap: %s\n", billions(p.MCap))
	fmt.Fprintf(&b, "- Category: %s\n", p.Category)

	b.WriteString("\nTop DeFi Protocols:\n")
	for i, top := range summary.TopProtocols {
		if i == briefingTopCount {
			break
		}
		fmt.Fprintf(&b, "%d. %s - TVL: %s (%s 7d)\n", i+1, top.Name, billions(top.TVL), percent(top.Change7D))
	}

	total := summary.TotalTVL
	fmt.Fprintf(&b, "\nTotal DeFi Market TVL: %s\n", billions(&total))
	share := notAvailable
	if total > 0 && p.TVL != nil {
		share = fmt.Sprintf("%.2f%%", *p.TVL/total*100)
	}
	fmt.Fprintf(&b, "%s Market Share: %s\n", p.Name, share)

	return b.String()
}

func billions(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return fmt.Sprintf("$%.2fB", *v/1e9)
}

func percent(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func symbolOr(symbol, fallback string) string {
	if symbol == "" {
		return fallback
	}
	return symbol
}
