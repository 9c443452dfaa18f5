package defi

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"defifetcher/internal/testutil"
)

func TestPriceHistory_Chart(t *testing.T) {
	server := testutil.NewLlamaServer()
	defer server.Close()
	svc, _ := newTestService(server, nil)

	h, err := svc.PriceHistory(context.Background(), "")
	if err != nil {
		t.Fatalf("PriceHistory() returned unexpected error: %v", err)
	}

	if h.Period != "7d" {
		t.Errorf("Period = %q, want 7d", h.Period)
	}
	if h.Fallback {
		t.Error("Fallback = true, want false")
	}
	if h.DataPoints != 3 || len(h.History) != 3 {
		t.Fatalf("DataPoints = %d, len(History) = %d, want 3", h.DataPoints, len(h.History))
	}
	if h.History[0].Timestamp != 1700000000*1000 {
		t.Errorf("first timestamp = %d, want milliseconds", h.History[0].Timestamp)
	}
	if h.CurrentPrice == nil || *h.CurrentPrice != 3000 {
		t.Errorf("CurrentPrice = %v, want 3000", h.CurrentPrice)
	}
	if h.PriceChange != 100 {
		t.Errorf("PriceChange = %v, want 100", h.PriceChange)
	}
	if want := 100.0 / 2900 * 100; math.Abs(h.PriceChangePercent-want) > 1e-9 {
		t.Errorf("PriceChangePercent = %v, want %v", h.PriceChangePercent, want)
	}
}

func TestPriceHistory_Fallback(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		setup func(s *testutil.LlamaServer)
	}{
		{
			name:  "chart fails",
			setup: func(s *testutil.LlamaServer) { s.Fail(testutil.RouteChart, http.StatusInternalServerError) },
		},
		{
			name:  "chart empty",
			setup: func(s *testutil.LlamaServer) { s.SetBody(testutil.RouteChart, `{"coins": {}}`) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewLlamaServer()
			defer server.Close()
			tt.setup(server)
			svc, _ := newTestService(server, nil)
			svc.now = func() time.Time { return fixed }

			h, err := svc.PriceHistory(context.Background(), "24h")
			if err != nil {
				t.Fatalf("PriceHistory() returned unexpected error: %v", err)
			}
			if !h.Fallback {
				t.Error("Fallback = false, want true")
			}
			if h.DataPoints != 1 || h.History[0].Price != 3000 || h.History[0].Timestamp != fixed.UnixMilli() {
				t.Errorf("History = %+v", h.History)
			}
			if h.PriceChange != 0 || h.PriceChangePercent != 0 {
				t.Errorf("change = %v / %v, want 0", h.PriceChange, h.PriceChangePercent)
			}
		})
	}
}

func TestPriceHistory_Errors(t *testing.T) {
	server := testutil.NewLlamaServer()
	defer server.Close()
	svc, _ := newTestService(server, nil)
	ctx := context.Background()

	if _, err := svc.PriceHistory(ctx, "2w"); !errors.Is(err, ErrUnknownPeriod) {
		t.Errorf("PriceHistory(2w) error = %v, want ErrUnknownPeriod", err)
	}

	server.Fail(testutil.RouteChart, http.StatusInternalServerError)
	server.Fail(testutil.RouteCurrentPrices, http.StatusInternalServerError)
	if _, err := svc.PriceHistory(ctx, "30d"); err == nil {
		t.Error("PriceHistory() expected error when chart and prices fail, got nil")
	}
}
