package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"defifetcher/internal/defi"
	"defifetcher/internal/insights"
)

const maxBodyBytes = 1 << 20

// Handler serves the HTTP API over a defi.Service
type Handler struct {
	svc            *defi.Service
	calc           *insights.Calculator
	logger         *slog.Logger
	requestTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

// NewHandler creates a Handler. A positive requestTimeout bounds how long a
// request may wait on upstream data; a nil logger selects slog.Default().
func NewHandler(svc *defi.Service, logger *slog.Logger, requestTimeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:            svc,
		calc:           insights.NewCalculator(svc),
		logger:         logger,
		requestTimeout: requestTimeout,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Routes registers every endpoint on a new ServeMux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/defi/chains", h.endpoint("Failed to fetch chain data", h.getChains))
	mux.HandleFunc("GET /api/defi/prices", h.endpoint("Failed to fetch prices", h.getPrices))
	mux.HandleFunc("GET /api/defi/protocol/{slug}", h.endpoint("Failed to fetch protocol data", h.getProtocol))
	mux.HandleFunc("GET /api/defi/summary", h.endpoint("Failed to fetch DeFi summary", h.getSummary))
	mux.HandleFunc("GET /api/defi/yields", h.endpoint("Failed to fetch yield data", h.getYields))
	mux.HandleFunc("GET /api/defi/eth-history", h.endpoint("Failed to fetch price history", h.getPriceHistory))
	mux.HandleFunc("GET /api/defi/briefing", h.endpoint("Failed to build briefing", h.getBriefing))

	mux.HandleFunc("POST /api/user/insights", h.endpoint("Failed to calculate user insights", h.postInsights))

	mux.HandleFunc("POST /api/admin/cache/clear", h.endpoint("Failed to clear cache", h.clearCache))
	mux.HandleFunc("GET /api/admin/cache/stats", h.endpoint("Failed to read cache stats", h.cacheStats))

	mux.HandleFunc("GET /health", h.endpoint("Unhealthy", h.health))

	return mux
}

type endpointFunc func(r *http.Request) (any, error)

// endpoint adapts fn to an http.HandlerFunc that answers with an Envelope.
// failure is the summary shown in the envelope's error field.
func (h *Handler) endpoint(failure string, fn endpointFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := h.newID()
		start := time.Now()

		ctx := r.Context()
		if h.requestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
			defer cancel()
		}

		data, err := fn(r.WithContext(ctx))
		if err != nil {
			status := statusFor(err)
			h.logger.Error("request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"requestId", requestID,
				"error", err)
			h.write(w, status, Envelope{
				Success:   false,
				Error:     failure,
				Message:   err.Error(),
				RequestID: requestID,
			})
			return
		}

		h.logger.Info("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"requestId", requestID,
			"duration", time.Since(start))
		h.write(w, http.StatusOK, Envelope{
			Success:   true,
			Data:      data,
			RequestID: requestID,
		})
	}
}

func (h *Handler) write(w http.ResponseWriter, status int, body Envelope) {
	body.Timestamp = h.now().UnixMilli()
	if err := writeJSON(w, status, body); err != nil {
		h.logger.Warn("failed to write response", "requestId", body.RequestID, "error", err)
	}
}

func (h *Handler) getChains(r *http.Request) (any, error) {
	return h.svc.Chains(r.Context())
}

// getPrices answers for the coins in the comma-separated coins parameter, or
// for the tracked pair when there are none.
func (h *Handler) getPrices(r *http.Request) (any, error) {
	var coins []string
	for _, coin := range strings.Split(r.URL.Query().Get("coins"), ",") {
		if coin = strings.TrimSpace(coin); coin != "" {
			coins = append(coins, coin)
		}
	}

	if len(coins) == 0 {
		return h.svc.TrackedPrices(r.Context())
	}
	return h.svc.Prices(r.Context(), coins)
}

func (h *Handler) getProtocol(r *http.Request) (any, error) {
	return h.svc.Protocol(r.Context(), r.PathValue("slug"))
}

func (h *Handler) getSummary(r *http.Request) (any, error) {
	return h.svc.GetDeFiSummary(r.Context())
}

func (h *Handler) getYields(r *http.Request) (any, error) {
	return h.svc.Yields(r.Context(), r.URL.Query().Get("protocol"))
}

func (h *Handler) getPriceHistory(r *http.Request) (any, error) {
	return h.svc.PriceHistory(r.Context(), r.URL.Query().Get("period"))
}

func (h *Handler) getBriefing(r *http.Request) (any, error) {
	return h.svc.Briefing(r.Context())
}

func (h *Handler) postInsights(r *http.Request) (any, error) {
	var pos insights.Position
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(&pos); err != nil {
		return nil, fmt.Errorf("%w: malformed insights request body: %v", errBadRequest, err)
	}
	return h.calc.ComputeUserInsights(r.Context(), pos)
}

// ClearResult reports how many cached responses a clear dropped
type ClearResult struct {
	Cleared int `json:"cleared"`
}

func (h *Handler) clearCache(r *http.Request) (any, error) {
	cleared := h.svc.CacheStats().Count
	h.svc.ClearCache()
	return ClearResult{Cleared: cleared}, nil
}

func (h *Handler) cacheStats(r *http.Request) (any, error) {
	return h.svc.CacheStats(), nil
}

// Health is the liveness payload
type Health struct {
	Status       string `json:"status"`
	CacheEntries int    `json:"cacheEntries"`
}

func (h *Handler) health(r *http.Request) (any, error) {
	return Health{Status: "ok", CacheEntries: h.svc.CacheStats().Count}, nil
}
