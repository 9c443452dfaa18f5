package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"defifetcher/internal/api"
	"defifetcher/internal/cache"
	"defifetcher/internal/config"
	"defifetcher/internal/defi"
	"defifetcher/internal/fetcher"
	"defifetcher/internal/llama"
	"defifetcher/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A .env file is optional; real environment variables win
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, shutting down")
		cancel()
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newHandler(cfg, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "protocol", cfg.ProtocolSlug, "cacheTTL", cfg.CacheTTL)
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}

	logger.Info("server stopped")
}

// newHandler wires the cache, upstream client and services behind the HTTP API
func newHandler(cfg *config.Config, logger *slog.Logger) *api.Handler {
	store := cache.New()

	limiter := ratelimit.New(map[ratelimit.API]float64{
		ratelimit.APITVL:    cfg.TVLRPS,
		ratelimit.APICoins:  cfg.CoinsRPS,
		ratelimit.APIYields: cfg.YieldsRPS,
	})

	// ClientOptions reads a zero RetryCount as "use the default"
	retries := cfg.RetryCount
	if retries == 0 {
		retries = -1
	}

	client := llama.NewClient(llama.Config{
		TVLBaseURL:    cfg.TVLBaseURL,
		CoinsBaseURL:  cfg.CoinsBaseURL,
		YieldsBaseURL: cfg.YieldsBaseURL,
		HTTP: fetcher.ClientOptions{
			RetryCount: retries,
			Timeout:    cfg.HTTPTimeout,
		},
	}, limiter)

	svc := defi.New(client, fetcher.NewCached(store, cfg.CacheTTL, logger), store, defi.Options{
		ProtocolSlug:   cfg.ProtocolSlug,
		ProtocolName:   cfg.ProtocolName,
		BaseCoin:       cfg.BaseCoin,
		DerivativeCoin: cfg.DerivativeCoin,
	}, logger)

	return api.NewHandler(svc, logger, cfg.RequestTimeout)
}
