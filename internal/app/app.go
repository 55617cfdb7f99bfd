package app

import (
	"fmt"
	"net/http"

	"github.com/riskibarqy/scoreboard/external/sportsdb"
	"github.com/riskibarqy/scoreboard/internal/config"
	"github.com/riskibarqy/scoreboard/internal/interfaces/httpapi"
	"github.com/riskibarqy/scoreboard/internal/platform/cache"
	"github.com/riskibarqy/scoreboard/internal/platform/logging"
	"github.com/riskibarqy/scoreboard/internal/platform/resilience"
	"github.com/riskibarqy/scoreboard/internal/usecase"
)

// NewHTTPServer wires the feed client, board service, and HTTP surface. The
// returned cleanup stops the shared cache's revalidation workers.
func NewHTTPServer(cfg config.Config, logger *logging.Logger) (*http.Server, func(), error) {
	if cfg.HTTPAddr == "" {
		return nil, nil, fmt.Errorf("http server addr cannot be empty")
	}

	store, err := cache.NewStore(cfg.CacheSWRExtra)
	if err != nil {
		return nil, nil, fmt.Errorf("init cache store: %w", err)
	}

	feeds := sportsdb.NewClient(sportsdb.ClientConfig{
		BaseURL:     cfg.SportsDBBaseURL,
		APIKey:      cfg.SportsDBAPIKey,
		Timeout:     cfg.SportsDBTimeout,
		MaxAttempts: cfg.SportsDBMaxAttempts,
		Logger:      logger,
		Cache:       store,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.SportsDBCircuitEnabled,
			FailureThreshold: cfg.SportsDBCircuitFailureCount,
			OpenTimeout:      cfg.SportsDBCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.SportsDBCircuitHalfOpenMaxReq,
		},
	})

	dayScanLimiter := resilience.NewTokenBucket(resilience.TokenBucketConfig{
		MaxTokens:      cfg.DayScanMaxTokens,
		RefillAmount:   cfg.DayScanRefillAmount,
		RefillInterval: cfg.DayScanRefillInterval,
	})

	boardSvc := usecase.NewBoardService(feeds, dayScanLimiter, logger)

	handler := httpapi.NewHandler(boardSvc, logger, cfg.BoardDefaultRows, cfg.CrossYearSeason)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, store.Close, nil
}
