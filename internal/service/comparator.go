package service

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/knoguchi/tourney/internal/comparator"
	"github.com/knoguchi/tourney/internal/config"
	"github.com/knoguchi/tourney/internal/embedder"
	"github.com/knoguchi/tourney/internal/llm"
)

// NewComparator builds the configured comparator backend and wraps it, from
// the inside out, with metrics, the circuit breaker, the rate limiter and
// the cache.
func NewComparator(cfg *config.Config, logger *slog.Logger) (comparator.Comparator, error) {
	truncator := comparator.NewTruncator(cfg.MaxInputTokens, logger)

	var cmp comparator.Comparator
	switch cfg.ComparatorBackend {
	case config.BackendLLM:
		client := llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaLLMModel),
			llm.WithHTTPClient(&http.Client{Timeout: cfg.ComparatorTimeout}))
		cmp = comparator.NewLLMComparator(client,
			comparator.WithModel(cfg.OllamaLLMModel),
			comparator.WithParallelism(cfg.BatchSize),
			comparator.WithSeed(cfg.Seed),
			comparator.WithTruncator(truncator))
	case config.BackendEmbedding:
		emb := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL:    cfg.OllamaURL,
			Model:      cfg.OllamaEmbeddingModel,
			HTTPClient: &http.Client{Timeout: cfg.ComparatorTimeout},
		})
		cmp = comparator.NewEmbeddingComparator(emb, truncator)
	case config.BackendHTTP:
		cmp = comparator.NewHTTPComparator(cfg.ComparatorURL, "", cfg.ComparatorTimeout, logger)
	default:
		return nil, fmt.Errorf("unknown comparator backend %q", cfg.ComparatorBackend)
	}

	cmp = comparator.NewInstrumented(cmp)
	if cfg.BreakerFailures > 0 {
		cmp = comparator.NewBreaker(cmp, comparator.BreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerTimeout,
		}, logger)
	}
	if cfg.RateLimit > 0 {
		cmp = comparator.NewRateLimited(cmp, cfg.RateLimit)
	}
	if cfg.CacheSize > 0 {
		cached, err := comparator.NewCached(cmp, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create comparator cache: %w", err)
		}
		cmp = cached
	}

	logger.Info("initialized comparator",
		slog.String("backend", cmp.Name()),
		slog.Int("max_input_tokens", cfg.MaxInputTokens),
		slog.Int("cache_size", cfg.CacheSize))

	return cmp, nil
}
