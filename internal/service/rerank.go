// Package service runs reranking end to end: passage hydration, the
// tournament, rank assembly and delivery of rankings to their sinks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/tourney/internal/assembler"
	"github.com/knoguchi/tourney/internal/candidate"
	"github.com/knoguchi/tourney/internal/repository"
	"github.com/knoguchi/tourney/internal/tournament"
	"github.com/knoguchi/tourney/internal/vectorstore"
)

// Sink receives finished rankings. runfile.Writer is one.
type Sink interface {
	Write(r assembler.Ranking) error
}

// Stats summarizes one Rerank call.
type Stats struct {
	RunID uuid.UUID

	Queries   int
	Resolved  int
	Fallbacks int
	Malformed int
	Rounds    int
	Groups    int
	Hydrated  int
	Outcomes  map[tournament.Outcome]int
	Duration  time.Duration
}

// RerankService implements the reranking pipeline.
type RerankService struct {
	engine   *tournament.Engine
	hydrator *vectorstore.Hydrator // Optional: fills empty passage text
	runs     repository.RunRepository
	runTag   string
	sinks    []Sink
	logger   *slog.Logger
}

// RerankServiceOption is a functional option for configuring RerankService.
type RerankServiceOption func(*RerankService)

// WithHydrator sets a hydrator for candidates that arrive without text.
func WithHydrator(h *vectorstore.Hydrator) RerankServiceOption {
	return func(s *RerankService) {
		s.hydrator = h
	}
}

// WithRunRepository records every Rerank call as a run tagged tag.
func WithRunRepository(repo repository.RunRepository, tag string) RerankServiceOption {
	return func(s *RerankService) {
		s.runs = repo
		s.runTag = tag
	}
}

// WithSink adds a sink that receives each ranking.
func WithSink(sink Sink) RerankServiceOption {
	return func(s *RerankService) {
		s.sinks = append(s.sinks, sink)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RerankServiceOption {
	return func(s *RerankService) {
		s.logger = logger
	}
}

// NewRerankService creates a new RerankService
func NewRerankService(engine *tournament.Engine, opts ...RerankServiceOption) *RerankService {
	s := &RerankService{
		engine: engine,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Rerank reranks every record and returns one ranking per record, in input
// order. Comparator outages degrade affected queries to first-stage order
// and are reported in Stats; only cancellation and sink or storage failures
// are returned as errors.
func (s *RerankService) Rerank(ctx context.Context, recs []candidate.Record) ([]assembler.Ranking, Stats, error) {
	startTime := time.Now()
	stats := Stats{Queries: len(recs), Outcomes: make(map[tournament.Outcome]int)}

	var run *repository.Run
	if s.runs != nil {
		run = &repository.Run{Tag: s.runTag, Config: paramsMap(s.engine.Params())}
		if err := s.runs.CreateRun(ctx, run); err != nil {
			return nil, stats, fmt.Errorf("failed to create run: %w", err)
		}
		stats.RunID = run.ID
	}

	rankings, err := s.rerank(ctx, recs, &stats)
	stats.Duration = time.Since(startTime)
	if err != nil {
		s.finishRun(ctx, run, stats, repository.RunStatusFailed)
		return nil, stats, err
	}

	if run != nil {
		if _, err := s.runs.SaveEntries(ctx, runEntries(run.ID, rankings)); err != nil {
			s.finishRun(ctx, run, stats, repository.RunStatusFailed)
			return nil, stats, fmt.Errorf("failed to save run entries: %w", err)
		}
	}
	s.finishRun(ctx, run, stats, repository.RunStatusFinished)

	s.logger.Info("rerank_completed",
		slog.Int("queries", stats.Queries),
		slog.Int("resolved", stats.Resolved),
		slog.Int("fallbacks", stats.Fallbacks),
		slog.Int("malformed", stats.Malformed),
		slog.Int("rounds", stats.Rounds),
		slog.Int("groups", stats.Groups),
		slog.Int64("elapsed_ms", stats.Duration.Milliseconds()))
	if stats.Fallbacks > 0 {
		s.logger.Warn("queries_fell_back_to_first_stage_order",
			slog.Int("count", stats.Fallbacks),
			slog.Int("queries", stats.Queries))
	}

	return rankings, stats, nil
}

func (s *RerankService) rerank(ctx context.Context, recs []candidate.Record, stats *Stats) ([]assembler.Ranking, error) {
	if s.hydrator != nil {
		n, err := s.hydrator.Hydrate(ctx, recs)
		if err != nil {
			return nil, err
		}
		stats.Hydrated = n
	}

	results, err := s.engine.RerankAll(ctx, recs)
	if err != nil {
		return nil, err
	}

	rankings := make([]assembler.Ranking, len(recs))
	for i, res := range results {
		rankings[i] = assembler.Assemble(recs[i], res)

		stats.Outcomes[res.Outcome]++
		stats.Resolved += len(res.Prefix)
		stats.Malformed += res.Malformed
		stats.Rounds = max(stats.Rounds, res.Rounds)
		stats.Groups += res.Groups
		if res.Outcome == tournament.OutcomeFallback {
			stats.Fallbacks++
		}

		for _, sink := range s.sinks {
			if err := sink.Write(rankings[i]); err != nil {
				return nil, fmt.Errorf("failed to write ranking: %w", err)
			}
		}
	}
	return rankings, nil
}

// finishRun stores final counters. It runs on a fresh context so a cancelled
// run is still marked failed.
func (s *RerankService) finishRun(ctx context.Context, run *repository.Run, stats Stats, status string) {
	if run == nil {
		return
	}
	run.Status = status
	run.Queries = stats.Queries
	run.Fallbacks = stats.Fallbacks
	run.Malformed = stats.Malformed
	run.Calls = stats.Groups

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.runs.FinishRun(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("failed_to_finish_run",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
	}
}

func runEntries(runID uuid.UUID, rankings []assembler.Ranking) []repository.RunEntry {
	n := 0
	for _, r := range rankings {
		n += len(r.Entries)
	}
	entries := make([]repository.RunEntry, 0, n)
	for _, r := range rankings {
		for _, e := range r.Entries {
			entries = append(entries, repository.RunEntry{
				RunID:       runID,
				QueryID:     r.QueryID,
				CandidateID: e.CandidateID,
				Rank:        e.Rank,
				Score:       e.Score,
				Outcome:     string(r.Outcome),
			})
		}
	}
	return entries
}

func paramsMap(p tournament.Params) map[string]any {
	return map[string]any{
		"topk":              p.TopK,
		"listwise_k":        p.ListwiseK,
		"out_k":             p.OutK,
		"rerank_topk":       p.RerankTopK,
		"dummy_number":      p.DummyNumber,
		"bsize":             p.BatchSize,
		"concurrency":       p.Concurrency,
		"seed":              p.Seed,
		"truncation":        string(p.Truncation),
		"skip_no_candidate": p.SkipNoCandidate,
		"skip_issubset":     p.SkipIsSubset,
	}
}
