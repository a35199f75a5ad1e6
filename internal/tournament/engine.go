// Package tournament implements tournament-sort reranking: candidate pools are
// split into fixed-size groups, a listwise comparator ranks every group, each
// group's best members are promoted into a resolved prefix, and the rest go
// around again until the prefix is long enough.
//
// Queries are independent, so RerankAll advances all of them in lockstep and
// packs the groups of one round across queries into shared comparator batches.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/tourney/internal/candidate"
	"github.com/knoguchi/tourney/internal/comparator"
	"github.com/knoguchi/tourney/internal/metrics"
	"github.com/knoguchi/tourney/internal/scheduler"
)

// Engine runs tournaments against a comparator. It is safe for concurrent use.
type Engine struct {
	cmp    comparator.Comparator
	params Params
	padder *scheduler.Padder
	logger *slog.Logger
}

// EngineOption is a functional option for configuring Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine validates params and creates an engine.
func NewEngine(cmp comparator.Comparator, params Params, opts ...EngineOption) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Truncation == "" {
		params.Truncation = TruncateGroup
	}
	if params.Concurrency == 0 {
		params.Concurrency = 1
	}

	e := &Engine{
		cmp:    cmp,
		params: params,
		padder: scheduler.NewPadder(params.DummyNumber, params.Seed),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Params returns the engine's parameters.
func (e *Engine) Params() Params {
	return e.params
}

// state is the private tournament state of one query.
type state struct {
	rec      *candidate.Record
	pool     []int
	prefix   []int
	relevant int
	salt     uint64
	res      Result
	done     bool
}

// Rerank runs the tournament for a single query.
func (e *Engine) Rerank(ctx context.Context, rec candidate.Record) (Result, error) {
	results, err := e.RerankAll(ctx, []candidate.Record{rec})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// RerankAll runs the tournaments of all records in lockstep. Comparator
// failures never fail the call: affected queries fall back to first-stage
// order. Only context cancellation is returned as an error.
func (e *Engine) RerankAll(ctx context.Context, recs []candidate.Record) ([]Result, error) {
	states := make([]*state, len(recs))
	for i := range recs {
		states[i] = e.newState(&recs[i])
	}

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tournament aborted in round %d: %w", round+1, err)
		}

		var (
			jobs   []scheduler.Job
			owners = make(map[int][]int) // query -> job positions
		)
		for qi, s := range states {
			if s.done {
				continue
			}
			salt := s.salt ^ uint64(round)<<32
			for _, g := range scheduler.Partition(s.pool, e.params.ListwiseK, e.padder, salt) {
				owners[qi] = append(owners[qi], len(jobs))
				jobs = append(jobs, scheduler.Job{Query: qi, Group: g})
			}
		}
		if len(jobs) == 0 {
			break
		}

		responses := e.dispatch(ctx, recs, jobs)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tournament aborted in round %d: %w", round+1, err)
		}

		for qi, positions := range owners {
			e.advance(states[qi], jobs, responses, positions)
		}
		metrics.RoundsTotal.Inc()
	}

	results := make([]Result, len(states))
	for i, s := range states {
		results[i] = s.res
		metrics.QueriesTotal.WithLabelValues(string(s.res.Outcome)).Inc()
	}
	return results, nil
}

func (e *Engine) newState(rec *candidate.Record) *state {
	n := min(e.params.TopK, len(rec.Candidates))
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}

	h := fnv.New64a()
	h.Write([]byte(rec.Query.ID))

	s := &state{
		rec:  rec,
		pool: pool,
		salt: h.Sum64(),
		res:  Result{QueryID: rec.Query.ID, PoolSize: n},
	}
	if rec.HasLabels() {
		s.relevant = rec.RelevantInPool(n)
	}

	switch {
	case n == 0:
		s.finish(OutcomeEmpty)
	case e.params.SkipNoCandidate && rec.HasLabels() && s.relevant == 0:
		e.logger.Debug("tournament_skipped_no_candidate", slog.String("query_id", rec.Query.ID))
		s.finish(OutcomeSkipped)
	}
	return s
}

func (s *state) finish(outcome Outcome) {
	s.done = true
	s.res.Outcome = outcome
	s.res.Prefix = s.prefix
	s.res.Remaining = s.pool
}

// abandon drops everything resolved so far and hands the whole pool back in
// first-stage order.
func (s *state) abandon(err error) {
	all := make([]int, 0, len(s.pool)+len(s.prefix))
	all = append(all, s.prefix...)
	all = append(all, s.pool...)
	s.prefix = nil
	s.pool = all
	s.res.Err = err
	s.finish(OutcomeFallback)
}

// jobResponse is the comparator answer for one job.
type jobResponse struct {
	order []int
	err   error
}

// dispatch sends all jobs of a round through the comparator in batches.
// Batches run concurrently up to the configured limit; each writes only its
// own slice of the result.
func (e *Engine) dispatch(ctx context.Context, recs []candidate.Record, jobs []scheduler.Job) []jobResponse {
	out := make([]jobResponse, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(e.params.Concurrency)

	offset := 0
	for _, batch := range scheduler.Batch(jobs, e.params.BatchSize) {
		start := offset
		offset += len(batch)

		g.Go(func() error {
			reqs := make([]comparator.Request, len(batch))
			for i, job := range batch {
				reqs[i] = e.buildRequest(&recs[job.Query], job.Group)
			}

			resps, err := e.cmp.Compare(ctx, reqs)
			if err != nil {
				if !errors.Is(err, comparator.ErrUnavailable) {
					err = fmt.Errorf("%w: %w", comparator.ErrUnavailable, err)
				}
				for i := range batch {
					out[start+i] = jobResponse{err: err}
				}
				return nil
			}

			for i := range batch {
				if i >= len(resps) {
					out[start+i] = jobResponse{err: fmt.Errorf("%w: missing response", comparator.ErrMalformedOutput)}
					continue
				}
				out[start+i] = jobResponse{order: resps[i].Order, err: resps[i].Err}
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (e *Engine) buildRequest(rec *candidate.Record, group candidate.Group) comparator.Request {
	passages := make([]comparator.Passage, len(group))
	for i, slot := range group {
		if !slot.IsReal() {
			passages[i] = comparator.Passage{ID: slot.PlaceholderID(), Placeholder: true}
			continue
		}
		c := rec.Candidates[slot.Index()]
		passages[i] = comparator.Passage{ID: c.ID, Text: c.Text, Title: c.Title}
	}
	return comparator.Request{
		Query:    rec.Query,
		Passages: passages,
		TopN:     e.params.OutK,
	}
}

// advance applies one round's comparator output to a query.
func (e *Engine) advance(s *state, jobs []scheduler.Job, responses []jobResponse, positions []int) {
	winners := make([][]int, len(positions))
	for gi, pos := range positions {
		resp := responses[pos]
		if errors.Is(resp.err, comparator.ErrUnavailable) {
			e.logger.Warn("comparator_unavailable_using_first_stage_order",
				slog.String("query_id", s.rec.Query.ID),
				slog.Int("round", s.res.Rounds+1),
				slog.String("error", resp.err.Error()))
			s.res.Groups += len(positions)
			s.abandon(resp.err)
			return
		}

		picked, ok := selectWinners(jobs[pos].Group, resp.order, e.params.OutK)
		if resp.err != nil || !ok {
			s.res.Malformed++
			metrics.MalformedOutputsTotal.Inc()
			attrs := []any{
				slog.String("query_id", s.rec.Query.ID),
				slog.Int("round", s.res.Rounds+1),
				slog.Int("group", gi),
			}
			if resp.err != nil {
				attrs = append(attrs, slog.String("error", resp.err.Error()))
			}
			e.logger.Warn("malformed_comparator_output_using_group_order", attrs...)
		}
		winners[gi] = picked
	}
	s.res.Groups += len(positions)
	s.res.Rounds++

	promoted := promote(winners, e.params.RerankTopK-len(s.prefix), e.params.Truncation)
	s.prefix = append(s.prefix, promoted...)

	isPromoted := make(map[int]struct{}, len(promoted))
	for _, idx := range promoted {
		isPromoted[idx] = struct{}{}
	}
	remaining := make([]int, 0, len(s.pool))
	for _, idx := range s.pool {
		if _, ok := isPromoted[idx]; !ok {
			remaining = append(remaining, idx)
		}
	}
	s.pool = remaining

	switch {
	case len(s.prefix) >= e.params.RerankTopK:
		s.finish(OutcomeCompleted)
	case len(s.pool) == 0:
		s.finish(OutcomeExhausted)
	case e.params.SkipIsSubset && s.relevantResolved():
		e.logger.Debug("tournament_early_stop",
			slog.String("query_id", s.rec.Query.ID),
			slog.Int("round", s.res.Rounds),
			slog.Int("resolved", len(s.prefix)))
		s.finish(OutcomeEarlyStop)
	}
}

// relevantResolved reports whether every relevant pool member is in the prefix.
func (s *state) relevantResolved() bool {
	if !s.rec.HasLabels() || s.relevant == 0 || len(s.prefix) < s.relevant {
		return false
	}
	found := 0
	for _, idx := range s.prefix {
		if _, ok := s.rec.Relevant[s.rec.Candidates[idx].ID]; ok {
			found++
		}
	}
	return found == s.relevant
}

// selectWinners turns a raw comparator order into the group's top outK real
// candidate indices. Invalid positions (out of range, duplicate, placeholder)
// are dropped and missing places are filled from the group's input order.
// ok is false when any repair was needed.
func selectWinners(group candidate.Group, order []int, outK int) (winners []int, ok bool) {
	members := group.Real()
	need := min(outK, len(members))
	ok = true

	seen := make(map[int]struct{}, need)
	winners = make([]int, 0, need)
	for _, pos := range order {
		if len(winners) == need {
			break
		}
		if pos < 0 || pos >= len(group) || !group[pos].IsReal() {
			ok = false
			continue
		}
		idx := group[pos].Index()
		if _, dup := seen[idx]; dup {
			ok = false
			continue
		}
		seen[idx] = struct{}{}
		winners = append(winners, idx)
	}

	for _, idx := range members {
		if len(winners) == need {
			break
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		ok = false
		seen[idx] = struct{}{}
		winners = append(winners, idx)
	}
	return winners, ok
}

// promote picks at most capacity winners according to the truncation policy
// and returns them in group order, in-group comparator order.
func promote(winners [][]int, capacity int, policy Truncation) []int {
	if capacity <= 0 {
		return nil
	}

	total := 0
	for _, w := range winners {
		total += len(w)
	}
	if total <= capacity || policy != TruncateRank {
		out := make([]int, 0, min(total, capacity))
		for _, w := range winners {
			for _, idx := range w {
				if len(out) == capacity {
					return out
				}
				out = append(out, idx)
			}
		}
		return out
	}

	// Rank-major selection: how many leading winners each group keeps.
	keep := make([]int, len(winners))
	taken := 0
	for r := 0; taken < capacity; r++ {
		for gi, w := range winners {
			if taken == capacity {
				break
			}
			if r < len(w) {
				keep[gi]++
				taken++
			}
		}
	}

	out := make([]int, 0, capacity)
	for gi, w := range winners {
		out = append(out, w[:keep[gi]]...)
	}
	return out
}
