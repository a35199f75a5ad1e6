package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tourney/internal/assembler"
	"github.com/knoguchi/tourney/internal/candidate"
	"github.com/knoguchi/tourney/internal/comparator"
	"github.com/knoguchi/tourney/internal/repository"
	"github.com/knoguchi/tourney/internal/tournament"
	"github.com/knoguchi/tourney/internal/vectorstore"
)

// lastFirst prefers passages that came later in the first-stage list.
type lastFirst struct {
	failQuery string
}

func (lastFirst) Name() string { return "last-first" }

func (c lastFirst) Compare(_ context.Context, reqs []comparator.Request) ([]comparator.Response, error) {
	out := make([]comparator.Response, len(reqs))
	for i, req := range reqs {
		if req.Query.ID == c.failQuery {
			return nil, fmt.Errorf("%w: timeout", comparator.ErrUnavailable)
		}
		pos := req.RealPositions()
		for a, b := 0, len(pos)-1; a < b; a, b = a+1, b-1 {
			pos[a], pos[b] = pos[b], pos[a]
		}
		out[i] = comparator.Response{Order: pos}
	}
	return out, nil
}

type memoryRuns struct {
	mu       sync.Mutex
	created  []*repository.Run
	finished []repository.Run
	entries  []repository.RunEntry
	saveErr  error
}

func (m *memoryRuns) CreateRun(_ context.Context, run *repository.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = uuid.New()
	m.created = append(m.created, run)
	return nil
}

func (m *memoryRuns) FinishRun(_ context.Context, run *repository.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, *run)
	return nil
}

func (m *memoryRuns) GetRun(context.Context, uuid.UUID) (*repository.Run, error) {
	return nil, repository.ErrNotFound
}

func (m *memoryRuns) SaveEntries(_ context.Context, entries []repository.RunEntry) (int64, error) {
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	m.entries = append(m.entries, entries...)
	return int64(len(entries)), nil
}

func (m *memoryRuns) ListEntries(context.Context, uuid.UUID, string) ([]repository.RunEntry, error) {
	return m.entries, nil
}

type collect struct{ rankings []assembler.Ranking }

func (c *collect) Write(r assembler.Ranking) error {
	c.rankings = append(c.rankings, r)
	return nil
}

type passages map[string]vectorstore.Passage

func (p passages) Passages(_ context.Context, ids []string) (map[string]vectorstore.Passage, error) {
	out := make(map[string]vectorstore.Passage)
	for _, id := range ids {
		if v, ok := p[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(qid string, n int) candidate.Record {
	rec := candidate.Record{Query: candidate.Query{ID: qid, Text: "query " + qid}}
	for i := 0; i < n; i++ {
		rec.Candidates = append(rec.Candidates, candidate.Candidate{
			ID:    fmt.Sprintf("d%d", i+1),
			Text:  fmt.Sprintf("passage %d", i+1),
			Score: float64(n - i),
			Rank:  i,
		})
	}
	return rec
}

func engine(t *testing.T, cmp comparator.Comparator) *tournament.Engine {
	t.Helper()
	p := tournament.DefaultParams()
	p.TopK = 4
	p.ListwiseK = 2
	p.OutK = 1
	p.RerankTopK = 2
	p.DummyNumber = 3
	p.BatchSize = 2
	e, err := tournament.NewEngine(cmp, p, tournament.WithLogger(discard()))
	require.NoError(t, err)
	return e
}

func TestRerankService_Rerank(t *testing.T) {
	runs := &memoryRuns{}
	sink := &collect{}
	svc := NewRerankService(engine(t, lastFirst{failQuery: "q2"}),
		WithRunRepository(runs, "test-run"),
		WithSink(sink),
		WithLogger(discard()))

	recs := []candidate.Record{record("q1", 5), record("q2", 3)}
	rankings, stats, err := svc.Rerank(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, rankings, 2)

	// q1 and q2 land in separate batches, so only q2 falls back.
	// Round 1 groups (d1,d2) (d3,d4) promote d2 and d4; d5 lies beyond topk.
	assert.Equal(t, []string{"d2", "d4", "d1", "d3", "d5"}, rankings[0].IDs())
	assert.Equal(t, tournament.OutcomeCompleted, rankings[0].Outcome)

	assert.Equal(t, []string{"d1", "d2", "d3"}, rankings[1].IDs())
	assert.Equal(t, tournament.OutcomeFallback, rankings[1].Outcome)

	assert.Equal(t, 2, stats.Queries)
	assert.Equal(t, 2, stats.Resolved)
	assert.Equal(t, 1, stats.Fallbacks)
	assert.Equal(t, 1, stats.Outcomes[tournament.OutcomeCompleted])
	assert.Equal(t, sink.rankings, rankings)

	require.Len(t, runs.created, 1)
	assert.Equal(t, "test-run", runs.created[0].Tag)
	assert.Equal(t, 2, runs.created[0].Config["listwise_k"])
	assert.Equal(t, stats.RunID, runs.created[0].ID)
	require.Len(t, runs.finished, 1)
	assert.Equal(t, repository.RunStatusFinished, runs.finished[0].Status)
	assert.Equal(t, 1, runs.finished[0].Fallbacks)
	assert.Len(t, runs.entries, 8)
	assert.Equal(t, repository.RunEntry{RunID: stats.RunID, QueryID: "q1", CandidateID: "d2", Rank: 1, Score: 5, Outcome: "completed"}, runs.entries[0])
}

func TestRerankService_Hydrates(t *testing.T) {
	rec := record("q", 2)
	rec.Candidates[0].Text = ""
	store := passages{"d1": {ID: "d1", Text: "from the index"}}

	var seen []string
	spy := comparatorFunc(func(_ context.Context, reqs []comparator.Request) ([]comparator.Response, error) {
		for _, p := range reqs[0].Passages {
			seen = append(seen, p.Text)
		}
		return lastFirst{}.Compare(context.Background(), reqs)
	})

	svc := NewRerankService(engine(t, spy), WithHydrator(vectorstore.NewHydrator(store, discard())), WithLogger(discard()))
	_, stats, err := svc.Rerank(context.Background(), []candidate.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Hydrated)
	assert.Contains(t, seen, "from the index")
}

func TestRerankService_SaveFailureMarksRunFailed(t *testing.T) {
	runs := &memoryRuns{saveErr: errors.New("disk full")}
	svc := NewRerankService(engine(t, lastFirst{}), WithRunRepository(runs, "t"), WithLogger(discard()))

	_, _, err := svc.Rerank(context.Background(), []candidate.Record{record("q", 3)})
	require.Error(t, err)
	require.Len(t, runs.finished, 1)
	assert.Equal(t, repository.RunStatusFailed, runs.finished[0].Status)
}

func TestRerankService_Cancelled(t *testing.T) {
	runs := &memoryRuns{}
	svc := NewRerankService(engine(t, lastFirst{}), WithRunRepository(runs, "t"), WithLogger(discard()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := svc.Rerank(ctx, []candidate.Record{record("q", 3)})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, runs.finished, 1)
	assert.Equal(t, repository.RunStatusFailed, runs.finished[0].Status)
}

type comparatorFunc func(ctx context.Context, reqs []comparator.Request) ([]comparator.Response, error)

func (f comparatorFunc) Name() string { return "func" }

func (f comparatorFunc) Compare(ctx context.Context, reqs []comparator.Request) ([]comparator.Response, error) {
	return f(ctx, reqs)
}
