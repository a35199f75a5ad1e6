package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/tourney/internal/repository"
)

// RunRepo implements repository.RunRepository
type RunRepo struct {
	db DBTX
}

// NewRunRepo creates a new run repository. db is usually a *pgxpool.Pool.
func NewRunRepo(db DBTX) *RunRepo {
	return &RunRepo{db: db}
}

// CreateRun inserts a run. A zero ID is replaced with a new one.
func (r *RunRepo) CreateRun(ctx context.Context, run *repository.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = repository.RunStatusRunning
	}

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		INSERT INTO rerank_runs (id, tag, status, config, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.Exec(ctx, query, run.ID, run.Tag, run.Status, configJSON, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores final counters and status.
func (r *RunRepo) FinishRun(ctx context.Context, run *repository.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	if run.Status == "" || run.Status == repository.RunStatusRunning {
		run.Status = repository.RunStatusFinished
	}

	query := `
		UPDATE rerank_runs
		SET status = $2, queries = $3, fallbacks = $4, malformed = $5, calls = $6, finished_at = $7
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		run.ID, run.Status, run.Queries, run.Fallbacks, run.Malformed, run.Calls, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetRun retrieves a run by ID
func (r *RunRepo) GetRun(ctx context.Context, id uuid.UUID) (*repository.Run, error) {
	query := `
		SELECT id, tag, status, config, queries, fallbacks, malformed, calls, created_at, finished_at
		FROM rerank_runs
		WHERE id = $1
	`
	var (
		run        repository.Run
		configJSON []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Tag, &run.Status, &configJSON,
		&run.Queries, &run.Fallbacks, &run.Malformed, &run.Calls,
		&run.CreatedAt, &run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &run.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	return &run, nil
}

// SaveEntries bulk-inserts ranking entries with COPY.
func (r *RunRepo) SaveEntries(ctx context.Context, entries []repository.RunEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.RunID, e.QueryID, e.CandidateID, e.Rank, e.Score, e.Outcome}
	}

	n, err := r.db.CopyFrom(
		ctx,
		pgx.Identifier{"rerank_entries"},
		[]string{"run_id", "query_id", "candidate_id", "rank", "score", "outcome"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert entries: %w", err)
	}
	return n, nil
}

// ListEntries returns a run's entries ordered by query and rank. An empty
// queryID lists every query.
func (r *RunRepo) ListEntries(ctx context.Context, runID uuid.UUID, queryID string) ([]repository.RunEntry, error) {
	query := `
		SELECT run_id, query_id, candidate_id, rank, score, outcome
		FROM rerank_entries
		WHERE run_id = $1 AND ($2 = '' OR query_id = $2)
		ORDER BY query_id, rank
	`
	rows, err := r.db.Query(ctx, query, runID, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []repository.RunEntry
	for rows.Next() {
		var e repository.RunEntry
		if err := rows.Scan(&e.RunID, &e.QueryID, &e.CandidateID, &e.Rank, &e.Score, &e.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// Ensure RunRepo implements repository.RunRepository.
var _ repository.RunRepository = (*RunRepo)(nil)
