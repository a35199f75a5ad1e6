// Package repository defines persisted reranking runs and their data access interface.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// Run is one reranking pass over an input.
type Run struct {
	ID     uuid.UUID
	Tag    string
	Status string

	// Config is the tournament configuration the run used, stored as JSON.
	Config map[string]any

	Queries   int
	Fallbacks int
	Malformed int
	Calls     int

	CreatedAt  time.Time
	FinishedAt *time.Time
}

// RunEntry is one ranked candidate of one query.
type RunEntry struct {
	RunID       uuid.UUID
	QueryID     string
	CandidateID string
	Rank        int
	Score       float64
	Outcome     string
}

// RunRepository defines operations for run persistence
type RunRepository interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)

	// Entry operations
	SaveEntries(ctx context.Context, entries []RunEntry) (int64, error)
	ListEntries(ctx context.Context, runID uuid.UUID, queryID string) ([]RunEntry, error)
}
