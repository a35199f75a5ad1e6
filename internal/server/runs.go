package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/knoguchi/tourney/internal/repository"
)

// RunReader reads persisted runs back.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*repository.Run, error)
	ListEntries(ctx context.Context, runID uuid.UUID, queryID string) ([]repository.RunEntry, error)
}

// RunJSON is the body of GET /v1/runs/{id}.
type RunJSON struct {
	ID         string         `json:"id"`
	Tag        string         `json:"tag"`
	Status     string         `json:"status"`
	Config     map[string]any `json:"config,omitempty"`
	Queries    int            `json:"queries"`
	Fallbacks  int            `json:"fallbacks"`
	Malformed  int            `json:"malformed"`
	Calls      int            `json:"calls"`
	CreatedAt  time.Time      `json:"created_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// RunEntryJSON is one stored ranked candidate.
type RunEntryJSON struct {
	QID     string  `json:"qid"`
	DocID   string  `json:"docid"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
	Outcome string  `json:"outcome"`
}

type runsHandler struct {
	runs   RunReader
	logger *slog.Logger
}

// get serves GET /v1/runs/{id}.
func (h *runsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		h.fail(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, RunJSON{
		ID:         run.ID.String(),
		Tag:        run.Tag,
		Status:     run.Status,
		Config:     run.Config,
		Queries:    run.Queries,
		Fallbacks:  run.Fallbacks,
		Malformed:  run.Malformed,
		Calls:      run.Calls,
		CreatedAt:  run.CreatedAt,
		FinishedAt: run.FinishedAt,
	})
}

// entries serves GET /v1/runs/{id}/entries, optionally filtered by ?qid=.
func (h *runsHandler) entries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	if _, err := h.runs.GetRun(r.Context(), id); err != nil {
		h.fail(w, id, err)
		return
	}

	entries, err := h.runs.ListEntries(r.Context(), id, r.URL.Query().Get("qid"))
	if err != nil {
		h.fail(w, id, err)
		return
	}

	out := make([]RunEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = RunEntryJSON{QID: e.QueryID, DocID: e.CandidateID, Rank: e.Rank, Score: e.Score, Outcome: e.Outcome}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *runsHandler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *runsHandler) fail(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	h.logger.Error("run_lookup_failed",
		slog.String("run_id", id.String()),
		slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "run lookup failed")
}
