// Package vectorstore looks up passage text for candidates that arrive with
// ids only, using the collection the first-stage retriever indexed.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knoguchi/tourney/internal/candidate"
)

// Payload field names of indexed passages.
const (
	PayloadID    = "pid"
	PayloadText  = "text"
	PayloadTitle = "title"
)

// Passage is the stored content of one candidate.
type Passage struct {
	ID    string
	Text  string
	Title string
}

// PassageStore defines lookups of stored passages
type PassageStore interface {
	// Passages returns the stored passages for ids. Unknown ids are absent
	// from the result.
	Passages(ctx context.Context, ids []string) (map[string]Passage, error)
}

// Hydrator fills in missing candidate text from a PassageStore.
type Hydrator struct {
	store  PassageStore
	logger *slog.Logger
}

// NewHydrator creates a hydrator.
func NewHydrator(store PassageStore, logger *slog.Logger) *Hydrator {
	return &Hydrator{store: store, logger: logger}
}

// Hydrate sets Text (and Title, if empty) on every candidate whose text is
// empty. It looks up all such candidates of all records in one call and
// returns how many were filled.
func (h *Hydrator) Hydrate(ctx context.Context, recs []candidate.Record) (int, error) {
	var ids []string
	seen := make(map[string]struct{})
	for _, rec := range recs {
		for _, c := range rec.Candidates {
			if c.Text != "" {
				continue
			}
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	passages, err := h.store.Passages(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("hydrating %d passages: %w", len(ids), err)
	}

	filled := 0
	for i := range recs {
		cands := recs[i].Candidates
		for j := range cands {
			if cands[j].Text != "" {
				continue
			}
			p, ok := passages[cands[j].ID]
			if !ok {
				continue
			}
			cands[j].Text = p.Text
			if cands[j].Title == "" {
				cands[j].Title = p.Title
			}
			filled++
		}
	}

	if missing := len(ids) - len(passages); missing > 0 {
		h.logger.Warn("passages_not_found",
			slog.Int("requested", len(ids)),
			slog.Int("missing", missing))
	}
	return filled, nil
}
