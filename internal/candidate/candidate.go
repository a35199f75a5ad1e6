// Package candidate defines the per-query data the reranker works on: queries,
// first-stage candidates, relevance labels and the group slots handed to a
// listwise comparator.
package candidate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidID is returned when a candidate identifier is empty or falls in the
// reserved placeholder namespace.
var ErrInvalidID = errors.New("invalid candidate id")

// placeholderPrefix marks reserved placeholder identifiers. Real identifiers
// are rejected if they start with it, so the two can never collide.
const placeholderPrefix = "\x00dummy-"

// Query is the text being ranked against.
type Query struct {
	ID   string
	Text string
}

// Candidate is one first-stage retrieval hit.
type Candidate struct {
	ID    string
	Text  string
	Title string

	// Score is the first-stage score (e.g. BM25).
	Score float64

	// Rank is the zero-based position in the input list.
	Rank int
}

// Record is everything the reranker knows about one query.
type Record struct {
	Query      Query
	Candidates []Candidate

	// Relevant holds known-relevant candidate ids. It is nil when no labels
	// were supplied and is only consulted by the early-termination heuristics.
	Relevant map[string]struct{}
}

// HasLabels reports whether relevance labels were supplied for the record.
func (r *Record) HasLabels() bool {
	return r.Relevant != nil
}

// RelevantInPool returns how many relevant ids appear among the first n candidates.
func (r *Record) RelevantInPool(n int) int {
	if n > len(r.Candidates) {
		n = len(r.Candidates)
	}
	count := 0
	for _, c := range r.Candidates[:n] {
		if _, ok := r.Relevant[c.ID]; ok {
			count++
		}
	}
	return count
}

// Validate checks the record's candidate ids: non-empty, not reserved and unique.
func (r *Record) Validate() error {
	seen := make(map[string]struct{}, len(r.Candidates))
	for i, c := range r.Candidates {
		if c.ID == "" {
			return fmt.Errorf("query %s candidate %d: %w: empty", r.Query.ID, i, ErrInvalidID)
		}
		if strings.HasPrefix(c.ID, placeholderPrefix) {
			return fmt.Errorf("query %s candidate %d: %w: reserved prefix", r.Query.ID, i, ErrInvalidID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("query %s: %w: duplicate %q", r.Query.ID, ErrInvalidID, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// NewRelevant builds a relevance set from a list of ids. A nil slice yields a
// nil set (no labels); an empty slice yields an empty, non-nil set.
func NewRelevant(ids []string) map[string]struct{} {
	if ids == nil {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
