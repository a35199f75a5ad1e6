// Package comparator provides listwise comparators: services that, given a
// query and a small group of passages, return the group ranked best-first.
//
// Comparator calls are the only expensive step of a tournament run, so every
// backend accepts whole batches. Decorators in this package add caching,
// rate limiting, circuit breaking and metrics around any backend.
package comparator

import (
	"context"
	"errors"

	"github.com/knoguchi/tourney/internal/candidate"
)

var (
	// ErrUnavailable marks transport or resource failures of the comparator.
	// The whole batch is lost when it is returned.
	ErrUnavailable = errors.New("comparator unavailable")

	// ErrMalformedOutput marks a response that could not be turned into a
	// ranking of the group.
	ErrMalformedOutput = errors.New("malformed comparator output")
)

// Passage is one slot of a group as seen by a comparator.
type Passage struct {
	ID          string
	Text        string
	Title       string
	Placeholder bool
}

// Request asks for a ranking of Passages against Query.
type Request struct {
	Query    candidate.Query
	Passages []Passage

	// TopN is how many ranked positions the caller needs. Backends may return
	// more; they should not return fewer unless the group has fewer real members.
	TopN int
}

// Response holds the ranking for one request.
type Response struct {
	// Order lists positions in the request's Passages, best first.
	Order []int

	// Err is set when this single request failed (typically ErrMalformedOutput).
	Err error
}

// Comparator ranks groups of passages.
type Comparator interface {
	// Compare ranks every request of the batch. The returned slice is aligned
	// with reqs. A non-nil error means the whole batch failed and should wrap
	// ErrUnavailable.
	Compare(ctx context.Context, reqs []Request) ([]Response, error)

	// Name identifies the backend for logs and metrics.
	Name() string
}

// DropPlaceholders removes positions that point at placeholder passages.
// Out-of-range positions are kept so the caller can still detect them.
func (r Request) DropPlaceholders(order []int) []int {
	out := make([]int, 0, len(order))
	for _, pos := range order {
		if pos >= 0 && pos < len(r.Passages) && r.Passages[pos].Placeholder {
			continue
		}
		out = append(out, pos)
	}
	return out
}

// RealPositions returns the positions of non-placeholder passages in order.
func (r Request) RealPositions() []int {
	out := make([]int, 0, len(r.Passages))
	for i, p := range r.Passages {
		if !p.Placeholder {
			out = append(out, i)
		}
	}
	return out
}
