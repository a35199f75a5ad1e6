// Package assembler turns a finished tournament into a complete ranking: the
// resolved prefix first, then every unresolved candidate by first-stage score.
package assembler

import (
	"sort"

	"github.com/knoguchi/tourney/internal/candidate"
	"github.com/knoguchi/tourney/internal/tournament"
)

// Entry is one ranked candidate.
type Entry struct {
	CandidateID string
	Rank        int // 1-based
	Score       float64
}

// Ranking is the final ordering of one query's candidates.
type Ranking struct {
	QueryID string
	Entries []Entry
	Outcome tournament.Outcome

	// Resolved is how many leading entries came from the tournament.
	Resolved int
}

// IDs returns the candidate ids best first.
func (r Ranking) IDs() []string {
	ids := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		ids[i] = e.CandidateID
	}
	return ids
}

// Assemble merges the tournament prefix with the leftover pool and any
// candidates that never entered the tournament. Leftovers are ordered by
// descending first-stage score, ties broken by ascending first-stage rank.
// Scores in the output decrease strictly with rank.
func Assemble(rec candidate.Record, res tournament.Result) Ranking {
	n := len(rec.Candidates)
	order := make([]int, 0, n)
	order = append(order, res.Prefix...)

	rest := make([]int, 0, n-len(res.Prefix))
	rest = append(rest, res.Remaining...)
	for i := res.PoolSize; i < n; i++ {
		rest = append(rest, i)
	}
	sort.SliceStable(rest, func(i, j int) bool {
		a, b := rec.Candidates[rest[i]], rec.Candidates[rest[j]]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Rank < b.Rank
	})
	order = append(order, rest...)

	entries := make([]Entry, len(order))
	for pos, idx := range order {
		entries[pos] = Entry{
			CandidateID: rec.Candidates[idx].ID,
			Rank:        pos + 1,
			Score:       float64(len(order) - pos),
		}
	}

	return Ranking{
		QueryID:  rec.Query.ID,
		Entries:  entries,
		Outcome:  res.Outcome,
		Resolved: len(res.Prefix),
	}
}

// FirstStage ranks a record purely by first-stage score. It is the fallback
// used when no tournament result exists for the query.
func FirstStage(rec candidate.Record, outcome tournament.Outcome) Ranking {
	return Assemble(rec, tournament.Result{QueryID: rec.Query.ID, Outcome: outcome})
}
