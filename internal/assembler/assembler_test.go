package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tourney/internal/candidate"
	"github.com/knoguchi/tourney/internal/tournament"
)

func record() candidate.Record {
	return candidate.Record{
		Query: candidate.Query{ID: "q1"},
		Candidates: []candidate.Candidate{
			{ID: "d0", Score: 9, Rank: 0},
			{ID: "d1", Score: 8, Rank: 1},
			{ID: "d2", Score: 8, Rank: 2},
			{ID: "d3", Score: 5, Rank: 3},
			{ID: "d4", Score: 1, Rank: 4},
		},
	}
}

func TestAssemble_PrefixThenScoreOrder(t *testing.T) {
	rec := record()
	res := tournament.Result{
		QueryID:   "q1",
		Prefix:    []int{3, 0},
		Remaining: []int{4, 2, 1},
		PoolSize:  5,
		Outcome:   tournament.OutcomeCompleted,
	}

	r := Assemble(rec, res)
	assert.Equal(t, []string{"d3", "d0", "d1", "d2", "d4"}, r.IDs())
	assert.Equal(t, 2, r.Resolved)
	assert.Equal(t, tournament.OutcomeCompleted, r.Outcome)

	for i, e := range r.Entries {
		assert.Equal(t, i+1, e.Rank)
		if i > 0 {
			assert.Less(t, e.Score, r.Entries[i-1].Score)
		}
	}
}

func TestAssemble_AppendsCandidatesBeyondPool(t *testing.T) {
	rec := record()
	res := tournament.Result{
		Prefix:    []int{1},
		Remaining: []int{0, 2},
		PoolSize:  3,
	}

	r := Assemble(rec, res)
	require.Len(t, r.Entries, 5)
	assert.Equal(t, []string{"d1", "d0", "d2", "d3", "d4"}, r.IDs())
}

func TestAssemble_Empty(t *testing.T) {
	r := Assemble(candidate.Record{Query: candidate.Query{ID: "q"}}, tournament.Result{Outcome: tournament.OutcomeEmpty})
	assert.Empty(t, r.Entries)
	assert.Equal(t, "q", r.QueryID)
}

func TestFirstStage(t *testing.T) {
	r := FirstStage(record(), tournament.OutcomeFallback)
	assert.Equal(t, []string{"d0", "d1", "d2", "d3", "d4"}, r.IDs())
	assert.Zero(t, r.Resolved)
}
