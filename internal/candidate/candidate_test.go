package candidate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Validate(t *testing.T) {
	rec := Record{
		Query:      Query{ID: "q1"},
		Candidates: []Candidate{{ID: "a"}, {ID: "b"}},
	}
	require.NoError(t, rec.Validate())

	rec.Candidates = append(rec.Candidates, Candidate{ID: "a"})
	err := rec.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidID))

	rec.Candidates = []Candidate{{ID: ""}}
	assert.ErrorIs(t, rec.Validate(), ErrInvalidID)

	rec.Candidates = []Candidate{{ID: PlaceholderSlot(0).PlaceholderID()}}
	assert.ErrorIs(t, rec.Validate(), ErrInvalidID)
}

func TestSlot_Variants(t *testing.T) {
	rs := RealSlot(3)
	assert.True(t, rs.IsReal())
	assert.Equal(t, 3, rs.Index())
	assert.Empty(t, rs.PlaceholderID())

	pad := PlaceholderSlot(2)
	assert.False(t, pad.IsReal())
	assert.Equal(t, -1, pad.Index())
	assert.NotEqual(t, PlaceholderSlot(1).PlaceholderID(), pad.PlaceholderID())

	g := Group{RealSlot(4), pad, RealSlot(1)}
	assert.Equal(t, []int{4, 1}, g.Real())
}

func TestRecord_RelevantInPool(t *testing.T) {
	rec := Record{
		Candidates: []Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Relevant:   NewRelevant([]string{"c", "z"}),
	}
	assert.True(t, rec.HasLabels())
	assert.Equal(t, 0, rec.RelevantInPool(2))
	assert.Equal(t, 1, rec.RelevantInPool(10))

	assert.Nil(t, NewRelevant(nil))
	assert.NotNil(t, NewRelevant([]string{}))
}
