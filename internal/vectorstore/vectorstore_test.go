package vectorstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tourney/internal/candidate"
)

type mapStore struct {
	passages map[string]Passage
	asked    [][]string
	err      error
}

func (m *mapStore) Passages(_ context.Context, ids []string) (map[string]Passage, error) {
	m.asked = append(m.asked, ids)
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]Passage)
	for _, id := range ids {
		if p, ok := m.passages[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHydrator_Hydrate(t *testing.T) {
	store := &mapStore{passages: map[string]Passage{
		"d1": {ID: "d1", Text: "stored one", Title: "T1"},
		"d2": {ID: "d2", Text: "stored two", Title: "T2"},
	}}
	recs := []candidate.Record{
		{Candidates: []candidate.Candidate{{ID: "d1"}, {ID: "d3"}, {ID: "d4", Text: "inline"}}},
		{Candidates: []candidate.Candidate{{ID: "d1", Title: "kept"}, {ID: "d2"}}},
	}

	filled, err := NewHydrator(store, discard()).Hydrate(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 3, filled)
	require.Len(t, store.asked, 1)
	assert.Equal(t, []string{"d1", "d3", "d2"}, store.asked[0])

	assert.Equal(t, "stored one", recs[0].Candidates[0].Text)
	assert.Equal(t, "T1", recs[0].Candidates[0].Title)
	assert.Empty(t, recs[0].Candidates[1].Text)
	assert.Equal(t, "inline", recs[0].Candidates[2].Text)
	assert.Equal(t, "kept", recs[1].Candidates[0].Title)
	assert.Equal(t, "stored two", recs[1].Candidates[1].Text)
}

func TestHydrator_NothingToDo(t *testing.T) {
	store := &mapStore{}
	filled, err := NewHydrator(store, discard()).Hydrate(context.Background(), []candidate.Record{
		{Candidates: []candidate.Candidate{{ID: "d1", Text: "x"}}},
	})
	require.NoError(t, err)
	assert.Zero(t, filled)
	assert.Empty(t, store.asked)
}

func TestHydrator_StoreError(t *testing.T) {
	store := &mapStore{err: errors.New("unavailable")}
	_, err := NewHydrator(store, discard()).Hydrate(context.Background(), []candidate.Record{
		{Candidates: []candidate.Candidate{{ID: "d1"}}},
	})
	assert.Error(t, err)
}

func TestSplitIDs(t *testing.T) {
	pointIDs, keywords := splitIDs([]string{"42", "msmarco_doc_1", "5f3c1d9e-8a55-4b9e-9d2a-6f0e7c1b2a3d", "-1"})
	require.Len(t, pointIDs, 2)
	assert.Equal(t, uint64(42), pointIDs[0].GetNum())
	assert.Equal(t, "5f3c1d9e-8a55-4b9e-9d2a-6f0e7c1b2a3d", pointIDs[1].GetUuid())
	assert.Equal(t, []string{"msmarco_doc_1", "-1"}, keywords)
}

func TestPassageFromPayload(t *testing.T) {
	p := passageFromPayload(map[string]*qdrant.Value{
		PayloadID:    qdrant.NewValueString("d1"),
		PayloadText:  qdrant.NewValueString("body"),
		PayloadTitle: qdrant.NewValueString("head"),
	})
	assert.Equal(t, Passage{ID: "d1", Text: "body", Title: "head"}, p)

	assert.Equal(t, "7", pointIDString(qdrant.NewIDNum(7)))
}
