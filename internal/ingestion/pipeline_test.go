package ingestion

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tourney/internal/candidate"
)

const records = `{"qid": "q1", "q_text": "what is go", "bm25_results": [{"pid": "d1", "text": "go is a language", "title": "Go", "bm25_score": 12.5}, {"pid": 7, "text": "gopher", "bm25_score": 3}], "qrels": ["d1"]}

{"qid": 2, "q_text": "rust", "bm25_results": [], "qrels": {"d9": 1, "d8": 0}}
{"qid": "q3", "query": "fallback text", "bm25_results": [{"docid": "x", "text": "t"}]}
`

func TestReadRecords(t *testing.T) {
	recs, stats, err := ReadRecords(strings.NewReader(records), DefaultKeys())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, Stats{Records: 3, Candidates: 3, Labeled: 2, ProcessingTime: stats.ProcessingTime}, stats)

	q1 := recs[0]
	assert.Equal(t, candidate.Query{ID: "q1", Text: "what is go"}, q1.Query)
	assert.Equal(t, candidate.Candidate{ID: "d1", Text: "go is a language", Title: "Go", Score: 12.5, Rank: 0}, q1.Candidates[0])
	assert.Equal(t, "7", q1.Candidates[1].ID)
	assert.Equal(t, 1, q1.Candidates[1].Rank)
	assert.Contains(t, q1.Relevant, "d1")

	q2 := recs[1]
	assert.Equal(t, "2", q2.Query.ID)
	assert.Empty(t, q2.Candidates)
	assert.True(t, q2.HasLabels())
	assert.Contains(t, q2.Relevant, "d9")
	assert.NotContains(t, q2.Relevant, "d8")

	q3 := recs[2]
	assert.Equal(t, "fallback text", q3.Query.Text)
	assert.Equal(t, "x", q3.Candidates[0].ID)
	assert.False(t, q3.HasLabels())
}

func TestReadRecords_CustomKeys(t *testing.T) {
	keys := DefaultKeys()
	keys.FirstStage = "hits"
	keys.PID = "id"
	keys.Score = "score"
	keys.QueryText = "question"

	input := `{"qid": "q", "question": "?", "hits": [{"id": "a", "score": 1}, {"id": "b", "score": 2}]}`
	recs, _, err := ReadRecords(strings.NewReader(input), keys)
	require.NoError(t, err)
	require.Len(t, recs[0].Candidates, 2)
	assert.Equal(t, "?", recs[0].Query.Text)
	assert.Equal(t, 2.0, recs[0].Candidates[1].Score)
}

func TestReadRecords_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bad json", input: "{\"qid\": \"q\"}\n{oops}", want: "line 2"},
		{name: "missing qid", input: `{"q_text": "x"}`, want: `missing "qid"`},
		{name: "missing id", input: `{"qid": "q", "bm25_results": [{"text": "x"}]}`, want: "candidate 0"},
		{name: "duplicate id", input: `{"qid": "q", "bm25_results": [{"pid": "a"}, {"pid": "a"}]}`, want: "duplicate"},
		{name: "bad qrels", input: `{"qid": "q", "qrels": "d1"}`, want: "qrels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadRecords(strings.NewReader(tt.input), DefaultKeys())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOpen_DetectsGzip(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(records))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	gz := filepath.Join(dir, "in.jsonl.gz")
	plain := filepath.Join(dir, "in.jsonl")
	require.NoError(t, os.WriteFile(gz, buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(plain, []byte(records), 0o644))

	for _, path := range []string{gz, plain} {
		rc, err := Open(path)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, records, string(data))
	}

	_, err = Open(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
