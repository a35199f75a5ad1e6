package comparator

import (
	"context"
	"fmt"
	"sort"

	"github.com/knoguchi/tourney/internal/embedder"
)

// EmbeddingComparator ranks a group by cosine similarity between the query
// and each passage. It needs one embedding call per batch.
type EmbeddingComparator struct {
	embedder  embedder.Embedder
	truncator *Truncator
}

// NewEmbeddingComparator creates an embedding-based comparator. truncator
// may be nil.
func NewEmbeddingComparator(emb embedder.Embedder, truncator *Truncator) *EmbeddingComparator {
	return &EmbeddingComparator{embedder: emb, truncator: truncator}
}

// Name implements Comparator.
func (c *EmbeddingComparator) Name() string {
	return "embedding"
}

// Compare implements Comparator.
func (c *EmbeddingComparator) Compare(ctx context.Context, reqs []Request) ([]Response, error) {
	// Deduplicate texts across the batch: queries repeat for every group.
	index := make(map[string]int)
	var texts []string
	intern := func(s string) int {
		if i, ok := index[s]; ok {
			return i
		}
		index[s] = len(texts)
		texts = append(texts, s)
		return len(texts) - 1
	}

	queryVec := make([]int, len(reqs))
	passageVec := make([][]int, len(reqs))
	for i, req := range reqs {
		queryVec[i] = intern(req.Query.Text)
		passageVec[i] = make([]int, len(req.Passages))
		for j, p := range req.Passages {
			if p.Placeholder {
				passageVec[i][j] = -1
				continue
			}
			content := p.Text
			if p.Title != "" {
				content = p.Title + "\n" + content
			}
			passageVec[i][j] = intern(c.truncator.Truncate(content))
		}
	}

	if len(texts) == 0 {
		return make([]Response, len(reqs)), nil
	}

	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrUnavailable, len(vecs), len(texts))
	}

	out := make([]Response, len(reqs))
	for i, req := range reqs {
		q := vecs[queryVec[i]]
		positions := req.RealPositions()
		scores := make(map[int]float64, len(positions))
		for _, pos := range positions {
			scores[pos] = embedder.Cosine(q, vecs[passageVec[i][pos]])
		}
		sort.SliceStable(positions, func(a, b int) bool {
			return scores[positions[a]] > scores[positions[b]]
		})
		out[i] = Response{Order: positions}
	}
	return out, nil
}

// Ensure EmbeddingComparator implements Comparator interface.
var _ Comparator = (*EmbeddingComparator)(nil)
