package comparator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/knoguchi/tourney/internal/metrics"
)

// Cached remembers rankings by query text and group composition. Only
// successful responses are stored.
type Cached struct {
	next  Comparator
	cache *lru.Cache[string, []int]
}

// NewCached wraps next with an LRU cache of size entries.
func NewCached(next Comparator, size int) (*Cached, error) {
	cache, err := lru.New[string, []int](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

// Name implements Comparator.
func (c *Cached) Name() string {
	return c.next.Name()
}

// Compare implements Comparator. Only cache misses reach the wrapped
// comparator, as one smaller batch.
func (c *Cached) Compare(ctx context.Context, reqs []Request) ([]Response, error) {
	out := make([]Response, len(reqs))
	keys := make([]string, len(reqs))

	var (
		missReqs []Request
		missPos  []int
	)
	for i, req := range reqs {
		keys[i] = cacheKey(req)
		if order, ok := c.cache.Get(keys[i]); ok {
			out[i] = Response{Order: append([]int(nil), order...)}
			metrics.ComparatorCacheHitsTotal.Inc()
			continue
		}
		missReqs = append(missReqs, req)
		missPos = append(missPos, i)
	}
	if len(missReqs) == 0 {
		return out, nil
	}

	resps, err := c.next.Compare(ctx, missReqs)
	if err != nil {
		return nil, err
	}
	for j, pos := range missPos {
		if j >= len(resps) {
			out[pos] = Response{Err: fmt.Errorf("%w: missing response", ErrMalformedOutput)}
			continue
		}
		out[pos] = resps[j]
		if resps[j].Err == nil {
			c.cache.Add(keys[pos], append([]int(nil), resps[j].Order...))
		}
	}
	return out, nil
}

// cacheKey identifies a group by query text, top_n and the passage ids in
// order. Placeholders only contribute their position.
func cacheKey(req Request) string {
	var sb strings.Builder
	sb.WriteString(req.Query.Text)
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(req.TopN))
	for _, p := range req.Passages {
		sb.WriteByte(0)
		if p.Placeholder {
			continue
		}
		sb.WriteString(p.ID)
	}
	return sb.String()
}

// Ensure Cached implements Comparator interface.
var _ Comparator = (*Cached)(nil)
