package comparator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tourney/internal/candidate"
)

// reverse ranks every group in reverse input order and records calls.
type reverse struct {
	mu    sync.Mutex
	calls [][]Request
	err   error
}

func (r *reverse) Name() string { return "reverse" }

func (r *reverse) Compare(_ context.Context, reqs []Request) ([]Response, error) {
	r.mu.Lock()
	r.calls = append(r.calls, reqs)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]Response, len(reqs))
	for i, req := range reqs {
		pos := req.RealPositions()
		for a, b := 0, len(pos)-1; a < b; a, b = a+1, b-1 {
			pos[a], pos[b] = pos[b], pos[a]
		}
		out[i] = Response{Order: pos}
	}
	return out, nil
}

func request(query string, ids ...string) Request {
	req := Request{Query: candidate.Query{ID: query, Text: query}, TopN: 2}
	for _, id := range ids {
		if id == "" {
			req.Passages = append(req.Passages, Passage{ID: fmt.Sprintf("\x00dummy-%d", len(req.Passages)), Placeholder: true})
			continue
		}
		req.Passages = append(req.Passages, Passage{ID: id, Text: "text of " + id})
	}
	return req
}

func TestRequest_RealPositions(t *testing.T) {
	req := request("q", "a", "", "b", "")
	assert.Equal(t, []int{0, 2}, req.RealPositions())
}

func TestRequest_DropPlaceholders(t *testing.T) {
	req := request("q", "a", "", "b")
	assert.Equal(t, []int{2, 0}, req.DropPlaceholders([]int{2, 1, 0}))
	assert.Equal(t, []int{5, -1, 0}, req.DropPlaceholders([]int{5, 1, -1, 0}))
	assert.Empty(t, req.DropPlaceholders(nil))
}

func TestCached(t *testing.T) {
	next := &reverse{}
	c, err := NewCached(next, 16)
	require.NoError(t, err)
	assert.Equal(t, "reverse", c.Name())

	first, err := c.Compare(context.Background(), []Request{request("q", "a", "b"), request("q", "c", "d")})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, first[0].Order)

	// Same composition with different placeholder ids is a hit.
	second, err := c.Compare(context.Background(), []Request{
		request("q", "c", "d"),
		request("q", "e", "", "f"),
		request("q", "a", "b"),
	})
	require.NoError(t, err)
	require.Len(t, next.calls, 2)
	require.Len(t, next.calls[1], 1, "only the miss is forwarded")
	assert.Equal(t, []int{1, 0}, second[0].Order)
	assert.Equal(t, []int{2, 0}, second[1].Order)
	assert.Equal(t, []int{1, 0}, second[2].Order)

	_, err = c.Compare(context.Background(), []Request{request("q", "e", "", "f")})
	require.NoError(t, err)
	assert.Len(t, next.calls, 2)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	next := &reverse{err: ErrUnavailable}
	c, err := NewCached(next, 4)
	require.NoError(t, err)

	_, err = c.Compare(context.Background(), []Request{request("q", "a", "b")})
	assert.ErrorIs(t, err, ErrUnavailable)

	next.err = nil
	_, err = c.Compare(context.Background(), []Request{request("q", "a", "b")})
	require.NoError(t, err)
	assert.Len(t, next.calls, 2)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &reverse{err: fmt.Errorf("%w: connection refused", ErrUnavailable)}
	b := NewBreaker(next, BreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, testLogger())

	for range 2 {
		_, err := b.Compare(context.Background(), []Request{request("q", "a")})
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	require.Len(t, next.calls, 2)

	next.err = nil
	_, err := b.Compare(context.Background(), []Request{request("q", "a")})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, next.calls, 2, "open breaker must not reach the backend")
}

func TestBreaker_CountsBatchesWithEveryGroupUnavailable(t *testing.T) {
	down := &scriptedLLM{reply: func(string) (string, error) {
		return "", errors.New("connection refused")
	}}
	b := NewBreaker(NewLLMComparator(down), BreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, testLogger())

	for range 2 {
		resps, err := b.Compare(context.Background(), []Request{request("q", "a", "b")})
		require.NoError(t, err)
		assert.ErrorIs(t, resps[0].Err, ErrUnavailable)
	}

	_, err := b.Compare(context.Background(), []Request{request("q", "a", "b")})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, down.prompts, 2, "open breaker must not reach the backend")
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker(&reverse{}, BreakerConfig{FailureThreshold: 1, Timeout: time.Second}, testLogger())
	resps, err := b.Compare(context.Background(), []Request{request("q", "a", "b")})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, resps[0].Order)
}

func TestRateLimited(t *testing.T) {
	next := &reverse{}
	r := NewRateLimited(next, 1000)

	_, err := r.Compare(context.Background(), []Request{request("q", "a")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewRateLimited(next, 0.001)
	_, err = slow.Compare(context.Background(), nil)
	require.NoError(t, err)
	_, err = slow.Compare(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, next.calls, 2)
}

func TestInstrumented(t *testing.T) {
	i := NewInstrumented(&reverse{})
	assert.Equal(t, "reverse", i.Name())
	resps, err := i.Compare(context.Background(), []Request{request("q", "a", "b")})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, resps[0].Order)
}

func TestTruncator_Words(t *testing.T) {
	var nilTruncator *Truncator
	assert.Equal(t, "a b c", nilTruncator.Truncate("a b c"))

	tr := &Truncator{maxTokens: 3}
	assert.Equal(t, "one two three", tr.Truncate("one two  three four five"))
	assert.Equal(t, "short", tr.Truncate("short"))

	assert.Nil(t, NewTruncator(0, testLogger()))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
