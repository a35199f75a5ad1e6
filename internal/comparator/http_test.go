package comparator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPComparator_Compare(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listwise", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ListwiseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Groups, 3)
		assert.Equal(t, "q", req.Groups[0].Query)
		assert.True(t, req.Groups[0].Passages[1].Placeholder)

		_ = json.NewEncoder(w).Encode(ListwiseResponse{
			Model: "listwise-test",
			Results: []ListwiseResult{
				{Order: []int{2, 1, 0, 7}},
				{Error: "context too long"},
			},
		})
	}))
	defer server.Close()

	c := NewHTTPComparator(server.URL+"/", "listwise-test", time.Second, testLogger())
	assert.Equal(t, "http", c.Name())

	resps, err := c.Compare(context.Background(), []Request{
		request("q", "a", "", "b"),
		request("q", "c", "d"),
		request("q", "e", "f"),
	})
	require.NoError(t, err)
	require.Len(t, resps, 3)
	// The placeholder at position 1 is dropped; out-of-range 7 is left for the engine.
	assert.Equal(t, []int{2, 0, 7}, resps[0].Order)
	assert.ErrorIs(t, resps[1].Err, ErrMalformedOutput)
	assert.ErrorIs(t, resps[2].Err, ErrMalformedOutput)
}

func TestHTTPComparator_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewHTTPComparator(server.URL, "", time.Second, testLogger())
	_, err := c.Compare(context.Background(), []Request{request("q", "a")})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "503")

	resps, err := c.Compare(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, resps)
}
