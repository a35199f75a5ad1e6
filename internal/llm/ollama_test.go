package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ranker", req.Model)
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)
		assert.EqualValues(t, 0, req.Options["temperature"])
		assert.EqualValues(t, 7, req.Options["seed"])

		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: `{"ranking":[2,1]}`, Done: true})
	}))
	defer server.Close()

	c := NewOllamaClient(WithBaseURL(server.URL+"/"), WithModel("ranker"))
	out, err := c.Generate(context.Background(), "rank", GenerateOptions{Format: "json", Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, `{"ranking":[2,1]}`, out)
	assert.Equal(t, "ranker", c.Model())
}

func TestOllamaClient_GenerateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewOllamaClient(WithBaseURL(server.URL)).Generate(context.Background(), "rank", GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
