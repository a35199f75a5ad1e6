package comparator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ListwiseRequest is the payload of the remote listwise endpoint.
type ListwiseRequest struct {
	Model  string          `json:"model,omitempty"`
	Groups []ListwiseGroup `json:"groups"`
}

// ListwiseGroup is one group to rank.
type ListwiseGroup struct {
	Query    string            `json:"query"`
	Passages []ListwisePassage `json:"passages"`
	TopN     int               `json:"top_n"`
}

// ListwisePassage is one slot of a group on the wire.
type ListwisePassage struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Title       string `json:"title,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// ListwiseResponse carries one result per submitted group.
type ListwiseResponse struct {
	Results []ListwiseResult `json:"results"`
	Model   string           `json:"model"`
}

// ListwiseResult is the ranking of one group as 0-based positions.
type ListwiseResult struct {
	Order []int  `json:"order"`
	Error string `json:"error,omitempty"`
}

// HTTPComparator sends whole batches to a model server exposing
// POST /v1/listwise.
type HTTPComparator struct {
	BaseURL string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

// NewHTTPComparator constructs a new HTTPComparator.
// If client is nil, a default http.Client is created with the given timeout.
func NewHTTPComparator(baseURL, model string, timeout time.Duration, logger *slog.Logger, client ...*http.Client) *HTTPComparator {
	var c *http.Client
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	return &HTTPComparator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  c,
		logger:  logger,
	}
}

// Name implements Comparator.
func (c *HTTPComparator) Name() string {
	return "http"
}

// Compare implements Comparator.
func (c *HTTPComparator) Compare(ctx context.Context, reqs []Request) ([]Response, error) {
	if len(reqs) == 0 {
		return []Response{}, nil
	}

	startTime := time.Now()

	body := ListwiseRequest{Model: c.Model, Groups: make([]ListwiseGroup, len(reqs))}
	for i, req := range reqs {
		passages := make([]ListwisePassage, len(req.Passages))
		for j, p := range req.Passages {
			passages[j] = ListwisePassage(p)
		}
		body.Groups[i] = ListwiseGroup{Query: req.Query.Text, Passages: passages, TopN: req.TopN}
	}

	jsonPayload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal listwise request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/listwise", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create listwise request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		c.logger.Warn("listwise_call_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		return nil, fmt.Errorf("%w: failed to call listwise endpoint: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		c.logger.Warn("listwise_call_failed",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", truncateString(string(b), 500)),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		return nil, fmt.Errorf("%w: listwise endpoint returned %d: %s", ErrUnavailable, resp.StatusCode, string(b))
	}

	var lr ListwiseResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("%w: failed to decode listwise response: %w", ErrUnavailable, err)
	}

	out := make([]Response, len(reqs))
	for i := range out {
		switch {
		case i >= len(lr.Results):
			out[i] = Response{Err: fmt.Errorf("%w: no result for group %d", ErrMalformedOutput, i)}
		case lr.Results[i].Error != "":
			out[i] = Response{Err: fmt.Errorf("%w: %s", ErrMalformedOutput, lr.Results[i].Error)}
		default:
			out[i] = Response{Order: reqs[i].DropPlaceholders(lr.Results[i].Order)}
		}
	}

	c.logger.Debug("listwise_call_completed",
		slog.Int("groups", len(reqs)),
		slog.String("model", lr.Model),
		slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))

	return out, nil
}

// Ensure HTTPComparator implements Comparator interface.
var _ Comparator = (*HTTPComparator)(nil)
