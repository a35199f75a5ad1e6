package comparator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/tourney/internal/llm"
)

// LLMComparator ranks groups by asking a generative model for a permutation
// of the numbered passages.
type LLMComparator struct {
	llmClient   llm.LLM
	model       string
	parallelism int
	seed        uint64
	truncator   *Truncator
}

// LLMOption is a functional option for configuring LLMComparator.
type LLMOption func(*LLMComparator)

// WithModel sets the model to use for ranking.
func WithModel(model string) LLMOption {
	return func(c *LLMComparator) {
		c.model = model
	}
}

// WithParallelism bounds how many requests of one batch are in flight.
func WithParallelism(n int) LLMOption {
	return func(c *LLMComparator) {
		c.parallelism = n
	}
}

// WithSeed fixes the sampling seed.
func WithSeed(seed uint64) LLMOption {
	return func(c *LLMComparator) {
		c.seed = seed
	}
}

// WithTruncator shortens passages before they are put in the prompt.
func WithTruncator(t *Truncator) LLMOption {
	return func(c *LLMComparator) {
		c.truncator = t
	}
}

// NewLLMComparator creates a listwise comparator backed by llmClient.
func NewLLMComparator(llmClient llm.LLM, opts ...LLMOption) *LLMComparator {
	c := &LLMComparator{
		llmClient:   llmClient,
		model:       llm.DefaultModel,
		parallelism: 1,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name implements Comparator.
func (c *LLMComparator) Name() string {
	return "llm"
}

// Compare implements Comparator. Each request is one generation call. A
// failed call marks only its own response unavailable so the other groups of
// the batch, which may belong to other queries, still get ranked.
func (c *LLMComparator) Compare(ctx context.Context, reqs []Request) ([]Response, error) {
	out := make([]Response, len(reqs))

	g := new(errgroup.Group)
	g.SetLimit(max(c.parallelism, 1))

	for i, req := range reqs {
		g.Go(func() error {
			opts := llm.GenerateOptions{
				Model:        c.model,
				SystemPrompt: systemPrompt,
				Temperature:  0.0,
				Format:       "json",
				Seed:         c.seed,
			}

			text, err := c.llmClient.Generate(ctx, c.buildPrompt(req), opts)
			if err != nil {
				out[i] = Response{Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
				return nil
			}

			order, err := parsePermutation(text)
			if err != nil {
				out[i] = Response{Err: err}
				return nil
			}
			out[i] = Response{Order: req.DropPlaceholders(order)}
			return nil
		})
	}

	_ = g.Wait()
	return out, nil
}

const systemPrompt = "You are RankGPT, an intelligent assistant that can rank passages based on their relevancy to the query."

// buildPrompt numbers the passages from 1 and asks for a full ranking.
func (c *LLMComparator) buildPrompt(req Request) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "I will provide you with %d passages, each indicated by number identifier [].\n", len(req.Passages))
	sb.WriteString("Rank the passages based on their relevance to the query: ")
	sb.WriteString(req.Query.Text)
	sb.WriteString("\n\n")

	for i, p := range req.Passages {
		content := p.Text
		if p.Title != "" {
			content = p.Title + ": " + content
		}
		if c.truncator != nil {
			content = c.truncator.Truncate(content)
		}
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, strings.TrimSpace(content))
	}

	fmt.Fprintf(&sb, "\nSearch Query: %s\n", req.Query.Text)
	fmt.Fprintf(&sb, `Rank the %d passages above in descending order of relevance.
Output ONLY valid JSON in this exact format:
{"ranking": [2, 1, 3]}
Every identifier from 1 to %d must appear exactly once. Output only JSON, no explanation:`, len(req.Passages), len(req.Passages))

	return sb.String()
}

type rankingResponse struct {
	Ranking []int `json:"ranking"`
}

var bracketed = regexp.MustCompile(`\[(\d+)\]`)
var number = regexp.MustCompile(`\d+`)

// parsePermutation extracts 0-based positions from model output. It accepts
// {"ranking":[...]} JSON and the "[3] > [1] > [2]" text form. Positions are
// returned as the model gave them; validation happens in the engine.
func parsePermutation(response string) ([]int, error) {
	response = stripCodeFence(strings.TrimSpace(response))

	var parsed rankingResponse
	if err := json.Unmarshal([]byte(response), &parsed); err == nil && len(parsed.Ranking) > 0 {
		order := make([]int, len(parsed.Ranking))
		for i, id := range parsed.Ranking {
			order[i] = id - 1
		}
		return order, nil
	}

	matches := bracketed.FindAllStringSubmatch(response, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	if len(ids) == 0 {
		ids = number.FindAllString(response, -1)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no passage identifiers in %q", ErrMalformedOutput, truncateString(response, 100))
	}

	order := make([]int, 0, len(ids))
	for _, s := range ids {
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		order = append(order, n-1)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: unparsable identifiers in %q", ErrMalformedOutput, truncateString(response, 100))
	}
	return order, nil
}

// stripCodeFence extracts the body of a markdown code block if present.
func stripCodeFence(response string) string {
	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}
	return strings.TrimSpace(response)
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure LLMComparator implements Comparator interface.
var _ Comparator = (*LLMComparator)(nil)
