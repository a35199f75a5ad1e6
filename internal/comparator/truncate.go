package comparator

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tokenizer used to budget passage length.
const DefaultEncoding = "cl100k_base"

// Truncator cuts passages down to a token budget. Without a tokenizer it
// counts whitespace-separated words instead.
type Truncator struct {
	maxTokens int
	tke       *tiktoken.Tiktoken
}

// NewTruncator creates a truncator for maxTokens. A non-positive budget
// returns nil, which callers treat as "no truncation".
func NewTruncator(maxTokens int, logger *slog.Logger) *Truncator {
	if maxTokens <= 0 {
		return nil
	}

	tke, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		logger.Warn("tokenizer_unavailable_counting_words",
			slog.String("encoding", DefaultEncoding),
			slog.String("error", err.Error()))
		tke = nil
	}
	return &Truncator{maxTokens: maxTokens, tke: tke}
}

// Truncate returns text cut to the token budget.
func (t *Truncator) Truncate(text string) string {
	if t == nil {
		return text
	}

	if t.tke != nil {
		tokens := t.tke.Encode(text, nil, nil)
		if len(tokens) <= t.maxTokens {
			return text
		}
		return t.tke.Decode(tokens[:t.maxTokens])
	}

	words := strings.Fields(text)
	if len(words) <= t.maxTokens {
		return text
	}
	return strings.Join(words[:t.maxTokens], " ")
}
