// Package runfile writes rankings in TREC run format:
//
//	qid Q0 docid rank score tag
package runfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/knoguchi/tourney/internal/assembler"
)

// Writer appends rankings to a run file. It is safe for concurrent use; each
// ranking is written as one contiguous block.
type Writer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	tag string
}

// NewWriter creates a run writer that labels every line with tag.
func NewWriter(w io.Writer, tag string) *Writer {
	if tag == "" {
		tag = "tourney"
	}
	return &Writer{w: bufio.NewWriter(w), tag: strings.Join(strings.Fields(tag), "_")}
}

// Write appends one ranking.
func (w *Writer) Write(r assembler.Ranking) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range r.Entries {
		if _, err := fmt.Fprintf(w.w, "%s Q0 %s %d %s %s\n", r.QueryID, e.CandidateID, e.Rank, strconv.FormatFloat(e.Score, 'f', -1, 64), w.tag); err != nil {
			return fmt.Errorf("writing run for query %s: %w", r.QueryID, err)
		}
	}
	return nil
}

// Flush writes buffered lines to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}
