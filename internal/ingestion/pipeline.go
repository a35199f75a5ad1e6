// Package ingestion reads reranking inputs: first-stage result records in
// JSONL form and flat retrieval dumps that are grouped into records.
package ingestion

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/knoguchi/tourney/internal/candidate"
)

// ErrMalformedRecord is returned for input lines that cannot be decoded.
var ErrMalformedRecord = errors.New("malformed record")

// maxLineSize bounds a single JSONL line. Records carry up to topk passages.
const maxLineSize = 64 << 20

// Keys names the fields of an input record.
type Keys struct {
	// FirstStage is the key of the candidate list.
	FirstStage string

	// PID is the candidate id key; DocID is tried when PID is absent.
	PID   string
	DocID string

	Qrels     string
	Score     string
	QueryText string
	Text      string
	Title     string
}

// DefaultKeys returns the field names used by records this package writes.
func DefaultKeys() Keys {
	return Keys{
		FirstStage: "bm25_results",
		PID:        "pid",
		DocID:      "docid",
		Qrels:      "qrels",
		Score:      "bm25_score",
		QueryText:  "q_text",
		Text:       "text",
		Title:      "title",
	}
}

// Stats describes what was loaded.
type Stats struct {
	Records    int
	Candidates int

	// Labeled counts records that carried relevance labels.
	Labeled int

	ProcessingTime time.Duration
}

// Open opens path for reading, transparently decompressing gzip content.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}

	r, err := decompress(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &readCloser{Reader: r, closers: []io.Closer{f}}, nil
}

// decompress sniffs the gzip magic number.
func decompress(f io.Reader) (io.Reader, error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return zr, nil
	}
	return br, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var errs []error
	if c, ok := r.Reader.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ReadRecords decodes one record per non-empty line. Decoding stops at the
// first bad line; the error names its line number.
func ReadRecords(r io.Reader, keys Keys) ([]candidate.Record, Stats, error) {
	start := time.Now()
	var (
		records []candidate.Record
		stats   Stats
	)

	err := eachLine(r, func(lineNo int, line []byte) error {
		rec, err := DecodeRecord(line, keys)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
		stats.Candidates += len(rec.Candidates)
		if rec.HasLabels() {
			stats.Labeled++
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}

	stats.Records = len(records)
	stats.ProcessingTime = time.Since(start)
	return records, stats, nil
}

// DecodeRecord decodes a single JSON record.
func DecodeRecord(data []byte, keys Keys) (candidate.Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return candidate.Record{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	qid, err := idField(raw, "qid")
	if err != nil {
		return candidate.Record{}, err
	}
	rec := candidate.Record{Query: candidate.Query{ID: qid}}
	if rec.Query.Text, err = stringField(raw, keys.QueryText); err != nil {
		return candidate.Record{}, err
	}
	if rec.Query.Text == "" {
		if rec.Query.Text, err = stringField(raw, "query"); err != nil {
			return candidate.Record{}, err
		}
	}

	var hits []map[string]json.RawMessage
	if v, ok := raw[keys.FirstStage]; ok {
		if err := json.Unmarshal(v, &hits); err != nil {
			return candidate.Record{}, fmt.Errorf("%w: query %s: %s: %w", ErrMalformedRecord, qid, keys.FirstStage, err)
		}
	}

	rec.Candidates = make([]candidate.Candidate, len(hits))
	for i, hit := range hits {
		c, err := decodeCandidate(hit, keys)
		if err != nil {
			return candidate.Record{}, fmt.Errorf("query %s candidate %d: %w", qid, i, err)
		}
		c.Rank = i
		rec.Candidates[i] = c
	}

	if v, ok := raw[keys.Qrels]; ok {
		rel, err := decodeQrels(v)
		if err != nil {
			return candidate.Record{}, fmt.Errorf("query %s: %w", qid, err)
		}
		rec.Relevant = rel
	}

	if err := rec.Validate(); err != nil {
		return candidate.Record{}, err
	}
	return rec, nil
}

func decodeCandidate(hit map[string]json.RawMessage, keys Keys) (candidate.Candidate, error) {
	var (
		c   candidate.Candidate
		err error
	)

	key := keys.PID
	if _, ok := hit[key]; !ok {
		key = keys.DocID
	}
	if c.ID, err = idField(hit, key); err != nil {
		return c, err
	}
	if c.Text, err = stringField(hit, keys.Text); err != nil {
		return c, err
	}
	if c.Title, err = stringField(hit, keys.Title); err != nil {
		return c, err
	}
	if v, ok := hit[keys.Score]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &c.Score); err != nil {
			return c, fmt.Errorf("%w: %s: %w", ErrMalformedRecord, keys.Score, err)
		}
	}
	return c, nil
}

// decodeQrels accepts an id list or an id to grade object; grades above zero
// count as relevant.
func decodeQrels(v json.RawMessage) (map[string]struct{}, error) {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	if trimmed[0] == '{' {
		var grades map[string]float64
		if err := json.Unmarshal(trimmed, &grades); err != nil {
			return nil, fmt.Errorf("%w: qrels: %w", ErrMalformedRecord, err)
		}
		rel := make(map[string]struct{}, len(grades))
		for id, grade := range grades {
			if grade > 0 {
				rel[id] = struct{}{}
			}
		}
		return rel, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: qrels: %w", ErrMalformedRecord, err)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := rawID(item)
		if err != nil {
			return nil, fmt.Errorf("qrels: %w", err)
		}
		ids = append(ids, id)
	}
	return candidate.NewRelevant(ids), nil
}

// idField reads an identifier that may be encoded as a string or a number.
func idField(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrMalformedRecord, key)
	}
	id, err := rawID(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return id, nil
}

func rawID(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", fmt.Errorf("%w: id must be a string or number, got %s", ErrMalformedRecord, string(v))
	}
	return n.String(), nil
}

func stringField(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrMalformedRecord, key, err)
	}
	return s, nil
}

// eachLine calls fn for each non-blank line with its 1-based number.
func eachLine(r io.Reader, fn func(lineNo int, line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", lineNo+1, err)
	}
	return nil
}
