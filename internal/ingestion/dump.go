package ingestion

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/knoguchi/tourney/internal/candidate"
)

// DumpRow is one line of a flat retrieval dump: a single (query, document) hit.
type DumpRow struct {
	QID   json.RawMessage `json:"qid"`
	Query string          `json:"query"`
	DocNo json.RawMessage `json:"docno"`
	Text  string          `json:"text"`
	Title string          `json:"title,omitempty"`
	Score float64         `json:"score"`
}

// ReadDump groups dump rows into records. Queries keep the order in which
// they first appear; each query's hits are ordered by descending score,
// equal scores keeping input order.
func ReadDump(r io.Reader) ([]candidate.Record, Stats, error) {
	start := time.Now()
	var (
		records []candidate.Record
		byQID   = make(map[string]int)
		stats   Stats
	)

	err := eachLine(r, func(lineNo int, line []byte) error {
		var row DumpRow
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("line %d: %w: %w", lineNo, ErrMalformedRecord, err)
		}
		if row.QID == nil || row.DocNo == nil {
			return fmt.Errorf("line %d: %w: qid and docno are required", lineNo, ErrMalformedRecord)
		}
		qid, err := rawID(row.QID)
		if err != nil {
			return fmt.Errorf("line %d: qid: %w", lineNo, err)
		}
		docno, err := rawID(row.DocNo)
		if err != nil {
			return fmt.Errorf("line %d: docno: %w", lineNo, err)
		}

		i, ok := byQID[qid]
		if !ok {
			i = len(records)
			byQID[qid] = i
			records = append(records, candidate.Record{Query: candidate.Query{ID: qid, Text: row.Query}})
		}
		records[i].Candidates = append(records[i].Candidates, candidate.Candidate{
			ID:    docno,
			Text:  row.Text,
			Title: row.Title,
			Score: row.Score,
		})
		stats.Candidates++
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}

	for i := range records {
		cands := records[i].Candidates
		sort.SliceStable(cands, func(a, b int) bool {
			return cands[a].Score > cands[b].Score
		})
		for rank := range cands {
			cands[rank].Rank = rank
		}
		if err := records[i].Validate(); err != nil {
			return nil, Stats{}, err
		}
	}

	stats.Records = len(records)
	stats.ProcessingTime = time.Since(start)
	return records, stats, nil
}

// WriteRecords writes records as JSONL using the default keys, the format
// ReadRecords reads back with DefaultKeys.
func WriteRecords(w io.Writer, records []candidate.Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for _, rec := range records {
		if err := enc.Encode(toRecordJSON(rec)); err != nil {
			return fmt.Errorf("encoding query %s: %w", rec.Query.ID, err)
		}
	}
	return bw.Flush()
}

type recordJSON struct {
	QID     string       `json:"qid"`
	QText   string       `json:"q_text"`
	Results []resultJSON `json:"bm25_results"`
	Qrels   *[]string    `json:"qrels,omitempty"`
}

type resultJSON struct {
	PID   string  `json:"pid"`
	Text  string  `json:"text"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"bm25_score"`
}

func toRecordJSON(rec candidate.Record) recordJSON {
	out := recordJSON{
		QID:     rec.Query.ID,
		QText:   rec.Query.Text,
		Results: make([]resultJSON, len(rec.Candidates)),
	}
	for i, c := range rec.Candidates {
		out.Results[i] = resultJSON{PID: c.ID, Text: c.Text, Title: c.Title, Score: c.Score}
	}
	if rec.HasLabels() {
		qrels := make([]string, 0, len(rec.Relevant))
		for id := range rec.Relevant {
			qrels = append(qrels, id)
		}
		sort.Strings(qrels)
		out.Qrels = &qrels
	}
	return out
}
