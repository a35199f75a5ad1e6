package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/knoguchi/tourney/internal/assembler"
	"github.com/knoguchi/tourney/internal/candidate"
	"github.com/knoguchi/tourney/internal/ingestion"
	"github.com/knoguchi/tourney/internal/service"
)

// RerankResponse is the body of a successful POST /v1/rerank.
type RerankResponse struct {
	Rankings []RankingJSON `json:"rankings"`
	Stats    StatsJSON     `json:"stats"`
}

// RankingJSON is one query's ranking.
type RankingJSON struct {
	QID      string      `json:"qid"`
	Outcome  string      `json:"outcome"`
	Resolved int         `json:"resolved"`
	Results  []EntryJSON `json:"results"`
}

// EntryJSON is one ranked candidate.
type EntryJSON struct {
	DocID string  `json:"docid"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// StatsJSON summarizes the request.
type StatsJSON struct {
	RunID     string `json:"run_id,omitempty"`
	Queries   int    `json:"queries"`
	Fallbacks int    `json:"fallbacks"`
	Malformed int    `json:"malformed"`
	Groups    int    `json:"groups"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type rerankHandler struct {
	reranker Reranker
	keys     ingestion.Keys
	logger   *slog.Logger
}

// ServeHTTP accepts a single record, or {"records": [...]}, in the same
// shape as the batch input.
func (h *rerankHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer discardBody(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	recs, err := h.decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rankings, stats, err := h.reranker.Rerank(r.Context(), recs)
	if err != nil {
		h.logger.Error("rerank_request_failed",
			slog.Int("queries", len(recs)),
			slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "reranking failed")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(rankings, stats))
}

func (h *rerankHandler) decode(body []byte) ([]candidate.Record, error) {
	var envelope struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.New("request body must be a JSON object")
	}

	raws := envelope.Records
	if raws == nil {
		raws = []json.RawMessage{body}
	}
	if len(raws) == 0 {
		return nil, errors.New("no records")
	}

	recs := make([]candidate.Record, len(raws))
	for i, raw := range raws {
		rec, err := ingestion.DecodeRecord(raw, h.keys)
		if err != nil {
			return nil, err
		}
		recs[i] = rec
	}
	return recs, nil
}

func toResponse(rankings []assembler.Ranking, stats service.Stats) RerankResponse {
	resp := RerankResponse{
		Rankings: make([]RankingJSON, len(rankings)),
		Stats: StatsJSON{
			RunID:     statsRunID(stats),
			Queries:   stats.Queries,
			Fallbacks: stats.Fallbacks,
			Malformed: stats.Malformed,
			Groups:    stats.Groups,
			ElapsedMS: stats.Duration.Milliseconds(),
		},
	}
	for i, r := range rankings {
		entries := make([]EntryJSON, len(r.Entries))
		for j, e := range r.Entries {
			entries[j] = EntryJSON{DocID: e.CandidateID, Rank: e.Rank, Score: e.Score}
		}
		resp.Rankings[i] = RankingJSON{
			QID:      r.QueryID,
			Outcome:  string(r.Outcome),
			Resolved: r.Resolved,
			Results:  entries,
		}
	}
	return resp
}

func statsRunID(stats service.Stats) string {
	if stats.RunID == uuid.Nil {
		return ""
	}
	return stats.RunID.String()
}
