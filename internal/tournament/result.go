package tournament

// Outcome describes how a query's tournament ended.
type Outcome string

const (
	// OutcomeCompleted: the prefix reached rerank_topk.
	OutcomeCompleted Outcome = "completed"
	// OutcomeExhausted: the pool ran out before the prefix reached rerank_topk.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeEarlyStop: every relevant candidate was already resolved.
	OutcomeEarlyStop Outcome = "early_stop"
	// OutcomeSkipped: no relevant candidate was in the pool, no comparisons ran.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFallback: the comparator failed and first-stage order is used.
	OutcomeFallback Outcome = "fallback"
	// OutcomeEmpty: the query had no candidates.
	OutcomeEmpty Outcome = "empty"
)

// Result is the final tournament state of one query, ready for assembly.
type Result struct {
	QueryID string

	// Prefix holds resolved candidate indices, best first.
	Prefix []int

	// Remaining holds unresolved pool indices in pool order.
	Remaining []int

	// PoolSize is the number of candidates that entered the tournament.
	PoolSize int

	Rounds    int
	Groups    int
	Malformed int
	Outcome   Outcome

	// Err is the comparator failure behind OutcomeFallback.
	Err error
}
