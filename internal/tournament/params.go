package tournament

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports an invalid parameter combination.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Truncation selects which winners are promoted when a round produces more
// winners than the prefix has room for.
type Truncation string

const (
	// TruncateGroup promotes leading winners in group order, then in-group
	// comparator order.
	TruncateGroup Truncation = "group"

	// TruncateRank promotes every group's best winner first, then every
	// group's second, and so on.
	TruncateRank Truncation = "rank"
)

// Params configures a tournament.
type Params struct {
	// TopK is how many first-stage candidates enter the tournament.
	TopK int
	// ListwiseK is the group size.
	ListwiseK int
	// OutK is how many winners each group promotes.
	OutK int
	// RerankTopK is the target length of the resolved prefix.
	RerankTopK int
	// DummyNumber is the size of the reserved placeholder pool.
	DummyNumber int
	// BatchSize is the maximum number of groups per comparator call.
	BatchSize int
	// Concurrency bounds in-flight comparator batches. Zero means one.
	Concurrency int
	Seed        uint64
	Truncation  Truncation

	SkipNoCandidate bool
	SkipIsSubset    bool
}

// DefaultParams mirrors the defaults of the reference ListT5 setup.
func DefaultParams() Params {
	return Params{
		TopK:        100,
		ListwiseK:   5,
		OutK:        2,
		RerankTopK:  10,
		DummyNumber: 21,
		BatchSize:   20,
		Concurrency: 1,
		Truncation:  TruncateGroup,
	}
}

// Validate rejects combinations that would make the tournament ill-defined
// or non-terminating.
func (p Params) Validate() error {
	switch {
	case p.TopK <= 0:
		return &ConfigError{Field: "topk", Reason: "must be positive"}
	case p.ListwiseK <= 0:
		return &ConfigError{Field: "listwise_k", Reason: "must be positive"}
	case p.OutK <= 0:
		return &ConfigError{Field: "out_k", Reason: "must be positive"}
	case p.OutK > p.ListwiseK:
		return &ConfigError{Field: "out_k", Reason: fmt.Sprintf("%d exceeds listwise_k %d", p.OutK, p.ListwiseK)}
	case p.RerankTopK <= 0:
		return &ConfigError{Field: "rerank_topk", Reason: "must be positive"}
	case p.RerankTopK > p.TopK:
		return &ConfigError{Field: "rerank_topk", Reason: fmt.Sprintf("%d exceeds topk %d", p.RerankTopK, p.TopK)}
	case p.DummyNumber < p.ListwiseK-1:
		return &ConfigError{Field: "dummy_number", Reason: fmt.Sprintf("need at least %d placeholders", p.ListwiseK-1)}
	case p.BatchSize <= 0:
		return &ConfigError{Field: "bsize", Reason: "must be positive"}
	case p.Concurrency < 0:
		return &ConfigError{Field: "concurrency", Reason: "must not be negative"}
	}
	switch p.Truncation {
	case "", TruncateGroup, TruncateRank:
	default:
		return &ConfigError{Field: "truncation", Reason: fmt.Sprintf("unknown policy %q", p.Truncation)}
	}
	return nil
}
