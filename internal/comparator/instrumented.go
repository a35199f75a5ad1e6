package comparator

import (
	"context"
	"time"

	"github.com/knoguchi/tourney/internal/metrics"
)

// Instrumented records batch counts, group counts and latency.
type Instrumented struct {
	next Comparator
}

// NewInstrumented wraps next with Prometheus metrics.
func NewInstrumented(next Comparator) *Instrumented {
	return &Instrumented{next: next}
}

// Name implements Comparator.
func (i *Instrumented) Name() string {
	return i.next.Name()
}

// Compare implements Comparator.
func (i *Instrumented) Compare(ctx context.Context, reqs []Request) ([]Response, error) {
	backend := i.next.Name()
	start := time.Now()

	resps, err := i.next.Compare(ctx, reqs)

	metrics.ComparatorBatchDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	metrics.ComparatorGroupsTotal.WithLabelValues(backend).Add(float64(len(reqs)))
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ComparatorBatchesTotal.WithLabelValues(backend, result).Inc()

	return resps, err
}

// Ensure Instrumented implements Comparator interface.
var _ Comparator = (*Instrumented)(nil)
