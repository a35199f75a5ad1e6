package comparator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the comparator circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is how many consecutive failed batches open the breaker.
	FailureThreshold uint32

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// Breaker fails batches fast while the wrapped comparator keeps failing.
// Per-group malformed output does not count as a failure.
type Breaker struct {
	next   Comparator
	cb     *gobreaker.CircuitBreaker[[]Response]
	logger *slog.Logger
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Comparator, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	b := &Breaker{next: next, logger: logger}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("comparator_breaker_state_changed",
				slog.String("backend", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	b.cb = gobreaker.NewCircuitBreaker[[]Response](settings)

	return b
}

// Name implements Comparator.
func (b *Breaker) Name() string {
	return b.next.Name()
}

// errAllUnavailable reports a batch in which every group was unavailable.
var errAllUnavailable = errors.New("every group unavailable")

// Compare implements Comparator. A batch counts as failed when the call
// errors or when every response carries ErrUnavailable.
func (b *Breaker) Compare(ctx context.Context, reqs []Request) ([]Response, error) {
	resps, err := b.cb.Execute(func() ([]Response, error) {
		resps, err := b.next.Compare(ctx, reqs)
		if err == nil && allUnavailable(resps) {
			return resps, errAllUnavailable
		}
		return resps, err
	})
	switch {
	case errors.Is(err, errAllUnavailable):
		return resps, nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resps, err
}

func allUnavailable(resps []Response) bool {
	if len(resps) == 0 {
		return false
	}
	for _, r := range resps {
		if !errors.Is(r.Err, ErrUnavailable) {
			return false
		}
	}
	return true
}

// Ensure Breaker implements Comparator interface.
var _ Comparator = (*Breaker)(nil)
