package resilience

import "context"

// Guard encodes the composition rule for the two primitives: the Retrier
// wraps OUTSIDE the CircuitBreaker. Every attempt, including retries, is
// accounted by the breaker's state machine, and an open-circuit rejection
// is never retried (see DefaultRetryable), preserving the breaker's
// fail-fast intent.
type Guard struct {
	Retrier *Retrier
	Breaker *CircuitBreaker
}

// NewGuard creates a guard from a retrier and a breaker.
func NewGuard(r *Retrier, cb *CircuitBreaker) Guard {
	return Guard{Retrier: r, Breaker: cb}
}

// Run executes op behind the breaker, retrying failed attempts.
func (g Guard) Run(ctx context.Context, op func(context.Context) error) error {
	return g.Retrier.Do(ctx, func(ctx context.Context) error {
		return g.Breaker.Execute(ctx, op)
	})
}
