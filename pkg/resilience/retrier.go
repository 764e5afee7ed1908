package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetrierConfig configures a Retrier.
type RetrierConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; subsequent retries
	// double it.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Jitter scales each delay by a uniform random factor in [0.5, 1.0)
	// to spread out retry storms.
	Jitter bool

	// Retryable decides whether a failure is worth retrying. When nil,
	// everything except an open-circuit rejection and context cancellation
	// is retried.
	Retryable func(error) bool

	// Logger receives retry attempt logs. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// Retrier wraps a call with bounded exponential-backoff retries. It is
// stateless configuration applied per call and safe for concurrent use.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      bool
	retryable   func(error) bool
	log         zerolog.Logger

	// sleep and randFloat are stubbed in tests.
	sleep     func(context.Context, time.Duration) error
	randFloat func() float64
}

// NewRetrier creates a retrier. Zero values get the defaults of
// 3 attempts, 1s base delay, and 10s max delay.
func NewRetrier(cfg RetrierConfig) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Retryable == nil {
		cfg.Retryable = DefaultRetryable
	}
	return &Retrier{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		jitter:      cfg.Jitter,
		retryable:   cfg.Retryable,
		log:         cfg.Logger,
		sleep:       sleepContext,
		randFloat:   rand.Float64,
	}
}

// DefaultRetryable retries everything except open-circuit rejections and
// context cancellation. Retrying a fail-fast rejection would defeat the
// breaker's purpose, so it is always classified non-retryable.
func DefaultRetryable(err error) bool {
	if IsOpen(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Do invokes op up to MaxAttempts times. Between attempts it sleeps for
// min(MaxDelay, BaseDelay*2^(attempt-1)), jittered when enabled. The sleep
// respects ctx so a cancelled caller never blocks on backoff. After the
// attempts are exhausted the last error is returned unchanged.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.retryable(lastErr) {
			return lastErr
		}
		if attempt >= r.maxAttempts {
			r.log.Warn().
				Int("attempts", attempt).
				Err(lastErr).
				Msg("retrier gave up")
			return lastErr
		}

		delay := r.delay(attempt)
		r.log.Debug().
			Int("attempt", attempt).
			Int("max_attempts", r.maxAttempts).
			Dur("delay", delay).
			Err(lastErr).
			Msg("retrying after failure")

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// delay computes the backoff before retry number attempt (1-based).
func (r *Retrier) delay(attempt int) time.Duration {
	d := r.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.maxDelay {
			d = r.maxDelay
			break
		}
	}
	if d > r.maxDelay {
		d = r.maxDelay
	}
	if r.jitter {
		d = time.Duration(float64(d) * (0.5 + r.randFloat()/2))
	}
	return d
}

// sleepContext blocks for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
