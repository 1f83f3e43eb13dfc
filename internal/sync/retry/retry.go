// Package retry wraps asynchronous operations with capped exponential
// backoff and full jitter: each wait is a uniformly random duration between
// zero and the capped exponential value.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Defaults used by zero-valued Policy fields.
const (
	DefaultAttempts  = 5
	DefaultBaseDelay = 1000 * time.Millisecond
	DefaultMaxDelay  = 10000 * time.Millisecond
)

// Policy configures Do. The zero value uses the defaults above, retries every
// error, and sleeps for real.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Retryable decides whether an error is worth another attempt. Nil
	// retries everything. Permanent errors short-circuit: they are returned
	// immediately without the remaining attempts or their waits.
	Retryable func(error) bool

	// Sleep and Rand exist for tests; nil uses the real clock and rand.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64

	Log *zap.Logger
}

// Do runs op until it succeeds, exhausts the attempt budget, or hits a
// non-retryable error. The final failure is wrapped with the attempt count;
// intermediate failures are only logged.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultMaxDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return fmt.Errorf("after %d attempt(s): %w", attempt, err)
		}
		if attempt == attempts {
			break
		}

		cap := base << (attempt - 1)
		if cap > max {
			cap = max
		}
		wait := time.Duration(random() * float64(cap))

		log.Warn("operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		if serr := sleep(ctx, wait); serr != nil {
			return fmt.Errorf("after %d attempt(s): %w", attempt, serr)
		}
	}

	return fmt.Errorf("after %d attempt(s): %w", attempts, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
