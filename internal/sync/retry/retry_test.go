package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	p := Policy{Sleep: func(context.Context, time.Duration) error { return nil }}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoSucceedsOnLaterAttempt(t *testing.T) {
	var waits []time.Duration
	p := Policy{Sleep: noSleep(&waits)}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, waits, 2)
}

func TestDoExhaustsAttempts(t *testing.T) {
	var waits []time.Duration
	p := Policy{Attempts: 4, Sleep: noSleep(&waits)}

	boom := errors.New("boom")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 4 attempt(s)")
	assert.Equal(t, 4, calls)
	// No wait after the final attempt.
	assert.Len(t, waits, 3)
}

func TestDoShortCircuitsNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	p := Policy{
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
		Sleep:     func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Contains(t, err.Error(), "after 1 attempt(s)")
	assert.Equal(t, 1, calls)
}

func TestDoWaitsWithinJitterBounds(t *testing.T) {
	var waits []time.Duration
	p := Policy{
		Attempts:  5,
		BaseDelay: 1000 * time.Millisecond,
		MaxDelay:  10000 * time.Millisecond,
		Sleep:     noSleep(&waits),
		Rand:      func() float64 { return 1.0 },
	}

	err := p.Do(context.Background(), func(context.Context) error {
		return errors.New("transient")
	})
	require.Error(t, err)

	// With jitter pinned to its upper bound, waits follow the doubled base
	// capped at the max delay.
	require.Len(t, waits, 4)
	assert.Equal(t, 1000*time.Millisecond, waits[0])
	assert.Equal(t, 2000*time.Millisecond, waits[1])
	assert.Equal(t, 4000*time.Millisecond, waits[2])
	assert.Equal(t, 8000*time.Millisecond, waits[3])

	waits = waits[:0]
	p.Attempts = 6
	err = p.Do(context.Background(), func(context.Context) error {
		return errors.New("transient")
	})
	require.Error(t, err)
	require.Len(t, waits, 5)
	assert.Equal(t, 10000*time.Millisecond, waits[4])
}

func TestDoZeroJitterNeverWaits(t *testing.T) {
	var waits []time.Duration
	p := Policy{
		Attempts: 3,
		Sleep:    noSleep(&waits),
		Rand:     func() float64 { return 0 },
	}

	err := p.Do(context.Background(), func(context.Context) error {
		return errors.New("transient")
	})
	require.Error(t, err)
	for _, w := range waits {
		assert.Equal(t, time.Duration(0), w)
	}
}

func TestDoStopsWhenContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	p := Policy{
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
