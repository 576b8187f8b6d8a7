package delivery

import (
	"context"
	"time"
)

// Default retry configuration values.
const (
	DefaultAttempts   = 3
	DefaultMultiplier = time.Second
	DefaultMaxWait    = 10 * time.Second
)

// RetryPolicy runs an operation up to Attempts times with exponential
// backoff between tries. Only *Error failures are retried.
type RetryPolicy struct {
	Attempts   int
	Multiplier time.Duration
	MaxWait    time.Duration
	// Sleep waits for d or until ctx ends. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy allows three tries waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   DefaultAttempts,
		Multiplier: DefaultMultiplier,
		MaxWait:    DefaultMaxWait,
	}
}

// Wait returns the pause after the given 1-based try:
// Multiplier * 2^(try-1), clamped to [Multiplier, MaxWait].
func (p RetryPolicy) Wait(try int) time.Duration {
	if try < 1 {
		try = 1
	}
	wait := p.Multiplier
	for i := 1; i < try && wait < p.MaxWait; i++ {
		wait *= 2
	}
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// Do calls op until it succeeds, fails with a non-retryable error, or the
// attempts run out. The error of the last try is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, try int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for try := 1; try <= attempts; try++ {
		if err = op(ctx, try); err == nil {
			return nil
		}
		if !IsDeliveryError(err) || try == attempts {
			return err
		}
		if sleepErr := sleep(ctx, p.Wait(try)); sleepErr != nil {
			return err
		}
	}
	return err
}

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
