// Package retry wraps fallible operations in exponential backoff with
// additive jitter. Repositories never retry internally; callers opt in
// here so retry policy stays at the edge.
package retry

import (
	"context"
	"math/rand"
	"time"

	"plateful/internal/apperr"
)

type Options struct {
	// MaxRetries is the total number of attempts, not the number of
	// re-tries after the first call.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry decides whether a failure is worth another attempt.
	// Defaults to the classifier's retryable flag.
	ShouldRetry func(error) bool
	// OnRetry fires before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = apperr.IsRetryable
	}
	return o
}

// Do runs op until it succeeds, the failure is not retryable, the attempt
// budget runs out, or ctx is done. The last error is returned as-is.
func Do[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var (
		result T
		err    error
	)
	for attempt := 1; ; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= opts.MaxRetries || !opts.ShouldRetry(err) {
			return result, err
		}

		delay := backoff(opts.InitialDelay, opts.MaxDelay, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff doubles the delay per attempt, caps it, and adds up to 30%
// jitter. Jitter is only ever added so the cap stays a lower bound on
// spread, avoiding synchronized retries.
func backoff(initial, max time.Duration, attempt int) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)*3/10 + 1))
	return delay + jitter
}
