package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/docstruct-ai/docstruct/internal/bedrock"
)

// ThrottlingExceededError is returned when the service kept throttling
// past the configured retry budget.
type ThrottlingExceededError struct {
	Retries int
	Err     error
}

func (e *ThrottlingExceededError) Error() string {
	return fmt.Sprintf("bedrock throttling persisted after %d retries: %v", e.Retries, e.Err)
}

func (e *ThrottlingExceededError) Unwrap() error {
	return e.Err
}

// retryPolicy wraps a single network call with exponential backoff plus
// jitter. Throttling errors are retried up to maxRetries times, sleeping
// backoff + uniform(0, backoff) and doubling backoff each time. Any other
// error is logged and propagated immediately.
type retryPolicy struct {
	maxRetries int
	initial    time.Duration
}

func (p retryPolicy) do(ctx context.Context, log *slog.Logger, call func() error) error {
	backoff := p.initial
	for retries := 0; ; retries++ {
		err := call()
		if err == nil {
			return nil
		}
		if !bedrock.IsThrottling(err) {
			log.Error("invoke.call.error", "error", err)
			return err
		}
		if retries == p.maxRetries {
			return &ThrottlingExceededError{Retries: retries, Err: err}
		}
		sleep := backoff + jitter(backoff)
		log.Warn("invoke.call.throttled",
			"retry", retries+1,
			"max_retries", p.maxRetries,
			"sleep_ms", sleep.Milliseconds(),
		)
		if err := pause(ctx, sleep); err != nil {
			return err
		}
		backoff *= 2
	}
}

func jitter(backoff time.Duration) time.Duration {
	if backoff <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}

// pause sleeps for d unless the context is cancelled first.
func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
