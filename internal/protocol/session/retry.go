package session

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

var ErrNoAttempts = errors.New("session: retry attempts exhausted")

// Sleeper waits d between attempts. It returns early with an error only when
// it observes ctx ending.
type Sleeper func(ctx context.Context, d time.Duration) error

// BlockingSleeper parks the calling goroutine for the full delay and ignores ctx.
func BlockingSleeper(_ context.Context, d time.Duration) error {
	time.Sleep(d)
	return nil
}

// ContextSleeper waits on a timer and returns ctx.Err() if ctx ends first.
func ContextSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retryOptions struct {
	retryIf func(error) bool
	sleep   Sleeper
	onRetry func(attempt int, delay time.Duration, err error)
	rng     *rand.Rand
}

type RetryOption func(*retryOptions)

// WithRetryIf limits retries to errors pred accepts. Without it every error is retried.
func WithRetryIf(pred func(error) bool) RetryOption {
	return func(o *retryOptions) { o.retryIf = pred }
}

func WithSleeper(s Sleeper) RetryOption {
	return func(o *retryOptions) { o.sleep = s }
}

// WithOnRetry is called after a failed attempt, before sleeping.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) RetryOption {
	return func(o *retryOptions) { o.onRetry = fn }
}

// WithRand supplies the jitter source.
func WithRand(rng *rand.Rand) RetryOption {
	return func(o *retryOptions) { o.rng = rng }
}

// Retry runs op up to cfg.MaxAttempts times, sleeping NextBackoffDelay(attempt)
// after each failed attempt except the last. It returns the first success or
// the final error. A MaxAttempts below 1 runs op once.
func Retry[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context, attempt int) (T, error), opts ...RetryOption) (T, error) {
	o := retryOptions{sleep: ContextSleeper}
	for _, opt := range opts {
		opt(&o)
	}
	attempts := max(cfg.MaxAttempts, 1)

	var zero T
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}
		last = err
		if attempt == attempts || (o.retryIf != nil && !o.retryIf(err)) {
			return zero, err
		}
		delay := NextBackoffDelay(cfg, attempt, o.rng)
		if o.onRetry != nil {
			o.onRetry(attempt, delay, err)
		}
		if err := o.sleep(ctx, delay); err != nil {
			return zero, errors.Join(last, err)
		}
	}
	if last == nil {
		last = ErrNoAttempts
	}
	return zero, last
}
