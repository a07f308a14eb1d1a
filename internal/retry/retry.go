// Package retry runs an operation with exponential backoff between failed attempts.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxAttempts   = 5
	DefaultInitialDelay  = 200 * time.Millisecond
	DefaultBackoffFactor = 2.0
)

type config struct {
	maxAttempts   int
	initialDelay  time.Duration
	backoffFactor float64
	maxDelay      time.Duration
	shouldRetry   func(err error, attempt int) bool
	onRetry       func(err error, attempt int, delay time.Duration)
	clock         clockwork.Clock
}

// Option configures Do.
type Option func(*config)

// WithMaxAttempts sets the total number of attempts. Values below 1 mean a single attempt.
func WithMaxAttempts(n int) Option {
	return func(c *config) { c.maxAttempts = n }
}

// WithInitialDelay sets the wait before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(c *config) { c.initialDelay = d }
}

// WithBackoffFactor sets the multiplier applied to the delay after each failure.
func WithBackoffFactor(f float64) Option {
	return func(c *config) { c.backoffFactor = f }
}

// WithMaxDelay caps a single wait. Zero leaves the delay uncapped.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) { c.maxDelay = d }
}

// WithShouldRetry decides whether a failed attempt may be retried.
func WithShouldRetry(fn func(err error, attempt int) bool) Option {
	return func(c *config) { c.shouldRetry = fn }
}

// WithOnRetry registers a hook called right before each backoff wait.
func WithOnRetry(fn func(err error, attempt int, delay time.Duration)) Option {
	return func(c *config) { c.onRetry = fn }
}

// WithClock sets the clock used for backoff waits.
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) { c.clock = clock }
}

func newConfig(opts []Option) config {
	c := config{
		maxAttempts:   DefaultMaxAttempts,
		initialDelay:  DefaultInitialDelay,
		backoffFactor: DefaultBackoffFactor,
		shouldRetry:   func(error, int) bool { return true },
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if c.initialDelay < 0 {
		c.initialDelay = 0
	}
	return c
}

// Do calls action until it succeeds, attempts run out, or shouldRetry refuses.
// Attempts are numbered from 1. The last error is returned unchanged.
// A cancelled ctx interrupts a backoff wait and its error is returned.
func Do[T any](ctx context.Context, action func(ctx context.Context, attempt int) (T, error), opts ...Option) (T, error) {
	cfg := newConfig(opts)
	delay := cfg.initialDelay

	for attempt := 1; ; attempt++ {
		result, err := action(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if attempt >= cfg.maxAttempts || !cfg.shouldRetry(err, attempt) {
			return result, err
		}

		wait := delay
		if cfg.maxDelay > 0 && wait > cfg.maxDelay {
			wait = cfg.maxDelay
		}
		if cfg.onRetry != nil {
			cfg.onRetry(err, attempt, wait)
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-cfg.clock.After(wait):
		}

		delay = nextDelay(delay, cfg.backoffFactor)
	}
}

// Func wraps action so every call goes through Do with the same options.
func Func[T any](action func(ctx context.Context, attempt int) (T, error), opts ...Option) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Do(ctx, action, opts...)
	}
}

func nextDelay(delay time.Duration, factor float64) time.Duration {
	next := math.Floor(float64(delay) * factor)
	if next <= 0 || math.IsNaN(next) {
		return 0
	}
	if next >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(next)
}
