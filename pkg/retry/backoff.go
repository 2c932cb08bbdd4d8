package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// Config holds configuration for retry with backoff.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 5
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	// Default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	// Default: 5s
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier applied to backoff after each attempt.
	// Default: 2.0
	BackoffMultiplier float64

	// JitterFraction is the fraction of backoff to randomize (0.0 to 1.0).
	// Default: 0.1 (10% jitter)
	JitterFraction float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// backoff is the exponential schedule shared by Do and the backoff policy.
type backoff struct {
	cfg  Config
	next time.Duration
}

func newBackoff(cfg Config) *backoff {
	return &backoff{cfg: cfg, next: cfg.InitialBackoff}
}

// step returns the jittered delay to wait now and grows the next one.
func (b *backoff) step() time.Duration {
	cur := b.next
	jitter := time.Duration(float64(cur) * b.cfg.JitterFraction * (rand.Float64()*2 - 1))
	d := cur + jitter
	if d < 0 {
		d = cur
	}

	b.next = time.Duration(float64(cur) * b.cfg.BackoffMultiplier)
	if b.cfg.MaxBackoff > 0 && b.next > b.cfg.MaxBackoff {
		b.next = b.cfg.MaxBackoff
	}
	return d
}

// sleep waits for d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Do executes op with exponential backoff on failure.
// It respects context cancellation and returns the last error if all attempts fail.
func Do(ctx context.Context, cfg Config, op func() error) error {
	var lastErr error
	b := newBackoff(cfg)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !IsRetryableError(lastErr) {
			return lastErr
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		if !sleep(ctx, b.step()) {
			return ctx.Err()
		}
	}

	return lastErr
}

// IsRetryableError determines if an error is worth retrying.
// Returns false for errors that indicate permanent failures.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var noRetry *core.NoRetryError
	if errors.As(err, &noRetry) {
		return false
	}

	// Storage errors are transient more often than not; retry unless we
	// know better.
	return true
}
