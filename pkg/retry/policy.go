package retry

import (
	"context"
	"time"
)

// Policy decides whether another attempt may be made. The first call to
// Attempt always returns true unless ctx is already done; later calls may
// block for a backoff delay before answering.
//
// A Policy is stateful and must not be shared between attempts.
type Policy interface {
	Attempt(ctx context.Context) bool
	AttemptCount() int
}

// Factory creates a fresh Policy for each attempt.
type Factory func() Policy

// CountingPolicy allows a fixed number of attempts without waiting.
type CountingPolicy struct {
	max   int
	count int
}

// Counting returns a policy allowing at most maxAttempts attempts.
func Counting(maxAttempts int) *CountingPolicy {
	return &CountingPolicy{max: maxAttempts}
}

func (p *CountingPolicy) Attempt(ctx context.Context) bool {
	if ctx.Err() != nil || p.count >= p.max {
		return false
	}
	p.count++
	return true
}

func (p *CountingPolicy) AttemptCount() int { return p.count }

// BackoffPolicy allows cfg.MaxAttempts attempts, sleeping an exponentially
// growing, jittered delay before every attempt but the first.
type BackoffPolicy struct {
	cfg     Config
	b       *backoff
	count   int
	sleepFn func(context.Context, time.Duration) bool
}

// ExponentialBackoff returns a backoff policy built from cfg.
func ExponentialBackoff(cfg Config) *BackoffPolicy {
	return &BackoffPolicy{cfg: cfg, b: newBackoff(cfg), sleepFn: sleep}
}

func (p *BackoffPolicy) Attempt(ctx context.Context) bool {
	if ctx.Err() != nil || p.count >= p.cfg.MaxAttempts {
		return false
	}
	if p.count > 0 && !p.sleepFn(ctx, p.b.step()) {
		return false
	}
	p.count++
	return true
}

func (p *BackoffPolicy) AttemptCount() int { return p.count }

// TimeoutPolicy allows attempts spaced by interval until the deadline, which
// starts counting at the first attempt.
type TimeoutPolicy struct {
	timeout  time.Duration
	interval time.Duration
	deadline time.Time
	count    int
	now      func() time.Time
}

// Timeout returns a policy that keeps attempting for at most d.
func Timeout(d, interval time.Duration) *TimeoutPolicy {
	return &TimeoutPolicy{timeout: d, interval: interval, now: time.Now}
}

func (p *TimeoutPolicy) Attempt(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.count == 0 {
		p.deadline = p.now().Add(p.timeout)
		p.count++
		return true
	}

	if !p.now().Before(p.deadline) {
		return false
	}
	if !sleep(ctx, p.interval) || p.now().After(p.deadline) {
		return false
	}
	p.count++
	return true
}

func (p *TimeoutPolicy) AttemptCount() int { return p.count }

// CountingFactory returns a factory of Counting(maxAttempts) policies.
func CountingFactory(maxAttempts int) Factory {
	return func() Policy { return Counting(maxAttempts) }
}

// BackoffFactory returns a factory of ExponentialBackoff(cfg) policies.
func BackoffFactory(cfg Config) Factory {
	return func() Policy { return ExponentialBackoff(cfg) }
}

// TimeoutFactory returns a factory of Timeout(d, interval) policies.
func TimeoutFactory(d, interval time.Duration) Factory {
	return func() Policy { return Timeout(d, interval) }
}

// DefaultFactory returns the policy factory used when none is configured.
func DefaultFactory() Factory {
	return BackoffFactory(DefaultConfig())
}
