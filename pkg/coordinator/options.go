package coordinator

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/retry"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

// Option configures a Coordinator.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// Sizer reports the file count and byte size behind a target.
type Sizer func(target string) (count int64, size int64)

type config struct {
	maxConcurrent int
	pollInterval  time.Duration
	policy        retry.Factory
	submitRate    rate.Limit
	submitBurst   int
	history       core.HistoryStorage
	sizer         Sizer
	logger        *slog.Logger
}

func defaultConfig() config {
	return config{
		maxConcurrent: 64,
		pollInterval:  time.Second,
		policy:        retry.DefaultFactory(),
		submitRate:    rate.Inf,
		logger:        slog.Default(),
	}
}

// WithMaxConcurrentAttempts bounds how many attempts of one command are in
// flight at once. Values are clamped to [1, security.MaxConcurrency].
func WithMaxConcurrentAttempts(n int) Option {
	return optionFunc(func(c *config) {
		c.maxConcurrent = security.ClampConcurrency(n)
	})
}

// WithPollInterval sets the delay between status queries of one attempt.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	})
}

// WithRetryPolicy sets the factory that gives each attempt its own
// submission policy.
func WithRetryPolicy(f retry.Factory) Option {
	return optionFunc(func(c *config) {
		if f != nil {
			c.policy = f
		}
	})
}

// WithSubmitRetry uses exponential backoff submission policies built from
// cfg. MaxAttempts is clamped to [1, security.MaxSubmitAttempts].
func WithSubmitRetry(cfg retry.Config) Option {
	return optionFunc(func(c *config) {
		cfg.MaxAttempts = security.ClampAttempts(cfg.MaxAttempts)
		c.policy = retry.BackoffFactory(cfg)
	})
}

// WithSubmitRate throttles submissions across all attempts of the
// coordinator to r per second with the given burst.
func WithSubmitRate(r float64, burst int) Option {
	return optionFunc(func(c *config) {
		if r <= 0 {
			c.submitRate = rate.Inf
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.submitRate = rate.Limit(r)
		c.submitBurst = burst
	})
}

// WithHistory records every command run and attempt outcome.
func WithHistory(h core.HistoryStorage) Option {
	return optionFunc(func(c *config) {
		c.history = h
	})
}

// WithSizer fills each attempt's file count and size.
func WithSizer(s Sizer) Option {
	return optionFunc(func(c *config) {
		c.sizer = s
	})
}

// WithLogger sets the logger for the coordinator and its attempts.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}
