package jobmaster

import (
	"log/slog"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/lease"
	"github.com/jdziat/durable-cmd-tracker/pkg/retry"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

// Option configures a JobMaster.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	leases     *lease.Manager
	maxRetries int
	logger     *slog.Logger
}

// WithLeaseManager shares a lease manager between masters and workers.
func WithLeaseManager(m *lease.Manager) Option {
	return optionFunc(func(c *config) {
		if m != nil {
			c.leases = m
		}
	})
}

// WithMaxRetries sets how often a failing task is re-run before it is
// marked FAILED. Values are clamped to [0, security.MaxRetries].
func WithMaxRetries(n int) Option {
	return optionFunc(func(c *config) {
		c.maxRetries = security.ClampRetries(n)
	})
}

// WithLogger sets the job master logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	WorkerID     string
	Concurrency  int
	PollInterval time.Duration

	// HeartbeatInterval spaces task lock renewals.
	HeartbeatInterval time.Duration
	// LeaseRenewInterval spaces worker registration heartbeats.
	LeaseRenewInterval time.Duration

	// TaskBackoff is the delay before the first task retry; it doubles per
	// attempt up to MaxTaskBackoff.
	TaskBackoff    time.Duration
	MaxTaskBackoff time.Duration

	// Maintenance releases stale task locks and prunes finished jobs.
	MaintenanceInterval time.Duration
	StaleLockAge        time.Duration
	Retention           time.Duration

	StorageRetry retry.Config
	DequeueRetry retry.Config
}

func defaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:         10,
		PollInterval:        100 * time.Millisecond,
		HeartbeatInterval:   2 * time.Minute,
		LeaseRenewInterval:  10 * time.Second,
		TaskBackoff:         time.Second,
		MaxTaskBackoff:      time.Minute,
		MaintenanceInterval: time.Minute,
		StaleLockAge:        time.Minute,
		StorageRetry:        retry.DefaultConfig(),
		DequeueRetry: retry.Config{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.2,
		},
	}
}

// WorkerID sets the worker's identity. Default: a random UUID.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.WorkerID = id
	})
}

// Concurrency sets how many tasks the worker runs at once.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// PollInterval sets the delay between dequeue attempts.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// HeartbeatInterval sets how often running task locks are extended.
func HeartbeatInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.HeartbeatInterval = d
		}
	})
}

// LeaseRenewInterval sets how often the worker renews its registration.
func LeaseRenewInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.LeaseRenewInterval = d
		}
	})
}

// TaskBackoff sets the first retry delay of a failed task and its cap.
func TaskBackoff(initial, limit time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if initial > 0 {
			c.TaskBackoff = initial
		}
		if limit >= c.TaskBackoff {
			c.MaxTaskBackoff = limit
		}
	})
}

// Maintenance configures stale lock release and retention pruning. A zero
// retention keeps finished jobs forever.
func Maintenance(interval, staleLockAge, retention time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if interval > 0 {
			c.MaintenanceInterval = interval
		}
		if staleLockAge > 0 {
			c.StaleLockAge = staleLockAge
		}
		c.Retention = retention
	})
}

// StorageRetry sets the retry policy for task state writes.
func StorageRetry(cfg retry.Config) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg.MaxAttempts = security.ClampAttempts(cfg.MaxAttempts)
		c.StorageRetry = cfg
	})
}

// DequeueRetry sets the retry policy for dequeue queries.
func DequeueRetry(cfg retry.Config) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg.MaxAttempts = security.ClampAttempts(cfg.MaxAttempts)
		c.DequeueRetry = cfg
	})
}
