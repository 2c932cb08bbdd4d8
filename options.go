package tracker

import (
	"log/slog"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/coordinator"
	"github.com/jdziat/durable-cmd-tracker/pkg/executor"
	"github.com/jdziat/durable-cmd-tracker/pkg/jobmaster"
	"github.com/jdziat/durable-cmd-tracker/pkg/schedule"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
	"github.com/jdziat/durable-cmd-tracker/pkg/stats"
	"github.com/jdziat/durable-cmd-tracker/pkg/storage"
)

// Option configures a Tracker.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	logger           *slog.Logger
	workers          int
	workerOpts       []jobmaster.WorkerOption
	masterOpts       []jobmaster.Option
	coordOpts        []coordinator.Option
	schedOpts        []schedule.SchedulerOption
	pool             []storage.PoolOption
	local            *executor.Local
	stats            bool
	statsOpts        []stats.Option
	historyRetention time.Duration
}

func defaultOptions() options {
	return options{
		logger:  slog.Default(),
		workers: 1,
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithWorkers sets how many workers Start launches. Values are clamped to
// [1, security.MaxConcurrency].
func WithWorkers(n int) Option {
	return optionFunc(func(o *options) {
		o.workers = security.ClampConcurrency(n)
	})
}

// WithWorkerOptions configures every worker.
func WithWorkerOptions(opts ...jobmaster.WorkerOption) Option {
	return optionFunc(func(o *options) {
		o.workerOpts = append(o.workerOpts, opts...)
	})
}

// WithMasterOptions configures the job master.
func WithMasterOptions(opts ...jobmaster.Option) Option {
	return optionFunc(func(o *options) {
		o.masterOpts = append(o.masterOpts, opts...)
	})
}

// WithCoordinatorOptions configures the coordinator.
func WithCoordinatorOptions(opts ...coordinator.Option) Option {
	return optionFunc(func(o *options) {
		o.coordOpts = append(o.coordOpts, opts...)
	})
}

// WithPool configures the database connection pool.
func WithPool(opts ...storage.PoolOption) Option {
	return optionFunc(func(o *options) {
		o.pool = append(o.pool, opts...)
	})
}

// WithExecutor registers the local persist and replicate executors and sizes
// attempts from its cache.
func WithExecutor(l *executor.Local) Option {
	return optionFunc(func(o *options) {
		o.local = l
	})
}

// WithStats records per-minute command statistics.
func WithStats(opts ...stats.Option) Option {
	return optionFunc(func(o *options) {
		o.stats = true
		o.statsOpts = append(o.statsOpts, opts...)
	})
}

// WithHistoryRetention prunes finished command runs older than d. Zero keeps
// them forever.
func WithHistoryRetention(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.historyRetention = d
	})
}

// WithSchedulerOptions configures the scheduler of recurring commands.
func WithSchedulerOptions(opts ...schedule.SchedulerOption) Option {
	return optionFunc(func(o *options) {
		o.schedOpts = append(o.schedOpts, opts...)
	})
}
