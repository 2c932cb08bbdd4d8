// Package tracker runs file-system commands as batches of durable jobs and
// tracks every attempt until the command reaches a terminal status.
//
// This is the main package users should import. It wires storage, the job
// master, the local executors and the coordinator together and re-exports
// the types callers need.
//
// Basic usage:
//
//	t, _ := tracker.Open(ctx, "tracker.db",
//	    tracker.WithExecutor(&executor.Local{CacheRoot: "/cache", ReplicaRoot: "/replicas"}),
//	)
//	defer t.Close()
//
//	// Start workers
//	t.Start(ctx)
//
//	// Run a command
//	cmd, _ := tracker.NewPersistCmd([]string{"/a", "/b"}, 1, false, "/ufs")
//	res, _ := t.Run(ctx, cmd)
//	fmt.Println(res.Status, res.FailedTargets)
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/api"
	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/coordinator"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/jobmaster"
	"github.com/jdziat/durable-cmd-tracker/pkg/notify"
	"github.com/jdziat/durable-cmd-tracker/pkg/schedule"
	"github.com/jdziat/durable-cmd-tracker/pkg/stats"
	"github.com/jdziat/durable-cmd-tracker/pkg/storage"
)

// Type aliases
type (
	// CmdConfig is a command: a batch operation over affected paths.
	CmdConfig = core.CmdConfig

	// JobConfig is the unit the job master executes for one target.
	JobConfig = core.JobConfig

	// Status is the state of a job, task or command.
	Status = core.Status

	// OperationType tags what a command does.
	OperationType = core.OperationType

	// JobInfo is the status tree of a submitted job.
	JobInfo = core.JobInfo

	// CommandRun is the recorded history of one command.
	CommandRun = core.CommandRun

	// AttemptRecord is the recorded history of one attempt.
	AttemptRecord = core.AttemptRecord

	// Event is the interface for all coordinator and job master events.
	Event = core.Event

	// Result is the aggregated outcome of one command.
	Result = coordinator.Result

	// PersistCmdConfig persists cached files to the under file system.
	PersistCmdConfig = cmdconfig.PersistCmdConfig

	// ReplicateCmdConfig sets the replica count of files.
	ReplicateCmdConfig = cmdconfig.ReplicateCmdConfig
)

// Status constants
const (
	StatusCreated   = core.StatusCreated
	StatusRunning   = core.StatusRunning
	StatusCompleted = core.StatusCompleted
	StatusCanceled  = core.StatusCanceled
	StatusFailed    = core.StatusFailed
)

// Errors
var (
	ErrJobNotFound        = core.ErrJobNotFound
	ErrCommandNotFound    = core.ErrCommandNotFound
	ErrSubmissionRejected = core.ErrSubmissionRejected
	ErrNoAffectedPaths    = core.ErrNoAffectedPaths
	ErrNotStarted         = errors.New("tracker: workers not started")
)

// NewPersistCmd creates a persist command.
func NewPersistCmd(paths []string, mountID int64, overwrite bool, ufsRoot string) (PersistCmdConfig, error) {
	return cmdconfig.NewPersistCmd(paths, mountID, overwrite, ufsRoot)
}

// NewReplicateCmd creates a replicate command.
func NewReplicateCmd(paths []string, replicas int) (ReplicateCmdConfig, error) {
	return cmdconfig.NewReplicateCmd(paths, replicas)
}

// LoadCommands reads a YAML command file.
func LoadCommands(path string) ([]CmdConfig, error) {
	return cmdconfig.LoadCommands(path)
}

// Tracker owns the storage, job master, workers and coordinator of one
// process.
type Tracker struct {
	store     *storage.GormStorage
	master    *jobmaster.JobMaster
	coord     *coordinator.Coordinator
	stats     stats.Store
	collector *stats.Collector
	scheduler *schedule.Scheduler
	opts      options
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	workers []*jobmaster.Worker
	wg      sync.WaitGroup
}

// Open connects to dsn, migrates every table and wires the components.
// Workers do not run until Start is called.
func Open(ctx context.Context, dsn string, opts ...Option) (*Tracker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	store, err := storage.Open(ctx, dsn, o.pool...)
	if err != nil {
		return nil, err
	}

	t := &Tracker{store: store, opts: o, logger: o.logger}

	masterOpts := append([]jobmaster.Option{jobmaster.WithLogger(o.logger)}, o.masterOpts...)
	t.master = jobmaster.New(store, masterOpts...)
	if o.local != nil {
		if o.local.Logger == nil {
			o.local.Logger = o.logger
		}
		o.local.Register(t.master)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithHistory(store),
		coordinator.WithLogger(o.logger),
	}
	if o.local != nil {
		coordOpts = append(coordOpts, coordinator.WithSizer(o.local.Size))
	}
	t.coord = coordinator.New(t.master, append(coordOpts, o.coordOpts...)...)

	if o.stats {
		t.stats = stats.NewGormStore(store.DB())
		if err := t.stats.MigrateStats(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate stats: %w", err)
		}
		statsOpts := []stats.Option{
			stats.WithJobCounter(t.master.Counts),
			stats.WithLogger(o.logger),
		}
		t.collector = stats.NewCollector(t.coord, t.stats, append(statsOpts, o.statsOpts...)...)
	}

	schedOpts := append([]schedule.SchedulerOption{schedule.WithLogger(o.logger)}, o.schedOpts...)
	t.scheduler = schedule.NewScheduler(t.runScheduled, schedOpts...)
	return t, nil
}

// Start launches the workers, the stats collector and the scheduler, and
// returns once every worker is registered. They stop when ctx is cancelled;
// Wait blocks until they have.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("tracker: already started")
	}
	t.started = true
	for i := 0; i < t.opts.workers; i++ {
		t.workers = append(t.workers, t.master.NewWorker(t.opts.workerOpts...))
	}
	t.mu.Unlock()

	for _, w := range t.workers {
		t.goRun(func() {
			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				t.logger.Error("worker stopped", "worker_id", w.ID(), "error", err)
			}
		})
	}

	if t.collector != nil {
		t.goRun(func() { t.collector.Start(ctx) })
		t.collector.WaitReady()
	}
	t.goRun(func() { t.scheduler.Start(ctx) })
	if t.opts.historyRetention > 0 {
		t.goRun(func() { t.pruneHistory(ctx) })
	}

	for _, w := range t.workers {
		select {
		case <-w.Registered():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.logger.Info("tracker started", "workers", len(t.workers))
	return nil
}

func (t *Tracker) goRun(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

// Wait blocks until everything launched by Start has stopped.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Run executes cmd and blocks until it reaches a terminal status.
func (t *Tracker) Run(ctx context.Context, cmd CmdConfig) (*Result, error) {
	if !t.isStarted() {
		return nil, ErrNotStarted
	}
	return t.coord.Run(ctx, cmd)
}

// Submit executes cmd in the background and returns its command id.
func (t *Tracker) Submit(ctx context.Context, cmd CmdConfig) (string, <-chan *Result, error) {
	if !t.isStarted() {
		return "", nil, ErrNotStarted
	}
	return t.coord.Start(ctx, cmd)
}

func (t *Tracker) isStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Schedule runs cmd on sched once Start has been called.
func (t *Tracker) Schedule(name string, sched schedule.Schedule, cmd CmdConfig) error {
	if _, err := cmdconfig.Expand(cmd); err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	return t.scheduler.Add(name, sched, cmd)
}

func (t *Tracker) runScheduled(ctx context.Context, cmd CmdConfig) error {
	res, err := t.coord.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		return fmt.Errorf("command %s finished %s, failed targets: %v", res.CommandID, res.Status, res.FailedTargets)
	}
	return nil
}

// Notify publishes every finished command through n.
func (t *Tracker) Notify(n *notify.Notifier) {
	t.coord.OnCommandFinished(n.Hook)
}

// Handler returns the HTTP API. Commands started through it run under runCtx.
func (t *Tracker) Handler(runCtx context.Context) http.Handler {
	opts := []api.Option{
		api.WithRunContext(runCtx),
		api.WithLogger(t.logger),
	}
	if t.stats != nil {
		opts = append(opts, api.WithStats(t.stats))
	}
	return api.NewServer(t.coord, t.store, t.master, opts...).Handler()
}

func (t *Tracker) pruneHistory(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := t.store.PruneHistory(ctx, time.Now().Add(-t.opts.historyRetention))
		if err != nil && ctx.Err() == nil {
			t.logger.Warn("failed to prune command history", "error", err)
		} else if n > 0 {
			t.logger.Info("pruned command history", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Coordinator returns the command coordinator.
func (t *Tracker) Coordinator() *coordinator.Coordinator { return t.coord }

// JobMaster returns the embedded job master.
func (t *Tracker) JobMaster() *jobmaster.JobMaster { return t.master }

// Storage returns the gorm storage.
func (t *Tracker) Storage() *storage.GormStorage { return t.store }

// Stats returns the stats store, or nil when stats are disabled.
func (t *Tracker) Stats() stats.Store { return t.stats }

// Close closes the database. Cancel the Start context and Wait first.
func (t *Tracker) Close() error {
	return t.store.Close()
}
