package jobmaster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/internal/handler"
	"github.com/jdziat/durable-cmd-tracker/pkg/lease"
	"github.com/jdziat/durable-cmd-tracker/pkg/metrics"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

// Describe renders the description of a task. Failed-target attribution
// parses the path back out of it, so the path is followed by the target
// delimiter.
func Describe(target string, index, attempt int) string {
	return fmt.Sprintf("Task %d %s%s%s attempt %d", index, core.TargetKey, target, core.TargetDelimiter, attempt)
}

// JobMaster executes submitted job configs as persisted root jobs and
// tasks. It implements core.JobControlClient.
type JobMaster struct {
	storage  core.Storage
	handlers map[string]*handler.Handler
	config   config
	logger   *slog.Logger
	cache    *metrics.Recorder
	mu       sync.RWMutex

	// Hooks
	onTaskFinished []func(context.Context, *core.TaskFinished)
	onTaskRetrying []func(context.Context, *core.TaskRetrying)

	// Event stream
	eventSubs []chan core.Event

	// Running task cancellation registry
	running   map[string]context.CancelFunc
	runningMu sync.Mutex
}

// New creates a JobMaster backed by s.
func New(s core.Storage, opts ...Option) *JobMaster {
	cfg := config{maxRetries: 3, logger: slog.Default()}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if cfg.leases == nil {
		cfg.leases = lease.NewManager()
	}

	return &JobMaster{
		storage:  s,
		handlers: make(map[string]*handler.Handler),
		config:   cfg,
		logger:   cfg.logger,
		cache:    metrics.NewRecorder(),
		running:  make(map[string]context.CancelFunc),
	}
}

// Register registers the executor for job configs named name. The function
// must have signature func(ctx context.Context, cfg T) error, where T is the
// job config type.
func (m *JobMaster) Register(name string, fn any) {
	if err := security.ValidateConfigName(name); err != nil {
		panic(fmt.Sprintf("tracker: invalid executor name %q: %v", name, err))
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("tracker: executor for %q: %v", name, err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Handle registers a typed executor under the name of T's zero value.
func Handle[T core.JobConfig](m *JobMaster, fn func(context.Context, T) error) {
	var zero T
	m.Register(zero.Name(), fn)
}

// HasExecutor reports whether an executor is registered for name.
func (m *JobMaster) HasExecutor(name string) bool {
	_, ok := m.getHandler(name)
	return ok
}

func (m *JobMaster) getHandler(name string) (*handler.Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[name]
	return h, ok
}

// Storage returns the master's storage.
func (m *JobMaster) Storage() core.Storage {
	return m.storage
}

// Leases returns the lease manager workers register with.
func (m *JobMaster) Leases() *lease.Manager {
	return m.config.leases
}

// CacheMetrics returns block read counters summed over every finished task.
func (m *JobMaster) CacheMetrics() metrics.CacheMetrics {
	return m.cache.Snapshot()
}

// Submit persists a root job for cfg with one task per TaskCount (one when
// cfg does not plan tasks). It is rejected while no worker is registered or
// when no executor handles cfg.
func (m *JobMaster) Submit(ctx context.Context, cfg core.JobConfig) (string, error) {
	if m.config.leases.LiveWorkers() == 0 {
		return "", fmt.Errorf("%w: %w", core.ErrSubmissionRejected, &core.LeaseNotFoundError{})
	}
	if !m.HasExecutor(cfg.Name()) {
		return "", fmt.Errorf("%w: %w: %s", core.ErrSubmissionRejected, core.ErrNoExecutor, cfg.Name())
	}

	data, err := cmdconfig.MarshalJob(cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrSubmissionRejected, err)
	}

	n := 1
	if p, ok := cfg.(core.TaskPlanner); ok {
		n = p.TaskCount()
	}

	root := &core.Job{
		Name:       cfg.Name(),
		Config:     data,
		Target:     cfg.Target(),
		MaxRetries: m.config.maxRetries,
	}
	tasks := make([]*core.Job, n)
	for i := range tasks {
		tasks[i] = &core.Job{
			Name:        cfg.Name(),
			Config:      data,
			Target:      cfg.Target(),
			Description: Describe(cfg.Target(), i, 1),
			MaxRetries:  m.config.maxRetries,
		}
	}

	if err := m.storage.CreateJob(ctx, root, tasks); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	m.logger.Debug("job submitted", "job_id", root.ID, "config", cfg.Name(), "target", cfg.Target(), "tasks", n)
	return root.ID, nil
}

// Status returns the status tree of a root job. The root status is rolled
// up from its tasks and persisted once terminal.
func (m *JobMaster) Status(ctx context.Context, jobID string) (*core.JobInfo, error) {
	root, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if root == nil || !root.IsRoot() {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}

	tasks, err := m.storage.GetTasks(ctx, jobID)
	if err != nil {
		return nil, err
	}

	info := &core.JobInfo{
		ID:          root.ID,
		Name:        root.Name,
		Description: root.Target,
		Children:    make([]core.JobInfo, 0, len(tasks)),
	}
	for _, t := range tasks {
		info.Children = append(info.Children, core.JobInfo{
			ID:           t.ID,
			Name:         t.Name,
			Status:       t.Status,
			Description:  m.describe(t),
			ErrorMessage: t.LastError,
		})
		if t.Status == core.StatusFailed && info.ErrorMessage == "" {
			info.ErrorMessage = t.LastError
		}
	}

	if root.Status.IsFinished() {
		info.Status = root.Status
		return info, nil
	}

	info.Status = rollUp(tasks)
	if info.Status.IsFinished() {
		if err := m.storage.FinishJob(ctx, root.ID, info.Status); err != nil {
			m.logger.Warn("failed to record job status", "job_id", root.ID, "status", info.Status, "error", err)
		}
	}
	return info, nil
}

// rollUp derives a root status from its tasks. A job without tasks is
// complete.
func rollUp(tasks []*core.Job) core.Status {
	var started, failed, canceled bool
	unfinished := false
	for _, t := range tasks {
		switch t.Status {
		case core.StatusFailed:
			failed = true
		case core.StatusCanceled:
			canceled = true
		case core.StatusCompleted:
		default:
			unfinished = true
		}
		if t.Status != core.StatusCreated || t.Attempt > 0 {
			started = true
		}
	}

	switch {
	case unfinished && started:
		return core.StatusRunning
	case unfinished:
		return core.StatusCreated
	case failed:
		return core.StatusFailed
	case canceled:
		return core.StatusCanceled
	default:
		return core.StatusCompleted
	}
}

// Cancel cancels a root job, its unfinished tasks, and any of its tasks
// running in this process.
func (m *JobMaster) Cancel(ctx context.Context, jobID string) error {
	tasks, err := m.storage.GetTasks(ctx, jobID)
	if err != nil {
		return err
	}
	n, err := m.storage.CancelJob(ctx, jobID)
	if err != nil {
		return err
	}

	m.runningMu.Lock()
	for _, t := range tasks {
		if cancel, ok := m.running[t.ID]; ok {
			cancel()
		}
	}
	m.runningMu.Unlock()

	m.logger.Info("job cancelled", "job_id", jobID, "tasks", n)
	return nil
}

// Counts returns the number of root jobs per status.
func (m *JobMaster) Counts(ctx context.Context) (map[core.Status]int64, error) {
	return m.storage.CountByStatus(ctx)
}

// NewWorker creates a worker bound to this master.
func (m *JobMaster) NewWorker(opts ...WorkerOption) *Worker {
	return NewWorker(m, opts...)
}

func (m *JobMaster) registerRunning(taskID string, cancel context.CancelFunc) {
	m.runningMu.Lock()
	m.running[taskID] = cancel
	m.runningMu.Unlock()
}

func (m *JobMaster) unregisterRunning(taskID string) {
	m.runningMu.Lock()
	delete(m.running, taskID)
	m.runningMu.Unlock()
}

// describe renders the task's current attempt. Tasks not yet dequeued
// report attempt 1.
func (m *JobMaster) describe(task *core.Job) string {
	if task.Target == "" {
		return task.Description
	}
	attempt := task.Attempt
	if attempt < 1 {
		attempt = 1
	}
	return Describe(task.Target, task.TaskIndex, attempt)
}

var _ core.JobControlClient = (*JobMaster)(nil)
