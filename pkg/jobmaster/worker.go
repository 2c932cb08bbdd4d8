package jobmaster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	intctx "github.com/jdziat/durable-cmd-tracker/pkg/internal/context"
	"github.com/jdziat/durable-cmd-tracker/pkg/internal/handler"
	"github.com/jdziat/durable-cmd-tracker/pkg/metrics"
	"github.com/jdziat/durable-cmd-tracker/pkg/retry"
)

// Worker registers with a job master and executes its tasks.
type Worker struct {
	master *JobMaster
	config WorkerConfig
	logger *slog.Logger
	wg     sync.WaitGroup

	registered chan struct{}
	regOnce    sync.Once
}

// NewWorker creates a new worker for the given master.
func NewWorker(m *JobMaster, opts ...WorkerOption) *Worker {
	config := defaultWorkerConfig()
	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}
	if config.WorkerID == "" {
		config.WorkerID = uuid.New().String()
	}

	return &Worker{
		master:     m,
		config:     config,
		logger:     m.logger.With("worker_id", config.WorkerID),
		registered: make(chan struct{}),
	}
}

// ID returns the worker's identity.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Registered is closed once the worker first registers with the master.
func (w *Worker) Registered() <-chan struct{} {
	return w.registered
}

// Start registers the worker and processes tasks. Blocks until context is
// cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.register(ctx); err != nil {
		return err
	}
	defer w.master.config.leases.Unregister(w.config.WorkerID)

	go w.runLeaseRenewal(ctx)
	go w.runMaintenance(ctx)

	tasks := make(chan *core.Job, w.config.Concurrency)
	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, tasks)
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(tasks)
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			task, err := w.dequeueWithRetry(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					w.logger.Error("failed to dequeue after retries", "error", err)
				}
				continue
			}
			if task != nil {
				select {
				case tasks <- task:
				case <-ctx.Done():
				}
			}
		}
	}
}

// register acquires a register lease and consumes it, waiting for a free
// lease slot.
func (w *Worker) register(ctx context.Context) error {
	leases := w.master.config.leases
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if leases.TryAcquire(w.config.WorkerID) {
			err := leases.Register(w.config.WorkerID)
			if err == nil {
				w.logger.Info("worker registered")
				w.regOnce.Do(func() { close(w.registered) })
				return nil
			}
			w.logger.Warn("worker registration failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) runLeaseRenewal(ctx context.Context) {
	ticker := time.NewTicker(w.config.LeaseRenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.master.config.leases.Heartbeat(w.config.WorkerID)
			var lnf *core.LeaseNotFoundError
			if errors.As(err, &lnf) {
				w.logger.Warn("worker registration expired, re-registering")
				if err := w.register(ctx); err != nil {
					return
				}
			}
		}
	}
}

func (w *Worker) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(w.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.maintain(ctx)
		}
	}
}

func (w *Worker) maintain(ctx context.Context) {
	storage := w.master.storage

	n, err := storage.ReleaseStaleLocks(ctx, w.config.StaleLockAge)
	if err != nil {
		w.logger.Warn("failed to release stale locks", "error", err)
	} else if n > 0 {
		w.logger.Info("released stale task locks", "count", n)
	}

	if w.config.Retention <= 0 {
		return
	}
	n, err = storage.PruneFinished(ctx, time.Now().Add(-w.config.Retention))
	if err != nil {
		w.logger.Warn("failed to prune finished jobs", "error", err)
	} else if n > 0 {
		w.logger.Info("pruned finished jobs", "count", n)
	}
}

// dequeueWithRetry dequeues a task with exponential backoff on failure.
func (w *Worker) dequeueWithRetry(ctx context.Context) (*core.Job, error) {
	var task *core.Job
	err := retry.Do(ctx, w.config.DequeueRetry, func() error {
		var dequeueErr error
		task, dequeueErr = w.master.storage.Dequeue(ctx, w.config.WorkerID)
		return dequeueErr
	})
	return task, err
}

// processLoop owns one Recorder, reset at the start of every task.
func (w *Worker) processLoop(ctx context.Context, tasks <-chan *core.Job) {
	defer w.wg.Done()

	rec := metrics.NewRecorder()
	for task := range tasks {
		rec.Reset()
		w.processTask(ctx, task, rec)
		w.master.cache.Merge(rec.Snapshot())
	}
}

func (w *Worker) processTask(ctx context.Context, task *core.Job, rec *metrics.Recorder) {
	startTime := time.Now()

	h, ok := w.master.getHandler(task.Name)
	if !ok {
		w.logger.Error("no executor for task", "name", task.Name, "task_id", task.ID)
		w.fail(ctx, task, core.NoRetry(fmt.Errorf("%w: %s", core.ErrNoExecutor, task.Name)), startTime)
		return
	}

	cfg, err := cmdconfig.UnmarshalJob(task.Config)
	if err != nil {
		w.fail(ctx, task, core.NoRetry(err), startTime)
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.master.registerRunning(task.ID, cancel)
	defer w.master.unregisterRunning(task.ID)

	go w.runHeartbeat(taskCtx, task)

	err = w.execute(taskCtx, task, cfg, h, rec)
	cancel()

	if err != nil {
		w.handleError(ctx, task, err, startTime)
		return
	}

	if err := w.completeWithRetry(ctx, task.ID); err != nil {
		w.logCompletionFailure(task, err)
		return
	}
	w.master.taskFinished(ctx, &core.TaskFinished{
		Task:      task,
		Status:    core.StatusCompleted,
		Duration:  time.Since(startTime),
		Timestamp: time.Now(),
	})
}

func (w *Worker) execute(ctx context.Context, task *core.Job, cfg core.JobConfig, h *handler.Handler, rec *metrics.Recorder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx = intctx.WithTaskContext(ctx, &intctx.TaskContext{
		Task:     task,
		WorkerID: w.config.WorkerID,
		Config:   cfg,
	})
	ctx = metrics.WithRecorder(ctx, rec)
	return h.Execute(ctx, task.Config)
}

// runHeartbeat periodically extends the task lock during execution.
func (w *Worker) runHeartbeat(ctx context.Context, task *core.Job) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := retry.Do(ctx, w.config.StorageRetry, func() error {
				err := w.master.storage.Heartbeat(ctx, task.ID, w.config.WorkerID)
				if errors.Is(err, core.ErrJobNotOwned) {
					return core.NoRetry(err)
				}
				return err
			})
			if err != nil {
				w.logger.Warn("heartbeat failed", "task_id", task.ID, "error", err)
			}
		}
	}
}

func (w *Worker) handleError(ctx context.Context, task *core.Job, err error, startTime time.Time) {
	var noRetry *core.NoRetryError
	if errors.As(err, &noRetry) || task.Attempt > task.MaxRetries {
		w.fail(ctx, task, err, startTime)
		return
	}

	delay := w.backoff(task.Attempt)
	var retryAfter *core.RetryAfterError
	if errors.As(err, &retryAfter) {
		delay = retryAfter.Delay
	}

	retryAt := time.Now().Add(delay)
	if ferr := w.failWithRetry(ctx, task.ID, err.Error(), &retryAt); ferr != nil {
		w.logCompletionFailure(task, ferr)
		return
	}
	w.logger.Info("task failed, retrying", "task_id", task.ID, "attempt", task.Attempt, "next_run_at", retryAt, "error", err)
	w.master.taskRetrying(ctx, &core.TaskRetrying{
		Task:      task,
		Attempt:   task.Attempt,
		Error:     err,
		NextRunAt: retryAt,
		Timestamp: time.Now(),
	})
}

func (w *Worker) fail(ctx context.Context, task *core.Job, err error, startTime time.Time) {
	if ferr := w.failWithRetry(ctx, task.ID, err.Error(), nil); ferr != nil {
		w.logCompletionFailure(task, ferr)
		return
	}
	w.logger.Warn("task failed", "task_id", task.ID, "target", task.Target, "attempt", task.Attempt, "error", err)
	w.master.taskFinished(ctx, &core.TaskFinished{
		Task:      task,
		Status:    core.StatusFailed,
		Error:     err,
		Duration:  time.Since(startTime),
		Timestamp: time.Now(),
	})
}

// logCompletionFailure reports a task whose final state could not be
// written. Losing ownership means the job was cancelled or the lock went
// stale and another worker took over.
func (w *Worker) logCompletionFailure(task *core.Job, err error) {
	if errors.Is(err, core.ErrJobNotOwned) {
		w.logger.Info("task no longer owned, dropping result", "task_id", task.ID)
		return
	}
	w.logger.Error("failed to record task result after retries", "task_id", task.ID, "error", err)
}

// completeWithRetry marks a task complete with retry on transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, taskID string) error {
	return retry.Do(ctx, w.config.StorageRetry, func() error {
		return ownedOnce(w.master.storage.Complete(ctx, taskID, w.config.WorkerID))
	})
}

// failWithRetry marks a task as failed with retry on transient failures.
func (w *Worker) failWithRetry(ctx context.Context, taskID string, errMsg string, retryAt *time.Time) error {
	return retry.Do(ctx, w.config.StorageRetry, func() error {
		return ownedOnce(w.master.storage.Fail(ctx, taskID, w.config.WorkerID, errMsg, retryAt))
	})
}

// ownedOnce stops retries of writes rejected for ownership.
func ownedOnce(err error) error {
	if errors.Is(err, core.ErrJobNotOwned) {
		return core.NoRetry(err)
	}
	return err
}

func (w *Worker) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := w.config.TaskBackoff
	for i := 1; i < attempt && d < w.config.MaxTaskBackoff; i++ {
		d *= 2
	}
	if d > w.config.MaxTaskBackoff {
		d = w.config.MaxTaskBackoff
	}
	return d
}
