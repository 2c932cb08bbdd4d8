package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/jdziat/durable-cmd-tracker/pkg/attempt"
	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// Coordinator runs commands: it expands each into per-target attempts, keeps
// a bounded number of them in flight, and aggregates their outcomes.
type Coordinator struct {
	client core.JobControlClient
	config config
	logger *slog.Logger

	mu sync.RWMutex

	// Hooks
	onAttemptFinished []func(context.Context, *core.AttemptFinished)
	onCommandFinished []func(context.Context, *Result)

	// Event stream
	eventSubs []chan core.Event
}

// New creates a Coordinator that submits through client.
func New(client core.JobControlClient, opts ...Option) *Coordinator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.submitRate != rate.Inf {
		client = &throttledClient{
			JobControlClient: client,
			limiter:          rate.NewLimiter(cfg.submitRate, cfg.submitBurst),
		}
	}

	return &Coordinator{
		client: client,
		config: cfg,
		logger: cfg.logger,
	}
}

// Run executes cmd to completion and returns the aggregated result. It only
// returns an error when cmd cannot be expanded; target failures are reported
// in the Result.
//
// Cancelling ctx stops admitting new attempts and stops polling in-flight
// ones; they are reported CANCELED. Jobs already submitted are not cancelled
// remotely.
func (c *Coordinator) Run(ctx context.Context, cmd core.CmdConfig) (*Result, error) {
	configs, err := cmdconfig.Expand(cmd)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, uuid.New().String(), cmd, configs), nil
}

// Start validates cmd and runs it in the background. It returns the command
// id at once; the channel receives the result and is then closed.
func (c *Coordinator) Start(ctx context.Context, cmd core.CmdConfig) (string, <-chan *Result, error) {
	configs, err := cmdconfig.Expand(cmd)
	if err != nil {
		return "", nil, err
	}

	id := uuid.New().String()
	done := make(chan *Result, 1)
	go func() {
		defer close(done)
		done <- c.run(ctx, id, cmd, configs)
	}()
	return id, done, nil
}

func (c *Coordinator) run(ctx context.Context, id string, cmd core.CmdConfig, configs []core.JobConfig) *Result {
	res := &Result{
		CommandID:     id,
		Name:          cmd.Name(),
		OperationType: cmd.OperationType(),
		Total:         len(configs),
		StartedAt:     time.Now(),
	}
	log := c.logger.With("command_id", res.CommandID, "command", res.Name)
	log.Info("command started", "targets", res.Total, "max_concurrent", c.config.maxConcurrent)

	c.recordStart(ctx, cmd, res)
	c.Emit(&core.CommandStarted{
		CommandID:     res.CommandID,
		Name:          res.Name,
		OperationType: res.OperationType,
		Targets:       res.Total,
		Timestamp:     res.StartedAt,
	})

	// One aggregator goroutine consumes every outcome.
	outcomes := make(chan outcome)
	agg := newAggregator(res)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			agg.add(o)
			c.attemptFinished(ctx, res, o)
		}
	}()

	sem := semaphore.NewWeighted(int64(c.config.maxConcurrent))
	var wg sync.WaitGroup
	admitted := 0
	for _, jc := range configs {
		if ctx.Err() != nil || sem.Acquire(ctx, 1) != nil {
			break
		}
		admitted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			outcomes <- c.track(ctx, log, res, jc)
		}()
	}

	for _, jc := range configs[admitted:] {
		outcomes <- outcome{target: jc.Target(), status: core.StatusCanceled, interrupted: true}
	}

	wg.Wait()
	close(outcomes)
	<-collected

	agg.finish(time.Now())
	log.Info("command finished",
		"status", res.Status,
		"completed", res.Completed,
		"failed", res.Failed,
		"canceled", res.Canceled,
		"failed_targets", len(res.FailedTargets),
		"duration", res.Duration())

	c.recordFinish(ctx, res)
	c.Emit(&core.CommandFinished{
		CommandID:     res.CommandID,
		Name:          res.Name,
		OperationType: res.OperationType,
		Status:        res.Status,
		FailedTargets: append([]string(nil), res.FailedTargets...),
		Duration:      res.Duration(),
		Timestamp:     res.FinishedAt,
	})
	c.callCommandHooks(ctx, res)
	return res
}

// track drives one attempt: submit, then poll until the job is terminal.
func (c *Coordinator) track(ctx context.Context, log *slog.Logger, res *Result, jc core.JobConfig) outcome {
	a := attempt.New(c.client, c.config.policy(), jc, attempt.WithLogger(log))
	if c.config.sizer != nil {
		n, size := c.config.sizer(jc.Target())
		a.SetFileCount(n)
		a.SetFileSize(size)
	}
	start := time.Now()

	finish := func(status core.Status, submitFailed bool) outcome {
		return outcome{
			interrupted:    status == core.StatusCanceled && ctx.Err() != nil,
			target:         jc.Target(),
			jobID:          a.JobID(),
			status:         status,
			failedTargets:  a.FailedTargets(),
			submitFailed:   submitFailed,
			submitAttempts: a.SubmitAttempts(),
			malformed:      a.Malformed(),
			fileCount:      a.FileCount(),
			fileSize:       a.FileSize(),
			createdAt:      a.CreatedAt(),
			duration:       time.Since(start),
		}
	}

	if !a.Run(ctx) {
		if ctx.Err() != nil {
			return finish(core.StatusCanceled, false)
		}
		c.Emit(&core.AttemptSubmitFailed{
			CommandID:     res.CommandID,
			OperationType: res.OperationType,
			Target:        jc.Target(),
			Attempts:      a.SubmitAttempts(),
			Timestamp:     time.Now(),
		})
		return finish(core.StatusFailed, true)
	}

	c.Emit(&core.AttemptSubmitted{
		CommandID:     res.CommandID,
		OperationType: res.OperationType,
		Target:        jc.Target(),
		JobID:         a.JobID(),
		Attempts:      a.SubmitAttempts(),
		Timestamp:     time.Now(),
	})

	ticker := time.NewTicker(c.config.pollInterval)
	defer ticker.Stop()

	for {
		status := a.CheckStatus(ctx)
		if ctx.Err() != nil {
			return finish(core.StatusCanceled, false)
		}
		if status.IsFinished() {
			if status == core.StatusFailed {
				a.LogFailed()
			}
			return finish(status, false)
		}

		select {
		case <-ctx.Done():
			return finish(core.StatusCanceled, false)
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) attemptFinished(ctx context.Context, res *Result, o outcome) {
	c.recordAttempt(ctx, res, o)

	ev := &core.AttemptFinished{
		CommandID:     res.CommandID,
		OperationType: res.OperationType,
		Target:        o.target,
		JobID:         o.jobID,
		Status:        o.status,
		FailedTargets: o.failedTargets,
		Duration:      o.duration,
		Timestamp:     time.Now(),
	}
	c.Emit(ev)
	c.callAttemptHooks(ctx, ev)
}

// throttledClient delays submissions to the coordinator's submit rate.
type throttledClient struct {
	core.JobControlClient
	limiter *rate.Limiter
}

func (t *throttledClient) Submit(ctx context.Context, cfg core.JobConfig) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.JobControlClient.Submit(ctx, cfg)
}
