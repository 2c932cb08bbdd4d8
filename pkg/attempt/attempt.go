package attempt

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/retry"
)

var errEmptyJobID = errors.New("attempt: job service returned an empty job id")

// Attempt tracks the submission and execution of one job config. It is owned
// by a single goroutine while running; accessors are safe to call from others.
type Attempt struct {
	client core.JobControlClient
	policy retry.Policy
	logger *slog.Logger

	mu        sync.Mutex
	config    core.JobConfig
	jobID     string
	createdAt time.Time
	fileCount int64
	fileSize  int64
	failed    map[string]struct{}
	malformed map[string]struct{}
}

// Option configures an Attempt.
type Option interface {
	apply(*Attempt)
}

type optionFunc func(*Attempt)

func (f optionFunc) apply(a *Attempt) { f(a) }

// WithLogger sets the logger used for submission and status diagnostics.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(a *Attempt) {
		if l != nil {
			a.logger = l
		}
	})
}

// WithFileCount sets the informational file count.
func WithFileCount(n int64) Option {
	return optionFunc(func(a *Attempt) { a.fileCount = n })
}

// WithFileSize sets the informational byte size.
func WithFileSize(n int64) Option {
	return optionFunc(func(a *Attempt) { a.fileSize = n })
}

// New creates an attempt for cfg. policy must not be shared with any other
// attempt.
func New(client core.JobControlClient, policy retry.Policy, cfg core.JobConfig, opts ...Option) *Attempt {
	a := &Attempt{
		client:    client,
		policy:    policy,
		config:    cfg,
		logger:    slog.Default(),
		failed:    make(map[string]struct{}),
		malformed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt.apply(a)
	}
	return a
}

// Config returns the job config.
func (a *Attempt) Config() core.JobConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// SetConfig replaces the job config. It has no effect once a job was
// submitted.
func (a *Attempt) SetConfig(cfg core.JobConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.jobID == "" {
		a.config = cfg
	}
}

// Target returns the config's target.
func (a *Attempt) Target() string {
	return a.Config().Target()
}

// JobID returns the id assigned by the job service, or "" before a
// successful submission.
func (a *Attempt) JobID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.jobID
}

// CreatedAt returns when Run was first called.
func (a *Attempt) CreatedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.createdAt
}

func (a *Attempt) FileCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fileCount
}

func (a *Attempt) SetFileCount(n int64) {
	a.mu.Lock()
	a.fileCount = n
	a.mu.Unlock()
}

func (a *Attempt) FileSize() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fileSize
}

func (a *Attempt) SetFileSize(n int64) {
	a.mu.Lock()
	a.fileSize = n
	a.mu.Unlock()
}

// SubmitAttempts returns how many submissions the retry policy allowed.
func (a *Attempt) SubmitAttempts() int {
	return a.policy.AttemptCount()
}

// Run submits the job, retrying under the attempt's policy. Any submission
// error consumes one attempt. It returns true once a job id is held; a
// repeated call after success does not resubmit.
func (a *Attempt) Run(ctx context.Context) bool {
	a.mu.Lock()
	if a.jobID != "" {
		a.mu.Unlock()
		return true
	}
	if a.createdAt.IsZero() {
		a.createdAt = time.Now()
	}
	cfg := a.config
	a.mu.Unlock()

	for a.policy.Attempt(ctx) {
		id, err := a.client.Submit(ctx, cfg)
		if err == nil && id == "" {
			err = errEmptyJobID
		}
		if err != nil {
			a.logger.Warn("failed to submit job",
				"config", cfg.Name(),
				"target", cfg.Target(),
				"attempt", a.policy.AttemptCount(),
				"retryable", core.IsRetryable(err),
				"error", err)
			continue
		}

		a.mu.Lock()
		a.jobID = id
		a.mu.Unlock()
		a.logger.Debug("job submitted", "config", cfg.Name(), "target", cfg.Target(), "job_id", id)
		return true
	}

	if ctx.Err() == nil {
		a.logger.Error("retry policy exhausted, giving up on submission",
			"config", cfg.Name(),
			"target", cfg.Target(),
			"attempts", a.policy.AttemptCount())
	}
	return false
}

// CheckStatus queries the job service once and rolls the status tree up into
// a single status. Without a job id, or when the query fails, the result is
// FAILED. While any child is unfinished the result is RUNNING. When the job
// finished FAILED, the targets of its failed children are added to the
// failed-target set.
func (a *Attempt) CheckStatus(ctx context.Context) core.Status {
	jobID := a.JobID()
	if jobID == "" {
		return core.StatusFailed
	}

	info, err := a.client.Status(ctx, jobID)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			a.logger.Error("job is not known to the job service", "job_id", jobID, "target", a.Target())
		} else {
			a.logger.Error("failed to get job status", "job_id", jobID, "target", a.Target(), "error", err)
		}
		return core.StatusFailed
	}
	if info == nil {
		a.logger.Error("job service returned no status", "job_id", jobID, "target", a.Target())
		return core.StatusFailed
	}

	if !info.ChildrenFinished() {
		return core.StatusRunning
	}

	if info.Status == core.StatusFailed {
		a.collectFailures(info)
	}
	return info.Status
}

func (a *Attempt) collectFailures(info *core.JobInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, child := range info.Children {
		if child.Status != core.StatusFailed {
			continue
		}
		target, err := ParseTarget(child.Description)
		if err != nil {
			key := child.ID + "\x00" + child.Description
			if _, seen := a.malformed[key]; !seen {
				a.malformed[key] = struct{}{}
				a.logger.Warn("cannot attribute failed task to a target",
					"job_id", info.ID,
					"task_id", child.ID,
					"description", child.Description)
			}
			continue
		}
		a.failed[target] = struct{}{}
	}
}

// FailedTargets returns a sorted copy of the failed-target set.
func (a *Attempt) FailedTargets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.failed))
	for t := range a.failed {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Malformed returns how many failed tasks could not be attributed to a target.
func (a *Attempt) Malformed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.malformed)
}

// LogFailed writes every failed target to the attempt's logger.
func (a *Attempt) LogFailed() {
	jobID := a.JobID()
	for _, t := range a.FailedTargets() {
		a.logger.Info("failed target", "job_id", jobID, "target", t)
	}
}
