package core

import (
	"context"
	"time"
)

// Storage defines the persistence layer of the job master.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Submission creates a root job and its tasks atomically.
	CreateJob(ctx context.Context, root *Job, tasks []*Job) error

	// Task lifecycle
	Dequeue(ctx context.Context, workerID string) (*Job, error)
	Complete(ctx context.Context, taskID string, workerID string) error
	Fail(ctx context.Context, taskID string, workerID string, errMsg string, retryAt *time.Time) error

	// Locking
	Heartbeat(ctx context.Context, taskID string, workerID string) error
	ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error)

	// Queries
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetTasks(ctx context.Context, rootID string) ([]*Job, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)

	// Root bookkeeping
	FinishJob(ctx context.Context, rootID string, status Status) error
	CancelJob(ctx context.Context, rootID string) (int64, error)
	PruneFinished(ctx context.Context, before time.Time) (int64, error)
}

// HistoryStorage persists command runs and per-target attempt records.
type HistoryStorage interface {
	MigrateHistory(ctx context.Context) error
	CreateCommandRun(ctx context.Context, run *CommandRun) error
	SaveAttempt(ctx context.Context, rec *AttemptRecord) error
	FinishCommandRun(ctx context.Context, run *CommandRun) error
	GetCommandRun(ctx context.Context, id string) (*CommandRun, error)
	ListCommandRuns(ctx context.Context, limit int) ([]*CommandRun, error)
	GetAttempts(ctx context.Context, commandID string) ([]*AttemptRecord, error)
}
