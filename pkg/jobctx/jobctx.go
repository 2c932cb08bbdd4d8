// Package jobctx gives executors access to the task they are running.
package jobctx

import (
	"context"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	intctx "github.com/jdziat/durable-cmd-tracker/pkg/internal/context"
	"github.com/jdziat/durable-cmd-tracker/pkg/metrics"
)

// TaskFromContext returns the current task, or nil outside an executor.
func TaskFromContext(ctx context.Context) *core.Job {
	tc := intctx.GetTaskContext(ctx)
	if tc == nil {
		return nil
	}
	return tc.Task
}

// TaskIDFromContext returns the current task ID, or "" outside an executor.
func TaskIDFromContext(ctx context.Context) string {
	task := TaskFromContext(ctx)
	if task == nil {
		return ""
	}
	return task.ID
}

// JobIDFromContext returns the root job ID of the current task.
func JobIDFromContext(ctx context.Context) string {
	task := TaskFromContext(ctx)
	if task == nil || task.ParentID == nil {
		return ""
	}
	return *task.ParentID
}

// TaskIndexFromContext returns the index of the current task within its
// job, or -1 outside an executor. Replica executors use it to name copies.
func TaskIndexFromContext(ctx context.Context) int {
	task := TaskFromContext(ctx)
	if task == nil {
		return -1
	}
	return task.TaskIndex
}

// AttemptFromContext returns which execution of the task this is, starting
// at 1.
func AttemptFromContext(ctx context.Context) int {
	task := TaskFromContext(ctx)
	if task == nil {
		return 0
	}
	return task.Attempt
}

// WorkerIDFromContext returns the ID of the worker running the task.
func WorkerIDFromContext(ctx context.Context) string {
	tc := intctx.GetTaskContext(ctx)
	if tc == nil {
		return ""
	}
	return tc.WorkerID
}

// ConfigFromContext returns the decoded job config of the current task.
func ConfigFromContext(ctx context.Context) core.JobConfig {
	tc := intctx.GetTaskContext(ctx)
	if tc == nil {
		return nil
	}
	return tc.Config
}

// RecordBlockRead counts one block read against the current task.
func RecordBlockRead(ctx context.Context, src metrics.BlockSource) {
	metrics.Record(ctx, src)
}
