// Package context provides context helpers for task execution.
package context

import (
	"context"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// TaskContextKey is the key for storing task context in context.Context.
type TaskContextKey struct{}

// TaskContext holds the task being executed and the worker running it.
type TaskContext struct {
	Task     *core.Job
	WorkerID string
	// Config is the decoded job config of the task's root.
	Config core.JobConfig
}

// GetTaskContext retrieves the task context from a context.Context.
func GetTaskContext(ctx context.Context) *TaskContext {
	if tc, ok := ctx.Value(TaskContextKey{}).(*TaskContext); ok {
		return tc
	}
	return nil
}

// WithTaskContext adds task context to a context.Context.
func WithTaskContext(ctx context.Context, tc *TaskContext) context.Context {
	return context.WithValue(ctx, TaskContextKey{}, tc)
}
