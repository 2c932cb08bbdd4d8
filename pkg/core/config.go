package core

import "context"

// Task descriptions embed the task's target as TargetKey + target +
// TargetDelimiter. Failure attribution depends on this format.
const (
	TargetKey       = "FilePath="
	TargetDelimiter = ","
)

// JobConfig describes one unit of work for a single target. Implementations
// are immutable comparable value types.
type JobConfig interface {
	Name() string
	Target() string
}

// TaskPlanner is implemented by job configs that run as more than one task.
// Configs that do not implement it run as exactly one task.
type TaskPlanner interface {
	TaskCount() int
}

// CmdConfig is a bulk command that expands into one JobConfig per affected
// path.
type CmdConfig interface {
	Name() string
	JobSource() JobSource
	OperationType() OperationType
	// AffectedPaths returns the targets in order, without duplicates.
	AffectedPaths() []string
	// JobConfigFor builds the job config for one of the affected paths.
	JobConfigFor(target string) (JobConfig, error)
}

// JobControlClient is the contract with the job-execution subsystem.
//
// Submit returns the id of the new job. Status returns the job's status tree,
// or ErrJobNotFound if the id is unknown (never issued, or garbage collected).
type JobControlClient interface {
	Submit(ctx context.Context, cfg JobConfig) (string, error)
	Status(ctx context.Context, jobID string) (*JobInfo, error)
}
