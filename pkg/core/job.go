// Package core provides the domain models and interfaces for the command tracker.
package core

import (
	"time"
)

// Status is the lifecycle state reported by the job-execution subsystem.
type Status string

const (
	StatusCreated   Status = "CREATED" // Accepted, not yet picked up by a worker
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
	StatusFailed    Status = "FAILED"
)

// IsFinished reports whether s is terminal.
func (s Status) IsFinished() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusCreated, StatusRunning, StatusCompleted, StatusCanceled, StatusFailed:
		return s, nil
	}
	return "", ErrUnknownStatus
}

// JobSource identifies who originated a command.
type JobSource string

const (
	SourceSystem JobSource = "SYSTEM"
	SourceUser   JobSource = "USER"
)

// OperationType classifies the data operation a command performs.
type OperationType string

const (
	OperationPersist   OperationType = "PERSIST"
	OperationReplicate OperationType = "REPLICATE"
)

// JobInfo is the status tree returned for a submitted job. Children are the
// job's tasks; the tree is never deeper than one level.
type JobInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	Description  string    `json:"description,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Children     []JobInfo `json:"children,omitempty"`
}

// ChildrenFinished reports whether every child is terminal. A job without
// children counts as finished.
func (j *JobInfo) ChildrenFinished() bool {
	for _, c := range j.Children {
		if !c.Status.IsFinished() {
			return false
		}
	}
	return true
}

// Job is a row managed by the job master: either a root job created by one
// submission, or one of its tasks (ParentID set).
type Job struct {
	ID          string     `gorm:"primaryKey;size:36"`
	ParentID    *string    `gorm:"index;size:36"`
	Name        string     `gorm:"index;size:255;not null"`
	Config      []byte
	Target      string     `gorm:"index;size:1024"`
	TaskIndex   int        `gorm:"default:0"`
	Status      Status     `gorm:"index;size:20;default:'CREATED'"`
	Description string     `gorm:"type:text"`
	Attempt     int        `gorm:"default:0"`
	MaxRetries  int        `gorm:"default:3"`
	LastError   string     `gorm:"type:text"`
	RunAt       *time.Time `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time `gorm:"index"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
	LockedBy    string     `gorm:"size:255"`
	LockedUntil *time.Time `gorm:"index"`

	LastHeartbeatAt *time.Time
}

// IsRoot reports whether the row is a root job rather than a task.
func (j *Job) IsRoot() bool {
	return j.ParentID == nil
}

// CommandRun records one execution of a command through the coordinator.
type CommandRun struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	Name           string        `gorm:"index;size:255;not null" json:"name"`
	OperationType  OperationType `gorm:"index;size:32" json:"operation_type"`
	JobSource      JobSource     `gorm:"size:16" json:"job_source"`
	Config         []byte        `json:"-"`
	Status         Status        `gorm:"index;size:20" json:"status"`
	TargetCount    int           `json:"target_count"`
	FailedCount    int           `json:"failed_count"`
	FailedTargets  []string      `gorm:"serializer:json;type:text" json:"failed_targets"`
	Unattributed   []string      `gorm:"serializer:json;type:text" json:"unattributed,omitempty"`
	StartedAt      time.Time     `gorm:"index" json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
	SubmitFailures int           `json:"submit_failures"`
}

// AttemptRecord records the outcome of one per-target attempt.
type AttemptRecord struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CommandID      string     `gorm:"index;size:36;not null" json:"command_id"`
	Target         string     `gorm:"size:1024" json:"target"`
	JobID          string     `gorm:"index;size:36" json:"job_id,omitempty"`
	Status         Status     `gorm:"index;size:20" json:"status"`
	SubmitAttempts int        `json:"submit_attempts"`
	FailedTargets  []string   `gorm:"serializer:json;type:text" json:"failed_targets,omitempty"`
	FileCount      int64      `json:"file_count"`
	FileSize       int64      `json:"file_size"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}
