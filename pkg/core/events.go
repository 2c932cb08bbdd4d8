package core

import "time"

// Event is the interface for all tracker events.
type Event interface {
	eventMarker()
}

// CommandStarted is emitted when a command has been expanded into attempts.
type CommandStarted struct {
	CommandID     string
	Name          string
	OperationType OperationType
	Targets       int
	Timestamp     time.Time
}

func (*CommandStarted) eventMarker() {}

// AttemptSubmitted is emitted when an attempt's job was accepted.
type AttemptSubmitted struct {
	CommandID     string
	OperationType OperationType
	Target        string
	JobID         string
	Attempts      int
	Timestamp     time.Time
}

func (*AttemptSubmitted) eventMarker() {}

// AttemptSubmitFailed is emitted when an attempt exhausted its retry policy
// without getting a job accepted.
type AttemptSubmitFailed struct {
	CommandID     string
	OperationType OperationType
	Target        string
	Attempts      int
	Timestamp     time.Time
}

func (*AttemptSubmitFailed) eventMarker() {}

// AttemptFinished is emitted once per attempt with its terminal status.
type AttemptFinished struct {
	CommandID     string
	OperationType OperationType
	Target        string
	JobID         string
	Status        Status
	FailedTargets []string
	Duration      time.Duration
	Timestamp     time.Time
}

func (*AttemptFinished) eventMarker() {}

// CommandFinished is emitted when every attempt of a command has finished.
type CommandFinished struct {
	CommandID     string
	Name          string
	OperationType OperationType
	Status        Status
	FailedTargets []string
	Duration      time.Duration
	Timestamp     time.Time
}

func (*CommandFinished) eventMarker() {}

// TaskFinished is emitted by the job master when a task reaches a terminal
// state.
type TaskFinished struct {
	Task      *Job
	Status    Status
	Error     error
	Duration  time.Duration
	Timestamp time.Time
}

func (*TaskFinished) eventMarker() {}

// TaskRetrying is emitted by the job master when a failed task is
// rescheduled.
type TaskRetrying struct {
	Task      *Job
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

func (*TaskRetrying) eventMarker() {}
