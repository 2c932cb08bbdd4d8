package core

import (
	"errors"
	"fmt"
	"time"
)

// Job service errors
var (
	ErrJobNotFound        = errors.New("tracker: job not found")
	ErrJobNotOwned        = errors.New("tracker: task not owned by this worker")
	ErrSubmissionRejected = errors.New("tracker: submission rejected")
	ErrNoExecutor         = errors.New("tracker: no executor registered for config")
	ErrUnknownStatus      = errors.New("tracker: unknown status")
	ErrCommandNotFound    = errors.New("tracker: command run not found")
)

// Config validation errors
var (
	ErrNoAffectedPaths      = errors.New("tracker: command has no affected paths")
	ErrDuplicatePath        = errors.New("tracker: duplicate affected path")
	ErrInvalidPath          = errors.New("tracker: invalid path")
	ErrPathTooLong          = errors.New("tracker: path too long")
	ErrNegativeReplicas     = errors.New("tracker: replicas must be non-negative")
	ErrMissingUfsRoot       = errors.New("tracker: persist command requires a ufs root")
	ErrUnknownConfigType    = errors.New("tracker: unknown config type")
	ErrTargetNotAffected    = errors.New("tracker: target is not an affected path of the command")
	ErrInvalidConfigName    = errors.New("tracker: invalid config name")
	ErrConfigNameTooLong    = errors.New("tracker: config name too long")
	ErrMalformedDescription = errors.New("tracker: task description has no target")
)

// LeaseNotFoundError is returned when a worker registers without holding a
// valid register lease, or when a submission finds no registered worker.
// It is transient: the caller should retry.
type LeaseNotFoundError struct {
	WorkerID string
}

func (e *LeaseNotFoundError) Error() string {
	if e.WorkerID == "" {
		return "register lease not found: no live worker"
	}
	return fmt.Sprintf("register lease not found for worker %s", e.WorkerID)
}

// Retryable marks the error as transient.
func (e *LeaseNotFoundError) Retryable() bool { return true }

// IsRetryable reports whether err is marked transient anywhere in its chain.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// NoRetryError indicates a task error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates a task error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}
