package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoRetryError(t *testing.T) {
	originalErr := errors.New("permanent failure")
	wrapped := NoRetry(originalErr)

	var noRetryErr *NoRetryError
	assert.True(t, errors.As(wrapped, &noRetryErr))
	assert.Equal(t, originalErr, noRetryErr.Unwrap())
	assert.Contains(t, noRetryErr.Error(), "no retry")
	assert.Contains(t, noRetryErr.Error(), "permanent failure")
}

func TestRetryAfterError(t *testing.T) {
	originalErr := errors.New("temporary failure")
	delay := 5 * time.Second
	wrapped := RetryAfter(delay, originalErr)

	var retryErr *RetryAfterError
	assert.True(t, errors.As(wrapped, &retryErr))
	assert.Equal(t, originalErr, retryErr.Unwrap())
	assert.Equal(t, delay, retryErr.Delay)
	assert.Contains(t, retryErr.Error(), "retry after")
	assert.Contains(t, retryErr.Error(), "5s")
}

func TestLeaseNotFoundError(t *testing.T) {
	err := &LeaseNotFoundError{WorkerID: "w-1"}
	assert.Contains(t, err.Error(), "w-1")
	assert.True(t, IsRetryable(err))

	anon := &LeaseNotFoundError{}
	assert.Contains(t, anon.Error(), "no live worker")
}

func TestIsRetryable_Wrapped(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrSubmissionRejected, &LeaseNotFoundError{})
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, ErrSubmissionRejected)

	var lease *LeaseNotFoundError
	assert.ErrorAs(t, err, &lease)
}

func TestIsRetryable_PlainErrors(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(ErrJobNotFound))
}

func TestErrorVariables(t *testing.T) {
	for _, err := range []error{
		ErrJobNotFound, ErrJobNotOwned, ErrSubmissionRejected, ErrNoExecutor,
		ErrUnknownStatus, ErrCommandNotFound,
		ErrNoAffectedPaths, ErrDuplicatePath, ErrInvalidPath, ErrPathTooLong,
		ErrNegativeReplicas, ErrMissingUfsRoot, ErrUnknownConfigType,
		ErrTargetNotAffected, ErrInvalidConfigName, ErrConfigNameTooLong,
		ErrMalformedDescription,
	} {
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "tracker:")
	}
}
