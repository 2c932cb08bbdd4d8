package attempt

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/internal/fake"
	"github.com/jdziat/durable-cmd-tracker/pkg/retry"
)

func persist(target string) core.JobConfig {
	return cmdconfig.PersistConfig{FilePath: target, UfsPath: "/ufs" + target}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRun_SucceedsFirstTry(t *testing.T) {
	client := fake.New()
	a := New(client, retry.Counting(3), persist("/a"), WithLogger(quietLogger()))

	assert.Empty(t, a.JobID())
	assert.True(t, a.CreatedAt().IsZero())

	ok := a.Run(context.Background())
	require.True(t, ok)
	assert.Equal(t, "job-1", a.JobID())
	assert.False(t, a.CreatedAt().IsZero())
	assert.Equal(t, 1, client.SubmitCalls("/a"))
	assert.Equal(t, 1, a.SubmitAttempts())
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	client := fake.New()
	client.SubmitFailures["/a"] = 2
	a := New(client, retry.Counting(3), persist("/a"), WithLogger(quietLogger()))

	require.True(t, a.Run(context.Background()))
	assert.Equal(t, 3, client.SubmitCalls("/a"))
	assert.NotEmpty(t, a.JobID())
}

func TestRun_ExhaustsPolicy(t *testing.T) {
	client := fake.New()
	client.SubmitFailures["/a"] = -1
	a := New(client, retry.Counting(4), persist("/a"), WithLogger(quietLogger()))

	assert.False(t, a.Run(context.Background()))
	assert.Empty(t, a.JobID())
	assert.Equal(t, 4, client.SubmitCalls("/a"))
	assert.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))
}

func TestRun_DoesNotResubmitAfterSuccess(t *testing.T) {
	client := fake.New()
	a := New(client, retry.Counting(3), persist("/a"), WithLogger(quietLogger()))

	require.True(t, a.Run(context.Background()))
	created := a.CreatedAt()
	id := a.JobID()

	require.True(t, a.Run(context.Background()))
	assert.Equal(t, id, a.JobID())
	assert.Equal(t, created, a.CreatedAt())
	assert.Equal(t, 1, client.SubmitCalls("/a"))
}

func TestRun_CancelledContext(t *testing.T) {
	client := fake.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(client, retry.Counting(3), persist("/a"), WithLogger(quietLogger()))
	assert.False(t, a.Run(ctx))
	assert.Equal(t, 0, client.SubmitCalls("/a"))
}

type emptyIDClient struct{}

func (emptyIDClient) Submit(context.Context, core.JobConfig) (string, error) { return "", nil }

func (emptyIDClient) Status(context.Context, string) (*core.JobInfo, error) {
	return nil, core.ErrJobNotFound
}

func TestRun_EmptyJobIDIsAFailure(t *testing.T) {
	a := New(emptyIDClient{}, retry.Counting(2), persist("/a"), WithLogger(quietLogger()))
	assert.False(t, a.Run(context.Background()))
	assert.Empty(t, a.JobID())
}

func TestCheckStatus_RunningUntilChildrenFinish(t *testing.T) {
	client := fake.New()
	client.Outcomes["/a"] = fake.Outcome{Polls: 2}
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(quietLogger()))
	require.True(t, a.Run(context.Background()))

	ctx := context.Background()
	assert.Equal(t, core.StatusRunning, a.CheckStatus(ctx))
	assert.Equal(t, core.StatusRunning, a.CheckStatus(ctx))
	assert.Equal(t, core.StatusCompleted, a.CheckStatus(ctx))
	assert.Empty(t, a.FailedTargets())
}

func TestCheckStatus_EmptyChildrenIsFinished(t *testing.T) {
	client := fake.New()
	client.Outcomes["/a"] = fake.Outcome{Status: core.StatusCompleted, Children: []core.JobInfo{}}
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(quietLogger()))
	require.True(t, a.Run(context.Background()))

	assert.Equal(t, core.StatusCompleted, a.CheckStatus(context.Background()))
}

func TestCheckStatus_RootLagsBehindChildren(t *testing.T) {
	client := fake.New()
	client.Outcomes["/a"] = fake.Outcome{
		Status:   core.StatusRunning,
		Children: []core.JobInfo{{ID: "c", Status: core.StatusCompleted, Description: fake.Describe("/a", 0)}},
	}
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(quietLogger()))
	require.True(t, a.Run(context.Background()))

	assert.Equal(t, core.StatusRunning, a.CheckStatus(context.Background()))
}

func TestCheckStatus_FailedCollectsTargets(t *testing.T) {
	client := fake.New()
	client.Outcomes["/dir"] = fake.Outcome{
		Status: core.StatusFailed,
		Children: []core.JobInfo{
			{ID: "c0", Status: core.StatusFailed, Description: fake.Describe("/dir/x", 0)},
			{ID: "c1", Status: core.StatusCompleted, Description: fake.Describe("/dir/y", 1)},
			{ID: "c2", Status: core.StatusFailed, Description: fake.Describe("/dir/z", 2)},
			{ID: "c3", Status: core.StatusFailed, Description: fake.Describe("/dir/x", 3)},
		},
	}
	a := New(client, retry.Counting(1), persist("/dir"), WithLogger(quietLogger()))
	require.True(t, a.Run(context.Background()))

	assert.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))
	assert.Equal(t, []string{"/dir/x", "/dir/z"}, a.FailedTargets())

	// Idempotent
	assert.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))
	assert.Equal(t, []string{"/dir/x", "/dir/z"}, a.FailedTargets())
}

func TestCheckStatus_FailedChildrenIgnoredWhenRootNotFailed(t *testing.T) {
	client := fake.New()
	client.Outcomes["/a"] = fake.Outcome{
		Status:   core.StatusCompleted,
		Children: []core.JobInfo{{ID: "c", Status: core.StatusFailed, Description: fake.Describe("/a", 0)}},
	}
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(quietLogger()))
	require.True(t, a.Run(context.Background()))

	assert.Equal(t, core.StatusCompleted, a.CheckStatus(context.Background()))
	assert.Empty(t, a.FailedTargets())
}

func TestCheckStatus_MalformedDescription(t *testing.T) {
	client := fake.New()
	client.Outcomes["/a"] = fake.Outcome{
		Status: core.StatusFailed,
		Children: []core.JobInfo{
			{ID: "c0", Status: core.StatusFailed, Description: "no target here"},
			{ID: "c1", Status: core.StatusFailed, Description: fake.Describe("/a", 1)},
		},
	}
	var logs bytes.Buffer
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.True(t, a.Run(context.Background()))

	assert.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))
	assert.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))
	assert.Equal(t, []string{"/a"}, a.FailedTargets())
	assert.Equal(t, 1, a.Malformed())
	assert.Contains(t, logs.String(), "cannot attribute failed task")
}

func TestCheckStatus_JobNotFound(t *testing.T) {
	client := fake.New()
	client.Outcomes["/a"] = fake.Outcome{NotFound: true}
	var logs bytes.Buffer
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.True(t, a.Run(context.Background()))

	assert.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))
	assert.Empty(t, a.FailedTargets())
	assert.Contains(t, logs.String(), "not known to the job service")
}

func TestCheckStatus_QueryError(t *testing.T) {
	client := fake.New()
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(quietLogger()))
	require.True(t, a.Run(context.Background()))

	client.StatusErr = errors.New("connection reset")
	assert.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))
}

type nilStatusClient struct{}

func (nilStatusClient) Submit(context.Context, core.JobConfig) (string, error) { return "job-1", nil }

func (nilStatusClient) Status(context.Context, string) (*core.JobInfo, error) { return nil, nil }

func TestCheckStatus_NilStatusIsAFailure(t *testing.T) {
	var logs bytes.Buffer
	a := New(nilStatusClient{}, retry.Counting(1), persist("/a"),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.True(t, a.Run(context.Background()))

	assert.NotPanics(t, func() {
		assert.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))
	})
	assert.Empty(t, a.FailedTargets())
	assert.Contains(t, logs.String(), "job service returned no status")
}

func TestFailedTargets_IsCopy(t *testing.T) {
	client := fake.New()
	client.Outcomes["/a"] = fake.Outcome{Status: core.StatusFailed}
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(quietLogger()))
	require.True(t, a.Run(context.Background()))
	require.Equal(t, core.StatusFailed, a.CheckStatus(context.Background()))

	got := a.FailedTargets()
	require.Equal(t, []string{"/a"}, got)
	got[0] = "/mutated"
	assert.Equal(t, []string{"/a"}, a.FailedTargets())
}

func TestLogFailed(t *testing.T) {
	client := fake.New()
	client.Outcomes["/a"] = fake.Outcome{Status: core.StatusFailed}
	var logs bytes.Buffer
	a := New(client, retry.Counting(1), persist("/a"), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.True(t, a.Run(context.Background()))
	a.CheckStatus(context.Background())

	a.LogFailed()
	assert.Contains(t, logs.String(), "target=/a")
}

func TestAccessors(t *testing.T) {
	a := New(fake.New(), retry.Counting(1), persist("/a"), WithFileCount(3), WithFileSize(4096))
	assert.Equal(t, int64(3), a.FileCount())
	assert.Equal(t, int64(4096), a.FileSize())

	a.SetFileCount(5)
	a.SetFileSize(10)
	assert.Equal(t, int64(5), a.FileCount())
	assert.Equal(t, int64(10), a.FileSize())

	a.SetConfig(persist("/b"))
	assert.Equal(t, "/b", a.Target())

	require.True(t, a.Run(context.Background()))
	a.SetConfig(persist("/c"))
	assert.Equal(t, "/b", a.Target(), "config is frozen after submission")
}

func TestRun_WithBackoffPolicy(t *testing.T) {
	client := fake.New()
	client.SubmitFailures["/a"] = 1
	policy := retry.ExponentialBackoff(retry.Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	})
	a := New(client, policy, persist("/a"), WithLogger(quietLogger()))

	require.True(t, a.Run(context.Background()))
	assert.Equal(t, 2, a.SubmitAttempts())
}
