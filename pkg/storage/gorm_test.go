package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// createTestJob inserts a root with n tasks targeting target.
func createTestJob(t *testing.T, s *GormStorage, target string, n int) (*core.Job, []*core.Job) {
	t.Helper()
	root := &core.Job{Name: "Persist", Target: target, Config: []byte(`{}`)}
	tasks := make([]*core.Job, n)
	for i := range tasks {
		tasks[i] = &core.Job{Name: "Persist", Target: target}
	}
	require.NoError(t, s.CreateJob(context.Background(), root, tasks))
	return root, tasks
}

// ──────────────────────────────────────────────────────────────────────────────
// Constructor / detection
// ──────────────────────────────────────────────────────────────────────────────

func TestNewGormStorage_IsSQLite(t *testing.T) {
	s := NewGormStorage(openSQLite(t))
	assert.True(t, s.IsSQLite(), "should detect SQLite dialect")
}

func TestNewGormStorage_DB(t *testing.T) {
	db := openSQLite(t)
	s := NewGormStorage(db)
	assert.Same(t, db, s.DB(), "DB() should return the same *gorm.DB passed in")
}

func TestNewGormStorage_NilDB(t *testing.T) {
	s := NewGormStorage(nil)
	assert.False(t, s.IsSQLite(), "nil db should not claim SQLite")
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateJob
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateJob_AssignsIDsAndParents(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	root, tasks := createTestJob(t, s, "/a", 3)
	require.NotEmpty(t, root.ID)
	assert.True(t, root.IsRoot())

	stored, err := s.GetTasks(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, task := range stored {
		assert.Equal(t, tasks[i].ID, task.ID)
		assert.Equal(t, i, task.TaskIndex)
		require.NotNil(t, task.ParentID)
		assert.Equal(t, root.ID, *task.ParentID)
		assert.Equal(t, core.StatusCreated, task.Status)
	}
}

func TestCreateJob_ZeroTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	root, _ := createTestJob(t, s, "/a", 0)

	got, err := s.GetJob(ctx, root.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.StatusCreated, got.Status)

	tasks, err := s.GetTasks(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateJob_PreservesExistingID(t *testing.T) {
	s := newTestStorage(t)
	root := &core.Job{ID: "fixed-id", Name: "Persist"}
	require.NoError(t, s.CreateJob(context.Background(), root, nil))
	assert.Equal(t, "fixed-id", root.ID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Dequeue
// ──────────────────────────────────────────────────────────────────────────────

func TestDequeue_ReturnsTaskAndSetsRunning(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	root, tasks := createTestJob(t, s, "/a", 1)

	got, err := s.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, tasks[0].ID, got.ID)
	assert.Equal(t, root.ID, *got.ParentID)
	assert.Equal(t, core.StatusRunning, got.Status)
	assert.Equal(t, "worker-1", got.LockedBy)
	assert.NotNil(t, got.LockedUntil)
	assert.NotNil(t, got.StartedAt)
	assert.Equal(t, 1, got.Attempt)
}

func TestDequeue_NeverReturnsRoots(t *testing.T) {
	s := newTestStorage(t)
	createTestJob(t, s, "/a", 0)

	got, err := s.Dequeue(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDequeue_ReturnsNilWhenEmpty(t *testing.T) {
	s := newTestStorage(t)
	got, err := s.Dequeue(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDequeue_TaskOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 3)

	for i := range tasks {
		got, err := s.Dequeue(ctx, "w")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tasks[i].ID, got.ID)
	}
	got, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDequeue_SkipsFutureRetries(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)
	future := time.Now().Add(time.Hour)
	require.NoError(t, s.Fail(ctx, tasks[0].ID, "w", "boom", &future))

	got, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// ──────────────────────────────────────────────────────────────────────────────
// Complete / Fail / Heartbeat
// ──────────────────────────────────────────────────────────────────────────────

func TestComplete_SetsStatusToCompleted(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, tasks[0].ID, "w"))

	got, err := s.GetJob(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.LockedBy)
	assert.Nil(t, got.LockedUntil)
}

func TestComplete_FailsWhenWorkerDoesNotOwnTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "owner")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Complete(ctx, tasks[0].ID, "intruder"), core.ErrJobNotOwned)
}

func TestFail_SetsStatusToFailedAndSanitizes(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, tasks[0].ID, "w", "disk full\x00", nil))

	got, err := s.GetJob(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "disk full", got.LastError)
}

func TestFail_RetryPutsTaskBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)
	past := time.Now().Add(-time.Second)
	require.NoError(t, s.Fail(ctx, tasks[0].ID, "w", "transient", &past))

	got, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tasks[0].ID, got.ID)
	assert.Equal(t, 2, got.Attempt)
	assert.Equal(t, "transient", got.LastError)
}

func TestFail_FailsWhenWorkerDoesNotOwnTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "owner")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Fail(ctx, tasks[0].ID, "intruder", "x", nil), core.ErrJobNotOwned)
}

func TestHeartbeat_ExtendsLockedUntil(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 1)

	first, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Heartbeat(ctx, tasks[0].ID, "w"))

	got, err := s.GetJob(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.True(t, got.LockedUntil.After(*first.LockedUntil))
	assert.NotNil(t, got.LastHeartbeatAt)
}

func TestHeartbeat_FailsWhenWorkerDoesNotOwnTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	_, tasks := createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "owner")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Heartbeat(ctx, tasks[0].ID, "intruder"), core.ErrJobNotOwned)
}

func TestReleaseStaleLocks_ResetsExpiredTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	s.SetLockDuration(time.Millisecond)
	_, tasks := createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "crashed")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	n, err := s.ReleaseStaleLocks(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetJob(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCreated, got.Status)
	assert.Empty(t, got.LockedBy)
}

func TestReleaseStaleLocks_DoesNotTouchFreshLocks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	createTestJob(t, s, "/a", 1)

	_, err := s.Dequeue(ctx, "alive")
	require.NoError(t, err)

	n, err := s.ReleaseStaleLocks(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries and root bookkeeping
// ──────────────────────────────────────────────────────────────────────────────

func TestGetJob_ReturnsNilForMissingJob(t *testing.T) {
	s := newTestStorage(t)
	got, err := s.GetJob(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCountByStatus_CountsRootsOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	a, _ := createTestJob(t, s, "/a", 2)
	createTestJob(t, s, "/b", 2)
	require.NoError(t, s.FinishJob(ctx, a.ID, core.StatusCompleted))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[core.StatusCreated])
	assert.Equal(t, int64(1), counts[core.StatusCompleted])
}

func TestFinishJob_KeepsFirstTerminalStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	root, _ := createTestJob(t, s, "/a", 1)

	require.NoError(t, s.FinishJob(ctx, root.ID, core.StatusFailed))
	require.NoError(t, s.FinishJob(ctx, root.ID, core.StatusCompleted))

	got, err := s.GetJob(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestCancelJob_CancelsUnfinishedTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	root, tasks := createTestJob(t, s, "/a", 3)

	_, err := s.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, tasks[0].ID, "w"))
	_, err = s.Dequeue(ctx, "w")
	require.NoError(t, err)

	n, err := s.CancelJob(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stored, err := s.GetTasks(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, stored[0].Status)
	assert.Equal(t, core.StatusCanceled, stored[1].Status)
	assert.Equal(t, core.StatusCanceled, stored[2].Status)

	got, err := s.GetJob(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCanceled, got.Status)

	// The worker that held task 1 lost ownership.
	assert.ErrorIs(t, s.Complete(ctx, tasks[1].ID, "w"), core.ErrJobNotOwned)
}

func TestCancelJob_UnknownRoot(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.CancelJob(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestPruneFinished_DeletesOldRootsAndTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	old, _ := createTestJob(t, s, "/old", 2)
	active, _ := createTestJob(t, s, "/active", 1)
	require.NoError(t, s.FinishJob(ctx, old.ID, core.StatusCompleted))

	n, err := s.PruneFinished(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetJob(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	tasks, err := s.GetTasks(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	got, err = s.GetJob(ctx, active.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestPruneFinished_KeepsRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	root, _ := createTestJob(t, s, "/a", 1)
	require.NoError(t, s.FinishJob(ctx, root.ID, core.StatusCompleted))

	n, err := s.PruneFinished(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
