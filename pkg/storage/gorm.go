// Package storage provides storage implementations for the tracker.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

// DefaultLockDuration is how long a dequeued task stays locked without a
// heartbeat.
const DefaultLockDuration = 5 * time.Minute

var finishedStatuses = []core.Status{core.StatusCompleted, core.StatusCanceled, core.StatusFailed}

// GormStorage implements core.Storage and core.HistoryStorage using GORM.
type GormStorage struct {
	db       *gorm.DB
	lockFor  time.Duration
	isSQLite bool
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	s := &GormStorage{db: db, lockFor: DefaultLockDuration}
	if db != nil && db.Dialector != nil {
		s.isSQLite = db.Dialector.Name() == "sqlite"
	}
	return s
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.isSQLite
}

// SetLockDuration changes how long a dequeued task stays locked.
func (s *GormStorage) SetLockDuration(d time.Duration) {
	if d > 0 {
		s.lockFor = d
	}
}

// Migrate creates the job master tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{})
}

// CreateJob inserts a root job and its tasks in one transaction.
func (s *GormStorage) CreateJob(ctx context.Context, root *core.Job, tasks []*core.Job) error {
	if root.ID == "" {
		root.ID = uuid.New().String()
	}
	if root.Status == "" {
		root.Status = core.StatusCreated
	}
	root.ParentID = nil
	for i, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.Status == "" {
			t.Status = core.StatusCreated
		}
		t.ParentID = &root.ID
		t.TaskIndex = i
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(root).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		return tx.CreateInBatches(tasks, 100).Error
	})
}

// Dequeue fetches and locks the next runnable task. It returns nil when
// nothing is runnable.
func (s *GormStorage) Dequeue(ctx context.Context, workerID string) (*core.Job, error) {
	var task core.Job
	now := time.Now()
	lockUntil := now.Add(s.lockFor)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("parent_id IS NOT NULL").
			Where("status = ?", core.StatusCreated).
			Where("(run_at IS NULL OR run_at <= ?)", now).
			Where("(locked_until IS NULL OR locked_until < ?)", now).
			Order("created_at ASC, task_index ASC")
		if !s.isSQLite {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		if err := q.First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		task.Status = core.StatusRunning
		task.LockedBy = workerID
		task.LockedUntil = &lockUntil
		task.LastHeartbeatAt = &now
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
		task.Attempt++

		return tx.Save(&task).Error
	})

	if err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, nil
	}
	return &task, nil
}

// Complete marks a task as successfully completed.
// Validates that the worker owns the task before completing.
func (s *GormStorage) Complete(ctx context.Context, taskID string, workerID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", taskID, workerID, core.StatusRunning).
		Updates(map[string]any{
			"status":       core.StatusCompleted,
			"completed_at": now,
			"locked_by":    "",
			"locked_until": nil,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// Fail marks a task as failed, or puts it back to CREATED when retryAt is
// set. Validates that the worker owns the task. Error messages are sanitized
// before storage.
func (s *GormStorage) Fail(ctx context.Context, taskID string, workerID string, errMsg string, retryAt *time.Time) error {
	updates := map[string]any{
		"last_error":   security.SanitizeErrorMessage(errMsg),
		"locked_by":    "",
		"locked_until": nil,
	}

	if retryAt != nil {
		updates["status"] = core.StatusCreated
		updates["run_at"] = retryAt
	} else {
		updates["status"] = core.StatusFailed
		updates["completed_at"] = time.Now()
	}

	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", taskID, workerID, core.StatusRunning).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// Heartbeat extends the lock on a running task.
func (s *GormStorage) Heartbeat(ctx context.Context, taskID string, workerID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", taskID, workerID, core.StatusRunning).
		Updates(map[string]any{
			"locked_until":      now.Add(s.lockFor),
			"last_heartbeat_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// ReleaseStaleLocks puts running tasks whose lock expired more than
// staleDuration ago back to CREATED.
func (s *GormStorage) ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleDuration)
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ?", core.StatusRunning).
		Where("locked_until < ?", cutoff).
		Updates(map[string]any{
			"status":       core.StatusCreated,
			"locked_by":    "",
			"locked_until": nil,
		})
	return result.RowsAffected, result.Error
}

// GetJob retrieves a root job or task by ID. It returns nil when the row does
// not exist.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetTasks returns the tasks of a root job in index order.
func (s *GormStorage) GetTasks(ctx context.Context, rootID string) ([]*core.Job, error) {
	var tasks []*core.Job
	err := s.db.WithContext(ctx).
		Where("parent_id = ?", rootID).
		Order("task_index ASC").
		Find(&tasks).Error
	return tasks, err
}

// CountByStatus counts root jobs per status.
func (s *GormStorage) CountByStatus(ctx context.Context) (map[core.Status]int64, error) {
	type row struct {
		Status core.Status
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("status, count(*) as count").
		Where("parent_id IS NULL").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[core.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// FinishJob records the terminal status of a root job. A root that is already
// terminal keeps its status.
func (s *GormStorage) FinishJob(ctx context.Context, rootID string, status core.Status) error {
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND parent_id IS NULL", rootID).
		Where("status NOT IN ?", finishedStatuses).
		Updates(map[string]any{
			"status":       status,
			"completed_at": time.Now(),
		}).Error
}

// CancelJob cancels a root job and every unfinished task. It returns the
// number of tasks cancelled.
func (s *GormStorage) CancelJob(ctx context.Context, rootID string) (int64, error) {
	var cancelled int64
	now := time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&core.Job{}).
			Where("id = ? AND parent_id IS NULL", rootID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return core.ErrJobNotFound
		}

		result := tx.Model(&core.Job{}).
			Where("parent_id = ?", rootID).
			Where("status NOT IN ?", finishedStatuses).
			Updates(map[string]any{
				"status":       core.StatusCanceled,
				"completed_at": now,
				"locked_by":    "",
				"locked_until": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		cancelled = result.RowsAffected

		return tx.Model(&core.Job{}).
			Where("id = ?", rootID).
			Where("status NOT IN ?", finishedStatuses).
			Updates(map[string]any{
				"status":       core.StatusCanceled,
				"completed_at": now,
			}).Error
	})
	return cancelled, err
}

// PruneFinished deletes terminal root jobs completed before the cutoff
// together with their tasks. It returns the number of roots deleted.
func (s *GormStorage) PruneFinished(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&core.Job{}).
			Where("parent_id IS NULL").
			Where("status IN ?", finishedStatuses).
			Where("completed_at < ?", before).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("parent_id IN ?", ids).Delete(&core.Job{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&core.Job{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

var _ core.Storage = (*GormStorage)(nil)
