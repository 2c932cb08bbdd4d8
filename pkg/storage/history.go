package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// CommandFilter narrows SearchCommands.
type CommandFilter struct {
	Status        core.Status
	Name          string
	OperationType core.OperationType
	Since         time.Time
	Until         time.Time
	Limit         int
	Offset        int
}

// MigrateHistory creates the command history tables.
func (s *GormStorage) MigrateHistory(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.CommandRun{}, &core.AttemptRecord{})
}

// CreateCommandRun stores a command run as it starts.
func (s *GormStorage) CreateCommandRun(ctx context.Context, run *core.CommandRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

// SaveAttempt stores the outcome of one attempt.
func (s *GormStorage) SaveAttempt(ctx context.Context, rec *core.AttemptRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// FinishCommandRun writes the final status, failure summary and finish time
// of a run.
func (s *GormStorage) FinishCommandRun(ctx context.Context, run *core.CommandRun) error {
	result := s.db.WithContext(ctx).
		Model(&core.CommandRun{ID: run.ID}).
		Select("status", "failed_count", "failed_targets", "unattributed", "submit_failures", "finished_at").
		Updates(run)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrCommandNotFound
	}
	return nil
}

// GetCommandRun retrieves a run by ID.
func (s *GormStorage) GetCommandRun(ctx context.Context, id string) (*core.CommandRun, error) {
	var run core.CommandRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrCommandNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListCommandRuns returns the most recent runs first.
func (s *GormStorage) ListCommandRuns(ctx context.Context, limit int) ([]*core.CommandRun, error) {
	runs, _, err := s.SearchCommands(ctx, CommandFilter{Limit: limit})
	return runs, err
}

// GetAttempts returns the attempt records of a run in the order they
// finished.
func (s *GormStorage) GetAttempts(ctx context.Context, commandID string) ([]*core.AttemptRecord, error) {
	var recs []*core.AttemptRecord
	err := s.db.WithContext(ctx).
		Where("command_id = ?", commandID).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}

// SearchCommands returns runs matching the filter with pagination and total
// count.
func (s *GormStorage) SearchCommands(ctx context.Context, filter CommandFilter) ([]*core.CommandRun, int64, error) {
	q := s.db.WithContext(ctx).Model(&core.CommandRun{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Name != "" {
		q = q.Where("name = ?", filter.Name)
	}
	if filter.OperationType != "" {
		q = q.Where("operation_type = ?", filter.OperationType)
	}
	if !filter.Since.IsZero() {
		q = q.Where("started_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("started_at <= ?", filter.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var runs []*core.CommandRun
	err := q.Order("started_at DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// PruneHistory deletes runs started before the cutoff and their attempts.
func (s *GormStorage) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&core.CommandRun{}).
			Where("started_at < ?", before).
			Where("finished_at IS NOT NULL").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("command_id IN ?", ids).Delete(&core.AttemptRecord{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&core.CommandRun{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

var _ core.HistoryStorage = (*GormStorage)(nil)
