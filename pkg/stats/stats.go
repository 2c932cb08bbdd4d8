// Package stats keeps per-minute command statistics.
//
// A Collector subscribes to coordinator events, counts finished commands and
// attempts per operation type, and flushes the counters into a gorm table
// once a minute. It can also snapshot the job master's job counts.
package stats

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// CommandStat stores per-operation statistics bucketed by minute.
type CommandStat struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	OperationType  string    `gorm:"index:idx_command_stats_op_ts;size:64;not null" json:"operation_type"`
	Timestamp      time.Time `gorm:"index:idx_command_stats_op_ts;not null" json:"timestamp"`
	Commands       int64     `gorm:"default:0" json:"commands"`
	FailedCommands int64     `gorm:"default:0" json:"failed_commands"`
	Completed      int64     `gorm:"default:0" json:"completed"`
	Failed         int64     `gorm:"default:0" json:"failed"`
	Canceled       int64     `gorm:"default:0" json:"canceled"`
	SubmitFailures int64     `gorm:"default:0" json:"submit_failures"`
	PendingJobs    int64     `gorm:"default:0" json:"pending_jobs"`
	RunningJobs    int64     `gorm:"default:0" json:"running_jobs"`
}

// Counters is one flush worth of increments for an operation type.
type Counters struct {
	Commands       int64
	FailedCommands int64
	Completed      int64
	Failed         int64
	Canceled       int64
	SubmitFailures int64
}

func (c Counters) zero() bool {
	return c == Counters{}
}

// Store persists CommandStat rows.
type Store interface {
	MigrateStats(ctx context.Context) error
	AddCounters(ctx context.Context, op string, ts time.Time, c Counters) error
	SnapshotJobs(ctx context.Context, op string, ts time.Time, pending, running int64) error
	History(ctx context.Context, op string, since, until time.Time) ([]CommandStat, error)
	PruneStats(ctx context.Context, before time.Time) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GORM-backed stats store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) MigrateStats(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&CommandStat{})
}

// bucket returns the row for op at ts, creating it when missing.
func (s *gormStore) bucket(tx *gorm.DB, op string, ts time.Time) (*CommandStat, error) {
	row := CommandStat{OperationType: op, Timestamp: ts.Truncate(time.Minute)}
	err := tx.
		Where("operation_type = ? AND timestamp = ?", row.OperationType, row.Timestamp).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *gormStore) AddCounters(ctx context.Context, op string, ts time.Time, c Counters) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.bucket(tx, op, ts)
		if err != nil {
			return err
		}
		return tx.Model(row).Updates(map[string]any{
			"commands":        gorm.Expr("commands + ?", c.Commands),
			"failed_commands": gorm.Expr("failed_commands + ?", c.FailedCommands),
			"completed":       gorm.Expr("completed + ?", c.Completed),
			"failed":          gorm.Expr("failed + ?", c.Failed),
			"canceled":        gorm.Expr("canceled + ?", c.Canceled),
			"submit_failures": gorm.Expr("submit_failures + ?", c.SubmitFailures),
		}).Error
	})
}

func (s *gormStore) SnapshotJobs(ctx context.Context, op string, ts time.Time, pending, running int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.bucket(tx, op, ts)
		if err != nil {
			return err
		}
		return tx.Model(row).Updates(map[string]any{
			"pending_jobs": pending,
			"running_jobs": running,
		}).Error
	})
}

func (s *gormStore) History(ctx context.Context, op string, since, until time.Time) ([]CommandStat, error) {
	var rows []CommandStat
	q := s.db.WithContext(ctx).Order("timestamp ASC, operation_type ASC")

	if op != "" {
		q = q.Where("operation_type = ?", op)
	}
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	if !until.IsZero() {
		q = q.Where("timestamp <= ?", until)
	}

	return rows, q.Find(&rows).Error
}

func (s *gormStore) PruneStats(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&CommandStat{})
	return result.RowsAffected, result.Error
}
