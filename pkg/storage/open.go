package storage

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks the GORM driver for a DSN. postgres:// and postgresql://
// URLs and key=value strings with a host go to PostgreSQL; anything else,
// optionally prefixed with sqlite://, is a SQLite path.
func Dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn)
	case strings.Contains(dsn, "host=") && strings.Contains(dsn, "dbname="):
		return postgres.Open(dsn)
	default:
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	}
}

// Open connects to dsn, configures the pool and migrates every table.
func Open(ctx context.Context, dsn string, opts ...PoolOption) (*GormStorage, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(Dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s, err := NewGormStorageWithPool(db, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate jobs: %w", err)
	}
	if err := s.MigrateHistory(ctx); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
