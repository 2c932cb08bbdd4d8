package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 1*time.Minute, cfg.ConnMaxIdleTime)
}

func TestSQLitePoolConfig(t *testing.T) {
	cfg := SQLitePoolConfig()

	assert.Equal(t, 1, cfg.MaxOpenConns)
	assert.Equal(t, 1, cfg.MaxIdleConns)
	assert.Zero(t, cfg.ConnMaxLifetime)
	assert.Zero(t, cfg.ConnMaxIdleTime)
}

func TestPoolOptions(t *testing.T) {
	cfg := PoolConfig{}

	MaxOpenConns(50).applyPool(&cfg)
	assert.Equal(t, 50, cfg.MaxOpenConns)

	MaxIdleConns(20).applyPool(&cfg)
	assert.Equal(t, 20, cfg.MaxIdleConns)

	ConnMaxLifetime(10 * time.Minute).applyPool(&cfg)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxLifetime)

	ConnMaxIdleTime(2 * time.Minute).applyPool(&cfg)
	assert.Equal(t, 2*time.Minute, cfg.ConnMaxIdleTime)

	WithPoolConfig(SQLitePoolConfig()).applyPool(&cfg)
	assert.Equal(t, SQLitePoolConfig(), cfg)
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)

	err := ConfigurePool(db, DefaultPoolConfig(),
		MaxOpenConns(30),
		MaxIdleConns(15),
		ConnMaxLifetime(7*time.Minute),
		ConnMaxIdleTime(90*time.Second),
	)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 30, sqlDB.Stats().MaxOpenConnections)
}

func TestNewGormStorageWithPool_SQLiteUsesSingleConnection(t *testing.T) {
	db := openSQLite(t)

	s, err := NewGormStorageWithPool(db)
	require.NoError(t, err)
	assert.True(t, s.IsSQLite())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestNewGormStorageWithPool_OptionsOverrideBase(t *testing.T) {
	db := openSQLite(t)

	_, err := NewGormStorageWithPool(db, MaxOpenConns(4))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 4, sqlDB.Stats().MaxOpenConnections)
}

func TestDialector(t *testing.T) {
	tests := []struct {
		dsn  string
		name string
	}{
		{"postgres://u:p@localhost:5432/db", "postgres"},
		{"postgresql://localhost/db", "postgres"},
		{"host=localhost user=u dbname=db sslmode=disable", "postgres"},
		{"sqlite://tracker.db", "sqlite"},
		{"tracker.db", "sqlite"},
		{":memory:", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.name, Dialector(tt.dsn).Name())
		})
	}
}

func TestOpen_MigratesEverything(t *testing.T) {
	s, err := Open(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	m := s.DB().Migrator()
	assert.True(t, m.HasTable("jobs"))
	assert.True(t, m.HasTable("command_runs"))
	assert.True(t, m.HasTable("attempt_records"))
}
