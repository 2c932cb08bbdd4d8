// Package storage persists job master state and command history with GORM.
//
// GormStorage implements both core.Storage, used by the in-process job
// master for root jobs and their tasks, and core.HistoryStorage, used by the
// coordinator to record command runs and per-target attempts. Open picks
// the SQLite or PostgreSQL driver from the DSN.
package storage
