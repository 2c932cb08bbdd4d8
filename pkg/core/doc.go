// Package core provides the fundamental types and interfaces for the command tracker.
//
// This package contains:
//   - Status, JobSource and OperationType enums
//   - JobConfig, CmdConfig and JobControlClient contracts
//   - JobInfo status trees returned by the job-execution subsystem
//   - Job, CommandRun and AttemptRecord data models with GORM annotations
//   - Storage and HistoryStorage persistence contracts
//   - Event types for command and task monitoring
//   - Error types shared by every package
//
// Most users should import the root package github.com/jdziat/durable-cmd-tracker
// instead of this package directly.
package core
