// Package context provides internal context helpers for task execution.
//
// This package is internal and should not be imported directly; executors
// read the values through package jobctx.
package context
