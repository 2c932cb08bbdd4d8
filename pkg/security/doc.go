// Package security provides validation, sanitization, and limits for the command tracker.
//
// This package includes:
//   - Input validation for config type names and affected paths
//   - Error message sanitization to prevent sensitive data leakage
//   - Clamping functions to enforce safe limits on retries, attempts and concurrency
//
// Most users should import the root package github.com/jdziat/durable-cmd-tracker
// which re-exports these functions.
package security
