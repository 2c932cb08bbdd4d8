// Package security provides validation, sanitization, and limits for the command tracker.
package security

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// Security limits and configuration
const (
	// MaxConfigNameLength is the maximum length for config type names
	MaxConfigNameLength = 255

	// MaxPathLength is the maximum length for an affected path
	MaxPathLength = 1024

	// MaxConfigSize is the maximum size in bytes for a serialized config (1MB)
	MaxConfigSize = 1 << 20

	// MaxRetries is the hard limit for task retry attempts
	MaxRetries = 100

	// MaxSubmitAttempts is the hard limit for submission attempts per target
	MaxSubmitAttempts = 1000

	// MaxConcurrency is the hard limit for worker and attempt concurrency
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validConfigName matches alphanumeric, hyphens, underscores, and dots
var validConfigName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateConfigName validates a config type name
func ValidateConfigName(name string) error {
	if name == "" {
		return core.ErrInvalidConfigName
	}
	if len(name) > MaxConfigNameLength {
		return core.ErrConfigNameTooLong
	}
	if !validConfigName.MatchString(name) {
		return core.ErrInvalidConfigName
	}
	return nil
}

// ValidatePath checks that p is an absolute, clean path that can be embedded
// in a task description. Commas would break target extraction.
func ValidatePath(p string) error {
	if p == "" || !strings.HasPrefix(p, "/") {
		return core.ErrInvalidPath
	}
	if len(p) > MaxPathLength {
		return core.ErrPathTooLong
	}
	if path.Clean(p) != p || strings.ContainsAny(p, ",\x00\n") {
		return core.ErrInvalidPath
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures retry count is within limits
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}

// ClampAttempts ensures a submission attempt budget is within limits
func ClampAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxSubmitAttempts {
		return MaxSubmitAttempts
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
