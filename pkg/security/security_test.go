package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

func TestValidateConfigName_Valid(t *testing.T) {
	validNames := []string{
		"PersistCmdConfig",
		"SetReplicaConfig",
		"persist-v2",
		"a",
		"replicate.blocks",
	}

	for _, name := range validNames {
		err := ValidateConfigName(name)
		assert.NoError(t, err, "Expected %q to be valid", name)
	}
}

func TestValidateConfigName_Invalid(t *testing.T) {
	invalidNames := []string{
		"",                       // empty
		"1Persist",               // starts with number
		"Persist Config",         // contains spaces
		"Persist/Config",         // contains slash
		strings.Repeat("a", 300), // too long
	}

	for _, name := range invalidNames {
		err := ValidateConfigName(name)
		assert.Error(t, err, "Expected %q to be invalid", name)
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"/", "/a", "/data/logs/2024-01-01.log", "/with space/file"}
	for _, p := range valid {
		assert.NoError(t, ValidatePath(p), "Expected %q to be valid", p)
	}

	invalid := []string{"", "relative/path", "/a/../b", "/trailing/", "/a,b", "/nul\x00"}
	for _, p := range invalid {
		assert.ErrorIs(t, ValidatePath(p), core.ErrInvalidPath, "path %q", p)
	}

	assert.ErrorIs(t, ValidatePath("/"+strings.Repeat("p", 2000)), core.ErrPathTooLong)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "normal message",
			input:    "connection refused",
			expected: "connection refused",
		},
		{
			name:     "message with newlines",
			input:    "error on\nline 2",
			expected: "error on\nline 2",
		},
		{
			name:     "message with null bytes",
			input:    "error\x00with\x00nulls",
			expected: "errorwithnulls",
		},
		{
			name:     "empty message",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeErrorMessage(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSanitizeErrorMessage_Truncation(t *testing.T) {
	longMessage := strings.Repeat("a", 5000)
	result := SanitizeErrorMessage(longMessage)

	assert.LessOrEqual(t, len(result), MaxErrorMessageLength)
	assert.True(t, strings.HasSuffix(result, "..."))
}

func TestClampRetries(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-1, 0},
		{0, 0},
		{5, 5},
		{100, 100},
		{101, 100},
	}

	for _, tt := range tests {
		result := ClampRetries(tt.input)
		assert.Equal(t, tt.expected, result, "ClampRetries(%d)", tt.input)
	}
}

func TestClampAttempts(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{20, 20},
		{1001, 1000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClampAttempts(tt.input), "ClampAttempts(%d)", tt.input)
	}
}

func TestClampConcurrency(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{500, 500},
		{1000, 1000},
		{5000, 1000},
	}

	for _, tt := range tests {
		result := ClampConcurrency(tt.input)
		assert.Equal(t, tt.expected, result, "ClampConcurrency(%d)", tt.input)
	}
}
