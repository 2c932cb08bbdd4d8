package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Values(t *testing.T) {
	assert.Equal(t, Status("CREATED"), StatusCreated)
	assert.Equal(t, Status("RUNNING"), StatusRunning)
	assert.Equal(t, Status("COMPLETED"), StatusCompleted)
	assert.Equal(t, Status("CANCELED"), StatusCanceled)
	assert.Equal(t, Status("FAILED"), StatusFailed)
}

func TestStatus_IsFinished(t *testing.T) {
	tests := []struct {
		status   Status
		finished bool
	}{
		{StatusCreated, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusCanceled, true},
		{StatusFailed, true},
		{Status(""), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.finished, tt.status.IsFinished(), "status %q", tt.status)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("FAILED")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, s)

	_, err = ParseStatus("failed")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestJobInfo_ChildrenFinished(t *testing.T) {
	t.Run("no children", func(t *testing.T) {
		info := &JobInfo{ID: "a", Status: StatusRunning}
		assert.True(t, info.ChildrenFinished())
	})

	t.Run("all terminal", func(t *testing.T) {
		info := &JobInfo{Children: []JobInfo{
			{Status: StatusCompleted},
			{Status: StatusFailed},
			{Status: StatusCanceled},
		}}
		assert.True(t, info.ChildrenFinished())
	})

	t.Run("one running", func(t *testing.T) {
		info := &JobInfo{Children: []JobInfo{
			{Status: StatusCompleted},
			{Status: StatusRunning},
		}}
		assert.False(t, info.ChildrenFinished())
	})

	t.Run("one created", func(t *testing.T) {
		info := &JobInfo{Children: []JobInfo{{Status: StatusCreated}}}
		assert.False(t, info.ChildrenFinished())
	})
}

func TestJob_IsRoot(t *testing.T) {
	root := &Job{ID: "root"}
	assert.True(t, root.IsRoot())

	parent := "root"
	task := &Job{ID: "task", ParentID: &parent}
	assert.False(t, task.IsRoot())
}
