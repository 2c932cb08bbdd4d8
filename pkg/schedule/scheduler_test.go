package schedule

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

func replicateCmd(t *testing.T) core.CmdConfig {
	t.Helper()
	cmd, err := cmdconfig.NewReplicateCmd([]string{"/a"}, 2)
	require.NoError(t, err)
	return cmd
}

func quiet() SchedulerOption {
	return WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestScheduler_RunsDueCommands(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(func(_ context.Context, cmd core.CmdConfig) error {
		assert.Equal(t, cmdconfig.ReplicateCmdName, cmd.Name())
		runs.Add(1)
		return nil
	}, WithTick(2*time.Millisecond), quiet())
	require.NoError(t, s.Add("replicas", Every(10*time.Millisecond), replicateCmd(t)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestScheduler_SkipsWhileRunning(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	s := NewScheduler(func(ctx context.Context, _ core.CmdConfig) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, WithTick(time.Millisecond), quiet())
	require.NoError(t, s.Add("slow", Every(time.Millisecond), replicateCmd(t)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestScheduler_RunnerErrorsDoNotStopIt(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(func(context.Context, core.CmdConfig) error {
		runs.Add(1)
		return errors.New("boom")
	}, WithTick(time.Millisecond), quiet())
	require.NoError(t, s.Add("failing", Every(2*time.Millisecond), replicateCmd(t)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestScheduler_AddAndRemove(t *testing.T) {
	s := NewScheduler(func(context.Context, core.CmdConfig) error { return nil })

	assert.Error(t, s.Add("", Every(time.Minute), replicateCmd(t)))
	assert.Error(t, s.Add("nil-schedule", nil, replicateCmd(t)))

	before := time.Now()
	require.NoError(t, s.Add("hourly", Every(time.Hour), replicateCmd(t)))
	next, ok := s.NextRun("hourly")
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(time.Hour), next, time.Second)

	s.Remove("hourly")
	_, ok = s.NextRun("hourly")
	assert.False(t, ok)
}

func TestScheduler_NotDueYet(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(func(context.Context, core.CmdConfig) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, s.Add("daily", Every(24*time.Hour), replicateCmd(t)))

	s.dispatch(context.Background(), time.Now())
	s.wg.Wait()
	assert.Zero(t, runs.Load())

	s.dispatch(context.Background(), time.Now().Add(25*time.Hour))
	s.wg.Wait()
	assert.Equal(t, int32(1), runs.Load())
}
