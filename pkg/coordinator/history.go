package coordinator

import (
	"context"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// History writes must outlive a cancelled run, so they use a detached
// context.

func (c *Coordinator) recordStart(ctx context.Context, cmd core.CmdConfig, res *Result) {
	if c.config.history == nil {
		return
	}
	data, err := cmdconfig.MarshalCmd(cmd)
	if err != nil {
		c.logger.Warn("failed to encode command for history", "command_id", res.CommandID, "error", err)
	}
	run := &core.CommandRun{
		ID:            res.CommandID,
		Name:          res.Name,
		OperationType: res.OperationType,
		JobSource:     cmd.JobSource(),
		Config:        data,
		Status:        core.StatusRunning,
		TargetCount:   res.Total,
		StartedAt:     res.StartedAt,
	}
	if err := c.config.history.CreateCommandRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Warn("failed to record command start", "command_id", res.CommandID, "error", err)
	}
}

func (c *Coordinator) recordAttempt(ctx context.Context, res *Result, o outcome) {
	if c.config.history == nil {
		return
	}
	finished := time.Now()
	rec := &core.AttemptRecord{
		CommandID:      res.CommandID,
		Target:         o.target,
		JobID:          o.jobID,
		Status:         o.status,
		SubmitAttempts: o.submitAttempts,
		FailedTargets:  o.failedTargets,
		FileCount:      o.fileCount,
		FileSize:       o.fileSize,
		CreatedAt:      o.createdAt,
		FinishedAt:     &finished,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = finished
	}
	if err := c.config.history.SaveAttempt(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("failed to record attempt", "command_id", res.CommandID, "target", o.target, "error", err)
	}
}

func (c *Coordinator) recordFinish(ctx context.Context, res *Result) {
	if c.config.history == nil {
		return
	}
	finished := res.FinishedAt
	run := &core.CommandRun{
		ID:             res.CommandID,
		Status:         res.Status,
		FailedCount:    res.Failed,
		FailedTargets:  res.FailedTargets,
		Unattributed:   res.Unattributed,
		SubmitFailures: res.SubmitFailures,
		FinishedAt:     &finished,
	}
	if err := c.config.history.FinishCommandRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Warn("failed to record command finish", "command_id", res.CommandID, "error", err)
	}
}
