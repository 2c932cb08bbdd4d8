package coordinator

import (
	"sort"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// Result is the aggregated outcome of one command.
type Result struct {
	CommandID     string             `json:"command_id"`
	Name          string             `json:"name"`
	OperationType core.OperationType `json:"operation_type"`
	Status        core.Status        `json:"status"`
	// FailedTargets is the sorted union of every attempt's failed targets,
	// plus the targets of attempts that could not be submitted.
	FailedTargets []string `json:"failed_targets"`
	// Unattributed lists targets whose attempt failed without naming any
	// failed target.
	Unattributed []string `json:"unattributed,omitempty"`

	Total          int `json:"total"`
	Submitted      int `json:"submitted"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`
	Canceled       int `json:"canceled"`
	SubmitFailures int `json:"submit_failures"`
	Malformed      int `json:"malformed"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the command ran.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the command finished COMPLETED.
func (r *Result) Succeeded() bool {
	return r.Status == core.StatusCompleted
}

// outcome is what one attempt reports back to the aggregator.
type outcome struct {
	target         string
	jobID          string
	status         core.Status
	failedTargets  []string
	submitFailed   bool
	// interrupted is set when the caller's context stopped the attempt.
	interrupted    bool
	submitAttempts int
	malformed      int
	fileCount      int64
	fileSize       int64
	createdAt      time.Time
	duration       time.Duration
}

// aggregator folds outcomes into a Result. It is used by a single goroutine.
type aggregator struct {
	res          *Result
	failed       map[string]struct{}
	unattributed []string
	interrupted  int
}

func newAggregator(res *Result) *aggregator {
	return &aggregator{res: res, failed: make(map[string]struct{})}
}

func (g *aggregator) add(o outcome) {
	if o.jobID != "" {
		g.res.Submitted++
	}
	g.res.Malformed += o.malformed

	switch o.status {
	case core.StatusCompleted:
		g.res.Completed++
	case core.StatusCanceled:
		g.res.Canceled++
		if o.interrupted {
			g.interrupted++
		}
	default:
		g.res.Failed++
		switch {
		case o.submitFailed:
			g.res.SubmitFailures++
			g.failed[o.target] = struct{}{}
		case len(o.failedTargets) == 0:
			g.unattributed = append(g.unattributed, o.target)
		}
		for _, t := range o.failedTargets {
			g.failed[t] = struct{}{}
		}
	}
}

func (g *aggregator) finish(now time.Time) *Result {
	g.res.FailedTargets = make([]string, 0, len(g.failed))
	for t := range g.failed {
		g.res.FailedTargets = append(g.res.FailedTargets, t)
	}
	sort.Strings(g.res.FailedTargets)

	sort.Strings(g.unattributed)
	g.res.Unattributed = g.unattributed

	switch {
	case g.res.Failed > 0:
		g.res.Status = core.StatusFailed
	case g.interrupted > 0:
		// A job cancelled by the job service still counts as done.
		g.res.Status = core.StatusCanceled
	default:
		g.res.Status = core.StatusCompleted
	}
	g.res.FinishedAt = now
	return g.res
}
