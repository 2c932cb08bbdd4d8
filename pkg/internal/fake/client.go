// Package fake provides a scripted core.JobControlClient for tests.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// Outcome scripts how a submitted job for one target evolves.
type Outcome struct {
	// Polls is the number of RUNNING answers before the terminal one.
	Polls int
	// Status is the terminal root status. Empty means COMPLETED.
	Status core.Status
	// Children overrides the terminal child list. When nil, the job has one
	// child mirroring Status with a well-formed description.
	Children []core.JobInfo
	// NotFound makes every status query fail with core.ErrJobNotFound.
	NotFound bool
}

// Client is an in-memory job service driven by per-target scripts.
type Client struct {
	mu sync.Mutex

	// SubmitFailures maps a target to the number of rejected submissions
	// before one is accepted. Negative rejects forever.
	SubmitFailures map[string]int
	Outcomes       map[string]Outcome
	// SubmitDelay is slept inside every Submit call.
	SubmitDelay time.Duration
	// StatusErr, when set, is returned by every status query.
	StatusErr error

	nextID    int
	jobs      map[string]*job
	submits   map[string]int
	statuses  int
	active    int
	maxActive int
}

type job struct {
	target  string
	outcome Outcome
	polls   int
	done    bool
}

// New returns an empty client where every job completes on first poll.
func New() *Client {
	return &Client{
		SubmitFailures: make(map[string]int),
		Outcomes:       make(map[string]Outcome),
		jobs:           make(map[string]*job),
		submits:        make(map[string]int),
	}
}

// Describe renders a task description the way the job master does.
func Describe(target string, index int) string {
	return fmt.Sprintf("Task %d %s%s%s attempt 1", index, core.TargetKey, target, core.TargetDelimiter)
}

func (c *Client) Submit(ctx context.Context, cfg core.JobConfig) (string, error) {
	if c.SubmitDelay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.SubmitDelay):
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := cfg.Target()
	c.submits[target]++
	if fails, ok := c.SubmitFailures[target]; ok && (fails < 0 || c.submits[target] <= fails) {
		return "", fmt.Errorf("%w: %w", core.ErrSubmissionRejected, &core.LeaseNotFoundError{})
	}

	c.nextID++
	id := fmt.Sprintf("job-%d", c.nextID)
	c.jobs[id] = &job{target: target, outcome: c.Outcomes[target]}
	c.active++
	if c.active > c.maxActive {
		c.maxActive = c.active
	}
	return id, nil
}

func (c *Client) Status(_ context.Context, jobID string) (*core.JobInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses++

	if c.StatusErr != nil {
		return nil, c.StatusErr
	}

	j, ok := c.jobs[jobID]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	if j.outcome.NotFound {
		c.finish(j)
		return nil, core.ErrJobNotFound
	}

	if j.polls < j.outcome.Polls {
		j.polls++
		return &core.JobInfo{
			ID:     jobID,
			Status: core.StatusRunning,
			Children: []core.JobInfo{
				{ID: jobID + "-0", Status: core.StatusRunning, Description: Describe(j.target, 0)},
			},
		}, nil
	}

	c.finish(j)
	status := j.outcome.Status
	if status == "" {
		status = core.StatusCompleted
	}
	children := j.outcome.Children
	if children == nil {
		children = []core.JobInfo{
			{ID: jobID + "-0", Status: status, Description: Describe(j.target, 0)},
		}
	}
	return &core.JobInfo{ID: jobID, Status: status, Children: children}, nil
}

func (c *Client) finish(j *job) {
	if !j.done {
		j.done = true
		c.active--
	}
}

// SubmitCalls returns how many times target was submitted.
func (c *Client) SubmitCalls(target string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits[target]
}

// StatusCalls returns the total number of status queries.
func (c *Client) StatusCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses
}

// Accepted returns the number of jobs created.
func (c *Client) Accepted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID
}

// MaxActive returns the highest number of accepted jobs that had not yet
// reported a terminal status at the same time.
func (c *Client) MaxActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxActive
}
