package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// JobsRow is the operation type under which job counts are snapshotted.
const JobsRow = "JOBS"

// EventSource is anything that publishes tracker events.
type EventSource interface {
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}

// JobCounter reports the number of root jobs per status.
type JobCounter func(ctx context.Context) (map[core.Status]int64, error)

// Collector subscribes to coordinator events and periodically flushes
// per-operation counters.
type Collector struct {
	source    EventSource
	store     Store
	jobs      JobCounter
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	counters map[string]*Counters

	// ready is closed once the collector has subscribed to events.
	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures the Collector.
type Option interface {
	apply(*Collector)
}

type optionFunc func(*Collector)

func (f optionFunc) apply(c *Collector) { f(c) }

// WithRetention sets how long stats rows are kept. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return optionFunc(func(c *Collector) {
		c.retention = d
	})
}

// WithFlushInterval sets how often counters are written.
func WithFlushInterval(d time.Duration) Option {
	return optionFunc(func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	})
}

// WithJobCounter snapshots job counts on every flush.
func WithJobCounter(fn JobCounter) Option {
	return optionFunc(func(c *Collector) {
		c.jobs = fn
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Collector) {
		c.logger = l
	})
}

// NewCollector creates a new Collector.
func NewCollector(source EventSource, store Store, opts ...Option) *Collector {
	c := &Collector{
		source:    source,
		store:     store,
		retention: 7 * 24 * time.Hour,
		interval:  time.Minute,
		logger:    slog.Default(),
		counters:  make(map[string]*Counters),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// WaitReady blocks until the collector has subscribed to events.
func (c *Collector) WaitReady() {
	<-c.ready
}

// Start consumes events and flushes on every interval. Blocks until ctx is
// cancelled, then flushes once more.
func (c *Collector) Start(ctx context.Context) {
	events := c.source.Events()
	defer c.source.Unsubscribe(events)

	c.readyOnce.Do(func() { close(c.ready) })

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(events)
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			c.Flush(flushCtx)
			cancel()
			return
		case e := <-events:
			c.handleEvent(e)
		case <-ticker.C:
			c.Flush(ctx)
			c.snapshot(ctx)
			c.prune(ctx)
		}
	}
}

// drain handles events already buffered when the collector stops.
func (c *Collector) drain(events <-chan core.Event) {
	for {
		select {
		case e := <-events:
			c.handleEvent(e)
		default:
			return
		}
	}
}

func (c *Collector) handleEvent(e core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := e.(type) {
	case *core.CommandFinished:
		ct := c.get(ev.OperationType)
		ct.Commands++
		if ev.Status == core.StatusFailed {
			ct.FailedCommands++
		}
	case *core.AttemptFinished:
		ct := c.get(ev.OperationType)
		switch ev.Status {
		case core.StatusCompleted:
			ct.Completed++
		case core.StatusFailed:
			ct.Failed++
		case core.StatusCanceled:
			ct.Canceled++
		}
	case *core.AttemptSubmitFailed:
		c.get(ev.OperationType).SubmitFailures++
	}
}

func (c *Collector) get(op core.OperationType) *Counters {
	ct, ok := c.counters[string(op)]
	if !ok {
		ct = &Counters{}
		c.counters[string(op)] = ct
	}
	return ct
}

// Flush writes accumulated counters to the store.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.counters
	c.counters = make(map[string]*Counters)
	c.mu.Unlock()

	ts := time.Now().Truncate(time.Minute)
	for op, ct := range batch {
		if ct.zero() {
			continue
		}
		if err := c.store.AddCounters(ctx, op, ts, *ct); err != nil {
			c.logger.Warn("failed to flush command stats", "operation_type", op, "error", err)
		}
	}
}

func (c *Collector) snapshot(ctx context.Context) {
	if c.jobs == nil {
		return
	}
	counts, err := c.jobs(ctx)
	if err != nil {
		c.logger.Warn("failed to count jobs", "error", err)
		return
	}
	ts := time.Now().Truncate(time.Minute)
	pending, running := counts[core.StatusCreated], counts[core.StatusRunning]
	if err := c.store.SnapshotJobs(ctx, JobsRow, ts, pending, running); err != nil {
		c.logger.Warn("failed to snapshot jobs", "error", err)
	}
}

func (c *Collector) prune(ctx context.Context) {
	if c.retention <= 0 {
		return
	}
	if _, err := c.store.PruneStats(ctx, time.Now().Add(-c.retention)); err != nil {
		c.logger.Warn("failed to prune command stats", "error", err)
	}
}
