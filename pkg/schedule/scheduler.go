package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

// Runner runs one command to completion.
type Runner func(ctx context.Context, cmd core.CmdConfig) error

// Entry is a recurring command.
type Entry struct {
	Name     string
	Schedule Schedule
	Command  core.CmdConfig
}

// Scheduler runs registered commands on their schedules. A command whose
// previous run is still in progress is skipped.
type Scheduler struct {
	run    Runner
	tick   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	next    map[string]time.Time
	running map[string]bool
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTick sets how often schedules are checked.
func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a scheduler that runs commands with run.
func NewScheduler(run Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		run:     run,
		tick:    time.Second,
		logger:  slog.Default(),
		entries: make(map[string]*Entry),
		next:    make(map[string]time.Time),
		running: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers cmd to run on sched under name, replacing any entry with
// the same name.
func (s *Scheduler) Add(name string, sched Schedule, cmd core.CmdConfig) error {
	if err := security.ValidateConfigName(name); err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	if sched == nil || cmd == nil {
		return fmt.Errorf("schedule %q: schedule and command are required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = &Entry{Name: name, Schedule: sched, Command: cmd}
	s.next[name] = sched.Next(time.Now())
	return nil
}

// Remove unregisters the entry named name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	delete(s.next, name)
}

// NextRun returns when the named entry runs next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.next[name]
	return t, ok
}

// Start checks schedules every tick and runs due commands. Blocks until ctx
// is cancelled and in-flight runs return.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case now := <-ticker.C:
			s.dispatch(ctx, now)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.entries {
		if now.Before(s.next[name]) {
			continue
		}
		s.next[name] = e.Schedule.Next(now)
		if s.running[name] {
			s.logger.Warn("scheduled command still running, skipping", "name", name)
			continue
		}

		s.running[name] = true
		s.wg.Add(1)
		go s.runEntry(ctx, e)
	}
}

func (s *Scheduler) runEntry(ctx context.Context, e *Entry) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.running, e.Name)
		s.mu.Unlock()
	}()

	s.logger.Info("running scheduled command", "name", e.Name, "command", e.Command.Name())
	if err := s.run(ctx, e.Command); err != nil {
		s.logger.Error("scheduled command failed", "name", e.Name, "error", err)
	}
}
