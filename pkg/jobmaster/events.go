package jobmaster

import (
	"context"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// OnTaskFinished registers a callback for tasks reaching a terminal status.
func (m *JobMaster) OnTaskFinished(fn func(context.Context, *core.TaskFinished)) {
	m.mu.Lock()
	m.onTaskFinished = append(m.onTaskFinished, fn)
	m.mu.Unlock()
}

// OnTaskRetrying registers a callback for failed tasks scheduled to re-run.
func (m *JobMaster) OnTaskRetrying(fn func(context.Context, *core.TaskRetrying)) {
	m.mu.Lock()
	m.onTaskRetrying = append(m.onTaskRetrying, fn)
	m.mu.Unlock()
}

// Events returns a channel for receiving task events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (m *JobMaster) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	m.mu.Lock()
	m.eventSubs = append(m.eventSubs, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
func (m *JobMaster) Unsubscribe(ch <-chan core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.eventSubs {
		if sub == ch {
			m.eventSubs = append(m.eventSubs[:i], m.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers without blocking.
func (m *JobMaster) Emit(e core.Event) {
	m.mu.RLock()
	subs := make([]chan core.Event, len(m.eventSubs))
	copy(subs, m.eventSubs)
	m.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (m *JobMaster) taskFinished(ctx context.Context, ev *core.TaskFinished) {
	m.Emit(ev)

	m.mu.RLock()
	hooks := make([]func(context.Context, *core.TaskFinished), len(m.onTaskFinished))
	copy(hooks, m.onTaskFinished)
	m.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, ev)
	}
}

func (m *JobMaster) taskRetrying(ctx context.Context, ev *core.TaskRetrying) {
	m.Emit(ev)

	m.mu.RLock()
	hooks := make([]func(context.Context, *core.TaskRetrying), len(m.onTaskRetrying))
	copy(hooks, m.onTaskRetrying)
	m.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, ev)
	}
}
