package coordinator

import (
	"context"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// OnAttemptFinished registers a callback for every finished attempt.
func (c *Coordinator) OnAttemptFinished(fn func(context.Context, *core.AttemptFinished)) {
	c.mu.Lock()
	c.onAttemptFinished = append(c.onAttemptFinished, fn)
	c.mu.Unlock()
}

// OnCommandFinished registers a callback for every finished command.
func (c *Coordinator) OnCommandFinished(fn func(context.Context, *Result)) {
	c.mu.Lock()
	c.onCommandFinished = append(c.onCommandFinished, fn)
	c.mu.Unlock()
}

// Events returns a channel for receiving coordinator events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (c *Coordinator) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	c.mu.Lock()
	c.eventSubs = append(c.eventSubs, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed.
func (c *Coordinator) Unsubscribe(ch <-chan core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.eventSubs {
		if sub == ch {
			c.eventSubs = append(c.eventSubs[:i], c.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers. Full subscribers miss the event.
func (c *Coordinator) Emit(e core.Event) {
	c.mu.RLock()
	subs := make([]chan core.Event, len(c.eventSubs))
	copy(subs, c.eventSubs)
	c.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (c *Coordinator) callAttemptHooks(ctx context.Context, ev *core.AttemptFinished) {
	c.mu.RLock()
	hooks := make([]func(context.Context, *core.AttemptFinished), len(c.onAttemptFinished))
	copy(hooks, c.onAttemptFinished)
	c.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, ev)
	}
}

func (c *Coordinator) callCommandHooks(ctx context.Context, res *Result) {
	c.mu.RLock()
	hooks := make([]func(context.Context, *Result), len(c.onCommandFinished))
	copy(hooks, c.onCommandFinished)
	c.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, res)
	}
}
