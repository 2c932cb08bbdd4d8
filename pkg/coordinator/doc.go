// Package coordinator runs bulk commands against a job-execution service.
//
// A command is expanded into one job config per affected path. Each config
// gets its own Attempt with its own retry policy; at most
// MaxConcurrentAttempts attempts are in flight at once. Every attempt is
// submitted, polled until terminal, and folded into a single Result holding
// the command status and the union of failed targets.
//
// Example:
//
//	c := coordinator.New(client,
//	    coordinator.WithMaxConcurrentAttempts(32),
//	    coordinator.WithPollInterval(500*time.Millisecond),
//	)
//	res, err := c.Run(ctx, cmd)
package coordinator
