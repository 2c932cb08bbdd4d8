// Package retry provides retry policies for job submission and a backoff
// helper for storage operations.
//
// Policies answer "may I try again?" and own their own pacing:
//   - Counting: a fixed number of attempts, no delay
//   - ExponentialBackoff: jittered exponential delays between attempts
//   - Timeout: attempts at a fixed interval until a deadline
//
// Each attempt gets its own Policy from a Factory.
package retry
