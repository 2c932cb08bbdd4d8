// Package attempt tracks one job config from submission to a terminal status.
//
// An Attempt submits its config under a retry policy, then reports a rolled-up
// status each time CheckStatus is called. When the job fails, the targets of
// its failed tasks are read from the task descriptions and kept in a set.
package attempt
