// Package schedule runs commands on recurring schedules.
//
// This package includes:
//   - Schedule interface for defining run times
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() and ParseCron() for cron expression-based schedules
//   - Scheduler, which hands due commands to a Runner
package schedule
