// Package jobmaster provides an in-process job-execution service.
//
// This package includes:
//   - JobMaster: persists submitted job configs as a root job plus tasks and
//     answers status queries; it implements core.JobControlClient
//   - Worker: registers through a lease, dequeues tasks, runs executors with
//     heartbeats and retries, and performs lock and retention maintenance
//   - Hook registration and event subscription for task lifecycle events
//
// Executors are plain functions taking the job config type:
//
//	m := jobmaster.New(store)
//	jobmaster.Handle(m, func(ctx context.Context, cfg cmdconfig.PersistConfig) error {
//	    return persist(ctx, cfg)
//	})
//	go m.NewWorker(jobmaster.Concurrency(8)).Start(ctx)
package jobmaster
