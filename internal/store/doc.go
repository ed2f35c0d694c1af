// Package store implements SQLite persistence for jobs, per-item outcomes,
// platform accounts, and schedule rules.
//
// Key Implementations:
//   - [JobStore] : Job lifecycle persistence including the atomic claim that
//     moves the oldest pending job to running
//   - [AccountStore] : Platform credentials, passwords encrypted at rest
//   - [ScheduleStore] : Recurring transfer rules consumed by the scheduler
//
// Counters on the jobs row are updated incrementally as items settle, so a
// crashed process leaves behind exact progress rather than a stale snapshot.
package store
