// Package throttle runs indexed tasks under a concurrency budget.
//
// This package is internal to boundfetch and is the engine behind the bounded
// fetch operations. A [Runner] executes n tasks, never allowing more than
// min(budget, n) of them to be in flight at any instant, and reports a
// per-index error slice so callers can keep results aligned with their input.
//
// Three drain policies are available:
//
//   - [Batch]: dispatch a window of up to budget tasks, wait for the whole
//     window to finish, then dispatch the next window
//   - [Rolling]: a weighted semaphore of size budget; a new task starts as soon
//     as any running task releases its slot
//   - [Pool]: min(budget, n) workers pulling indexes from a job channel
//
// Users of the boundfetch library select a policy through the root package
// options and should not need to use this package directly.
package throttle
