// Package jobqueue provides lane-based background job execution with
// per-lane concurrency limits, delayed enqueue, and bounded retry.
//
// Each lane owns a handler and a concurrency limit. Jobs carry an
// opaque JSON payload. A failing job is retried with exponential
// backoff up to the lane's attempt budget; a job whose handler asks
// for deferral is re-enqueued with the requested delay without
// consuming any of that budget.
package jobqueue
