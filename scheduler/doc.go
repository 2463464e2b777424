// Package scheduler implements the admission, batching, and dispatch core
// that sits between classification callers and a fixed pool of inference
// workers.
//
// Data flow: a caller submits a request to the Engine; the admission
// controller accepts or rejects it synchronously; accepted requests are
// grouped by (model, priority) into bounded-size, bounded-wait batches;
// the dispatcher assigns sealed batches to idle workers of the matching
// model; the result router splits batch results back to the per-request
// result sinks. Every accepted request resolves exactly once, with ranked
// categories or a terminal error, never later than its deadline.
//
// Shared state (buckets, ready queue, worker pool) follows a single-owner
// discipline: each bucket is guarded by its own lock, and all worker and
// ready-queue state is owned by the dispatcher.
package scheduler
