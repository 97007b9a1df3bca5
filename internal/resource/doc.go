// Package resource implements the per-database resource controller.
//
//   - Memory: tracks and optionally limits the bytes held by loaded index
//     buckets (fail-fast, golang.org/x/sync/semaphore). Callers that are
//     refused release clean cached data and retry.
//   - IO: rate-limits index flushes (golang.org/x/time/rate) so a bulk
//     flush of many bucket files does not starve the host.
//
// A nil *Controller is valid and imposes no limits.
package resource
