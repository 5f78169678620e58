// Package stream adapts a provider's raw incremental responses into the
// common delta sequence consumed by the orchestration engine. It coalesces
// token fragments to bound emission overhead, bounds the number of
// unconsumed deltas so a slow consumer cannot grow memory without limit,
// and honors cancellation within one coalescing window.
package stream
