// Package engine orchestrates one AI call end to end: it runs the policy
// pipeline around the provider dispatch, drives the streaming path where
// available, executes model-requested tools (the tool-call loop) and
// returns a normalized response with structured diagnostics.
//
// The engine owns the call lifecycle (Idle → Processing → {Streaming |
// CallingTools} → Finished) and enforces the tool-round budget. All shared
// collaborators (provider registry, tool registry, pipeline) are read-only
// during calls; every Request/Response/diagnostics instance belongs to
// exactly one call.
package engine
