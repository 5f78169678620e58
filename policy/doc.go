// Package policy implements the pre/post-processing pipeline applied around
// the provider call. Request policies run before dispatch (and must not
// perform network I/O); response policies run after it. A failing policy is
// recovered into a warning diagnostic naming the policy, never an aborted
// call; fatal selection failures (typed *model.CallError) are the one
// exception. The pipeline is configured once at construction and is shared
// read-only state across concurrent calls.
package policy
