// Package core provides the foundational domain types used throughout
// LLMRelay. It defines:
//
//   - Content / Part (role-based message segments, including tool call and
//     tool response parts)
//   - Diagnostic / Diagnostics (structured, append-only observability
//     messages attached to a call)
//   - Capability (bitset describing what a provider or model can do)
//   - CallStatus (lifecycle of one orchestrated call)
//   - RoundLimiter (budget enforcement for the tool-call loop)
//
// The package intentionally keeps implementation concerns (provider
// dispatch, policy processing, streaming) out of scope so higher layers can
// depend on it without cycles.
package core
