// Package model defines the provider-agnostic request/response envelopes and
// the contracts every LLM provider adapter implements.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind small interfaces
//   - Normalize tool call representation (ToolDefinition, FunctionCall parts)
//   - Keep request/response shapes minimal and transport independent
//   - Make provider selection explicit via a constructed Registry with
//     deterministic default-model resolution
//
// Providers (e.g. OpenAI, Anthropic) implement the Provider interface, plus
// StreamingProvider when they can emit deltas, so the orchestration engine
// remains decoupled from vendor SDKs.
package model
