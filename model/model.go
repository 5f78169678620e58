package model

import (
	"context"

	"github.com/llmrelay/llmrelay/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object (minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// TokenUsage captures token accounting for one model round.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add folds another round's usage into u. Multi-turn tool loops accumulate
// usage across rounds.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Request is the envelope flowing through the pipeline and across the
// provider boundary. Treat it as immutable after construction; only the
// request-phase pipeline (resolution, schema attachment) and the tool-call
// loop (history append) mutate it, and only for the duration of one call.
type Request struct {
	// Provider is the provider id ("openai", "anthropic", ...).
	Provider string `json:"provider"`
	// Model is the model id; empty means "resolve the provider default".
	Model string `json:"model,omitempty"`
	// Messages is the ordered conversation history.
	Messages []core.Content `json:"messages"`
	// Schema optionally constrains the output shape (JSON Schema object).
	Schema map[string]any `json:"schema,omitempty"`
	// SchemaJSON is the serialized provider-agnostic form of Schema,
	// attached by the schema request policy.
	SchemaJSON string `json:"schema_json,omitempty"`
	// Tools declares the functions available to the model.
	Tools []ToolDefinition `json:"tools,omitempty"`
	// Required is the resolved capability requirement. Derived during
	// request-phase resolution, never user-set.
	Required core.Capability `json:"required,omitempty"`
	// Stream requests incremental delta delivery where supported.
	Stream bool `json:"stream,omitempty"`

	// Diags is the mutable diagnostics sink attached for the duration of
	// one logical call.
	Diags *core.Diagnostics `json:"-"`
}

// Response is the result envelope. A Response carrying tool call requests is
// non-terminal: the orchestration continues the loop instead of handing it
// to the caller as final.
type Response struct {
	ID           string       `json:"id,omitempty"`
	Partial      bool         `json:"partial"` // true for streamed deltas
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", "error", ...
	Usage        *TokenUsage  `json:"usage,omitempty"`
	// Provider / Model reflect the resolved values, which may differ from
	// the requested ones after default resolution.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	Diags *core.Diagnostics `json:"-"`
}

// Text concatenates the text parts of the response content.
func (r *Response) Text() string { return r.Content.Text() }

// ToolCalls returns the tool invocations requested by the model, in the
// order the model emitted them.
func (r *Response) ToolCalls() []core.FunctionCall { return r.Content.FunctionCalls() }

// Terminal reports whether the response can be handed to the caller as
// final: not a partial delta and no pending tool calls.
func (r *Response) Terminal() bool { return !r.Partial && len(r.ToolCalls()) == 0 }

// ModelInfo describes one model a provider publishes.
type ModelInfo struct {
	// ID is the concrete model identifier.
	ID string `json:"id"`
	// Capabilities is the full set this model supports.
	Capabilities core.Capability `json:"capabilities"`
	// DefaultFor marks capability sets this model is the provider's
	// declared default for. A model marked default wins resolution ties.
	DefaultFor core.Capability `json:"default_for,omitempty"`
}

// Info contains metadata about a provider implementation. The Models slice
// order is the provider's published order and breaks resolution ties
// deterministically.
type Info struct {
	Name   string      `json:"name"` // provider id: "openai", "anthropic", ...
	Models []ModelInfo `json:"models"`
}

// Provider is the dispatch contract every adapter implements. Generate
// performs one terminal (non-streaming) model round.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns the provider id and its published model list.
	Info() Info
}

// StreamingProvider is implemented by providers that can emit incremental
// deltas. Stream returns raw provider-ordered deltas ending with one
// non-partial terminal response; both channels close on completion.
// Streaming support is resolved once at registration time, not probed per
// call.
type StreamingProvider interface {
	Provider

	Stream(ctx context.Context, req Request) (<-chan Response, <-chan error)
}
