// Package testutil provides fluent builders shared by package tests.
package testutil

import (
	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/model"
)

// RequestBuilder assembles model.Request values for tests.
type RequestBuilder struct {
	req model.Request
}

// NewRequest starts a builder for the given provider.
func NewRequest(provider string) *RequestBuilder {
	return &RequestBuilder{req: model.Request{Provider: provider, Diags: core.NewDiagnostics()}}
}

// Model sets an explicit model id.
func (b *RequestBuilder) Model(id string) *RequestBuilder {
	b.req.Model = id
	return b
}

// User appends a user text message.
func (b *RequestBuilder) User(text string) *RequestBuilder {
	b.req.Messages = append(b.req.Messages, core.NewTextContent("user", text))
	return b
}

// System appends a system text message.
func (b *RequestBuilder) System(text string) *RequestBuilder {
	b.req.Messages = append(b.req.Messages, core.NewTextContent("system", text))
	return b
}

// Schema attaches an output schema constraint.
func (b *RequestBuilder) Schema(schema map[string]any) *RequestBuilder {
	b.req.Schema = schema
	return b
}

// Tool declares an available tool.
func (b *RequestBuilder) Tool(name, description string, parameters map[string]any) *RequestBuilder {
	b.req.Tools = append(b.req.Tools, model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	})
	return b
}

// Streaming requests delta delivery.
func (b *RequestBuilder) Streaming() *RequestBuilder {
	b.req.Stream = true
	return b
}

// Build returns the assembled request.
func (b *RequestBuilder) Build() *model.Request {
	req := b.req
	return &req
}

// ToolCallResponse builds a non-terminal response requesting the given tool.
func ToolCallResponse(id, name, args string) model.Response {
	return model.Response{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}},
		}},
		FinishReason: "tool_calls",
	}
}

// TextResponse builds a terminal assistant response.
func TextResponse(text string) model.Response {
	return model.Response{
		Content:      core.NewTextContent("assistant", text),
		FinishReason: "stop",
	}
}
