package model

import (
	"context"
	"fmt"

	"github.com/llmrelay/llmrelay/core"
)

// MockProvider is a lightweight in-memory Provider useful for tests and
// examples. It streams canned completions character by character and
// supports scripted tool-call rounds.
type MockProvider struct {
	info      Info
	responses map[string]string
	script    []Response
	cursor    int
}

// NewMockProvider constructs a MockProvider publishing a single
// fully-capable default model.
func NewMockProvider(name, modelID string) *MockProvider {
	return &MockProvider{
		info: Info{
			Name: name,
			Models: []ModelInfo{{
				ID:           modelID,
				Capabilities: core.CapChat | core.CapStreaming | core.CapToolUse | core.CapSchemaOutput,
				DefaultFor:   core.CapChat,
			}},
		},
		responses: make(map[string]string),
	}
}

// WithModels overrides the published model list.
func (m *MockProvider) WithModels(models ...ModelInfo) *MockProvider {
	m.info.Models = models
	return m
}

// AddResponse registers a deterministic canned completion for an input
// prompt.
func (m *MockProvider) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Script queues responses returned in order by subsequent Generate calls,
// taking precedence over canned completions. Useful for tool-call loops.
func (m *MockProvider) Script(responses ...Response) { m.script = append(m.script, responses...) }

func (m *MockProvider) terminal(req Request) Response {
	if m.cursor < len(m.script) {
		resp := m.script[m.cursor]
		m.cursor++
		return resp
	}

	var inputText string
	if len(req.Messages) > 0 {
		inputText = req.Messages[len(req.Messages)-1].Text()
	}
	full := m.responses[inputText]
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", inputText)
	}
	return Response{
		Content:      core.NewTextContent("assistant", full),
		FinishReason: "stop",
		Usage:        &TokenUsage{PromptTokens: len(inputText), CompletionTokens: len(full), TotalTokens: len(inputText) + len(full)},
	}
}

// Generate implements Provider.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := m.terminal(req)
	return &resp, nil
}

// Stream implements StreamingProvider; emits character deltas then the
// terminal response.
func (m *MockProvider) Stream(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		final := m.terminal(req)
		for _, r := range final.Text() {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{
				Partial: true,
				Content: core.NewTextContent("assistant", string(r)),
			}:
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- final:
		}
	}()

	return respCh, errCh
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }
