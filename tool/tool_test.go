package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/core"
)

type echoArgs struct {
	Text  string `json:"text" description:"Text to echo"`
	Times *int   `json:"times,omitempty"`
}

func newEchoTool() *FunctionTool {
	return NewFunctionTool("echo", "Echo the input text", NewSchemaFor(echoArgs{}),
		func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		})
}

func TestFunctionToolCall(t *testing.T) {
	et := newEchoTool()

	result, err := et.Call(context.Background(), map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestFunctionToolValidationFailure(t *testing.T) {
	et := newEchoTool()

	_, err := et.Call(context.Background(), map[string]any{})
	require.Error(t, err)

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "VALIDATION_ERROR", te.Code)
	assert.Equal(t, "echo", te.Tool)
}

func TestFunctionToolExecutionFailure(t *testing.T) {
	failing := NewFunctionTool("broken", "Always fails", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, fmt.Errorf("downstream unavailable")
		})

	_, err := failing.Call(context.Background(), map[string]any{})
	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "EXECUTION_ERROR", te.Code)
	assert.Contains(t, te.Message, "downstream unavailable")
}

func TestFunctionToolPreservesCustomCodes(t *testing.T) {
	custom := NewFunctionTool("quota", "Quota check", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, NewToolError("quota", "limit reached", "QUOTA_EXCEEDED")
		})

	_, err := custom.Call(context.Background(), map[string]any{})
	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "QUOTA_EXCEEDED", te.Code)
}

func TestFunctionToolRequiredCapabilities(t *testing.T) {
	et := newEchoTool()
	assert.Equal(t, core.CapToolUse, et.RequiredCapabilities())

	gated := NewFunctionTool("gated", "Needs schema output", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) { return nil, nil },
		WithRequiredCapabilities(core.CapToolUse|core.CapSchemaOutput))
	assert.True(t, gated.RequiredCapabilities().Has(core.CapSchemaOutput))
}

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool()))

	got, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", got.Name())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool()))
	assert.Error(t, r.Register(newEchoTool()))
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool()))
	r.Unregister("echo")
	assert.Equal(t, 0, r.Len())
	r.Unregister("echo") // no-op
}

func TestRegistryDefinitionsDeterministic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewFunctionTool("zeta", "z", map[string]any{"type": "object"}, nil)))
	require.NoError(t, r.Register(NewFunctionTool("alpha", "a", map[string]any{"type": "object"}, nil)))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Function.Name)
	assert.Equal(t, "zeta", defs[1].Function.Name)
	assert.Equal(t, "function", defs[0].Type)
}
