package tool

import (
	"context"

	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// tool. It validates model supplied arguments against its schema before
// execution and normalizes failures into *ToolError with consistent codes:
//
//	VALIDATION_ERROR -> schema / argument mismatch
//	EXECUTION_ERROR  -> underlying function returned an error
//	(custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	required    core.Capability
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// FunctionOption customizes a FunctionTool under construction.
type FunctionOption func(*FunctionTool)

// WithRequiredCapabilities gates the tool behind model capabilities beyond
// plain tool use.
func WithRequiredCapabilities(c core.Capability) FunctionOption {
	return func(t *FunctionTool) { t.required = c }
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// implementation. Pass a schema built by hand or via NewSchemaFor.
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	opts ...FunctionOption,
) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		required:    core.CapToolUse,
		fn:          fn,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// NewSchemaFor derives a parameter schema from a Go struct's fields via
// reflection (json + description tags).
func NewSchemaFor(structType any) map[string]any { return util.CreateSchema(structType) }

// Name returns the tool identifier.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the human-readable tool description.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema for the tool arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// RequiredCapabilities returns the capability set the serving model needs.
func (t *FunctionTool) RequiredCapabilities() core.Capability { return t.required }

// Call validates args against the schema and invokes the wrapped function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: "VALIDATION_ERROR", Details: err}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if te, ok := err.(*ToolError); ok {
			return nil, te
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: "EXECUTION_ERROR"}
	}
	return result, nil
}
