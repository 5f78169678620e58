// Package tool implements the function calling subsystem: structured
// capabilities a model may invoke, with schema validated arguments,
// consistent error handling and an explicit registry.
package tool

import (
	"context"
	"fmt"

	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/internal/util"
	"github.com/llmrelay/llmrelay/model"
)

// Tool defines one callable capability exposed to models.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be safe for concurrent use (one round may run tools in parallel)
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case
	// recommended).
	Name() string

	// Description is shown to the model to explain when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// RequiredCapabilities declares what the serving model must support for
	// this tool to be offered.
	RequiredCapabilities() core.Capability

	// Call executes the tool with already-validated structured arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError re-exports the shared argument validation error type.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`              // VALIDATION_ERROR, EXECUTION_ERROR, or custom
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// Definition converts a Tool into the wire shape attached to requests.
func Definition(t Tool) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
