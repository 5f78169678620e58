package model

import (
	"fmt"

	"github.com/llmrelay/llmrelay/core"
)

// CallError is a typed call failure carrying a stable diagnostic code.
// Selection failures (ProviderMissing, UnknownProvider, UnknownModel,
// NoCapableModel, CapabilityMismatch) are fatal: no provider call is
// attempted. The policy pipeline recognizes CallError values and aborts
// instead of downgrading them to warnings.
type CallError struct {
	Code   core.Code
	Origin core.Origin
	Msg    string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("call error (code %d, %s): %s", e.Code, e.Origin, e.Msg)
}

// Diagnostic renders the error as an error-severity diagnostic.
func (e *CallError) Diagnostic() core.Diagnostic {
	return core.NewDiagnostic(core.SeverityError, e.Origin, e.Code, e.Msg)
}

// NewCallError creates a CallError with a formatted message.
func NewCallError(code core.Code, origin core.Origin, format string, args ...any) *CallError {
	return &CallError{Code: code, Origin: origin, Msg: fmt.Sprintf(format, args...)}
}
