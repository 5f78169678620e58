package core

import (
	"fmt"
	"sync"
)

// Severity classifies how serious a diagnostic is.
type Severity int

const (
	// SeverityInfo marks purely informational diagnostics.
	SeverityInfo Severity = iota
	// SeverityWarning marks recoverable conditions the call survived.
	SeverityWarning
	// SeverityError marks fatal conditions for the current attempt.
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Origin identifies which stage of the pipeline produced a diagnostic.
type Origin int

const (
	// OriginRequest covers the request-phase policy pipeline.
	OriginRequest Origin = iota
	// OriginReturn covers the response-phase policy pipeline.
	OriginReturn
	// OriginProvider covers the provider dispatch boundary.
	OriginProvider
	// OriginTool covers tool execution.
	OriginTool
	// OriginNetwork covers transport-level failures.
	OriginNetwork
	// OriginValidation covers schema and payload validation.
	OriginValidation
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginRequest:
		return "request"
	case OriginReturn:
		return "return"
	case OriginProvider:
		return "provider"
	case OriginTool:
		return "tool"
	case OriginNetwork:
		return "network"
	case OriginValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Code is a machine-readable reason attached to a diagnostic. The numeric
// values are a persisted contract consumed by downstream logging and
// analytics; never renumber existing entries.
type Code int

const (
	// CodeUnknown is the default for callers that only classify by
	// severity and origin.
	CodeUnknown Code = 0

	// Selection / resolution failures. Fatal: no provider call is attempted.
	CodeProviderMissing    Code = 1
	CodeUnknownProvider    Code = 2
	CodeUnknownModel       Code = 3
	CodeNoCapableModel     Code = 4
	CodeCapabilityMismatch Code = 5

	// Streaming fallbacks. Non-fatal: the call continues without streaming.
	CodeStreamingDisabledProvider Code = 6
	CodeStreamingUnsupportedModel Code = 7

	// Validation failures. The offending unit is rejected, the call continues.
	CodeToolValidationError Code = 8
	CodeBodyInvalid         Code = 9
	CodeReturnInvalid       Code = 10

	// Network / provider failures. Fatal for the current attempt; retry is a
	// caller policy.
	CodeNetworkTimeout        Code = 11
	CodeAuthenticationMissing Code = 12
	CodeAuthorizationFailed   Code = 13
	CodeRateLimited           Code = 14

	// CodeCancelled records a caller-initiated cancellation observed
	// mid-call.
	CodeCancelled Code = 15
	// CodeToolBudgetExceeded records exhaustion of the tool-call round
	// budget.
	CodeToolBudgetExceeded Code = 16
)

// Diagnostic is a structured, non-fatal observability message attached to a
// call. It is a pure value; construction cannot fail.
type Diagnostic struct {
	Severity    Severity `json:"severity"`
	Origin      Origin   `json:"origin"`
	Code        Code     `json:"code"`
	Text        string   `json:"text"`
	Surfaceable bool     `json:"surfaceable"`
}

// NewDiagnostic creates a diagnostic message. Surfaceable defaults to true;
// use WithSurfaceable(false) for telemetry-only entries a UI must suppress.
func NewDiagnostic(severity Severity, origin Origin, code Code, text string) Diagnostic {
	return Diagnostic{
		Severity:    severity,
		Origin:      origin,
		Code:        code,
		Text:        text,
		Surfaceable: true,
	}
}

// WithSurfaceable returns a copy with the surfaceable flag set.
func (d Diagnostic) WithSurfaceable(v bool) Diagnostic {
	d.Surfaceable = v
	return d
}

// String renders the diagnostic for logs.
func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s (code %d): %s", d.Severity, d.Origin, d.Code, d.Text)
}

// Diagnostics is an append-only collection owned by a single call envelope.
// Appends never remove or mutate prior entries. Safe for concurrent use so
// parallel tool executions can report into one call.
type Diagnostics struct {
	mu      sync.Mutex
	entries []Diagnostic
}

// NewDiagnostics creates an empty diagnostics sink.
func NewDiagnostics() *Diagnostics { return &Diagnostics{} }

// Append adds entries to the end of the list.
func (d *Diagnostics) Append(entries ...Diagnostic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entries...)
}

// All returns a copy of the accumulated entries in append order.
func (d *Diagnostics) All() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Diagnostic, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of accumulated entries.
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// HasErrors reports whether any entry carries SeverityError.
func (d *Diagnostics) HasErrors() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}
