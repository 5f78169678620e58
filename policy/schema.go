package policy

import (
	"encoding/json"
	"fmt"

	"github.com/llmrelay/llmrelay/core"
)

// SchemaPolicy serializes the request's output-schema constraint into its
// provider-agnostic wire form. Requests without a schema pass through
// untouched.
type SchemaPolicy struct{}

// NewSchemaPolicy creates the schema-attachment request policy.
func NewSchemaPolicy() *SchemaPolicy { return &SchemaPolicy{} }

// Name returns the policy's identifier.
func (p *SchemaPolicy) Name() string { return "schema" }

// Apply attaches the serialized schema. A schema that cannot serialize is a
// BodyInvalid condition: the constraint is dropped with a warning
// diagnostic and the call continues unconstrained.
func (p *SchemaPolicy) Apply(pctx *Context) error {
	req := pctx.Request
	if req.Schema == nil {
		return nil
	}

	raw, err := json.Marshal(req.Schema)
	if err != nil {
		pctx.Diags().Append(core.NewDiagnostic(
			core.SeverityWarning, core.OriginValidation, core.CodeBodyInvalid,
			fmt.Sprintf("output schema does not serialize: %v", err),
		))
		req.Schema = nil
		return nil
	}
	req.SchemaJSON = string(raw)
	return nil
}
