package policy

import (
	"fmt"

	"github.com/llmrelay/llmrelay/core"
)

// ResolvePolicy derives the call's capability requirement and resolves the
// provider/model pair to concrete, known values. An unresolved provider or
// model past this point is an error, not a defaulted guess: its failures
// are fatal selection errors that abort before dispatch.
//
// Streaming is deliberately excluded from the derived requirement: a model
// without streaming support falls back to the non-streaming path instead of
// failing resolution.
type ResolvePolicy struct{}

// NewResolvePolicy creates the resolution request policy.
func NewResolvePolicy() *ResolvePolicy { return &ResolvePolicy{} }

// Name returns the policy's identifier.
func (p *ResolvePolicy) Name() string { return "resolve" }

// Apply derives Required, resolves against the registry and pins the
// resolved ids onto the request.
func (p *ResolvePolicy) Apply(pctx *Context) error {
	req := pctx.Request

	required := core.CapChat
	if len(req.Tools) > 0 {
		required |= core.CapToolUse
	}
	if req.Schema != nil {
		required |= core.CapSchemaOutput
	}
	req.Required = required

	if pctx.Registry == nil {
		return fmt.Errorf("no provider registry configured")
	}

	res, err := pctx.Registry.Resolve(req.Provider, req.Model, required)
	if err != nil {
		return err
	}

	req.Provider = res.Info.Name
	req.Model = res.Model.ID
	pctx.Resolution = res

	if pctx.Logger != nil {
		pctx.Logger.Debug("request resolved", "provider", req.Provider, "model", req.Model, "required", required.String())
	}
	return nil
}
