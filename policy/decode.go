package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmrelay/llmrelay/core"
)

// DecodePolicy is the compatibility decoding response policy: it normalizes
// provider-specific response shapes into the common Response model. It
// backfills the resolved provider/model, maps absent finish reasons to
// "stop", and checks schema-constrained output actually parses as JSON.
type DecodePolicy struct{}

// NewDecodePolicy creates the compatibility decoding response policy.
func NewDecodePolicy() *DecodePolicy { return &DecodePolicy{} }

// Name returns the policy's identifier.
func (p *DecodePolicy) Name() string { return "decode" }

// Apply normalizes the response in place.
func (p *DecodePolicy) Apply(pctx *Context) error {
	resp := pctx.Response
	if resp == nil {
		return nil
	}

	if resp.Provider == "" {
		resp.Provider = pctx.Request.Provider
	}
	if resp.Model == "" {
		resp.Model = pctx.Request.Model
	}
	if resp.FinishReason == "" && !resp.Partial {
		resp.FinishReason = "stop"
	}
	if resp.Content.Role == "" {
		resp.Content.Role = "assistant"
	}

	if pctx.Request.Schema != nil && resp.FinishReason == "stop" && len(resp.ToolCalls()) == 0 {
		body := stripCodeFences(resp.Text())
		if body != "" && !json.Valid([]byte(body)) {
			pctx.Diags().Append(core.NewDiagnostic(
				core.SeverityWarning, core.OriginReturn, core.CodeReturnInvalid,
				fmt.Sprintf("schema-constrained response is not valid JSON (%d bytes)", len(body)),
			))
		}
	}

	return nil
}

// stripCodeFences removes a surrounding markdown code fence so fenced JSON
// still validates.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
