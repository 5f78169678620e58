package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/logging"
	"github.com/llmrelay/llmrelay/model"
	"github.com/llmrelay/llmrelay/stream"
	"github.com/llmrelay/llmrelay/tool"
)

// classifyProviderError maps a raw provider failure onto the stable
// diagnostic taxonomy. Classification is by error type first, message
// heuristics second; unrecognized failures stay CodeUnknown with provider
// origin.
func classifyProviderError(err error) *model.CallError {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewCallError(core.CodeNetworkTimeout, core.OriginNetwork, "provider call timed out: %v", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewCallError(core.CodeNetworkTimeout, core.OriginNetwork, "provider call timed out: %v", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "api key") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication"):
		return model.NewCallError(core.CodeAuthenticationMissing, core.OriginProvider, "provider authentication failed: %v", err)
	case strings.Contains(msg, "403") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "permission"):
		return model.NewCallError(core.CodeAuthorizationFailed, core.OriginProvider, "provider authorization failed: %v", err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return model.NewCallError(core.CodeRateLimited, core.OriginProvider, "provider rate limited: %v", err)
	default:
		return model.NewCallError(core.CodeUnknown, core.OriginProvider, "provider call failed: %v", err)
	}
}

// ExecProvider performs one terminal model round for req outside the call
// loop: resolve, dispatch, classify. A nil request is a no-op. Provider
// failures come back as an error response with the diagnostic trail plus the
// typed error; cancellation returns ctx.Err() alone.
func (e *Engine) ExecProvider(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Diags == nil {
		req.Diags = core.NewDiagnostics()
	}

	res, err := e.providers.Resolve(req.Provider, req.Model, req.Required)
	if err != nil {
		var ce *model.CallError
		if errors.As(err, &ce) {
			req.Diags.Append(ce.Diagnostic())
		}
		return nil, err
	}
	req.Model = res.Model.ID

	resp, err := e.execProvider(ctx, res, *req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ce *model.CallError
		if !errors.As(err, &ce) {
			ce = classifyProviderError(err)
		}
		req.Diags.Append(ce.Diagnostic())
		return &model.Response{
			FinishReason: "error",
			Content:      core.Content{Role: "assistant"},
			Provider:     res.Info.Name,
			Model:        res.Model.ID,
			Diags:        req.Diags,
		}, ce
	}

	resp.Provider = res.Info.Name
	resp.Model = res.Model.ID
	resp.Diags = req.Diags
	return resp, nil
}

// ExecTool runs one model-requested tool call outside a batch and wraps the
// outcome as a tool-role response so it re-enters history uniformly. A nil
// call is a no-op; capability gating does not apply without a resolved
// model.
func (e *Engine) ExecTool(ctx context.Context, call *core.FunctionCall) (*model.Response, error) {
	if call == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allCaps := core.CapChat | core.CapStreaming | core.CapToolUse | core.CapSchemaOutput
	diags := core.NewDiagnostics()
	fr := e.execTool(ctx, *call, allCaps, diags)

	return &model.Response{
		Content: core.Content{Role: "tool", Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: fr},
		}},
		Diags: diags,
	}, nil
}

// StreamingAdapterFor returns the configured adapter for req's resolved
// provider, or nil when the round must fall back to terminal delivery (the
// fallback reason lands on the request's diagnostics).
func (e *Engine) StreamingAdapterFor(req *model.Request) *stream.Adapter {
	if req == nil || !req.Stream {
		return nil
	}
	if req.Diags == nil {
		req.Diags = core.NewDiagnostics()
	}
	res, err := e.providers.Resolve(req.Provider, req.Model, req.Required)
	if err != nil {
		return nil
	}
	adapter, ok := e.streamingAdapterFor(res, req)
	if !ok {
		return nil
	}
	return adapter
}

// streamingAdapterFor decides the dispatch path for one round. It returns a
// configured adapter when streaming was requested and both the provider and
// the resolved model support it; otherwise it records the fallback as a
// warning diagnostic and the round proceeds terminally.
func (e *Engine) streamingAdapterFor(res *model.Resolution, req *model.Request) (*stream.Adapter, bool) {
	if !req.Stream {
		return nil, false
	}

	if res.Streaming == nil {
		req.Diags.Append(core.NewDiagnostic(
			core.SeverityWarning, core.OriginProvider, core.CodeStreamingDisabledProvider,
			fmt.Sprintf("provider %q does not stream, falling back to terminal delivery", res.Info.Name),
		))
		return nil, false
	}

	if !res.Model.Capabilities.Has(core.CapStreaming) {
		req.Diags.Append(core.NewDiagnostic(
			core.SeverityWarning, core.OriginProvider, core.CodeStreamingUnsupportedModel,
			fmt.Sprintf("model %q does not stream, falling back to terminal delivery", res.Model.ID),
		))
		return nil, false
	}

	opt := e.streamOpt
	return stream.NewAdapter(res.Streaming, func(o *stream.Options) { *o = opt }), true
}

// execProvider performs one terminal model round through the resolved
// provider. Failures come back as typed *model.CallError ready for the
// diagnostics sink.
func (e *Engine) execProvider(ctx context.Context, res *model.Resolution, req model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := res.Provider.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.LogModelCall(e.logger, res.Info.Name, res.Model.ID, 0, time.Since(start), err)
		return nil, classifyProviderError(err)
	}
	if resp == nil {
		return nil, model.NewCallError(core.CodeUnknown, core.OriginProvider,
			"provider %q returned no response", res.Info.Name)
	}

	var tokens int
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogModelCall(e.logger, res.Info.Name, res.Model.ID, tokens, time.Since(start), nil)

	return resp, nil
}

// execTool runs one model-requested tool invocation and always produces
// exactly one FunctionResponse. Unknown tools, capability mismatches,
// argument validation failures and panics become error responses the model
// sees on the next round; none of them abort the call.
func (e *Engine) execTool(ctx context.Context, fc core.FunctionCall, modelCaps core.Capability, diags *core.Diagnostics) core.FunctionResponse {
	fr := core.FunctionResponse{ID: fc.ID, Name: fc.Name}

	t, ok := e.tools.Lookup(fc.Name)
	if !ok {
		fr.Error = fmt.Sprintf("tool %q not found", fc.Name)
		diags.Append(core.NewDiagnostic(
			core.SeverityWarning, core.OriginTool, core.CodeUnknown,
			fmt.Sprintf("model requested unknown tool %q", fc.Name),
		))
		return fr
	}

	if !modelCaps.Has(t.RequiredCapabilities()) {
		fr.Error = fmt.Sprintf("tool %q requires capabilities the serving model lacks", fc.Name)
		diags.Append(core.NewDiagnostic(
			core.SeverityWarning, core.OriginTool, core.CodeCapabilityMismatch,
			fmt.Sprintf("tool %q requires %s, serving model provides %s", fc.Name, t.RequiredCapabilities(), modelCaps),
		))
		return fr
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			fr.Error = fmt.Sprintf("invalid tool arguments: %v", err)
			diags.Append(core.NewDiagnostic(
				core.SeverityWarning, core.OriginValidation, core.CodeToolValidationError,
				fmt.Sprintf("tool %q arguments are not valid JSON: %v", fc.Name, err),
			))
			return fr
		}
	}

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool panicked: %v", r)
				e.logger.Error("tool panic", "tool", fc.Name, "recover", r, "stack", string(debug.Stack()))
			}
		}()
		result, err = t.Call(ctx, args)
	}()

	if err != nil {
		fr.Error = err.Error()

		code := core.CodeUnknown
		origin := core.OriginTool
		var te *tool.ToolError
		if errors.As(err, &te) && te.Code == "VALIDATION_ERROR" {
			code = core.CodeToolValidationError
			origin = core.OriginValidation
		}
		diags.Append(core.NewDiagnostic(
			core.SeverityWarning, origin, code,
			fmt.Sprintf("tool %q failed: %v", fc.Name, err),
		))
		return fr
	}

	fr.Response = result
	return fr
}

// execToolBatch runs one round's tool calls, possibly in parallel, and
// returns their responses re-inserted in the model's request order. Each
// call yields exactly one response regardless of outcome.
func (e *Engine) execToolBatch(ctx context.Context, calls []core.FunctionCall, modelCaps core.Capability, diags *core.Diagnostics) []core.FunctionResponse {
	n := len(calls)
	if n == 0 {
		return nil
	}

	if n == 1 {
		return []core.FunctionResponse{e.execTool(ctx, calls[0], modelCaps, diags)}
	}

	maxPar := e.cfg.MaxParallelTools
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.FunctionResponse, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	start := time.Now()
	for i := range calls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[idx] = core.FunctionResponse{ID: fc.ID, Name: fc.Name, Error: ctx.Err().Error()}
				return
			}
			results[idx] = e.execTool(ctx, fc, modelCaps, diags)
		}(i, calls[i])
	}
	wg.Wait()

	// A cancelled batch may have skipped trailing calls entirely; they still
	// owe a response.
	for i := range results {
		if results[i].Name == "" {
			results[i] = core.FunctionResponse{ID: calls[i].ID, Name: calls[i].Name, Error: "tool execution skipped"}
		}
	}

	e.logger.Debug("tool batch complete",
		"count", n, "parallelism", maxPar,
		"duration_ms", time.Since(start).Milliseconds())

	return results
}
