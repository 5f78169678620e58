package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/model"
	"github.com/llmrelay/llmrelay/policy"
	"github.com/llmrelay/llmrelay/stream"
)

// Call is one orchestrated model interaction: the policy pipeline, provider
// dispatch, optional streaming and the tool-call loop around a single
// request. A Call runs once; create a new one per request.
type Call struct {
	id      string
	engine  *Engine
	req     *model.Request
	status  atomic.Int32
	onDelta func(model.Response)
}

// CallOption configures a single call.
type CallOption func(c *Call)

// WithOnDelta registers a callback invoked for every streamed delta, in
// arrival order, from the call's own goroutine. The callback must not block
// for long; production suspends while it runs.
func WithOnDelta(fn func(model.Response)) CallOption {
	return func(c *Call) { c.onDelta = fn }
}

// NewCall prepares a call for the given request. The request's diagnostics
// sink is attached here if the caller did not provide one.
func (e *Engine) NewCall(req *model.Request, opts ...CallOption) *Call {
	if req.Diags == nil {
		req.Diags = core.NewDiagnostics()
	}
	c := &Call{id: core.NewID(), engine: e, req: req}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Execute is the one-shot convenience: prepare a call and run it.
func (e *Engine) Execute(ctx context.Context, req *model.Request, opts ...CallOption) (*model.Response, error) {
	return e.NewCall(req, opts...).Run(ctx)
}

// ID returns the call's unique identifier.
func (c *Call) ID() string { return c.id }

// Status returns the call's current lifecycle state.
func (c *Call) Status() core.CallStatus { return core.CallStatus(c.status.Load()) }

// transition moves the call to next when the lifecycle permits it. Illegal
// transitions are dropped, not panicked on; the status is observability
// state, never control flow.
func (c *Call) transition(next core.CallStatus) {
	for {
		cur := c.status.Load()
		if !core.CallStatus(cur).CanTransition(next) {
			return
		}
		if c.status.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

// Run drives the call to completion.
//
// Fatal failures return both an error Response (FinishReason "error",
// diagnostics attached) and the typed error, so callers keep the
// observability trail either way. Cancellation is the exception: it returns
// (nil, ctx.Err()) after recording a Cancelled diagnostic.
func (c *Call) Run(ctx context.Context) (*model.Response, error) {
	e := c.engine
	req := c.req

	c.transition(core.StatusProcessing)

	// An empty tool list inherits the engine registry's definitions, sorted
	// deterministically. An explicitly provided list is left alone.
	if len(req.Tools) == 0 && e.tools.Len() > 0 {
		req.Tools = e.tools.Definitions()
	}

	pctx := &policy.Context{Request: req, Registry: e.providers, Logger: e.logger}

	if err := e.pipeline.ApplyRequest(pctx); err != nil {
		var ce *model.CallError
		if !errors.As(err, &ce) {
			ce = model.NewCallError(core.CodeUnknown, core.OriginRequest, "request pipeline failed: %v", err)
		}
		return c.fail(pctx, ce)
	}
	res := pctx.Resolution
	if res == nil {
		return c.fail(pctx, model.NewCallError(core.CodeUnknown, core.OriginRequest,
			"request pipeline completed without resolving a provider"))
	}

	limiter := core.NewRoundLimiter(e.cfg.MaxToolRounds)
	total := &model.TokenUsage{}

	// The streaming decision holds for the whole call; deciding it per round
	// would re-append the fallback diagnostic on every tool round.
	adapter, _ := e.streamingAdapterFor(res, req)

	for {
		if err := ctx.Err(); err != nil {
			return c.cancelled(err)
		}

		if err := limiter.Increment(); err != nil {
			return c.fail(pctx, model.NewCallError(core.CodeToolBudgetExceeded, core.OriginRequest,
				"tool-call loop exceeded %d rounds", e.cfg.MaxToolRounds))
		}

		resp, err := c.round(ctx, res, adapter)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return c.cancelled(err)
			}
			var ce *model.CallError
			if !errors.As(err, &ce) {
				ce = classifyProviderError(err)
			}
			return c.fail(pctx, ce)
		}

		total.Add(resp.Usage)
		resp.Diags = req.Diags

		pctx.Response = resp
		e.pipeline.ApplyResponse(pctx)

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			resp.Usage = total
			c.transition(core.StatusFinished)
			return resp, nil
		}

		c.transition(core.StatusCallingTools)

		responses := e.execToolBatch(ctx, calls, res.Model.Capabilities, req.Diags)
		if err := ctx.Err(); err != nil {
			return c.cancelled(err)
		}

		// History grows by the assistant turn that requested the tools and
		// one tool turn carrying the responses in request order.
		req.Messages = append(req.Messages, resp.Content)
		parts := make([]core.Part, 0, len(responses))
		for _, fr := range responses {
			parts = append(parts, core.FunctionResponsePart{FunctionResponse: fr})
		}
		req.Messages = append(req.Messages, core.Content{Role: "tool", Parts: parts})

		c.transition(core.StatusProcessing)
	}
}

// round performs one model round over the streaming path when available,
// the terminal path otherwise.
func (c *Call) round(ctx context.Context, res *model.Resolution, adapter *stream.Adapter) (*model.Response, error) {
	if adapter == nil {
		return c.engine.execProvider(ctx, res, *c.req)
	}
	return c.streamRound(ctx, adapter)
}

// streamRound consumes one adapted delta sequence. Partial deltas go to the
// OnDelta callback; the sequence must end with exactly one terminal
// response, which becomes the round result.
func (c *Call) streamRound(ctx context.Context, adapter *stream.Adapter) (*model.Response, error) {
	out, errCh := adapter.Stream(ctx, *c.req)

	var final *model.Response
	for delta := range out {
		if delta.Partial {
			c.transition(core.StatusStreaming)
			if c.onDelta != nil {
				c.onDelta(delta)
			}
			continue
		}
		d := delta
		final = &d
	}

	if err := <-errCh; err != nil {
		return nil, err
	}
	if final == nil {
		return nil, model.NewCallError(core.CodeUnknown, core.OriginProvider,
			"stream ended without a terminal response")
	}
	return final, nil
}

// fail records a fatal call error and hands back an error response carrying
// the full diagnostics trail alongside the typed error.
func (c *Call) fail(pctx *policy.Context, ce *model.CallError) (*model.Response, error) {
	req := c.req

	// Selection failures surfaced by the pipeline are already in the sink.
	diag := ce.Diagnostic()
	if !containsDiag(req.Diags, diag) {
		req.Diags.Append(diag)
	}

	c.engine.logger.Error("call failed",
		"call", c.id, "code", int(ce.Code), "origin", ce.Origin.String(), "error", ce.Msg)

	resp := &model.Response{
		FinishReason: "error",
		Content:      core.Content{Role: "assistant"},
		Diags:        req.Diags,
	}
	if pctx != nil && pctx.Resolution != nil {
		resp.Provider = pctx.Resolution.Info.Name
		resp.Model = pctx.Resolution.Model.ID
	}

	c.transition(core.StatusFinished)
	return resp, ce
}

// cancelled records caller-initiated cancellation. The call does not reach a
// normal terminal state; the partial diagnostics trail remains on the
// request sink.
func (c *Call) cancelled(err error) (*model.Response, error) {
	c.req.Diags.Append(core.NewDiagnostic(
		core.SeverityWarning, core.OriginRequest, core.CodeCancelled,
		fmt.Sprintf("call cancelled: %v", err),
	))
	c.engine.logger.Warn("call cancelled", "call", c.id, "error", err.Error())
	return nil, err
}

func containsDiag(d *core.Diagnostics, want core.Diagnostic) bool {
	for _, got := range d.All() {
		if got == want {
			return true
		}
	}
	return false
}
