// Package llmrelay provides a high-level façade over the call engine and
// its subsystems (provider registry, tool registry, policy pipeline,
// streaming adapter). Most applications interact with this package by:
//  1. Creating a Relay via New() (optionally overriding the default pipeline,
//     stream options or logger)
//  2. Registering one or more provider adapters and tools
//  3. Invoking models synchronously (Invoke) or with streamed deltas
//     (InvokeStreaming)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply a structured logger
// and tuned engine limits.
package llmrelay

import (
	"context"

	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/engine"
	"github.com/llmrelay/llmrelay/logging"
	"github.com/llmrelay/llmrelay/model"
	"github.com/llmrelay/llmrelay/policy"
	"github.com/llmrelay/llmrelay/stream"
	"github.com/llmrelay/llmrelay/tool"
)

// Options configures the Relay instance.
type Options struct {
	// EngineConfig tunes the orchestration loop (tool round budget,
	// parallelism).
	EngineConfig engine.Config

	// Providers registered at construction time; more can be added later
	// via RegisterProvider.
	Providers []model.Provider

	// Tools registered at construction time.
	Tools []tool.Tool

	// Pipeline overrides the default resolve/schema/decode pipeline.
	Pipeline *policy.Pipeline

	// Stream tunes delta coalescing and buffering.
	Stream stream.Options

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Relay is the high-level façade aggregating the call engine and its
// registries.
type Relay struct {
	engine *engine.Engine
}

// New creates a Relay with optional overrides. Registration failures at
// construction time (duplicate provider or tool ids) are returned rather
// than deferred to the first call.
func New(optFns ...func(o *Options)) (*Relay, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Stream:       stream.DefaultOptions(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Pipeline = opts.Pipeline
		o.Stream = opts.Stream
		o.Logger = opts.Logger
	})

	for _, p := range opts.Providers {
		if err := e.Providers().Register(p); err != nil {
			return nil, err
		}
	}
	for _, t := range opts.Tools {
		if err := e.Tools().Register(t); err != nil {
			return nil, err
		}
	}

	return &Relay{engine: e}, nil
}

// Engine exposes the underlying engine for advanced call control
// (per-call options, status inspection).
func (r *Relay) Engine() *engine.Engine { return r.engine }

// RegisterProvider adds a provider adapter under its declared id.
func (r *Relay) RegisterProvider(p model.Provider) error {
	return r.engine.Providers().Register(p)
}

// RegisterTool adds a tool to the shared registry.
func (r *Relay) RegisterTool(t tool.Tool) error {
	return r.engine.Tools().Register(t)
}

// Invoke runs one call to completion and returns the terminal response.
func (r *Relay) Invoke(ctx context.Context, req *model.Request) (*model.Response, error) {
	return r.engine.Execute(ctx, req)
}

// InvokeStreaming runs one call with onDelta invoked for every streamed
// delta in arrival order. The returned response is the terminal result
// after the tool-call loop completes.
func (r *Relay) InvokeStreaming(
	ctx context.Context,
	req *model.Request,
	onDelta func(model.Response),
) (*model.Response, error) {
	req.Stream = true
	return r.engine.Execute(ctx, req, engine.WithOnDelta(onDelta))
}

// Ask is a minimal convenience: one user message to a provider's default
// model, answer text back.
func (r *Relay) Ask(ctx context.Context, provider, text string) (string, error) {
	req := &model.Request{
		Provider: provider,
		Messages: []core.Content{core.NewTextContent("user", text)},
	}
	resp, err := r.engine.Execute(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
