package policy

import (
	"errors"
	"fmt"

	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/logging"
	"github.com/llmrelay/llmrelay/model"
)

// Context carries one call's envelopes through the pipeline. Policies
// operate on it by reference for the duration of one call and must not
// retain it afterwards.
type Context struct {
	Request  *model.Request
	Response *model.Response // nil during the request phase
	Registry *model.Registry
	// Resolution is populated by the resolve policy during the request
	// phase and consumed by later policies and the executor.
	Resolution *model.Resolution
	Logger     logging.Logger
}

// Diags returns the call's diagnostics sink.
func (c *Context) Diags() *core.Diagnostics { return c.Request.Diags }

// RequestPolicy transforms the request before dispatch. Implementations
// MUST NOT perform network I/O; that contract is enforced by review and
// tests, not the type system.
type RequestPolicy interface {
	// Name identifies the policy in diagnostics and logs.
	Name() string
	Apply(pctx *Context) error
}

// ResponsePolicy transforms the response after dispatch.
type ResponsePolicy interface {
	Name() string
	Apply(pctx *Context) error
}

// Pipeline holds the ordered request and response policy lists. Configure
// it once at process start; it is immutable afterwards and safe to share
// across concurrent calls.
type Pipeline struct {
	request  []RequestPolicy
	response []ResponsePolicy
}

// Option configures a Pipeline under construction.
type Option func(*Pipeline)

// WithRequestPolicy appends a request policy; registration order defines
// execution order.
func WithRequestPolicy(p RequestPolicy) Option {
	return func(pl *Pipeline) { pl.request = append(pl.request, p) }
}

// WithResponsePolicy appends a response policy.
func WithResponsePolicy(p ResponsePolicy) Option {
	return func(pl *Pipeline) { pl.response = append(pl.response, p) }
}

// NewPipeline builds a pipeline from options only, without defaults.
func NewPipeline(opts ...Option) *Pipeline {
	pl := &Pipeline{}
	for _, o := range opts {
		o(pl)
	}
	return pl
}

// NewDefaultPipeline builds the standard pipeline: resolution and schema
// attachment around the request, compatibility decoding on the response.
// Extra options append behind the defaults.
func NewDefaultPipeline(opts ...Option) *Pipeline {
	base := []Option{
		WithRequestPolicy(NewResolvePolicy()),
		WithRequestPolicy(NewSchemaPolicy()),
		WithResponsePolicy(NewDecodePolicy()),
	}
	return NewPipeline(append(base, opts...)...)
}

// ApplyRequest runs the request policies in order. Policy failures are
// recovered into warning diagnostics and execution proceeds; a typed
// *model.CallError (selection failure) aborts before dispatch and is
// returned to the caller.
func (pl *Pipeline) ApplyRequest(pctx *Context) error {
	for _, p := range pl.request {
		err := runPolicy(p.Name(), func() error { return p.Apply(pctx) })
		if err == nil {
			continue
		}
		var ce *model.CallError
		if errors.As(err, &ce) {
			pctx.Diags().Append(ce.Diagnostic())
			return ce
		}
		pctx.Diags().Append(core.NewDiagnostic(
			core.SeverityWarning, core.OriginRequest, core.CodeUnknown,
			fmt.Sprintf("request policy %q failed: %v", p.Name(), err),
		))
		if pctx.Logger != nil {
			pctx.Logger.Warn("request policy failed", "policy", p.Name(), "error", err.Error())
		}
	}
	return nil
}

// ApplyResponse runs the response policies in order. Failures never abort:
// they degrade observability via a warning diagnostic and the next policy
// runs.
func (pl *Pipeline) ApplyResponse(pctx *Context) {
	for _, p := range pl.response {
		err := runPolicy(p.Name(), func() error { return p.Apply(pctx) })
		if err == nil {
			continue
		}
		pctx.Diags().Append(core.NewDiagnostic(
			core.SeverityWarning, core.OriginReturn, core.CodeUnknown,
			fmt.Sprintf("response policy %q failed: %v", p.Name(), err),
		))
		if pctx.Logger != nil {
			pctx.Logger.Warn("response policy failed", "policy", p.Name(), "error", err.Error())
		}
	}
}

// runPolicy invokes fn with panic recovery so a misbehaving policy cannot
// take down the call.
func runPolicy(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("policy %q panicked: %v", name, r)
		}
	}()
	return fn()
}
