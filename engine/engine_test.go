package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/internal/testutil"
	"github.com/llmrelay/llmrelay/model"
	"github.com/llmrelay/llmrelay/policy"
	"github.com/llmrelay/llmrelay/stream"
	"github.com/llmrelay/llmrelay/tool"
)

func newTestEngine(t *testing.T, p model.Provider, tools ...tool.Tool) *Engine {
	t.Helper()

	e := New(func(o *Options) {
		o.Stream = stream.Options{CoalesceTokens: false, MaxBufferedDeltas: 8}
	})
	require.NoError(t, e.Providers().Register(p))
	for _, tl := range tools {
		require.NoError(t, e.Tools().Register(tl))
	}
	return e
}

// failingProvider returns a fixed error from every round.
type failingProvider struct {
	err error
}

func (p *failingProvider) Generate(context.Context, model.Request) (*model.Response, error) {
	return nil, p.err
}

func (p *failingProvider) Info() model.Info {
	return model.Info{Name: "failing", Models: []model.ModelInfo{{
		ID: "f-1", Capabilities: core.CapChat,
	}}}
}

// terminalOnlyProvider never implements StreamingProvider.
type terminalOnlyProvider struct {
	inner *model.MockProvider
}

func (p *terminalOnlyProvider) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	return p.inner.Generate(ctx, req)
}

func (p *terminalOnlyProvider) Info() model.Info { return p.inner.Info() }

// endlessStreamProvider emits text deltas until its context is cancelled.
type endlessStreamProvider struct{}

func (p *endlessStreamProvider) Generate(context.Context, model.Request) (*model.Response, error) {
	return nil, errors.New("streaming only")
}

func (p *endlessStreamProvider) Stream(ctx context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- model.Response{Partial: true, Content: core.NewTextContent("assistant", "a")}:
			}
		}
	}()
	return out, errCh
}

func (p *endlessStreamProvider) Info() model.Info {
	return model.Info{Name: "endless", Models: []model.ModelInfo{{
		ID: "e-1", Capabilities: core.CapChat | core.CapStreaming,
	}}}
}

func TestExecuteTerminalCall(t *testing.T) {
	mock := model.NewMockProvider("mock", "mock-1")
	mock.AddResponse("hello", "hi there")
	e := newTestEngine(t, mock)

	req := testutil.NewRequest("mock").User("hello").Build()
	call := e.NewCall(req)

	resp, err := call.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hi there", resp.Text())
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "mock", resp.Provider)
	assert.Equal(t, "mock-1", resp.Model)
	assert.Equal(t, core.StatusFinished, call.Status())
	require.NotNil(t, resp.Usage)
	assert.Positive(t, resp.Usage.TotalTokens)
}

func TestExecuteResolvesDefaultModel(t *testing.T) {
	mock := model.NewMockProvider("mock", "ignored").WithModels(
		model.ModelInfo{ID: "small", Capabilities: core.CapChat},
		model.ModelInfo{ID: "flagship", Capabilities: core.CapChat | core.CapToolUse, DefaultFor: core.CapChat},
	)
	e := newTestEngine(t, mock)

	resp, err := e.Execute(context.Background(), testutil.NewRequest("mock").User("hi").Build())
	require.NoError(t, err)

	assert.Equal(t, "flagship", resp.Model)
}

func TestSelectionFailureReturnsErrorResponse(t *testing.T) {
	e := newTestEngine(t, model.NewMockProvider("mock", "mock-1"))

	req := testutil.NewRequest("nope").User("hi").Build()
	resp, err := e.Execute(context.Background(), req)

	var ce *model.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.CodeUnknownProvider, ce.Code)

	require.NotNil(t, resp)
	assert.Equal(t, "error", resp.FinishReason)

	diags := req.Diags.All()
	require.NotEmpty(t, diags)
	assert.Equal(t, core.CodeUnknownProvider, diags[0].Code)
	assert.Equal(t, core.SeverityError, diags[0].Severity)
}

func TestToolCallLoop(t *testing.T) {
	var gotLocation atomic.Value
	weather := tool.NewFunctionTool("get_weather", "Look up current weather",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{"type": "string"},
			},
			"required": []any{"location"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			gotLocation.Store(args["location"].(string))
			return map[string]any{"temp_c": 21}, nil
		},
	)

	mock := model.NewMockProvider("mock", "mock-1")
	mock.Script(
		testutil.ToolCallResponse("call-1", "get_weather", `{"location":"Berlin"}`),
		testutil.TextResponse("It is 21C in Berlin."),
	)
	e := newTestEngine(t, mock, weather)

	req := testutil.NewRequest("mock").User("weather in berlin?").Build()
	call := e.NewCall(req)

	resp, err := call.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "It is 21C in Berlin.", resp.Text())
	assert.Equal(t, "Berlin", gotLocation.Load())
	assert.Equal(t, core.StatusFinished, call.Status())

	// History grew by the assistant tool request and the tool responses.
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "tool", req.Messages[2].Role)
	frs := req.Messages[2].FunctionResponses()
	require.Len(t, frs, 1)
	assert.Equal(t, "call-1", frs[0].ID)
	assert.Empty(t, frs[0].Error)
}

func TestToolBudgetExceeded(t *testing.T) {
	ping := tool.NewFunctionTool("ping", "Always answers pong",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(context.Context, map[string]any) (any, error) { return "pong", nil },
	)

	mock := model.NewMockProvider("mock", "mock-1")
	mock.Script(
		testutil.ToolCallResponse("c1", "ping", "{}"),
		testutil.ToolCallResponse("c2", "ping", "{}"),
		testutil.ToolCallResponse("c3", "ping", "{}"),
	)

	e := New(func(o *Options) {
		o.Config.MaxToolRounds = 2
	})
	require.NoError(t, e.Providers().Register(mock))
	require.NoError(t, e.Tools().Register(ping))

	req := testutil.NewRequest("mock").User("go").Build()
	resp, err := e.Execute(context.Background(), req)

	var ce *model.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.CodeToolBudgetExceeded, ce.Code)
	assert.Equal(t, "error", resp.FinishReason)

	var found bool
	for _, d := range req.Diags.All() {
		if d.Code == core.CodeToolBudgetExceeded {
			found = true
			assert.Equal(t, core.SeverityError, d.Severity)
		}
	}
	assert.True(t, found)
}

func TestToolValidationFailureSubstitutesErrorResponse(t *testing.T) {
	strict := tool.NewFunctionTool("strict", "Requires a name argument",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
			"required": []any{"name"},
		},
		func(context.Context, map[string]any) (any, error) { return "ok", nil },
	)

	mock := model.NewMockProvider("mock", "mock-1")
	mock.Script(
		testutil.ToolCallResponse("c1", "strict", `{"wrong":"field"}`),
		testutil.TextResponse("recovered"),
	)
	e := newTestEngine(t, mock, strict)

	req := testutil.NewRequest("mock").User("go").Build()
	resp, err := e.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "recovered", resp.Text())

	frs := req.Messages[2].FunctionResponses()
	require.Len(t, frs, 1)
	assert.NotEmpty(t, frs[0].Error)

	var found bool
	for _, d := range req.Diags.All() {
		if d.Code == core.CodeToolValidationError {
			found = true
			assert.Equal(t, core.SeverityWarning, d.Severity)
		}
	}
	assert.True(t, found)
}

func TestUnknownToolSubstitutesErrorResponse(t *testing.T) {
	mock := model.NewMockProvider("mock", "mock-1")
	mock.Script(
		testutil.ToolCallResponse("c1", "no_such_tool", "{}"),
		testutil.TextResponse("moving on"),
	)
	e := newTestEngine(t, mock)

	req := testutil.NewRequest("mock").User("go").
		Tool("declared_only", "declared but unregistered", map[string]any{"type": "object"}).
		Build()

	resp, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "moving on", resp.Text())

	frs := req.Messages[2].FunctionResponses()
	require.Len(t, frs, 1)
	assert.Contains(t, frs[0].Error, "not found")
}

func TestParallelToolsPreserveRequestOrder(t *testing.T) {
	// The first call sleeps so it finishes last; responses must still come
	// back in the model's request order.
	sleepy := tool.NewFunctionTool("sleepy", "Sleeps then answers",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(context.Context, map[string]any) (any, error) {
			time.Sleep(50 * time.Millisecond)
			return "slow", nil
		},
	)
	quick := tool.NewFunctionTool("quick", "Answers immediately",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(context.Context, map[string]any) (any, error) { return "fast", nil },
	)

	first := testutil.ToolCallResponse("c1", "sleepy", "{}")
	second := testutil.ToolCallResponse("c2", "quick", "{}")
	first.Content.Parts = append(first.Content.Parts, second.Content.Parts...)

	mock := model.NewMockProvider("mock", "mock-1")
	mock.Script(first, testutil.TextResponse("done"))
	e := newTestEngine(t, mock, sleepy, quick)

	req := testutil.NewRequest("mock").User("go").Build()
	_, err := e.Execute(context.Background(), req)
	require.NoError(t, err)

	frs := req.Messages[2].FunctionResponses()
	require.Len(t, frs, 2)
	assert.Equal(t, "c1", frs[0].ID)
	assert.Equal(t, "slow", frs[0].Response)
	assert.Equal(t, "c2", frs[1].ID)
	assert.Equal(t, "fast", frs[1].Response)
}

func TestUsageAccumulatesAcrossRounds(t *testing.T) {
	ping := tool.NewFunctionTool("ping", "Answers pong",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(context.Context, map[string]any) (any, error) { return "pong", nil },
	)

	roundOne := testutil.ToolCallResponse("c1", "ping", "{}")
	roundOne.Usage = &model.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	roundTwo := testutil.TextResponse("done")
	roundTwo.Usage = &model.TokenUsage{PromptTokens: 20, CompletionTokens: 7, TotalTokens: 27}

	mock := model.NewMockProvider("mock", "mock-1")
	mock.Script(roundOne, roundTwo)
	e := newTestEngine(t, mock, ping)

	resp, err := e.Execute(context.Background(), testutil.NewRequest("mock").User("go").Build())
	require.NoError(t, err)

	require.NotNil(t, resp.Usage)
	assert.Equal(t, 30, resp.Usage.PromptTokens)
	assert.Equal(t, 12, resp.Usage.CompletionTokens)
	assert.Equal(t, 42, resp.Usage.TotalTokens)
}

func TestStreamingDeliversDeltasInOrder(t *testing.T) {
	mock := model.NewMockProvider("mock", "mock-1")
	mock.AddResponse("hi", "hello world")
	e := newTestEngine(t, mock)

	var streamed string
	req := testutil.NewRequest("mock").User("hi").Streaming().Build()
	call := e.NewCall(req, WithOnDelta(func(d model.Response) {
		streamed += d.Text()
	}))

	resp, err := call.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hello world", streamed)
	assert.Equal(t, "hello world", resp.Text())
	assert.Equal(t, core.StatusFinished, call.Status())
}

func TestStreamingFallsBackWhenProviderDoesNotStream(t *testing.T) {
	inner := model.NewMockProvider("mock", "mock-1")
	inner.AddResponse("hi", "terminal answer")
	e := newTestEngine(t, &terminalOnlyProvider{inner: inner})

	deltas := 0
	req := testutil.NewRequest("mock").User("hi").Streaming().Build()
	resp, err := e.Execute(context.Background(), req, WithOnDelta(func(model.Response) { deltas++ }))
	require.NoError(t, err)

	assert.Equal(t, "terminal answer", resp.Text())
	assert.Zero(t, deltas)

	var found bool
	for _, d := range req.Diags.All() {
		if d.Code == core.CodeStreamingDisabledProvider {
			found = true
			assert.Equal(t, core.SeverityWarning, d.Severity)
		}
	}
	assert.True(t, found)
}

func TestStreamingFallbackRecordsSingleDiagnosticAcrossToolRounds(t *testing.T) {
	ping := tool.NewFunctionTool("ping", "Answers pong",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(context.Context, map[string]any) (any, error) { return "pong", nil },
	)

	inner := model.NewMockProvider("mock", "mock-1")
	inner.Script(
		testutil.ToolCallResponse("c1", "ping", "{}"),
		testutil.ToolCallResponse("c2", "ping", "{}"),
		testutil.TextResponse("done"),
	)
	e := newTestEngine(t, &terminalOnlyProvider{inner: inner}, ping)

	req := testutil.NewRequest("mock").User("go").Streaming().Build()
	resp, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())

	var fallbacks int
	for _, d := range req.Diags.All() {
		if d.Code == core.CodeStreamingDisabledProvider {
			fallbacks++
		}
	}
	assert.Equal(t, 1, fallbacks)
}

// recordingLogger captures log messages for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
	args     [][]any
}

func (l *recordingLogger) record(msg string, a []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	l.args = append(l.args, a)
}

func (l *recordingLogger) Debug(msg string, a ...any) { l.record(msg, a) }
func (l *recordingLogger) Info(msg string, a ...any)  { l.record(msg, a) }
func (l *recordingLogger) Warn(msg string, a ...any)  { l.record(msg, a) }
func (l *recordingLogger) Error(msg string, a ...any) { l.record(msg, a) }

func TestProviderRoundsAreLogged(t *testing.T) {
	rec := &recordingLogger{}
	mock := model.NewMockProvider("mock", "mock-1")
	mock.AddResponse("hi", "hello")

	e := New(func(o *Options) {
		o.Logger = rec
	})
	require.NoError(t, e.Providers().Register(mock))

	_, err := e.Execute(context.Background(), testutil.NewRequest("mock").User("hi").Build())
	require.NoError(t, err)

	var logged bool
	for i, msg := range rec.messages {
		if msg != "model call completed" {
			continue
		}
		logged = true
		assert.Contains(t, rec.args[i], "provider")
		assert.Contains(t, rec.args[i], "token_count")
	}
	assert.True(t, logged)
}

func TestMidStreamCancellation(t *testing.T) {
	e := newTestEngine(t, &endlessStreamProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deltas atomic.Int32
	req := testutil.NewRequest("endless").User("go").Streaming().Build()
	call := e.NewCall(req, WithOnDelta(func(model.Response) {
		if deltas.Add(1) == 3 {
			cancel()
		}
	}))

	resp, err := call.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
	assert.NotEqual(t, core.StatusFinished, call.Status())

	var found bool
	for _, d := range req.Diags.All() {
		if d.Code == core.CodeCancelled {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProviderErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code core.Code
	}{
		{"rate limit", errors.New("429 too many requests: rate limit exceeded"), core.CodeRateLimited},
		{"auth", errors.New("401 invalid api key"), core.CodeAuthenticationMissing},
		{"forbidden", errors.New("403 forbidden for this organization"), core.CodeAuthorizationFailed},
		{"timeout", context.DeadlineExceeded, core.CodeNetworkTimeout},
		{"wrapped timeout", fmt.Errorf("round failed: %w", context.DeadlineExceeded), core.CodeNetworkTimeout},
		{"unclassified", errors.New("boom"), core.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := classifyProviderError(tt.err)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestProviderFailureReturnsErrorResponse(t *testing.T) {
	e := newTestEngine(t, &failingProvider{err: errors.New("429 rate limit")})

	req := testutil.NewRequest("failing").User("hi").Build()
	resp, err := e.Execute(context.Background(), req)

	var ce *model.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.CodeRateLimited, ce.Code)

	require.NotNil(t, resp)
	assert.Equal(t, "error", resp.FinishReason)
	assert.Equal(t, "failing", resp.Provider)
	assert.True(t, req.Diags.HasErrors())
}

type explodingResponsePolicy struct{}

func (explodingResponsePolicy) Name() string { return "exploding" }

func (explodingResponsePolicy) Apply(*policy.Context) error {
	return errors.New("post-processing blew up")
}

func TestResponsePolicyFailureDoesNotAbortCall(t *testing.T) {
	mock := model.NewMockProvider("mock", "mock-1")
	mock.AddResponse("hi", "still here")

	e := New(func(o *Options) {
		o.Pipeline = policy.NewDefaultPipeline(
			policy.WithResponsePolicy(explodingResponsePolicy{}),
		)
	})
	require.NoError(t, e.Providers().Register(mock))

	req := testutil.NewRequest("mock").User("hi").Build()
	resp, err := e.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "still here", resp.Text())

	var found bool
	for _, d := range req.Diags.All() {
		if d.Severity == core.SeverityWarning && d.Origin == core.OriginReturn {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPanickingToolDoesNotAbortCall(t *testing.T) {
	bomb := tool.NewFunctionTool("bomb", "Panics on call",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(context.Context, map[string]any) (any, error) { panic("kaboom") },
	)

	mock := model.NewMockProvider("mock", "mock-1")
	mock.Script(
		testutil.ToolCallResponse("c1", "bomb", "{}"),
		testutil.TextResponse("survived"),
	)
	e := newTestEngine(t, mock, bomb)

	req := testutil.NewRequest("mock").User("go").Build()
	resp, err := e.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "survived", resp.Text())
	frs := req.Messages[2].FunctionResponses()
	require.Len(t, frs, 1)
	assert.Contains(t, frs[0].Error, "panic")
}

func TestRegistryDefinitionsAttachedWhenRequestHasNone(t *testing.T) {
	ping := tool.NewFunctionTool("ping", "Answers pong",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(context.Context, map[string]any) (any, error) { return "pong", nil },
	)

	mock := model.NewMockProvider("mock", "mock-1")
	mock.AddResponse("hi", "ok")
	e := newTestEngine(t, mock, ping)

	req := testutil.NewRequest("mock").User("hi").Build()
	_, err := e.Execute(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "ping", req.Tools[0].Function.Name)
}
