package engine

import (
	"github.com/llmrelay/llmrelay/logging"
	"github.com/llmrelay/llmrelay/model"
	"github.com/llmrelay/llmrelay/policy"
	"github.com/llmrelay/llmrelay/stream"
	"github.com/llmrelay/llmrelay/tool"
)

// Config defines tuning parameters for call orchestration.
type Config struct {
	// MaxToolRounds caps the number of model rounds in the tool-call loop.
	// Exceeding it surfaces a fatal error response instead of looping
	// forever. 0 means unlimited (not recommended).
	MaxToolRounds int

	// MaxParallelTools limits concurrent tool executions within one round.
	// 0 or less means one goroutine per call.
	MaxParallelTools int
}

// DefaultConfig provides conservative defaults: eight tool rounds, four
// parallel tool executions.
var DefaultConfig = Config{
	MaxToolRounds:    8,
	MaxParallelTools: 4,
}

// Options configures an Engine instance using the functional options
// pattern.
type Options struct {
	// Config contains operational parameters for the orchestration loop.
	Config Config

	// Providers is the explicit provider registry. Defaults to an empty
	// registry if not provided.
	Providers *model.Registry

	// Tools is the explicit tool registry. Defaults to an empty registry.
	Tools *tool.Registry

	// Pipeline is the policy pipeline run around dispatch. Defaults to the
	// standard resolve/schema/decode pipeline.
	Pipeline *policy.Pipeline

	// Stream tunes the streaming adapter (coalescing, buffering).
	Stream stream.Options

	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger
}

// Engine coordinates policy processing, provider dispatch, streaming and
// tool execution. Construct once, share across concurrent calls.
type Engine struct {
	cfg       Config
	providers *model.Registry
	tools     *tool.Registry
	pipeline  *policy.Pipeline
	streamOpt stream.Options
	logger    logging.Logger
}

// New creates an Engine from functional options.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Stream: stream.DefaultOptions(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Providers == nil {
		opts.Providers = model.NewRegistry()
	}
	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry()
	}
	if opts.Pipeline == nil {
		opts.Pipeline = policy.NewDefaultPipeline()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{
		cfg:       opts.Config,
		providers: opts.Providers,
		tools:     opts.Tools,
		pipeline:  opts.Pipeline,
		streamOpt: opts.Stream,
		logger:    opts.Logger,
	}
}

// Providers returns the engine's provider registry.
func (e *Engine) Providers() *model.Registry { return e.providers }

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *tool.Registry { return e.tools }
