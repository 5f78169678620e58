package stream

import (
	"context"
	"strings"
	"time"

	"github.com/llmrelay/llmrelay/core"
	"github.com/llmrelay/llmrelay/model"
)

// Options tune coalescing, buffering and normalization of one streaming
// sequence.
type Options struct {
	// CoalesceTokens accumulates text fragments instead of forwarding each
	// provider token individually.
	CoalesceTokens bool
	// CoalesceDelay is the longest a buffered fragment waits before
	// emission.
	CoalesceDelay time.Duration
	// PreferredChunkSize emits the buffer early once this many bytes of
	// text have accumulated.
	PreferredChunkSize int
	// MaxBufferedDeltas bounds the number of emitted-but-unconsumed deltas.
	// Once reached, production blocks (cooperative suspension); deltas are
	// never dropped.
	MaxBufferedDeltas int
	// Normalize is the per-provider hook reshaping incremental quirks into
	// the common delta shape. Nil means identity.
	Normalize func(model.Response) model.Response
}

// DefaultOptions returns conservative streaming defaults.
func DefaultOptions() Options {
	return Options{
		CoalesceTokens:     true,
		CoalesceDelay:      25 * time.Millisecond,
		PreferredChunkSize: 48,
		MaxBufferedDeltas:  32,
	}
}

// Adapter converts a provider's native incremental responses into the
// common delta sequence. An Adapter is cheap and stateless; each Stream
// call opens a fresh sequence. A sequence is not restartable; stream again
// to start over.
type Adapter struct {
	provider model.StreamingProvider
	opts     Options
}

// NewAdapter wraps a streaming provider with the given options.
func NewAdapter(provider model.StreamingProvider, optFns ...func(o *Options)) *Adapter {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxBufferedDeltas < 1 {
		opts.MaxBufferedDeltas = 1
	}
	return &Adapter{provider: provider, opts: opts}
}

// Options returns the adapter's effective options.
func (a *Adapter) Options() Options { return a.opts }

// Stream opens the underlying provider stream and relays deltas until the
// provider completes or ctx is cancelled. Deltas are delivered in provider
// order; coalescing merges adjacent text fragments but never reorders.
// After cancellation the sequence stops producing within one coalescing
// window and the error channel carries ctx.Err().
func (a *Adapter) Stream(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, a.opts.MaxBufferedDeltas)
	errOut := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errOut)

		raw, rawErr := a.provider.Stream(ctx, req)

		var buf strings.Builder
		var timer *time.Timer
		var timerC <-chan time.Time

		stopTimer := func() {
			if timer != nil {
				timer.Stop()
				timer = nil
				timerC = nil
			}
		}
		defer stopTimer()

		send := func(resp model.Response) bool {
			select {
			case out <- resp:
				return true
			case <-ctx.Done():
				return false
			}
		}
		flush := func() bool {
			stopTimer()
			if buf.Len() == 0 {
				return true
			}
			text := buf.String()
			buf.Reset()
			return send(model.Response{Partial: true, Content: core.NewTextContent("assistant", text)})
		}

		for {
			select {
			case <-ctx.Done():
				errOut <- ctx.Err()
				return

			case <-timerC:
				timer = nil
				timerC = nil
				if !flush() {
					errOut <- ctx.Err()
					return
				}

			case err, ok := <-rawErr:
				if !ok {
					rawErr = nil
					continue
				}
				if err != nil {
					flush()
					errOut <- err
					return
				}

			case d, ok := <-raw:
				if !ok {
					if !flush() {
						errOut <- ctx.Err()
						return
					}
					// The provider may close its delta channel with a failure
					// still queued on the error channel; both close on
					// completion, so this receive cannot hang.
					if rawErr != nil {
						if err, ok := <-rawErr; ok && err != nil {
							errOut <- err
						}
					}
					return
				}
				if a.opts.Normalize != nil {
					d = a.opts.Normalize(d)
				}
				if a.coalescible(d) {
					buf.WriteString(d.Content.Text())
					if buf.Len() >= a.opts.PreferredChunkSize {
						if !flush() {
							errOut <- ctx.Err()
							return
						}
					} else if timerC == nil && buf.Len() > 0 {
						timer = time.NewTimer(a.opts.CoalesceDelay)
						timerC = timer.C
					}
					continue
				}
				// Pending text flushes first so delivery order matches the
				// provider's emission order.
				if !flush() || !send(d) {
					errOut <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errOut
}

// coalescible reports whether a delta is a pure text fragment eligible for
// accumulation. Tool-call fragments and terminal responses always pass
// through.
func (a *Adapter) coalescible(d model.Response) bool {
	if !a.opts.CoalesceTokens || !d.Partial {
		return false
	}
	for _, p := range d.Content.Parts {
		if _, ok := p.(core.TextPart); !ok {
			return false
		}
	}
	return true
}
