package model

import (
	"fmt"
	"sync"

	"github.com/llmrelay/llmrelay/core"
)

// Registry is the explicit, constructed provider registry keyed by provider
// id. It replaces ambient global state: callers build one, register their
// adapters and hand it to the orchestration engine.
//
// Thread safety: read-mostly. Register/Unregister take the write lock;
// lookups take the read lock; Snapshot returns a copy so iteration never
// observes concurrent mutation. In-flight calls must not mutate the
// registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	provider Provider
	// streaming is resolved once at registration time; nil means the
	// provider declared no streaming support.
	streaming StreamingProvider
	info      Info
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*registryEntry{}}
}

// Register adds a provider under its declared id. Streaming support is
// resolved here, not probed per call: an adapter either implements
// StreamingProvider or it does not stream. Registering an empty id or a
// duplicate is an error.
func (r *Registry) Register(p Provider) error {
	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("provider id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[info.Name]; exists {
		return fmt.Errorf("provider %q already registered", info.Name)
	}

	e := &registryEntry{provider: p, info: info}
	if sp, ok := p.(StreamingProvider); ok {
		e.streaming = sp
	}
	r.entries[info.Name] = e

	return nil
}

// Unregister removes a provider. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Lookup returns the provider registered under id.
func (r *Registry) Lookup(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Streaming returns the streaming contract for id, or false when the
// provider is unknown or registered without streaming support.
func (r *Registry) Streaming(id string) (StreamingProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.streaming == nil {
		return nil, false
	}
	return e.streaming, true
}

// Snapshot returns a copy of all registered provider infos for iteration.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		info := e.info
		info.Models = append([]ModelInfo(nil), e.info.Models...)
		out = append(out, info)
	}
	return out
}

// Resolution is the outcome of provider/model selection for one call.
type Resolution struct {
	Provider  Provider
	Streaming StreamingProvider // nil when the provider does not stream
	Info      Info
	Model     ModelInfo
}

// Resolve selects the concrete provider and model for a call.
//
// modelID may be empty, meaning "resolve the provider default" for the
// required capability set: a model explicitly marked default for every
// required bit wins; ties among non-default capable models break by the
// provider's published model list order, which keeps resolution
// deterministic. An explicit modelID must exist and satisfy the requirement.
//
// All failures are fatal selection errors (*CallError): ProviderMissing,
// UnknownProvider, UnknownModel, NoCapableModel, CapabilityMismatch.
func (r *Registry) Resolve(providerID, modelID string, required core.Capability) (*Resolution, error) {
	if providerID == "" {
		return nil, NewCallError(core.CodeProviderMissing, core.OriginRequest, "no provider specified")
	}

	r.mu.RLock()
	e, ok := r.entries[providerID]
	r.mu.RUnlock()
	if !ok {
		return nil, NewCallError(core.CodeUnknownProvider, core.OriginRequest, "unknown provider %q", providerID)
	}

	res := &Resolution{Provider: e.provider, Streaming: e.streaming, Info: e.info}

	if modelID != "" {
		for _, m := range e.info.Models {
			if m.ID != modelID {
				continue
			}
			if !m.Capabilities.Has(required) {
				return nil, NewCallError(core.CodeCapabilityMismatch, core.OriginRequest,
					"model %q/%q lacks required capabilities %s", providerID, modelID, required)
			}
			res.Model = m
			return res, nil
		}
		return nil, NewCallError(core.CodeUnknownModel, core.OriginRequest, "unknown model %q for provider %q", modelID, providerID)
	}

	var fallback *ModelInfo
	for i := range e.info.Models {
		m := e.info.Models[i]
		if !m.Capabilities.Has(required) {
			continue
		}
		if m.DefaultFor.Has(required) && m.DefaultFor != core.CapNone {
			res.Model = m
			return res, nil
		}
		if fallback == nil {
			fallback = &m
		}
	}
	if fallback == nil {
		return nil, NewCallError(core.CodeNoCapableModel, core.OriginRequest,
			"provider %q has no model with capabilities %s", providerID, required)
	}
	res.Model = *fallback
	return res, nil
}
