// Package provider defines the model-provider contract the streaming
// runner consumes, grounded on the teacher's agent.LLMProvider interface
// in internal/agent/provider_types.go, and two concrete bindings over the
// teacher's own provider SDKs (Anthropic, OpenAI).
package provider

import (
	"context"

	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// CompletionRequest is the provider-agnostic shape of one streaming turn:
// createResponseStream(modelId, messages, agent) in spec terms.
type CompletionRequest struct {
	Model        string
	Instructions string
	History      []mechmodels.HistoryItem
	Input        string // optional trailing user input for this turn
	Tools        [][]byte
	ToolChoice   string
	Temperature  float32
	JSONSchema   []byte
}

// Provider streams one LLM turn as a channel of mechmodels.Event. The
// channel is closed when the provider has no more events to emit; a
// terminal Event{Type: EventError} indicates the stream ended abnormally.
// Implementations must close the returned channel exactly once and must
// stop emitting as soon as ctx is canceled.
type Provider interface {
	// Name identifies the provider for fallback bookkeeping and metrics
	// labels ("anthropic", "openai").
	Name() string

	// Models lists the model ids this provider can serve, used by the
	// runner's model-class walk.
	Models() []string

	// SupportsTools reports whether model can be sent a non-empty tool list.
	SupportsTools(model string) bool

	// Stream opens a streaming completion. Errors opening the connection
	// (auth, network) are returned directly; mid-stream failures are
	// delivered as an EventError on the channel instead, since a stream may
	// already have emitted partial content by the time it fails.
	Stream(ctx context.Context, req CompletionRequest) (<-chan mechmodels.Event, error)
}

// Registry resolves providers by name and exposes the full model→provider
// map the runner needs for fallback walks.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a Registry from a set of providers, skipping any whose
// constructor reported it as unavailable (e.g. missing API key), per the
// spec's "missing keys disable the corresponding provider" rule.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[p.Name()] = p
	}
	return r
}

// For returns the provider that serves model, or nil if none is registered
// for it.
func (r *Registry) For(model string) Provider {
	for _, p := range r.providers {
		for _, m := range p.Models() {
			if m == model {
				return p
			}
		}
	}
	return nil
}

// Get returns a provider by its Name().
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// AllModels returns every model id across every registered provider, in a
// deterministic order (providers are iterated in the order they were
// registered in NewRegistry would be ideal, but map iteration in Go is
// randomized; callers that need determinism should pass an explicit model
// list rather than relying on AllModels order).
func (r *Registry) AllModels() []string {
	var out []string
	for _, p := range r.providers {
		out = append(out, p.Models()...)
	}
	return out
}
