// Package llm defines the uniform model-adapter contract the escalation
// engine calls, hiding each provider's SDK and quirks behind one interface.
package llm

import (
	"context"

	"github.com/cellardex/cellarid/internal/model"
)

// Prompt is one provider-agnostic request: a system prompt, a user turn, and
// an optional inline image.
type Prompt struct {
	System string
	User   string
	Image  *Image
}

// Image is an inline image attachment.
type Image struct {
	MediaType string
	Data      []byte
}

// TokenStream yields raw text chunks from a live streaming response. Usage is
// valid only after Next returns false with a nil Err.
type TokenStream interface {
	Next() bool
	Text() string
	Usage() model.TokenUsage
	Err() error
	Close() error
}

// Completion is a full non-streaming response.
type Completion struct {
	Text  string
	Usage model.TokenUsage
}

// Adapter is the uniform interface to one model provider. Implementations
// must classify failures into the resilience taxonomy: transport errors and
// provider rejections are distinguishable from "the model returned nothing
// useful", so the circuit breaker only counts true provider failures.
type Adapter interface {
	// Provider returns the stable provider key used for circuit breaking.
	Provider() string

	// Stream starts a streaming call and returns a live chunk stream.
	Stream(ctx context.Context, p Prompt, tier model.TierConfig) (TokenStream, error)

	// Complete performs a non-streaming call and returns the full response.
	// Used by escalation tiers that do not need field-level progressiveness.
	Complete(ctx context.Context, p Prompt, tier model.TierConfig) (*Completion, error)
}

// Registry maps provider keys to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a Registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Provider()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for the provider key, or nil.
func (r *Registry) Get(provider string) Adapter {
	return r.adapters[provider]
}
