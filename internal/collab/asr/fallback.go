package asr

import (
	"context"

	"github.com/augmentcore/corehub/internal/resilience"
)

// FallbackProvider tries a primary transcription backend first and falls
// through to registered fallbacks, in order, when the primary's circuit
// breaker is open or StartStream fails outright. It is itself a Provider,
// so it composes transparently with anything expecting one.
type FallbackProvider struct {
	group *resilience.FallbackGroup[Provider]
}

// NewFallbackProvider wraps primary as the first-tried backend. Use
// AddFallback to register additional backends, tried in the order added.
func NewFallbackProvider(primary Provider, primaryName string) *FallbackProvider {
	return &FallbackProvider{
		group: resilience.NewFallbackGroup(primary, primaryName, resilience.FallbackConfig{}),
	}
}

// AddFallback registers an additional backend, tried after every provider
// already registered.
func (f *FallbackProvider) AddFallback(name string, provider Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream implements Provider by trying each registered backend in
// order until one successfully opens a session.
func (f *FallbackProvider) StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error) {
	return resilience.ExecuteWithResult(f.group, func(p Provider) (SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
