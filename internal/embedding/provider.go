// Package embedding implements the Embedder capability: fixed-dimension
// float vectors for text, behind a pluggable backend. A "none" backend
// disables vector features entirely, degrading SearchService to
// lexical-only scoring and skipping verification's semantic layer.
package embedding

import (
	"context"
	"math"
)

// Provider is the Embedder contract. embed(text) -> vector, healthy() ->
// bool. Implementations wrap backend-specific closures behind this single
// concrete type, following the teacher's pkg/memory/embedding.Provider
// shape.
type Provider struct {
	id          string
	model       string
	embedQuery  func(ctx context.Context, text string) ([]float64, error)
	embedBatch  func(ctx context.Context, texts []string) ([][]float64, error)
	healthProbe func(ctx context.Context) bool
}

func (p *Provider) ID() string    { return p.id }
func (p *Provider) Model() string { return p.model }

// EmbedQuery returns the embedding for a single query string.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return p.embedQuery(ctx, text)
}

// EmbedBatch embeds multiple texts in one backend round trip where the
// backend supports it.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if p.embedBatch != nil {
		return p.embedBatch(ctx, texts)
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := p.embedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Healthy probes the backend cheaply without requiring a dedicated
// health-check RPC, by round-tripping a fixed probe string through
// EmbedQuery. Callers should cache the result for a short TTL.
func (p *Provider) Healthy(ctx context.Context) bool {
	if p.healthProbe != nil {
		return p.healthProbe(ctx)
	}
	_, err := p.embedQuery(ctx, "healthcheck probe")
	return err == nil
}

// NormalizeEmbedding L2-normalizes vec, filtering NaN/Inf components and
// guarding against a near-zero magnitude (in that degenerate case it returns
// the filtered copy unnormalized rather than dividing by ~0).
func NormalizeEmbedding(vec []float64) []float64 {
	clean := make([]float64, len(vec))
	var sumSq float64
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		clean[i] = v
		sumSq += v * v
	}
	mag := math.Sqrt(sumSq)
	if mag < 1e-12 {
		return clean
	}
	out := make([]float64, len(clean))
	for i, v := range clean {
		out[i] = v / mag
	}
	return out
}
