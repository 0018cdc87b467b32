package embedding

import "context"

// NewNoneProvider returns the no-op backend selected by
// embeddingBackend="none": every operation fails with an unavailable
// signal, which callers interpret as "degrade to lexical-only" rather than
// a fatal error.
func NewNoneProvider() *Provider {
	return &Provider{
		id:    "none",
		model: "none",
		embedQuery: func(ctx context.Context, text string) ([]float64, error) {
			return nil, errEmbeddingDisabled
		},
		healthProbe: func(ctx context.Context) bool { return false },
	}
}

var errEmbeddingDisabled = providerDisabledError{}

type providerDisabledError struct{}

func (providerDisabledError) Error() string { return "embedding backend disabled" }
