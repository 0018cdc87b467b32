package embedding

import (
	"context"

	"google.golang.org/genai"
)

const defaultGeminiEmbeddingModel = "gemini-embedding-001"

// NewGeminiProvider builds a Provider backed by the Gemini embedContent API
// via the official google.golang.org/genai client, grounded on the
// teacher's pkg/connector/provider_gemini.go client-construction pattern
// (ClientConfig{APIKey, Backend: BackendGeminiAPI}) applied to embeddings
// rather than chat generation.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*Provider, error) {
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	embedOne := func(ctx context.Context, text string) ([]float64, error) {
		resp, err := client.Models.EmbedContent(ctx, model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}}, nil)
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) == 0 {
			return nil, errNoEmbeddingData
		}
		return NormalizeEmbedding(float32sToFloat64s(resp.Embeddings[0].Values)), nil
	}

	embedMany := func(ctx context.Context, texts []string) ([][]float64, error) {
		contents := make([]*genai.Content, len(texts))
		for i, t := range texts {
			contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
		}
		resp, err := client.Models.EmbedContent(ctx, model, contents, nil)
		if err != nil {
			return nil, err
		}
		out := make([][]float64, len(texts))
		for i := range texts {
			if i < len(resp.Embeddings) {
				out[i] = NormalizeEmbedding(float32sToFloat64s(resp.Embeddings[i].Values))
			}
		}
		return out, nil
	}

	return &Provider{
		id:         "gemini",
		model:      model,
		embedQuery: embedOne,
		embedBatch: embedMany,
	}, nil
}

func float32sToFloat64s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
