package embedding

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// NewOpenAIProvider builds a Provider backed by the OpenAI embeddings API,
// grounded on the teacher's pkg/memory/embedding/openai.go.
func NewOpenAIProvider(apiKey, baseURL, model string) (*Provider, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	embedOne := func(ctx context.Context, text string) ([]float64, error) {
		resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: model,
			Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, errNoEmbeddingData
		}
		return NormalizeEmbedding(resp.Data[0].Embedding), nil
	}

	embedMany := func(ctx context.Context, texts []string) ([][]float64, error) {
		resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: model,
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		})
		if err != nil {
			return nil, err
		}
		out := make([][]float64, len(resp.Data))
		for i, d := range resp.Data {
			out[i] = NormalizeEmbedding(d.Embedding)
		}
		return out, nil
	}

	return &Provider{
		id:         "openai",
		model:      model,
		embedQuery: embedOne,
		embedBatch: embedMany,
	}, nil
}

type noEmbeddingDataError struct{}

func (noEmbeddingDataError) Error() string { return "embeddings response contained no data" }

var errNoEmbeddingData = noEmbeddingDataError{}
