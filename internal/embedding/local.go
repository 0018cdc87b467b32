package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NewLocalProvider builds a Provider against a local OpenAI-compatible
// embeddings endpoint (e.g. an MLX server), grounded on the teacher's
// pkg/memory/embedding/local.go.
func NewLocalProvider(baseURL, model string) *Provider {
	endpoint := normalizeOpenAIEndpoint(baseURL)
	client := &http.Client{Timeout: 30 * time.Second}

	post := func(ctx context.Context, input any) (*localEmbeddingResponse, error) {
		body, err := json.Marshal(localEmbeddingRequest{Model: model, Input: input})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("local embedding backend returned %d: %s", resp.StatusCode, string(raw))
		}
		var out localEmbeddingResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	embedOne := func(ctx context.Context, text string) ([]float64, error) {
		out, err := post(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(out.Data) == 0 {
			return nil, errNoEmbeddingData
		}
		return NormalizeEmbedding(out.Data[0].Embedding), nil
	}

	embedMany := func(ctx context.Context, texts []string) ([][]float64, error) {
		out, err := post(ctx, texts)
		if err != nil {
			return nil, err
		}
		result := make([][]float64, len(texts))
		for i := range texts {
			if i < len(out.Data) {
				result[i] = NormalizeEmbedding(out.Data[i].Embedding)
			}
		}
		return result, nil
	}

	return &Provider{
		id:         "local",
		model:      model,
		embedQuery: embedOne,
		embedBatch: embedMany,
	}
}

type localEmbeddingRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type localEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// normalizeOpenAIEndpoint appends the conventional embeddings path to a
// bare base URL, tolerating a URL that already carries /v1 or the full
// path.
func normalizeOpenAIEndpoint(baseURL string) string {
	trimmed := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(trimmed, "/embeddings") {
		return trimmed
	}
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed + "/embeddings"
	}
	return trimmed + "/v1/embeddings"
}
