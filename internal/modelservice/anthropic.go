package modelservice

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicService implements Service via Claude's Messages API, grounded
// on the teacher's connector.AnthropicProvider.Generate.
type AnthropicService struct {
	client anthropic.Client
	model  string
}

// NewAnthropicService constructs an Anthropic-backed Service bound to a
// default model (overridable per-request via Request.Model is not
// exposed; the router resolves the effective model and the caller sets
// it on the request's prompt construction instead, consistent with this
// package's single-shot text-completion contract).
func NewAnthropicService(apiKey, baseURL, model string) *AnthropicService {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicService{client: anthropic.NewClient(opts...), model: model}
}

func (s *AnthropicService) Name() string { return "anthropic" }

func (s *AnthropicService) Generate(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generation failed: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += tb.Text
		}
	}
	return &Response{
		Content:          content,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}
