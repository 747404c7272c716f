package textgen

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/resilience"
	"github.com/sells-group/catalog-cli/pkg/anthropic"
	"github.com/sells-group/catalog-cli/pkg/openrouter"
)

type anthropicGenerator struct {
	client anthropic.Client
	model  string
}

// NewAnthropic adapts an Anthropic client.
func NewAnthropic(client anthropic.Client, model string) Generator {
	return &anthropicGenerator{client: client, model: model}
}

func (g *anthropicGenerator) Provider() string { return ProviderAnthropic }
func (g *anthropicGenerator) Model() string    { return g.model }

func (g *anthropicGenerator) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	temp := p.Temperature
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   int64(p.MaxTokens),
		System:      anthropic.BuildCachedSystemBlocks(p.System, ""),
		Messages:    []anthropic.Message{{Role: "user", Content: p.Text}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = g.model
	}
	return &Completion{
		Text:     resp.Text(),
		Provider: ProviderAnthropic,
		Model:    model,
		Usage: Usage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		},
	}, nil
}

type openRouterGenerator struct {
	client openrouter.Client
	model  string
}

// NewOpenRouter adapts an OpenRouter client.
func NewOpenRouter(client openrouter.Client, model string) Generator {
	return &openRouterGenerator{client: client, model: model}
}

func (g *openRouterGenerator) Provider() string { return ProviderOpenRouter }
func (g *openRouterGenerator) Model() string    { return g.model }

func (g *openRouterGenerator) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	msgs := make([]openrouter.Message, 0, 2)
	if p.System != "" {
		msgs = append(msgs, openrouter.Message{Role: "system", Content: p.System})
	}
	msgs = append(msgs, openrouter.Message{Role: "user", Content: p.Text})

	temp := p.Temperature
	maxTokens := p.MaxTokens
	resp, err := g.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var apiErr *openrouter.APIError
		if eris.As(err, &apiErr) {
			return nil, &resilience.StatusError{
				Service:    ProviderOpenRouter,
				StatusCode: apiErr.StatusCode,
				Body:       strings.TrimSpace(apiErr.Body),
			}
		}
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = g.model
	}
	return &Completion{
		Text:     resp.Text(),
		Provider: ProviderOpenRouter,
		Model:    model,
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}
