// Package textgen adapts text-generation providers to a single Generator
// capability used by the enrichment orchestrator.
package textgen

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/metrics"
	"github.com/sells-group/catalog-cli/internal/resilience"
	"github.com/sells-group/catalog-cli/pkg/anthropic"
	"github.com/sells-group/catalog-cli/pkg/openrouter"
)

// Provider names.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderNone       = "none"
)

// Prompt is one generation request.
type Prompt struct {
	// System is a stable instruction preamble. Providers that support
	// prompt caching mark it cacheable.
	System      string
	Text        string
	MaxTokens   int
	Temperature float64
}

// Usage is the token accounting of one completion.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Completion is the generated text and its accounting.
type Completion struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
}

// Generator produces text for a prompt.
type Generator interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
	Provider() string
	Model() string
}

// New builds the configured generator wrapped with a rate limiter, timeout
// and circuit breaker. It returns nil when no provider is configured, which
// puts enrichment in offline mode.
func New(cfg *config.Config, m *metrics.Metrics) (Generator, error) {
	tg := cfg.TextGen
	timeout := time.Duration(tg.TimeoutSecs) * time.Second

	var gen Generator
	switch tg.Provider {
	case "", ProviderNone:
		zap.L().Info("textgen: no provider configured, enrichment runs offline")
		return nil, nil
	case ProviderAnthropic:
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("textgen: anthropic.key is required")
		}
		client := anthropic.NewClient(cfg.Anthropic.Key, anthropic.Options{Timeout: timeout})
		gen = NewAnthropic(client, tg.Model)
	case ProviderOpenRouter:
		if cfg.OpenRouter.Key == "" {
			return nil, eris.New("textgen: openrouter.key is required")
		}
		client := openrouter.NewClient(cfg.OpenRouter.Key,
			openrouter.WithBaseURL(cfg.OpenRouter.BaseURL),
			openrouter.WithModel(tg.Model),
			openrouter.WithReferer(cfg.OpenRouter.Referer),
			openrouter.WithTimeout(timeout),
		)
		gen = NewOpenRouter(client, tg.Model)
	default:
		return nil, eris.Errorf("textgen: unknown provider %q", tg.Provider)
	}

	bc := resilience.NewBreakerConfig(cfg.Circuit)
	bc.OnTransition = func(name string, _, to resilience.State) {
		m.SetBreakerState(name, int(to))
	}

	zap.L().Info("textgen: provider configured",
		zap.String("provider", gen.Provider()),
		zap.String("model", gen.Model()),
		zap.Int("requests_per_minute", tg.RequestsPerMinute),
	)
	return Guard(gen, GuardOptions{
		Breaker:           resilience.NewBreaker(gen.Provider(), bc),
		RequestsPerMinute: tg.RequestsPerMinute,
		Timeout:           timeout,
	}), nil
}
