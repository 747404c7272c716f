// Package cost estimates the USD cost of text-generation calls.
package cost

import (
	"github.com/sells-group/catalog-cli/internal/config"
)

// Anthropic bills prompt-cache writes and reads relative to the input rate.
const (
	cacheWriteMul = 1.25
	cacheReadMul  = 0.1
)

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Calculator computes costs from configured per-model rates.
type Calculator struct {
	rates map[string]map[string]config.ModelPricing
}

// NewCalculator creates a Calculator from the pricing config section.
func NewCalculator(p config.PricingConfig) *Calculator {
	return &Calculator{rates: map[string]map[string]config.ModelPricing{
		"anthropic":  p.Anthropic,
		"openrouter": p.OpenRouter,
	}}
}

// Estimate returns the cost of one call. Unknown providers or models cost
// nothing rather than failing the call that produced them.
func (c *Calculator) Estimate(provider, model string, u Usage) float64 {
	if c == nil {
		return 0
	}
	rate, ok := c.rates[provider][model]
	if !ok {
		return 0
	}

	in := float64(u.InputTokens) / 1e6 * rate.Input
	out := float64(u.OutputTokens) / 1e6 * rate.Output
	cw := float64(u.CacheWriteTokens) / 1e6 * rate.Input * cacheWriteMul
	cr := float64(u.CacheReadTokens) / 1e6 * rate.Input * cacheReadMul
	return in + out + cw + cr
}

// Known reports whether rates exist for the provider and model.
func (c *Calculator) Known(provider, model string) bool {
	if c == nil {
		return false
	}
	_, ok := c.rates[provider][model]
	return ok
}
