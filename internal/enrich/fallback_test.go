package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/catalog-cli/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestFallbackCategorize(t *testing.T) {
	tests := []struct {
		title    string
		category string
	}{
		{"The Great Novel", "Books"},
		{"XQ-99 Widget", "Other"},
		{"Refurbished Laptop 15in", "Electronics"},
		{"Summer Dress", "Clothing"},
		{"", "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			res := fallbackCategorize(&model.Product{Title: tt.title})
			assert.Equal(t, tt.category, res.Category)
			assert.InDelta(t, 0.75, res.Confidence, 1e-9)
			assert.Equal(t, model.StrategyFallback, res.Strategy)
		})
	}
}

func TestFallbackDescribe(t *testing.T) {
	res := fallbackDescribe(&model.Product{Title: "A Light in the Attic", Price: ptr(51.77), Currency: "GBP"})
	assert.Contains(t, res.Description, "Discover the amazing A Light in the Attic!")
	assert.Contains(t, res.Description, "£51.77")
	assert.Equal(t, []string{"premium", "quality", "value", "performance"}, res.Tags)
	assert.Equal(t, 7, res.SEOScore)
	assert.Equal(t, model.StrategyFallback, res.Strategy)

	res = fallbackDescribe(&model.Product{Title: "Mystery Box"})
	assert.Contains(t, res.Description, "an unbeatable price")
}

func TestFallbackAnomaly(t *testing.T) {
	tests := []struct {
		name  string
		price *float64
		risk  int
	}{
		{"very low", ptr(0.5), 8},
		{"very high", ptr(2500.0), 6},
		{"normal", ptr(19.99), 3},
		{"boundary one", ptr(1.0), 3},
		{"missing", nil, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := fallbackAnomaly(&model.Product{Title: "x", Price: tt.price})
			assert.Equal(t, tt.risk, res.RiskScore)
			assert.NotEmpty(t, res.Anomalies)
			assert.Equal(t, []string{"Review pricing strategy", "Verify product information"}, res.Recommendations)
		})
	}
}

// Fallbacks are total: any title and price yields a complete result.
func TestFallbackTotality(t *testing.T) {
	titles := []string{"", "   ", "日本語の本", "<b>bold</b>", "a\x00b", "BOOK BOOK BOOK"}
	prices := []*float64{nil, ptr(-1.0), ptr(0.0), ptr(1e12)}
	for _, title := range titles {
		for _, price := range prices {
			p := &model.Product{Title: title, Price: price, Currency: "USD"}
			assert.NotPanics(t, func() {
				c := fallbackCategorize(p)
				assert.NotEmpty(t, c.Category)
				d := fallbackDescribe(p)
				assert.NotEmpty(t, d.Description)
				assert.NotEmpty(t, d.Tags)
				a := fallbackAnomaly(p)
				assert.NotZero(t, a.RiskScore)
			})
		}
	}
}
