package enrich

import (
	"fmt"
	"strings"

	"github.com/sells-group/catalog-cli/internal/model"
)

const categoryOther = "Other"

// keywordRules drive backend-free categorization. Rules are checked in
// order against the lowercased title.
var keywordRules = []struct {
	category string
	keywords []string
}{
	{"Books", []string{"book", "novel", "story", "fiction"}},
	{"Electronics", []string{"phone", "laptop", "computer", "electronic"}},
	{"Clothing", []string{"shirt", "pants", "dress", "shoes"}},
}

const (
	fallbackConfidence = 0.75
	degradedConfidence = 0.3

	fallbackSEOScore = 7
	degradedSEOScore = 3

	riskVeryLowPrice  = 8
	riskVeryHighPrice = 6
	riskBaseline      = 3
)

// fallbackCategorize never fails. A panic inside the rules degrades to a
// low-confidence "Other".
func fallbackCategorize(p *model.Product) (res model.CategorizationResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.CategorizationResult{
				Category:   categoryOther,
				Confidence: degradedConfidence,
				Reasoning:  "Fallback categorization due to error",
				Strategy:   model.StrategyFallback,
			}
		}
	}()

	title := strings.ToLower(p.Title)
	category := categoryOther
	for _, rule := range keywordRules {
		if containsAny(title, rule.keywords) {
			category = rule.category
			break
		}
	}
	return model.CategorizationResult{
		Category:   category,
		Confidence: fallbackConfidence,
		Reasoning:  "Keyword-based categorization",
		Strategy:   model.StrategyFallback,
	}
}

func fallbackDescribe(p *model.Product) (res model.DescriptionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.DescriptionResult{
				Description: strings.TrimSpace(fmt.Sprintf("Product: %s. Price: %s. %s",
					p.Title, model.FormatPrice(p.Price, p.Currency, "N/A"), p.Description)),
				Tags:     []string{"product", "available"},
				SEOScore: degradedSEOScore,
				Strategy: model.StrategyFallback,
			}
		}
	}()

	price := model.FormatPrice(p.Price, p.Currency, "an unbeatable price")
	return model.DescriptionResult{
		Description: fmt.Sprintf("Discover the amazing %s! This high-quality product offers exceptional value at %s. "+
			"Perfect for your needs with premium features and outstanding performance.", p.Title, price),
		Tags:     []string{"premium", "quality", "value", "performance"},
		SEOScore: fallbackSEOScore,
		Strategy: model.StrategyFallback,
	}
}

func fallbackAnomaly(p *model.Product) (res model.AnomalyResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.AnomalyResult{
				RiskScore:       riskNeutral,
				Anomalies:       []string{"Analysis unavailable"},
				Recommendations: []string{"Manual review recommended"},
				Strategy:        model.StrategyFallback,
			}
		}
	}()

	risk := riskBaseline
	anomalies := []string{"Basic price analysis completed"}
	switch {
	case p.Price == nil:
		anomalies = []string{"Price missing"}
	case *p.Price < 1.0:
		risk = riskVeryLowPrice
		anomalies = []string{"Unusually low price"}
	case *p.Price > 1000:
		risk = riskVeryHighPrice
		anomalies = []string{"Unusually high price"}
	}
	return model.AnomalyResult{
		RiskScore:       risk,
		Anomalies:       anomalies,
		Recommendations: []string{"Review pricing strategy", "Verify product information"},
		Strategy:        model.StrategyFallback,
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
