package enrich

import (
	"fmt"
	"strings"

	"github.com/sells-group/catalog-cli/internal/model"
)

const categorizeSystemPrompt = `You are a product categorization expert. Classify each product into exactly one of these categories: %s. Respond with only the category name from the list.`

const describeSystemPrompt = `You write compelling, SEO-friendly product descriptions of 100-150 words. Highlight key features and benefits, use engaging language, include relevant keywords naturally and focus on customer value. Put the description on the first line with no preamble.`

const anomalySystemPrompt = `You review product listings for anomalies: unusually low or high pricing, misleading information, potential duplicates and quality concerns. Give a brief analysis and a risk score from 1 to 10.`

const productPrompt = `Title: %s
Price: %s
Description: %s`

const anomalyPrompt = `Title: %s
Price: %s
Category: %s
Description: %s`

const noDescription = "No description available"

func categorizeSystem(categories []string) string {
	return fmt.Sprintf(categorizeSystemPrompt, strings.Join(categories, ", "))
}

func describeText(p *model.Product) string {
	return fmt.Sprintf(productPrompt, p.Title, model.FormatPrice(p.Price, p.Currency, "Price not available"), orDefault(p.Description, noDescription))
}

func categorizeText(p *model.Product) string {
	return describeText(p)
}

func anomalyText(p *model.Product, category string) string {
	return fmt.Sprintf(anomalyPrompt, p.Title, model.FormatPrice(p.Price, p.Currency, "Price not available"), orDefault(category, "Unknown"), orDefault(p.Description, noDescription))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
