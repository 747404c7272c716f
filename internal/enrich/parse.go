package enrich

import (
	"fmt"
	"strings"

	"github.com/sells-group/catalog-cli/internal/model"
)

const (
	parsedConfidence    = 0.85
	unmatchedConfidence = 0.5
	generatedSEOScore   = 8
	maxTags             = 5

	riskHigh    = 8
	riskLow     = 2
	riskNeutral = 5
)

// stopWords are skipped during tag extraction.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
}

// parseCategorization matches generated text against the vocabulary. The
// first category found wins. No match yields "Other" and a ParseError that
// is recorded but not fatal.
func parseCategorization(text string, categories []string) (model.CategorizationResult, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, c := range categories {
		if strings.Contains(lower, strings.ToLower(c)) {
			return model.CategorizationResult{
				Category:   c,
				Confidence: parsedConfidence,
				Reasoning:  fmt.Sprintf("Classified as %s based on title and description", c),
			}, nil
		}
	}
	return model.CategorizationResult{
			Category:   categoryOther,
			Confidence: unmatchedConfidence,
			Reasoning:  "Response did not match a known category",
		}, &model.ParseError{
			Operation: model.OpCategorize,
			Reason:    fmt.Sprintf("no category in %q", truncate(lower, 80)),
		}
}

// parseDescription takes the first non-empty line as the description.
func parseDescription(text string) (model.DescriptionResult, error) {
	line := firstLine(text)
	if line == "" {
		return model.DescriptionResult{}, &model.ParseError{Operation: model.OpDescribe, Reason: "empty description"}
	}
	return model.DescriptionResult{
		Description: line,
		Tags:        extractTags(line),
		SEOScore:    generatedSEOScore,
	}, nil
}

// parseAnomaly derives a coarse risk score from the vocabulary of the
// analysis and keeps its lines as notes.
func parseAnomaly(text string) model.AnomalyResult {
	lower := strings.ToLower(text)
	risk := riskNeutral
	switch {
	case strings.Contains(lower, "high") || strings.Contains(lower, "risk"):
		risk = riskHigh
	case strings.Contains(lower, "low") || strings.Contains(lower, "safe"):
		risk = riskLow
	}

	var notes []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			notes = append(notes, truncate(l, 200))
		}
		if len(notes) == 5 {
			break
		}
	}
	if len(notes) == 0 {
		notes = []string{"Analysis completed"}
	}
	return model.AnomalyResult{
		RiskScore:       risk,
		Anomalies:       notes,
		Recommendations: []string{"Review product data for accuracy"},
	}
}

// extractTags returns up to five unique lowercase words longer than three
// characters that are not stop words.
func extractTags(text string) []string {
	tags := make([]string, 0, maxTags)
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len([]rune(w)) <= 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func firstLine(text string) string {
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
