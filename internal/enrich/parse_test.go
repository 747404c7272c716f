package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/model"
)

func TestParseCategorization(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		category string
		conf     float64
		parseErr bool
	}{
		{"exact", "Books", "Books", 0.85, false},
		{"case insensitive", "  electronics\n", "Electronics", 0.85, false},
		{"embedded", "This belongs in Home & Garden.", "Home & Garden", 0.85, false},
		{"first match wins", "Books or maybe Electronics", "Books", 0.85, false},
		{"no match", "Kitchenware", "Other", 0.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseCategorization(tt.text, config.DefaultCategories)
			assert.Equal(t, tt.category, res.Category)
			assert.InDelta(t, tt.conf, res.Confidence, 1e-9)
			assert.NotEmpty(t, res.Reasoning)
			if tt.parseErr {
				var pe *model.ParseError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, model.OpCategorize, pe.Operation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseDescription(t *testing.T) {
	res, err := parseDescription("\n  Stunning wireless headphones with deep bass and wireless charging.  \nSecond paragraph ignored")
	require.NoError(t, err)
	assert.Equal(t, "Stunning wireless headphones with deep bass and wireless charging.", res.Description)
	assert.Equal(t, []string{"stunning", "wireless", "headphones", "deep", "bass"}, res.Tags)
	assert.Equal(t, 8, res.SEOScore)

	_, err = parseDescription(" \n\t\n")
	var pe *model.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestExtractTags(t *testing.T) {
	assert.Equal(t, []string{"great", "pens"}, extractTags("A pen with great ink, for (great) PENS!"))
	assert.Empty(t, extractTags("the and of"))
	assert.Len(t, extractTags("alpha bravo charlie delta echoes foxtrot golf"), 5)
}

func TestParseAnomaly(t *testing.T) {
	tests := []struct {
		text string
		risk int
	}{
		{"Price is unusually HIGH for this category", 8},
		{"Some risk of duplicate listing", 8},
		{"Listing looks safe", 2},
		{"Low concern overall", 2},
		{"Nothing notable", 5},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := parseAnomaly(tt.text)
			assert.Equal(t, tt.risk, res.RiskScore)
			assert.NotEmpty(t, res.Anomalies)
			assert.NotEmpty(t, res.Recommendations)
		})
	}

	res := parseAnomaly("one\n\ntwo\nthree\nfour\nfive\nsix")
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, res.Anomalies)
}
