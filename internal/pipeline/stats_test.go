package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

func ptr[T any](v T) *T { return &v }

// seedCatalog stores three products from one source with enrichments at
// high, medium and low confidence. The third has no description.
func seedCatalog(t *testing.T, st store.Store) []model.Product {
	t.Helper()
	ctx := context.Background()
	src := &model.Source{Name: "books_spider", BaseURL: "http://books.toscrape.com", Kind: model.SourceKindCrawl, Enabled: true}
	require.NoError(t, st.CreateSource(ctx, src))

	products := []model.Product{
		{Title: "Sapiens", Price: ptr(54.23), SourceURL: "http://books.toscrape.com/sapiens"},
		{Title: "USB Laptop Charger", Price: ptr(19.99), Rating: ptr(4.5), SourceURL: "http://books.toscrape.com/charger"},
		{Title: "Mystery Item", SourceURL: "http://books.toscrape.com/mystery"},
		{Title: "Unprocessed", Price: ptr(3.5), SourceURL: "http://books.toscrape.com/unprocessed"},
	}
	enrichments := []model.Enrichment{
		{Category: "Books", Confidence: 0.9, Description: ptr("A brief history of humankind."), Tags: []string{"history", "bestseller"}, SEOScore: ptr(8), RiskScore: ptr(2), Strategy: "claude-haiku-4-5-20251001"},
		{Category: "Electronics", Confidence: 0.75, Description: ptr("Charges laptops."), Tags: []string{"usb", "history"}, RiskScore: ptr(9), Flagged: true, Strategy: model.StrategyFallback},
		{Category: "Other", Confidence: 0.3, Strategy: model.StrategyFallback},
	}
	for i := range products {
		products[i].SourceID = src.ID
		products[i].Currency = "GBP"
		require.NoError(t, st.InsertProduct(ctx, &products[i]))
		if products[i].Price != nil {
			require.NoError(t, st.AppendPrice(ctx, &model.PriceRecord{
				ProductID: products[i].ID, Price: *products[i].Price, Currency: "GBP",
			}))
		}
		if i < len(enrichments) {
			enrichments[i].ProductID = products[i].ID
			require.NoError(t, st.SaveEnrichment(ctx, &enrichments[i]))
		}
	}

	audit := []model.AuditEntry{
		{ProductID: products[0].ID, Operation: model.OpCategorize, Strategy: "claude-haiku-4-5-20251001", Success: true, CostUSD: 0.0015},
		{ProductID: products[1].ID, Operation: model.OpCategorize, Strategy: model.StrategyFallback, Success: true},
		{ProductID: products[2].ID, Operation: model.OpCategorize, Strategy: model.StrategyFallback, Success: false, Error: "panic"},
		{ProductID: products[2].ID, Operation: model.OpCategorize, Strategy: model.StrategyFallback, Success: true},
	}
	for i := range audit {
		require.NoError(t, st.AppendAudit(ctx, &audit[i]))
	}
	return products
}

func TestStats(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st)

	s, err := Stats(context.Background(), st, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Sources)
	assert.Equal(t, 4, s.Products)
	assert.Equal(t, 3, s.Enriched)
	assert.Equal(t, 2, s.Described)
	assert.Equal(t, 2, s.Scored)
	assert.Equal(t, 1, s.Flagged)
	assert.Equal(t, 3, s.PriceChecks)

	assert.ElementsMatch(t, []model.CategoryCount{
		{Category: "Books", Count: 1},
		{Category: "Electronics", Count: 1},
		{Category: "Other", Count: 1},
	}, s.Categories)
	assert.Equal(t, model.ConfidenceBuckets{High: 1, Medium: 1, Low: 1}, s.Confidence)

	require.NotEmpty(t, s.TopTags)
	assert.Equal(t, model.TagCount{Tag: "history", Count: 2}, s.TopTags[0])
	assert.Len(t, s.TopTags, 3)

	assert.InDelta(t, 0.75, s.Coverage.Enrichment, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.Coverage.Description, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.Coverage.Anomaly, 1e-9)

	assert.Equal(t, 4, s.Audit.Total)
	assert.Equal(t, 3, s.Audit.Succeeded)
	assert.InDelta(t, 0.75, s.Audit.SuccessRate, 1e-9)
	assert.InDelta(t, 0.0015, s.Audit.TotalCostUSD, 1e-9)
}

func TestStats_EmptyCatalog(t *testing.T) {
	s, err := Stats(context.Background(), newTestStore(t), 5)
	require.NoError(t, err)
	assert.Zero(t, s.Products)
	assert.Empty(t, s.Categories)
	assert.NotNil(t, s.Categories)
	assert.Empty(t, s.TopTags)
	assert.Zero(t, s.Coverage.Enrichment)
	assert.Zero(t, s.Audit.SuccessRate)
}

func TestTopTags(t *testing.T) {
	lists := [][]string{
		{"value", "quality", " "},
		{"quality", "premium"},
		{"quality", "value", "audio"},
	}
	assert.Equal(t, []model.TagCount{
		{Tag: "quality", Count: 3},
		{Tag: "value", Count: 2},
		{Tag: "audio", Count: 1},
	}, TopTags(lists, 3))
	assert.Len(t, TopTags(lists, 0), 4)
	assert.Empty(t, TopTags(nil, 10))
}

func TestBucket(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{1.0, "high"},
		{0.8, "high"},
		{0.79, "medium"},
		{0.5, "medium"},
		{0.49, "low"},
		{0, "low"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bucket(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestProductDetail(t *testing.T) {
	st := newTestStore(t)
	products := seedCatalog(t, st)
	ctx := context.Background()

	d, err := ProductDetail(ctx, st, products[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Sapiens", d.Title)
	require.NotNil(t, d.Enrichment)
	assert.Equal(t, "Books", d.Enrichment.Category)
	require.Len(t, d.PriceHistory, 1)
	assert.InDelta(t, 54.23, d.PriceHistory[0].Price, 1e-9)

	d, err = ProductDetail(ctx, st, products[3].ID)
	require.NoError(t, err)
	assert.Nil(t, d.Enrichment)

	d, err = ProductDetail(ctx, st, products[2].ID)
	require.NoError(t, err)
	assert.NotNil(t, d.PriceHistory)
	assert.Empty(t, d.PriceHistory)

	_, err = ProductDetail(ctx, st, 9999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFormatStats(t *testing.T) {
	out := FormatStats(&model.Stats{
		Products:   10,
		Enriched:   5,
		Categories: []model.CategoryCount{{Category: "Books", Count: 5}},
		Confidence: model.ConfidenceBuckets{High: 2, Medium: 3},
		Coverage:   model.Coverage{Enrichment: 0.5},
		Audit:      model.AuditSummary{Total: 5, SuccessRate: 1},
	})
	assert.Contains(t, out, "- Enriched: 5 (50.0%)")
	assert.Contains(t, out, "- Books: 5")
	assert.Contains(t, out, "- Medium (0.5-0.8): 3")
	assert.Contains(t, out, "No tags.")
	assert.Contains(t, out, "- Success rate: 100.0%")
}
