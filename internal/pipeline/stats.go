package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// DefaultTopTags is the number of tags reported when none is configured.
const DefaultTopTags = 10

// Stats summarizes the catalog: totals, category distribution, confidence
// buckets, the topN most frequent tags, coverage and audit outcomes.
func Stats(ctx context.Context, cat store.Catalog, topN int) (*model.Stats, error) {
	if topN <= 0 {
		topN = DefaultTopTags
	}

	counts, err := cat.Counts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "stats: counts")
	}
	categories, err := cat.CategoryCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "stats: categories")
	}
	buckets, err := cat.ConfidenceBuckets(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "stats: confidence")
	}
	tagLists, err := cat.ListTags(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "stats: tags")
	}
	audit, err := cat.AuditSummary(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "stats: audit")
	}

	if categories == nil {
		categories = []model.CategoryCount{}
	}
	return &model.Stats{
		Sources:     counts.Sources,
		Products:    counts.Products,
		Enriched:    counts.Enriched,
		Described:   counts.Described,
		Scored:      counts.Scored,
		Flagged:     counts.Flagged,
		PriceChecks: counts.PriceRecords,
		Categories:  categories,
		Confidence:  buckets,
		TopTags:     TopTags(tagLists, topN),
		Coverage: model.Coverage{
			Enrichment:  ratio(counts.Enriched, counts.Products),
			Description: ratio(counts.Described, counts.Enriched),
			Anomaly:     ratio(counts.Scored, counts.Enriched),
		},
		Audit: audit,
	}, nil
}

// TopTags counts tag occurrences and returns the n most frequent, ties
// broken alphabetically.
func TopTags(tagLists [][]string, n int) []model.TagCount {
	freq := make(map[string]int)
	for _, tags := range tagLists {
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t != "" {
				freq[t]++
			}
		}
	}

	out := make([]model.TagCount, 0, len(freq))
	for tag, c := range freq {
		out = append(out, model.TagCount{Tag: tag, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Bucket classifies a confidence value the same way ConfidenceBuckets does.
func Bucket(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "high"
	case confidence >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// ProductDetail returns a product with its enrichment, if any, and its full
// price history.
func ProductDetail(ctx context.Context, cat store.Catalog, id int64) (*model.ProductDetail, error) {
	p, err := cat.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &model.ProductDetail{EnrichedProduct: model.EnrichedProduct{Product: *p}}

	e, err := cat.GetEnrichment(ctx, id)
	switch {
	case err == nil:
		detail.Enrichment = e
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	history, err := cat.ListPriceHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []model.PriceRecord{}
	}
	detail.PriceHistory = history
	return detail, nil
}

// FormatStats renders a human-readable catalog summary.
func FormatStats(s *model.Stats) string {
	var b strings.Builder

	b.WriteString("# Catalog Statistics\n\n")
	b.WriteString("## Totals\n")
	fmt.Fprintf(&b, "- Sources: %d\n", s.Sources)
	fmt.Fprintf(&b, "- Products: %d\n", s.Products)
	fmt.Fprintf(&b, "- Price records: %d\n", s.PriceChecks)
	fmt.Fprintf(&b, "- Enriched: %d (%.1f%%)\n", s.Enriched, s.Coverage.Enrichment*100)
	fmt.Fprintf(&b, "- Described: %d (%.1f%% of enriched)\n", s.Described, s.Coverage.Description*100)
	fmt.Fprintf(&b, "- Scored: %d (%.1f%% of enriched)\n", s.Scored, s.Coverage.Anomaly*100)
	fmt.Fprintf(&b, "- Flagged: %d\n\n", s.Flagged)

	b.WriteString("## Categories\n")
	if len(s.Categories) == 0 {
		b.WriteString("No categorized products.\n")
	}
	for _, c := range s.Categories {
		fmt.Fprintf(&b, "- %s: %d\n", c.Category, c.Count)
	}
	b.WriteString("\n")

	b.WriteString("## Confidence\n")
	fmt.Fprintf(&b, "- High (>= 0.8): %d\n", s.Confidence.High)
	fmt.Fprintf(&b, "- Medium (0.5-0.8): %d\n", s.Confidence.Medium)
	fmt.Fprintf(&b, "- Low (< 0.5): %d\n\n", s.Confidence.Low)

	b.WriteString("## Top Tags\n")
	if len(s.TopTags) == 0 {
		b.WriteString("No tags.\n")
	}
	for _, t := range s.TopTags {
		fmt.Fprintf(&b, "- %s: %d\n", t.Tag, t.Count)
	}
	b.WriteString("\n")

	b.WriteString("## Audit\n")
	fmt.Fprintf(&b, "- Attempts: %d\n", s.Audit.Total)
	fmt.Fprintf(&b, "- Success rate: %.1f%%\n", s.Audit.SuccessRate*100)
	fmt.Fprintf(&b, "- Fallback results: %d\n", s.Audit.Fallback)
	fmt.Fprintf(&b, "- Estimated cost: $%.4f\n", s.Audit.TotalCostUSD)

	return b.String()
}

// FormatRun renders a pipeline run summary.
func FormatRun(run *model.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Pipeline Run %s\n", run.ID)
	fmt.Fprintf(&b, "Status: %s (%s, %dms)\n", run.Status.Outcome(), run.Status, run.DurationMs)
	if run.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", run.Error)
	}
	b.WriteString("\n## Phases\n")
	for _, p := range run.Phases {
		fmt.Fprintf(&b, "- %s: %s (%dms)\n", p.Name, p.Status, p.Duration)
		if p.Batch != nil {
			fmt.Fprintf(&b, "  processed=%d succeeded=%d failed=%d\n",
				p.Batch.Processed, p.Batch.Succeeded, p.Batch.Failed)
		}
		if p.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", p.Error)
		}
	}

	c := run.Counters
	b.WriteString("\n## Counters\n")
	fmt.Fprintf(&b, "- Scraped: %d\n", c.Scraped)
	fmt.Fprintf(&b, "- Rejected: %d\n", c.Rejected)
	fmt.Fprintf(&b, "- Categorized: %d\n", c.Categorized)
	fmt.Fprintf(&b, "- Described: %d\n", c.Described)
	fmt.Fprintf(&b, "- Scored: %d\n", c.Scored)
	fmt.Fprintf(&b, "- Flagged: %d\n", c.Flagged)
	fmt.Fprintf(&b, "- Errors: %d\n", c.Errors)
	return b.String()
}
