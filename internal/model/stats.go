package model

// CategoryCount is one row of the category distribution.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// TagCount is one row of the tag frequency list.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// ConfidenceBuckets partitions categorized products by confidence:
// high is >= 0.8, medium is [0.5, 0.8) and low is < 0.5.
type ConfidenceBuckets struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Coverage holds enrichment coverage ratios in [0,1].
type Coverage struct {
	Enrichment  float64 `json:"enrichment"`
	Description float64 `json:"description"`
	Anomaly     float64 `json:"anomaly"`
}

// AuditSummary aggregates the audit log.
type AuditSummary struct {
	Total        int     `json:"total"`
	Succeeded    int     `json:"succeeded"`
	Fallback     int     `json:"fallback"`
	SuccessRate  float64 `json:"success_rate"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// Stats is the catalog summary consumed by reporting.
type Stats struct {
	Sources     int               `json:"sources"`
	Products    int               `json:"products"`
	Enriched    int               `json:"enriched"`
	Described   int               `json:"described"`
	Scored      int               `json:"scored"`
	Flagged     int               `json:"flagged"`
	Categories  []CategoryCount   `json:"categories"`
	Confidence  ConfidenceBuckets `json:"confidence"`
	TopTags     []TagCount        `json:"top_tags"`
	Coverage    Coverage          `json:"coverage"`
	Audit       AuditSummary      `json:"audit"`
	PriceChecks int               `json:"price_records"`
}
