package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// SourceKind describes how a source is harvested upstream.
type SourceKind string

const (
	SourceKindCrawl   SourceKind = "crawl"
	SourceKindBrowser SourceKind = "browser"
)

// Source is an origin site that products are harvested from.
type Source struct {
	ID             int64      `json:"id" yaml:"-"`
	Name           string     `json:"name" yaml:"name"`
	BaseURL        string     `json:"base_url" yaml:"base_url"`
	Kind           SourceKind `json:"kind" yaml:"kind"`
	Enabled        bool       `json:"enabled" yaml:"enabled"`
	LastIngestedAt *time.Time `json:"last_ingested_at,omitempty" yaml:"-"`
	CreatedAt      time.Time  `json:"created_at" yaml:"-"`
}

// Product is a catalog entry, unique per (source, source URL).
type Product struct {
	ID           int64     `json:"id"`
	SourceID     int64     `json:"source_id"`
	ExternalID   string    `json:"external_id,omitempty"`
	Title        string    `json:"title"`
	Price        *float64  `json:"price,omitempty"`
	Currency     string    `json:"currency"`
	ImageURL     string    `json:"image_url,omitempty"`
	SourceURL    string    `json:"source_url"`
	Description  string    `json:"description,omitempty"`
	Availability string    `json:"availability,omitempty"`
	Rating       *float64  `json:"rating,omitempty"`
	ReviewCount  *int      `json:"review_count,omitempty"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PriceRecord is one point in a product's append-only price history.
type PriceRecord struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Enrichment is the derived data attached to a product. At most one exists
// per product and it is mutated in place.
type Enrichment struct {
	ProductID       int64     `json:"product_id"`
	Category        string    `json:"category"`
	Confidence      float64   `json:"confidence"`
	Reasoning       string    `json:"reasoning,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Tags            []string  `json:"tags"`
	SEOScore        *int      `json:"seo_score,omitempty"`
	RiskScore       *int      `json:"risk_score,omitempty"`
	Anomalies       []string  `json:"anomalies,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	Flagged         bool      `json:"flagged"`
	Strategy        string    `json:"strategy"`
	GeneratedAt     time.Time `json:"generated_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EnrichedProduct pairs a product with its enrichment, if any.
type EnrichedProduct struct {
	Product
	Enrichment *Enrichment `json:"enrichment,omitempty"`
}

// ProductDetail is a product with enrichment and full price history.
type ProductDetail struct {
	EnrichedProduct
	PriceHistory []PriceRecord `json:"price_history"`
}

// ProductFilter narrows catalog queries. Zero values mean "no filter".
type ProductFilter struct {
	Category      string   `json:"category,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	MaxConfidence *float64 `json:"max_confidence,omitempty"`
	SourceID      int64    `json:"source_id,omitempty"`
	FlaggedOnly   bool     `json:"flagged_only,omitempty"`
	EnrichedOnly  bool     `json:"enriched_only,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// Record is the normalized shape produced by an upstream scraper.
type Record struct {
	ExternalID     FlexString `json:"external_id,omitempty"`
	Title          FlexString `json:"title"`
	PriceText      FlexString `json:"price_text,omitempty"`
	CurrencySymbol FlexString `json:"currency_symbol,omitempty"`
	ImageURL       FlexString `json:"image_url,omitempty"`
	SourceURL      FlexString `json:"source_url"`
	Description    FlexString `json:"description,omitempty"`
	Availability   FlexString `json:"availability,omitempty"`
	Rating         FlexString `json:"rating,omitempty"`
	ReviewCount    FlexString `json:"review_count,omitempty"`
}

// RecordColumns lists the tabular header names that map onto Record fields.
var RecordColumns = []string{
	"external_id", "title", "price_text", "currency_symbol", "image_url",
	"source_url", "description", "availability", "rating", "review_count",
}

// RecordFromRow builds a Record from a header-keyed row. The legacy "price"
// and "url" column names are accepted as aliases.
func RecordFromRow(row map[string]string) Record {
	r := Record{
		ExternalID:     FlexString(row["external_id"]),
		Title:          FlexString(row["title"]),
		PriceText:      FlexString(row["price_text"]),
		CurrencySymbol: FlexString(row["currency_symbol"]),
		ImageURL:       FlexString(row["image_url"]),
		SourceURL:      FlexString(row["source_url"]),
		Description:    FlexString(row["description"]),
		Availability:   FlexString(row["availability"]),
		Rating:         FlexString(row["rating"]),
		ReviewCount:    FlexString(row["review_count"]),
	}
	if r.PriceText == "" {
		r.PriceText = FlexString(row["price"])
	}
	if r.SourceURL == "" {
		r.SourceURL = FlexString(row["url"])
	}
	return r
}

// FlexString decodes from either a JSON string or a JSON number, so
// scrapers may emit "£51.77" or 51.77 for the same field.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the underlying text.
func (f FlexString) String() string { return string(f) }
