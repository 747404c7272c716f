// Package ingest deduplicates normalized scraper records and upserts them
// into the catalog, keeping an append-only price history.
package ingest

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/metrics"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// Outcome reports what an upsert did.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Upserter turns records into catalog products.
type Upserter struct {
	defaultCurrency string
	metrics         *metrics.Metrics
}

// NewUpserter creates an Upserter. defaultCurrency applies when a record
// carries no recognizable currency; it defaults to USD.
func NewUpserter(defaultCurrency string, m *metrics.Metrics) *Upserter {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Upserter{defaultCurrency: strings.ToUpper(defaultCurrency), metrics: m}
}

// Ingest upserts one record for src. A record that fails validation returns
// a *model.ValidationError and writes nothing.
func (u *Upserter) Ingest(ctx context.Context, tx store.Catalog, rec model.Record, src *model.Source) (Outcome, *model.Product, error) {
	p, err := u.normalize(rec, src)
	if err != nil {
		return OutcomeRejected, nil, err
	}

	existing, err := tx.FindProduct(ctx, src.ID, p.SourceURL)
	switch {
	case errors.Is(err, model.ErrNotFound):
		if err := tx.InsertProduct(ctx, p); err != nil {
			return OutcomeFailed, nil, err
		}
		if p.Price != nil {
			if err := u.appendPrice(ctx, tx, p); err != nil {
				return OutcomeFailed, nil, err
			}
		}
		return OutcomeCreated, p, nil
	case err != nil:
		return OutcomeFailed, nil, err
	}

	changed := priceChanged(existing.Price, p.Price)
	existing.Title = p.Title
	existing.Price = p.Price
	existing.Currency = p.Currency
	existing.ImageURL = p.ImageURL
	existing.Description = p.Description
	existing.Availability = p.Availability
	existing.Rating = p.Rating
	existing.ReviewCount = p.ReviewCount
	if p.ExternalID != "" {
		existing.ExternalID = p.ExternalID
	}
	if err := tx.UpdateProduct(ctx, existing); err != nil {
		return OutcomeFailed, nil, err
	}
	if changed {
		if err := u.appendPrice(ctx, tx, existing); err != nil {
			return OutcomeFailed, nil, err
		}
	}
	return OutcomeUpdated, existing, nil
}

// IngestBatch upserts records for src in one transaction. Each record runs
// in its own savepoint; rejected and failed records are counted and skipped.
// A persistence error from a savepoint or the transaction aborts the batch
// and is returned.
func (u *Upserter) IngestBatch(ctx context.Context, st store.Store, records []model.Record, src *model.Source) (*model.BatchResult, error) {
	start := time.Now()
	res := &model.BatchResult{Operation: "ingest", Status: model.BatchStatusSuccess}
	log := zap.L().With(zap.String("source", src.Name))

	err := st.InTx(ctx, func(tx store.Tx) error {
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "ingest: batch interrupted")
			}

			var outcome Outcome
			err := tx.Savepoint(ctx, func(sp store.Tx) error {
				var err error
				outcome, _, err = u.Ingest(ctx, sp, rec, src)
				return err
			})
			res.Processed++
			if outcome == "" {
				u.metrics.RecordIngest(string(OutcomeFailed))
			} else {
				u.metrics.RecordIngest(string(outcome))
			}

			switch {
			case err == nil:
				res.Succeeded++
				if outcome == OutcomeCreated {
					res.Created++
				} else {
					res.Updated++
				}
			case model.IsValidation(err):
				res.Rejected++
				log.Debug("ingest: record rejected", zap.Int("index", i), zap.Error(err))
			case model.IsPersistence(err):
				// A broken savepoint leaves the transaction unusable.
				return err
			default:
				res.Failed++
				log.Warn("ingest: record failed",
					zap.Int("index", i),
					zap.String("source_url", rec.SourceURL.String()),
					zap.Error(err),
				)
			}
		}
		if res.Succeeded > 0 {
			return tx.TouchSource(ctx, src.ID, time.Now().UTC())
		}
		return nil
	})

	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Fail(err.Error())
		return res, err
	}
	log.Info("ingest: batch complete",
		zap.Int("processed", res.Processed),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("rejected", res.Rejected),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// ResolveSource returns the source registered for baseURL, creating an
// enabled crawl source on first sighting. name defaults to the host.
func ResolveSource(ctx context.Context, cat store.Catalog, baseURL, name string) (*model.Source, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, &model.ValidationError{Field: "base_url", Reason: "is required"}
	}
	src, err := cat.GetSourceByBaseURL(ctx, baseURL)
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	if name == "" {
		name = baseURL
		if u, perr := url.Parse(baseURL); perr == nil && u.Host != "" {
			name = u.Host
		}
	}
	src = &model.Source{Name: name, BaseURL: baseURL, Kind: model.SourceKindCrawl, Enabled: true}
	if err := cat.CreateSource(ctx, src); err != nil {
		return nil, err
	}
	zap.L().Info("ingest: registered new source", zap.String("name", name), zap.String("base_url", baseURL))
	return src, nil
}

func (u *Upserter) normalize(rec model.Record, src *model.Source) (*model.Product, error) {
	title := CleanText(rec.Title.String())
	if title == "" {
		return nil, &model.ValidationError{Field: "title", Reason: "is required"}
	}
	sourceURL, err := NormalizeURL(rec.SourceURL.String(), src.BaseURL)
	if err != nil {
		return nil, &model.ValidationError{Field: "source_url", Reason: "is not a valid URL"}
	}
	if sourceURL == "" {
		return nil, &model.ValidationError{Field: "source_url", Reason: "is required"}
	}
	imageURL, err := NormalizeURL(rec.ImageURL.String(), src.BaseURL)
	if err != nil {
		imageURL = ""
	}

	priceText := rec.PriceText.String()
	return &model.Product{
		SourceID:     src.ID,
		ExternalID:   strings.TrimSpace(rec.ExternalID.String()),
		Title:        title,
		Price:        ParsePrice(priceText),
		Currency:     InferCurrency(priceText, rec.CurrencySymbol.String(), u.defaultCurrency),
		ImageURL:     imageURL,
		SourceURL:    sourceURL,
		Description:  CleanText(rec.Description.String()),
		Availability: CleanText(rec.Availability.String()),
		Rating:       ParseRating(rec.Rating.String()),
		ReviewCount:  ParseCount(rec.ReviewCount.String()),
	}, nil
}

func (u *Upserter) appendPrice(ctx context.Context, tx store.Catalog, p *model.Product) error {
	rec := &model.PriceRecord{ProductID: p.ID, Price: *p.Price, Currency: p.Currency}
	if err := tx.AppendPrice(ctx, rec); err != nil {
		return err
	}
	u.metrics.RecordPriceChange()
	return nil
}

// priceChanged reports whether next should be written to history. A nil
// next price never is.
func priceChanged(prev, next *float64) bool {
	if next == nil {
		return false
	}
	return prev == nil || *prev != *next
}
