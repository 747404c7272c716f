// Package enrich runs the categorize, describe and anomaly operations over
// catalog products. Each operation tries the text-generation backend once
// and falls back to a deterministic, backend-free strategy.
package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/internal/textgen"
)

const progressEvery = 10

// Options tunes the orchestrator.
type Options struct {
	Categories    []string
	FlagThreshold int
	BatchLimit    int
	MaxTokens     int
	Temperature   float64
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Categories:    cfg.Enrich.Categories,
		FlagThreshold: cfg.Enrich.FlagThreshold,
		BatchLimit:    cfg.Enrich.BatchLimit,
		MaxTokens:     cfg.TextGen.MaxTokens,
		Temperature:   cfg.TextGen.Temperature,
	}
}

func (o Options) withDefaults() Options {
	if len(o.Categories) == 0 {
		o.Categories = config.DefaultCategories
	}
	if o.FlagThreshold <= 0 {
		o.FlagThreshold = 7
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = 50
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1000
	}
	return o
}

// ItemResult is the outcome of one product passing through one operation.
// Exactly one of the result pointers is set.
type ItemResult struct {
	ProductID      int64                       `json:"product_id"`
	Operation      model.Operation             `json:"operation"`
	Strategy       string                      `json:"strategy"`
	Categorization *model.CategorizationResult `json:"categorization,omitempty"`
	Description    *model.DescriptionResult    `json:"description,omitempty"`
	Anomaly        *model.AnomalyResult        `json:"anomaly,omitempty"`
	Flagged        bool                        `json:"flagged"`
}

// Orchestrator runs enrichment operations against the catalog.
type Orchestrator struct {
	store store.Store
	gen   textgen.Generator
	audit *Auditor
	opts  Options
}

// New creates an Orchestrator. A nil generator runs every operation on the
// fallback strategy.
func New(st store.Store, gen textgen.Generator, audit *Auditor, opts Options) *Orchestrator {
	if audit == nil {
		audit = NewAuditor(nil, nil)
	}
	return &Orchestrator{store: st, gen: gen, audit: audit, opts: opts.withDefaults()}
}

// Run processes up to limit pending products for op in one transaction.
// Item failures are counted and skipped. Persistence failures and context
// cancellation abort the batch, roll back its writes and are returned along
// with the counters accumulated so far.
func (o *Orchestrator) Run(ctx context.Context, op model.Operation, limit int, force bool) (*model.BatchResult, error) {
	if !op.Valid() {
		return nil, eris.Errorf("enrich: unknown operation %q", op)
	}
	if limit <= 0 {
		limit = o.opts.BatchLimit
	}

	start := time.Now()
	res := &model.BatchResult{Operation: string(op), Status: model.BatchStatusSuccess}
	log := zap.L().With(zap.String("operation", string(op)))

	err := o.store.InTx(ctx, func(tx store.Tx) error {
		products, err := tx.PendingProducts(ctx, op, limit, force)
		if err != nil {
			return eris.Wrapf(err, "enrich: select pending %s", op)
		}
		log.Info("enrich: batch started", zap.Int("pending", len(products)), zap.Bool("force", force))

		for i := range products {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "enrich: batch interrupted")
			}

			item, err := o.process(ctx, tx, op, &products[i], force)
			res.Processed++
			switch {
			case err == nil:
				res.Succeeded++
				if item.Flagged {
					res.Flagged++
				}
			case model.IsPersistence(err):
				return err
			default:
				res.Failed++
				log.Warn("enrich: item failed",
					zap.Int64("product_id", products[i].ID),
					zap.Error(err),
				)
			}

			if res.Processed%progressEvery == 0 {
				log.Info("enrich: progress",
					zap.Int("processed", res.Processed),
					zap.Int("total", len(products)),
				)
			}
		}
		return nil
	})

	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Fail(err.Error())
		return res, err
	}
	log.Info("enrich: batch complete",
		zap.Int("processed", res.Processed),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int64("duration_ms", res.DurationMs),
	)
	return res, nil
}

// Reprocess forces op on a single product. The item outcome is returned as
// an error, but the audit entry it produced is still committed.
func (o *Orchestrator) Reprocess(ctx context.Context, op model.Operation, productID int64) (*ItemResult, error) {
	if !op.Valid() {
		return nil, eris.Errorf("enrich: unknown operation %q", op)
	}

	var (
		item    *ItemResult
		itemErr error
	)
	err := o.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		item, itemErr = o.process(ctx, tx, op, p, true)
		if model.IsPersistence(itemErr) {
			return itemErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, itemErr
}

// Recategorize reruns categorization for one product.
func (o *Orchestrator) Recategorize(ctx context.Context, productID int64) (*ItemResult, error) {
	return o.Reprocess(ctx, model.OpCategorize, productID)
}

// Regenerate rewrites the description of one product.
func (o *Orchestrator) Regenerate(ctx context.Context, productID int64) (*ItemResult, error) {
	return o.Reprocess(ctx, model.OpDescribe, productID)
}

// process runs op for one product inside a savepoint and audits the
// attempt. A panic is recovered at the item boundary and reported as an
// error.
func (o *Orchestrator) process(ctx context.Context, tx store.Tx, op model.Operation, p *model.Product, force bool) (*ItemResult, error) {
	start := time.Now()
	at := Attempt{ProductID: p.ID, Operation: op, Strategy: o.primaryStrategy()}

	var item *ItemResult
	err := tx.Savepoint(ctx, func(sp store.Tx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = eris.Errorf("enrich: panic on product %d: %v", p.ID, r)
			}
		}()
		if force {
			if err := sp.ClearEnrichment(ctx, op, p.ID); err != nil {
				return err
			}
		}
		item, err = o.apply(ctx, sp, op, p, &at)
		return err
	})

	at.Duration = time.Since(start)
	at.Success = err == nil
	if err != nil {
		at.Err = err
		item = nil
	}
	o.audit.Record(ctx, tx, at)
	return item, err
}

func (o *Orchestrator) apply(ctx context.Context, tx store.Tx, op model.Operation, p *model.Product, at *Attempt) (*ItemResult, error) {
	item := &ItemResult{ProductID: p.ID, Operation: op}

	e, err := tx.GetEnrichment(ctx, p.ID)
	switch {
	case errors.Is(err, model.ErrNotFound) && op == model.OpCategorize:
		e = &model.Enrichment{ProductID: p.ID, Tags: []string{}}
	case errors.Is(err, model.ErrNotFound):
		return nil, eris.Errorf("enrich: product %d is not categorized", p.ID)
	case err != nil:
		return nil, err
	}

	switch op {
	case model.OpCategorize:
		res := o.categorize(ctx, p, at)
		e.Category = res.Category
		e.Confidence = res.Confidence
		e.Reasoning = res.Reasoning
		e.Strategy = res.Strategy
		item.Categorization = &res
	case model.OpDescribe:
		res := o.describe(ctx, p, at)
		e.Description = &res.Description
		e.Tags = res.Tags
		e.SEOScore = &res.SEOScore
		e.Strategy = res.Strategy
		item.Description = &res
	case model.OpAnomaly:
		res := o.detectAnomaly(ctx, p, e.Category, at)
		e.RiskScore = &res.RiskScore
		e.Anomalies = res.Anomalies
		e.Recommendations = res.Recommendations
		e.Flagged = res.RiskScore >= o.opts.FlagThreshold
		e.Strategy = res.Strategy
		item.Anomaly = &res
		item.Flagged = e.Flagged
	}

	if err := tx.SaveEnrichment(ctx, e); err != nil {
		return nil, err
	}
	item.Strategy = at.Strategy
	return item, nil
}

func (o *Orchestrator) categorize(ctx context.Context, p *model.Product, at *Attempt) model.CategorizationResult {
	br := o.call(ctx, textgen.Prompt{
		System: categorizeSystem(o.opts.Categories),
		Text:   categorizeText(p),
	}, at)
	if !br.OK {
		return fallbackCategorize(p)
	}
	res, perr := parseCategorization(br.Text, o.opts.Categories)
	if perr != nil {
		at.Err = perr
	}
	res.Strategy = at.Strategy
	return res
}

func (o *Orchestrator) describe(ctx context.Context, p *model.Product, at *Attempt) model.DescriptionResult {
	br := o.call(ctx, textgen.Prompt{
		System: describeSystemPrompt,
		Text:   describeText(p),
	}, at)
	if !br.OK {
		return fallbackDescribe(p)
	}
	res, perr := parseDescription(br.Text)
	if perr != nil {
		at.Err = perr
		at.Strategy = model.StrategyFallback
		return fallbackDescribe(p)
	}
	res.Strategy = at.Strategy
	return res
}

func (o *Orchestrator) detectAnomaly(ctx context.Context, p *model.Product, category string, at *Attempt) model.AnomalyResult {
	br := o.call(ctx, textgen.Prompt{
		System: anomalySystemPrompt,
		Text:   anomalyText(p, category),
	}, at)
	if !br.OK {
		return fallbackAnomaly(p)
	}
	res := parseAnomaly(br.Text)
	res.Strategy = at.Strategy
	return res
}

// backendResult is the outcome of one backend attempt. OK is false when the
// backend is absent or the call failed; Err then explains why.
type backendResult struct {
	Text  string
	Usage textgen.Usage
	Err   error
	OK    bool
}

// call makes exactly one backend attempt and records its accounting and
// chosen strategy on at.
func (o *Orchestrator) call(ctx context.Context, prompt textgen.Prompt, at *Attempt) backendResult {
	if o.gen == nil {
		at.Strategy = model.StrategyFallback
		return backendResult{}
	}
	prompt.MaxTokens = o.opts.MaxTokens
	prompt.Temperature = o.opts.Temperature

	c, err := o.gen.Complete(ctx, prompt)
	if err != nil {
		zap.L().Warn("enrich: backend unavailable, using fallback",
			zap.Int64("product_id", at.ProductID),
			zap.String("operation", string(at.Operation)),
			zap.Error(err),
		)
		at.Strategy = model.StrategyFallback
		at.Err = err
		return backendResult{Err: err}
	}

	at.Provider = c.Provider
	at.Model = c.Model
	at.Usage = c.Usage
	if c.Model != "" {
		at.Strategy = c.Model
	}
	return backendResult{Text: c.Text, Usage: c.Usage, OK: true}
}

func (o *Orchestrator) primaryStrategy() string {
	if o.gen == nil {
		return model.StrategyFallback
	}
	return o.gen.Model()
}
