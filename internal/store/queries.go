package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/model"
)

// dbtx abstracts over database/sql and pgx so the catalog queries are
// written once. Queries use ? placeholders; drivers rebind as needed.
type dbtx interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rowIter, error)
	queryRow(ctx context.Context, query string, args ...any) scannable
	noRows(err error) bool
}

type scannable interface {
	Scan(dest ...any) error
}

type rowIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// queries implements Catalog plus run tracking on top of a dbtx.
type queries struct {
	db   dbtx
	name string
}

// txQueries is a queries bound to an open transaction.
type txQueries struct {
	*queries
	seq *atomic.Int64
}

func (t *txQueries) Savepoint(ctx context.Context, fn func(tx Tx) error) error {
	name := fmt.Sprintf("sp_%d", t.seq.Add(1))
	if _, err := t.db.exec(ctx, "SAVEPOINT "+name); err != nil {
		return &model.PersistenceError{Op: "savepoint", Err: err}
	}
	if err := fn(t); err != nil {
		if _, rbErr := t.db.exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return &model.PersistenceError{Op: "rollback savepoint", Err: rbErr}
		}
		// Release after rollback so the savepoint stack does not grow.
		if _, relErr := t.db.exec(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return &model.PersistenceError{Op: "release savepoint", Err: relErr}
		}
		return err
	}
	if _, err := t.db.exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return &model.PersistenceError{Op: "release savepoint", Err: err}
	}
	return nil
}

func (q *queries) wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(err, q.name+": "+format, args...)
}

// notFound maps a driver no-rows error to model.ErrNotFound.
func (q *queries) notFound(err error, format string, args ...any) error {
	if q.db.noRows(err) {
		return eris.Wrapf(model.ErrNotFound, q.name+": "+format, args...)
	}
	return q.wrap(err, format, args...)
}

// --- Sources ---

const sourceColumns = `id, name, base_url, kind, enabled, last_ingested_at, created_at`

func scanSource(row scannable) (*model.Source, error) {
	var s model.Source
	err := row.Scan(&s.ID, &s.Name, &s.BaseURL, &s.Kind, &s.Enabled, &s.LastIngestedAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *queries) GetSourceByBaseURL(ctx context.Context, baseURL string) (*model.Source, error) {
	s, err := scanSource(q.db.queryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE base_url = ?`, baseURL))
	if err != nil {
		return nil, q.notFound(err, "get source %s", baseURL)
	}
	return s, nil
}

func (q *queries) GetSourceByName(ctx context.Context, name string) (*model.Source, error) {
	s, err := scanSource(q.db.queryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name))
	if err != nil {
		return nil, q.notFound(err, "get source %s", name)
	}
	return s, nil
}

func (q *queries) CreateSource(ctx context.Context, src *model.Source) error {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	if src.Kind == "" {
		src.Kind = model.SourceKindCrawl
	}
	err := q.db.queryRow(ctx,
		`INSERT INTO sources (name, base_url, kind, enabled, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		src.Name, src.BaseURL, string(src.Kind), src.Enabled, src.CreatedAt,
	).Scan(&src.ID)
	return q.wrap(err, "insert source %s", src.BaseURL)
}

func (q *queries) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := q.db.query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
	if err != nil {
		return nil, q.wrap(err, "list sources")
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, q.wrap(err, "scan source")
		}
		out = append(out, *s)
	}
	return out, q.wrap(rows.Err(), "list sources iterate")
}

func (q *queries) TouchSource(ctx context.Context, sourceID int64, at time.Time) error {
	n, err := q.db.exec(ctx, `UPDATE sources SET last_ingested_at = ? WHERE id = ?`, at, sourceID)
	if err != nil {
		return q.wrap(err, "touch source %d", sourceID)
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s: source %d", q.name, sourceID)
	}
	return nil
}

// --- Products ---

const productColumns = `p.id, p.source_id, p.external_id, p.title, p.price, p.currency, p.image_url,
	p.source_url, p.description, p.availability, p.rating, p.review_count, p.first_seen_at, p.updated_at`

func productDest(p *model.Product, externalID **string) []any {
	return []any{
		&p.ID, &p.SourceID, externalID, &p.Title, &p.Price, &p.Currency, &p.ImageURL,
		&p.SourceURL, &p.Description, &p.Availability, &p.Rating, &p.ReviewCount, &p.FirstSeenAt, &p.UpdatedAt,
	}
}

func scanProduct(row scannable) (*model.Product, error) {
	var p model.Product
	var externalID *string
	if err := row.Scan(productDest(&p, &externalID)...); err != nil {
		return nil, err
	}
	if externalID != nil {
		p.ExternalID = *externalID
	}
	return &p, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (q *queries) FindProduct(ctx context.Context, sourceID int64, sourceURL string) (*model.Product, error) {
	p, err := scanProduct(q.db.queryRow(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.source_id = ? AND p.source_url = ?`,
		sourceID, sourceURL))
	if err != nil {
		return nil, q.notFound(err, "find product %s", sourceURL)
	}
	return p, nil
}

func (q *queries) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(q.db.queryRow(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.id = ?`, id))
	if err != nil {
		return nil, q.notFound(err, "get product %d", id)
	}
	return p, nil
}

func (q *queries) InsertProduct(ctx context.Context, p *model.Product) error {
	now := time.Now().UTC()
	if p.FirstSeenAt.IsZero() {
		p.FirstSeenAt = now
	}
	p.UpdatedAt = p.FirstSeenAt
	err := q.db.queryRow(ctx,
		`INSERT INTO products (source_id, external_id, title, price, currency, image_url, source_url,
			description, availability, rating, review_count, first_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		p.SourceID, nullString(p.ExternalID), p.Title, p.Price, p.Currency, p.ImageURL, p.SourceURL,
		p.Description, p.Availability, p.Rating, p.ReviewCount, p.FirstSeenAt, p.UpdatedAt,
	).Scan(&p.ID)
	return q.wrap(err, "insert product %s", p.SourceURL)
}

func (q *queries) UpdateProduct(ctx context.Context, p *model.Product) error {
	p.UpdatedAt = time.Now().UTC()
	n, err := q.db.exec(ctx,
		`UPDATE products SET external_id = ?, title = ?, price = ?, currency = ?, image_url = ?,
			description = ?, availability = ?, rating = ?, review_count = ?, updated_at = ?
		WHERE id = ?`,
		nullString(p.ExternalID), p.Title, p.Price, p.Currency, p.ImageURL,
		p.Description, p.Availability, p.Rating, p.ReviewCount, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return q.wrap(err, "update product %d", p.ID)
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s: product %d", q.name, p.ID)
	}
	return nil
}

const enrichedColumns = productColumns + `,
	e.product_id, e.category, e.confidence, e.reasoning, e.description, e.tags, e.seo_score,
	e.risk_score, e.anomalies, e.recommendations, e.flagged, e.strategy, e.generated_at, e.updated_at`

func (q *queries) ListProducts(ctx context.Context, filter model.ProductFilter) ([]model.EnrichedProduct, error) {
	var b strings.Builder
	var args []any
	b.WriteString(`SELECT ` + enrichedColumns + ` FROM products p LEFT JOIN enrichments e ON e.product_id = p.id WHERE 1=1`)

	if filter.Category != "" {
		b.WriteString(` AND e.category = ?`)
		args = append(args, filter.Category)
	}
	if filter.MinConfidence != nil {
		b.WriteString(` AND e.confidence >= ?`)
		args = append(args, *filter.MinConfidence)
	}
	if filter.MaxConfidence != nil {
		b.WriteString(` AND e.confidence <= ?`)
		args = append(args, *filter.MaxConfidence)
	}
	if filter.SourceID > 0 {
		b.WriteString(` AND p.source_id = ?`)
		args = append(args, filter.SourceID)
	}
	if filter.FlaggedOnly {
		b.WriteString(` AND e.flagged = ?`)
		args = append(args, true)
	}
	if filter.EnrichedOnly {
		b.WriteString(` AND e.product_id IS NOT NULL`)
	}
	b.WriteString(` ORDER BY p.id`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	rows, err := q.db.query(ctx, b.String(), args...)
	if err != nil {
		return nil, q.wrap(err, "list products")
	}
	defer rows.Close()

	var out []model.EnrichedProduct
	for rows.Next() {
		ep, err := scanEnrichedProduct(rows)
		if err != nil {
			return nil, q.wrap(err, "scan product")
		}
		out = append(out, *ep)
	}
	return out, q.wrap(rows.Err(), "list products iterate")
}

// nullableEnrichment receives the LEFT JOIN side of an enriched row.
type nullableEnrichment struct {
	productID       *int64
	category        *string
	confidence      *float64
	reasoning       *string
	description     *string
	tags            *string
	seoScore        *int
	riskScore       *int
	anomalies       *string
	recommendations *string
	flagged         *bool
	strategy        *string
	generatedAt     *time.Time
	updatedAt       *time.Time
}

func (n *nullableEnrichment) dest() []any {
	return []any{
		&n.productID, &n.category, &n.confidence, &n.reasoning, &n.description, &n.tags, &n.seoScore,
		&n.riskScore, &n.anomalies, &n.recommendations, &n.flagged, &n.strategy, &n.generatedAt, &n.updatedAt,
	}
}

func (n *nullableEnrichment) enrichment() (*model.Enrichment, error) {
	if n.productID == nil {
		return nil, nil
	}
	e := &model.Enrichment{
		ProductID:   *n.productID,
		Description: n.description,
		SEOScore:    n.seoScore,
		RiskScore:   n.riskScore,
	}
	if n.category != nil {
		e.Category = *n.category
	}
	if n.confidence != nil {
		e.Confidence = *n.confidence
	}
	if n.reasoning != nil {
		e.Reasoning = *n.reasoning
	}
	if n.flagged != nil {
		e.Flagged = *n.flagged
	}
	if n.strategy != nil {
		e.Strategy = *n.strategy
	}
	if n.generatedAt != nil {
		e.GeneratedAt = *n.generatedAt
	}
	if n.updatedAt != nil {
		e.UpdatedAt = *n.updatedAt
	}
	var err error
	if e.Tags, err = decodeList(n.tags); err != nil {
		return nil, eris.Wrap(err, "decode tags")
	}
	if e.Anomalies, err = decodeList(n.anomalies); err != nil {
		return nil, eris.Wrap(err, "decode anomalies")
	}
	if e.Recommendations, err = decodeList(n.recommendations); err != nil {
		return nil, eris.Wrap(err, "decode recommendations")
	}
	return e, nil
}

func scanEnrichedProduct(row scannable) (*model.EnrichedProduct, error) {
	var ep model.EnrichedProduct
	var externalID *string
	var ne nullableEnrichment
	dest := append(productDest(&ep.Product, &externalID), ne.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if externalID != nil {
		ep.ExternalID = *externalID
	}
	e, err := ne.enrichment()
	if err != nil {
		return nil, err
	}
	ep.Enrichment = e
	return &ep, nil
}

// --- Price history ---

func (q *queries) AppendPrice(ctx context.Context, rec *model.PriceRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	err := q.db.queryRow(ctx,
		`INSERT INTO price_history (product_id, price, currency, recorded_at) VALUES (?, ?, ?, ?) RETURNING id`,
		rec.ProductID, rec.Price, rec.Currency, rec.RecordedAt,
	).Scan(&rec.ID)
	return q.wrap(err, "insert price for product %d", rec.ProductID)
}

func (q *queries) ListPriceHistory(ctx context.Context, productID int64) ([]model.PriceRecord, error) {
	rows, err := q.db.query(ctx,
		`SELECT id, product_id, price, currency, recorded_at FROM price_history WHERE product_id = ? ORDER BY id`,
		productID)
	if err != nil {
		return nil, q.wrap(err, "list price history %d", productID)
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		var r model.PriceRecord
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Price, &r.Currency, &r.RecordedAt); err != nil {
			return nil, q.wrap(err, "scan price record")
		}
		out = append(out, r)
	}
	return out, q.wrap(rows.Err(), "list price history iterate")
}

// --- Enrichment ---

const enrichmentColumns = `e.product_id, e.category, e.confidence, e.reasoning, e.description, e.tags, e.seo_score,
	e.risk_score, e.anomalies, e.recommendations, e.flagged, e.strategy, e.generated_at, e.updated_at`

func (q *queries) PendingProducts(ctx context.Context, op model.Operation, limit int, force bool) ([]model.Product, error) {
	var query string
	switch op {
	case model.OpCategorize:
		if force {
			query = `SELECT ` + productColumns + ` FROM products p`
		} else {
			query = `SELECT ` + productColumns + ` FROM products p
				LEFT JOIN enrichments e ON e.product_id = p.id WHERE e.product_id IS NULL`
		}
	case model.OpDescribe:
		query = `SELECT ` + productColumns + ` FROM products p JOIN enrichments e ON e.product_id = p.id`
		if !force {
			query += ` WHERE e.description IS NULL`
		}
	case model.OpAnomaly:
		query = `SELECT ` + productColumns + ` FROM products p JOIN enrichments e ON e.product_id = p.id`
		if !force {
			query += ` WHERE e.risk_score IS NULL`
		}
	default:
		return nil, eris.Errorf("%s: unknown operation %q", q.name, op)
	}
	query += ` ORDER BY p.id`

	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.query(ctx, query, args...)
	if err != nil {
		return nil, q.wrap(err, "pending %s", op)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, q.wrap(err, "scan pending product")
		}
		out = append(out, *p)
	}
	return out, q.wrap(rows.Err(), "pending %s iterate", op)
}

func (q *queries) GetEnrichment(ctx context.Context, productID int64) (*model.Enrichment, error) {
	var ne nullableEnrichment
	err := q.db.queryRow(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichments e WHERE e.product_id = ?`, productID,
	).Scan(ne.dest()...)
	if err != nil {
		return nil, q.notFound(err, "get enrichment %d", productID)
	}
	e, err := ne.enrichment()
	if err != nil {
		return nil, q.wrap(err, "get enrichment %d", productID)
	}
	if e == nil {
		return nil, eris.Wrapf(model.ErrNotFound, "%s: enrichment %d", q.name, productID)
	}
	return e, nil
}

func (q *queries) SaveEnrichment(ctx context.Context, e *model.Enrichment) error {
	now := time.Now().UTC()
	if e.GeneratedAt.IsZero() {
		e.GeneratedAt = now
	}
	e.UpdatedAt = now
	if e.Tags == nil {
		e.Tags = []string{}
	}

	tags, err := encodeList(e.Tags)
	if err != nil {
		return q.wrap(err, "encode tags")
	}
	anomalies, err := encodeList(e.Anomalies)
	if err != nil {
		return q.wrap(err, "encode anomalies")
	}
	recs, err := encodeList(e.Recommendations)
	if err != nil {
		return q.wrap(err, "encode recommendations")
	}

	_, err = q.db.exec(ctx,
		`INSERT INTO enrichments (product_id, category, confidence, reasoning, description, tags, seo_score,
			risk_score, anomalies, recommendations, flagged, strategy, generated_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET
			category = excluded.category,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			description = excluded.description,
			tags = excluded.tags,
			seo_score = excluded.seo_score,
			risk_score = excluded.risk_score,
			anomalies = excluded.anomalies,
			recommendations = excluded.recommendations,
			flagged = excluded.flagged,
			strategy = excluded.strategy,
			updated_at = excluded.updated_at`,
		e.ProductID, e.Category, e.Confidence, e.Reasoning, e.Description, tags, e.SEOScore,
		e.RiskScore, anomalies, recs, e.Flagged, e.Strategy, e.GeneratedAt, e.UpdatedAt,
	)
	return q.wrap(err, "save enrichment %d", e.ProductID)
}

// ClearEnrichment resets the fields owned by op so a forced rerun starts
// from scratch. Categorization always overwrites in place, so it is a no-op.
func (q *queries) ClearEnrichment(ctx context.Context, op model.Operation, productID int64) error {
	var query string
	switch op {
	case model.OpCategorize:
		return nil
	case model.OpDescribe:
		query = `UPDATE enrichments SET description = NULL, seo_score = NULL, tags = '[]', updated_at = ? WHERE product_id = ?`
	case model.OpAnomaly:
		query = `UPDATE enrichments SET risk_score = NULL, anomalies = '[]', recommendations = '[]', flagged = ?, updated_at = ? WHERE product_id = ?`
		_, err := q.db.exec(ctx, query, false, time.Now().UTC(), productID)
		return q.wrap(err, "clear %s %d", op, productID)
	default:
		return eris.Errorf("%s: unknown operation %q", q.name, op)
	}
	_, err := q.db.exec(ctx, query, time.Now().UTC(), productID)
	return q.wrap(err, "clear %s %d", op, productID)
}

func (q *queries) CategoryCounts(ctx context.Context) ([]model.CategoryCount, error) {
	rows, err := q.db.query(ctx,
		`SELECT category, COUNT(*) AS n FROM enrichments GROUP BY category ORDER BY n DESC, category`)
	if err != nil {
		return nil, q.wrap(err, "category counts")
	}
	defer rows.Close()

	var out []model.CategoryCount
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, q.wrap(err, "scan category count")
		}
		out = append(out, c)
	}
	return out, q.wrap(rows.Err(), "category counts iterate")
}

func (q *queries) ConfidenceBuckets(ctx context.Context) (model.ConfidenceBuckets, error) {
	var b model.ConfidenceBuckets
	err := q.db.queryRow(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN confidence >= 0.8 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence >= 0.5 AND confidence < 0.8 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence < 0.5 THEN 1 ELSE 0 END), 0)
		FROM enrichments`,
	).Scan(&b.High, &b.Medium, &b.Low)
	return b, q.wrap(err, "confidence buckets")
}

func (q *queries) ListTags(ctx context.Context) ([][]string, error) {
	rows, err := q.db.query(ctx, `SELECT tags FROM enrichments ORDER BY product_id`)
	if err != nil {
		return nil, q.wrap(err, "list tags")
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw *string
		if err := rows.Scan(&raw); err != nil {
			return nil, q.wrap(err, "scan tags")
		}
		tags, err := decodeList(raw)
		if err != nil {
			return nil, q.wrap(err, "decode tags")
		}
		out = append(out, tags)
	}
	return out, q.wrap(rows.Err(), "list tags iterate")
}

func (q *queries) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := q.db.queryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM sources),
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM enrichments),
			(SELECT COUNT(*) FROM enrichments WHERE description IS NOT NULL),
			(SELECT COUNT(*) FROM enrichments WHERE risk_score IS NOT NULL),
			(SELECT COUNT(*) FROM enrichments WHERE flagged = ?),
			(SELECT COUNT(*) FROM price_history)`,
		true,
	).Scan(&c.Sources, &c.Products, &c.Enriched, &c.Described, &c.Scored, &c.Flagged, &c.PriceRecords)
	if err != nil {
		return nil, q.wrap(err, "counts")
	}
	return &c, nil
}

// --- Audit ---

func (q *queries) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := q.db.queryRow(ctx,
		`INSERT INTO audit_log (product_id, operation, strategy, success, error, duration_ms,
			input_tokens, output_tokens, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		entry.ProductID, string(entry.Operation), entry.Strategy, entry.Success, nullString(entry.Error),
		entry.DurationMs, entry.InputTokens, entry.OutputTokens, entry.CostUSD, entry.CreatedAt,
	).Scan(&entry.ID)
	return q.wrap(err, "insert audit for product %d", entry.ProductID)
}

func (q *queries) ListAudit(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error) {
	query := `SELECT id, product_id, operation, strategy, success, error, duration_ms,
		input_tokens, output_tokens, cost_usd, created_at FROM audit_log WHERE 1=1`
	var args []any
	if filter.ProductID > 0 {
		query += ` AND product_id = ?`
		args = append(args, filter.ProductID)
	}
	if filter.Operation != "" {
		query += ` AND operation = ?`
		args = append(args, string(filter.Operation))
	}
	query += ` ORDER BY id DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := q.db.query(ctx, query, args...)
	if err != nil {
		return nil, q.wrap(err, "list audit")
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var a model.AuditEntry
		var errMsg *string
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Operation, &a.Strategy, &a.Success, &errMsg,
			&a.DurationMs, &a.InputTokens, &a.OutputTokens, &a.CostUSD, &a.CreatedAt); err != nil {
			return nil, q.wrap(err, "scan audit")
		}
		if errMsg != nil {
			a.Error = *errMsg
		}
		out = append(out, a)
	}
	return out, q.wrap(rows.Err(), "list audit iterate")
}

func (q *queries) AuditSummary(ctx context.Context) (model.AuditSummary, error) {
	var s model.AuditSummary
	err := q.db.queryRow(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN success = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN strategy = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM audit_log`,
		true, model.StrategyFallback,
	).Scan(&s.Total, &s.Succeeded, &s.Fallback, &s.TotalCostUSD)
	if err != nil {
		return s, q.wrap(err, "audit summary")
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
	}
	return s, nil
}

// --- Runs ---

func (q *queries) CreateRun(ctx context.Context, flags model.RunFlags) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return nil, q.wrap(err, "marshal run flags")
	}
	countersJSON, _ := json.Marshal(model.Counters{})

	_, err = q.db.exec(ctx,
		`INSERT INTO runs (id, status, flags, counters, duration_ms, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), string(flagsJSON), string(countersJSON), 0, now, now,
	)
	if err != nil {
		return nil, q.wrap(err, "insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		Flags:     flags,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (q *queries) FinishRun(ctx context.Context, run *model.Run) error {
	countersJSON, err := json.Marshal(run.Counters)
	if err != nil {
		return q.wrap(err, "marshal run counters")
	}
	run.UpdatedAt = time.Now().UTC()

	n, err := q.db.exec(ctx,
		`UPDATE runs SET status = ?, counters = ?, error = ?, duration_ms = ?, updated_at = ? WHERE id = ?`,
		string(run.Status), string(countersJSON), nullString(run.Error), run.DurationMs, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return q.wrap(err, "finish run %s", run.ID)
	}
	if n == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

const runColumns = `id, status, flags, counters, error, duration_ms, created_at, updated_at`

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var flagsJSON, countersJSON string
	var errMsg *string

	if err := row.Scan(&r.ID, &r.Status, &flagsJSON, &countersJSON, &errMsg, &r.DurationMs, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flagsJSON), &r.Flags); err != nil {
		return nil, eris.Wrap(err, "unmarshal run flags")
	}
	if err := json.Unmarshal([]byte(countersJSON), &r.Counters); err != nil {
		return nil, eris.Wrap(err, "unmarshal run counters")
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	r.Outcome = r.Status.Outcome()
	return &r, nil
}

func (q *queries) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanRun(q.db.queryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if err != nil {
		return nil, q.notFound(err, "get run %s", runID)
	}

	rows, err := q.db.query(ctx,
		`SELECT result FROM run_phases WHERE run_id = ? AND result IS NOT NULL ORDER BY started_at`, runID)
	if err != nil {
		return nil, q.wrap(err, "list phases %s", runID)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, q.wrap(err, "scan phase")
		}
		var pr model.PhaseResult
		if err := json.Unmarshal([]byte(raw), &pr); err != nil {
			return nil, q.wrap(err, "unmarshal phase result")
		}
		r.Phases = append(r.Phases, pr)
	}
	return r, q.wrap(rows.Err(), "list phases iterate")
}

func (q *queries) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := q.db.query(ctx, query, args...)
	if err != nil {
		return nil, q.wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, q.wrap(err, "scan run")
		}
		runs = append(runs, *r)
	}
	return runs, q.wrap(rows.Err(), "list runs iterate")
}

func (q *queries) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := q.db.exec(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, q.wrap(err, "insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (q *queries) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return q.wrap(err, "marshal phase result")
	}

	n, err := q.db.exec(ctx,
		`UPDATE run_phases SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), phaseID,
	)
	if err != nil {
		return q.wrap(err, "complete phase %s", phaseID)
	}
	if n == 0 {
		return eris.Errorf("phase not found: %s", phaseID)
	}
	return nil
}

// prune removes price history and run tracking older than before. The most
// recent price record of each product is always kept.
func (q *queries) prune(ctx context.Context, before time.Time) (*PruneResult, error) {
	var res PruneResult
	var err error

	res.PriceRecords, err = q.db.exec(ctx,
		`DELETE FROM price_history WHERE recorded_at < ?
			AND id NOT IN (SELECT MAX(id) FROM price_history GROUP BY product_id)`, before)
	if err != nil {
		return nil, q.wrap(err, "prune price history")
	}
	res.Phases, err = q.db.exec(ctx,
		`DELETE FROM run_phases WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`, before)
	if err != nil {
		return nil, q.wrap(err, "prune run phases")
	}
	res.Runs, err = q.db.exec(ctx, `DELETE FROM runs WHERE created_at < ?`, before)
	if err != nil {
		return nil, q.wrap(err, "prune runs")
	}
	return &res, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func decodeList(raw *string) ([]string, error) {
	if raw == nil || *raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
