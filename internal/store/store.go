package store

import (
	"context"
	"time"

	"github.com/sells-group/catalog-cli/internal/model"
)

// Catalog is the query surface shared by the store root and open
// transactions. Lookups that find nothing return model.ErrNotFound.
type Catalog interface {
	// Sources
	GetSourceByBaseURL(ctx context.Context, baseURL string) (*model.Source, error)
	GetSourceByName(ctx context.Context, name string) (*model.Source, error)
	CreateSource(ctx context.Context, src *model.Source) error
	ListSources(ctx context.Context) ([]model.Source, error)
	TouchSource(ctx context.Context, sourceID int64, at time.Time) error

	// Products
	FindProduct(ctx context.Context, sourceID int64, sourceURL string) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	InsertProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	ListProducts(ctx context.Context, filter model.ProductFilter) ([]model.EnrichedProduct, error)

	// Price history
	AppendPrice(ctx context.Context, rec *model.PriceRecord) error
	ListPriceHistory(ctx context.Context, productID int64) ([]model.PriceRecord, error)

	// Enrichment
	PendingProducts(ctx context.Context, op model.Operation, limit int, force bool) ([]model.Product, error)
	GetEnrichment(ctx context.Context, productID int64) (*model.Enrichment, error)
	SaveEnrichment(ctx context.Context, e *model.Enrichment) error
	ClearEnrichment(ctx context.Context, op model.Operation, productID int64) error
	CategoryCounts(ctx context.Context) ([]model.CategoryCount, error)
	ConfidenceBuckets(ctx context.Context) (model.ConfidenceBuckets, error)
	ListTags(ctx context.Context) ([][]string, error)
	Counts(ctx context.Context) (*Counts, error)

	// Audit
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error)
	AuditSummary(ctx context.Context) (model.AuditSummary, error)
}

// Tx is a catalog transaction. Work done inside Savepoint is rolled back on
// its own when fn fails, leaving the enclosing transaction usable.
type Tx interface {
	Catalog
	Savepoint(ctx context.Context, fn func(tx Tx) error) error
}

// Store defines the persistence interface for the catalog pipeline.
type Store interface {
	Catalog

	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Runs
	CreateRun(ctx context.Context, flags model.RunFlags) (*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error

	// Housekeeping
	PruneHistory(ctx context.Context, before time.Time) (*PruneResult, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Counts holds row totals used by catalog statistics.
type Counts struct {
	Sources      int
	Products     int
	Enriched     int
	Described    int
	Scored       int
	Flagged      int
	PriceRecords int
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	ProductID int64
	Operation model.Operation
	Limit     int
}

// PruneResult reports rows removed by PruneHistory.
type PruneResult struct {
	PriceRecords int64 `json:"price_records"`
	Runs         int64 `json:"runs"`
	Phases       int64 `json:"phases"`
}
