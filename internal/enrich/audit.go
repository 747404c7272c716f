package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/cost"
	"github.com/sells-group/catalog-cli/internal/metrics"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/internal/textgen"
)

// Attempt describes one enrichment attempt to be audited.
type Attempt struct {
	ProductID int64
	Operation model.Operation
	Strategy  string
	Success   bool
	Err       error
	Duration  time.Duration

	// Backend accounting, empty when no completion was produced.
	Provider string
	Model    string
	Usage    textgen.Usage
}

// Auditor appends audit log entries. It never fails the caller.
type Auditor struct {
	calc    *cost.Calculator
	metrics *metrics.Metrics
}

// NewAuditor creates an Auditor. Both arguments may be nil.
func NewAuditor(calc *cost.Calculator, m *metrics.Metrics) *Auditor {
	return &Auditor{calc: calc, metrics: m}
}

// Record appends one entry inside its own savepoint. A write failure is
// logged and swallowed so the enclosing item and transaction are unaffected.
func (a *Auditor) Record(ctx context.Context, tx store.Tx, at Attempt) *model.AuditEntry {
	entry := &model.AuditEntry{
		ProductID:    at.ProductID,
		Operation:    at.Operation,
		Strategy:     at.Strategy,
		Success:      at.Success,
		DurationMs:   at.Duration.Milliseconds(),
		InputTokens:  at.Usage.InputTokens,
		OutputTokens: at.Usage.OutputTokens,
	}
	if at.Err != nil {
		entry.Error = at.Err.Error()
	}
	if at.Provider != "" {
		entry.CostUSD = a.estimate(at)
		a.metrics.RecordBackendUsage(at.Provider, at.Model, at.Usage.InputTokens, at.Usage.OutputTokens, entry.CostUSD)
	}
	a.metrics.RecordEnrichment(string(at.Operation), strategyLabel(at.Strategy), at.Success, at.Duration)

	err := tx.Savepoint(ctx, func(sp store.Tx) error {
		return sp.AppendAudit(ctx, entry)
	})
	if err != nil {
		zap.L().Warn("enrich: audit write failed",
			zap.Int64("product_id", at.ProductID),
			zap.String("operation", string(at.Operation)),
			zap.Error(err),
		)
	}
	return entry
}

func (a *Auditor) estimate(at Attempt) float64 {
	return a.calc.Estimate(at.Provider, at.Model, cost.Usage{
		InputTokens:      at.Usage.InputTokens,
		OutputTokens:     at.Usage.OutputTokens,
		CacheWriteTokens: at.Usage.CacheWriteTokens,
		CacheReadTokens:  at.Usage.CacheReadTokens,
	})
}

// strategyLabel keeps metric cardinality bounded to primary and fallback.
func strategyLabel(strategy string) string {
	if strategy == model.StrategyFallback {
		return strategy
	}
	return "primary"
}
