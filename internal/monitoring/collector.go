package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// Scan limits for a single collection pass. Rows are returned newest first,
// so anything past the limit is older than what the window usually covers.
const (
	runScanLimit   = 1000
	auditScanLimit = 10000
)

// Snapshot holds a point-in-time view of catalog health.
type Snapshot struct {
	// Pipeline runs started within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`
	ItemErrors   int     `json:"item_errors"`
	Flagged      int     `json:"flagged"`

	// Enrichment attempts recorded in the audit log within the window.
	Attempts     int     `json:"attempts"`
	Fallbacks    int     `json:"fallbacks"`
	Failures     int     `json:"failures"`
	FallbackRate float64 `json:"fallback_rate"`
	CostUSD      float64 `json:"cost_usd"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the subset of the catalog store the collector reads.
type Source interface {
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
	ListAudit(ctx context.Context, filter store.AuditFilter) ([]model.AuditEntry, error)
}

// Collector gathers health metrics from the store.
type Collector struct {
	src Source
	now func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.src.ListRuns(ctx, model.RunFilter{Limit: runScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		snap.ItemErrors += r.Counters.Errors
		snap.Flagged += r.Counters.Flagged
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	entries, err := c.src.ListAudit(ctx, store.AuditFilter{Limit: auditScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list audit")
	}
	for _, e := range entries {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		snap.Attempts++
		snap.CostUSD += e.CostUSD
		if e.Strategy == model.StrategyFallback {
			snap.Fallbacks++
		}
		if !e.Success {
			snap.Failures++
		}
	}
	if snap.Attempts > 0 {
		snap.FallbackRate = float64(snap.Fallbacks) / float64(snap.Attempts)
	}

	return snap, nil
}
