package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/fetcher"
	"github.com/sells-group/catalog-cli/internal/ingest"
	"github.com/sells-group/catalog-cli/internal/metrics"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// Phase names in execution order.
const (
	PhaseIngest     = "ingest"
	PhaseCategorize = "categorize"
	PhaseDescribe   = "describe"
	PhaseAnomaly    = "anomaly"
)

// RecordLoader fetches and decodes scraper output.
type RecordLoader interface {
	Load(ctx context.Context, location string, format fetcher.Format) ([]model.Record, error)
}

// Enricher runs one enrichment operation over pending products.
type Enricher interface {
	Run(ctx context.Context, op model.Operation, limit int, force bool) (*model.BatchResult, error)
}

// Runner executes ingestion and enrichment phases in order.
type Runner struct {
	store    store.Store
	loader   RecordLoader
	upserter *ingest.Upserter
	enricher Enricher
	metrics  *metrics.Metrics
}

// NewRunner creates a Runner. m may be nil.
func NewRunner(st store.Store, loader RecordLoader, up *ingest.Upserter, en Enricher, m *metrics.Metrics) *Runner {
	return &Runner{
		store:    st,
		loader:   loader,
		upserter: up,
		enricher: en,
		metrics:  m,
	}
}

// Run executes every enabled phase. A failing phase is recorded and counted
// but does not stop later phases. The returned run is complete only when no
// phase failed. Run and phase tracking is best effort.
func (r *Runner) Run(ctx context.Context, flags model.RunFlags) *model.Run {
	start := time.Now()
	log := zap.L().With(zap.String("component", "pipeline"))

	run, err := r.store.CreateRun(ctx, flags)
	if err != nil {
		log.Warn("pipeline: failed to create run", zap.Error(err))
		run = &model.Run{Status: model.RunStatusRunning, Flags: flags, CreatedAt: start.UTC()}
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run",
		zap.Bool("ingest", flags.Ingest),
		zap.Bool("categorize", flags.Categorize),
		zap.Bool("describe", flags.Describe),
		zap.Bool("anomaly", flags.Anomaly),
		zap.Bool("force", flags.Force),
	)

	trackPhase := func(name string, fn func() (*model.BatchResult, error)) *model.PhaseResult {
		var phase *model.RunPhase
		if run.ID != "" {
			var phaseErr error
			phase, phaseErr = r.store.CreatePhase(ctx, run.ID, name)
			if phaseErr != nil {
				log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
			}
		}

		phaseStart := time.Now()
		batch, fnErr := fn()
		elapsed := time.Since(phaseStart)

		pr := &model.PhaseResult{
			Name:     name,
			Duration: elapsed.Milliseconds(),
			Batch:    batch,
		}
		if fnErr != nil {
			pr.Status = model.PhaseStatusFailed
			pr.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", pr.Duration),
				zap.Error(fnErr),
			)
		} else {
			pr.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", pr.Duration),
			)
		}
		r.metrics.RecordPhase(name, string(pr.Status), elapsed)

		if phase != nil {
			if err := r.store.CompletePhase(ctx, phase.ID, pr); err != nil {
				log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
			}
		}
		run.Phases = append(run.Phases, *pr)
		return pr
	}

	if flags.Ingest {
		pr := trackPhase(PhaseIngest, func() (*model.BatchResult, error) {
			return r.Ingest(ctx, flags.Inputs, flags.Source, flags.Format)
		})
		if pr.Batch != nil {
			run.Counters.Scraped += pr.Batch.Processed
			run.Counters.Rejected += pr.Batch.Rejected
		}
		tally(&run.Counters, pr)
	}

	enrichPhases := []struct {
		name    string
		enabled bool
		op      model.Operation
	}{
		{PhaseCategorize, flags.Categorize, model.OpCategorize},
		{PhaseDescribe, flags.Describe, model.OpDescribe},
		{PhaseAnomaly, flags.Anomaly, model.OpAnomaly},
	}
	for _, ep := range enrichPhases {
		if !ep.enabled {
			continue
		}
		pr := trackPhase(ep.name, func() (*model.BatchResult, error) {
			return r.enricher.Run(ctx, ep.op, flags.Limit, flags.Force)
		})
		if pr.Batch != nil {
			switch ep.op {
			case model.OpCategorize:
				run.Counters.Categorized += pr.Batch.Succeeded
			case model.OpDescribe:
				run.Counters.Described += pr.Batch.Succeeded
			case model.OpAnomaly:
				run.Counters.Scored += pr.Batch.Succeeded
				run.Counters.Flagged += pr.Batch.Flagged
			}
		}
		tally(&run.Counters, pr)
	}

	var failed []string
	for _, p := range run.Phases {
		if p.Status == model.PhaseStatusFailed {
			failed = append(failed, p.Name)
		}
	}
	run.Status = model.RunStatusComplete
	if len(failed) > 0 {
		run.Status = model.RunStatusFailed
		run.Error = fmt.Sprintf("phases failed: %s", strings.Join(failed, ", "))
	}
	run.Outcome = run.Status.Outcome()
	run.DurationMs = time.Since(start).Milliseconds()

	if run.ID != "" {
		if err := r.store.FinishRun(ctx, run); err != nil {
			log.Warn("pipeline: failed to finish run", zap.Error(err))
		}
	}

	log.Info("pipeline: run finished",
		zap.String("status", string(run.Outcome)),
		zap.Int("scraped", run.Counters.Scraped),
		zap.Int("categorized", run.Counters.Categorized),
		zap.Int("described", run.Counters.Described),
		zap.Int("flagged", run.Counters.Flagged),
		zap.Int("errors", run.Counters.Errors),
		zap.Int64("duration_ms", run.DurationMs),
	)
	return run
}

// tally adds failed items, and the phase itself when it raised, to errors.
func tally(c *model.Counters, pr *model.PhaseResult) {
	if pr.Batch != nil {
		c.Errors += pr.Batch.Failed
	}
	if pr.Status == model.PhaseStatusFailed {
		c.Errors++
	}
}

// Ingest loads every input and upserts its records. Inputs are processed
// independently; a failing input does not stop the others. The returned
// envelope sums all inputs, and the first failure is returned as the error.
func (r *Runner) Ingest(ctx context.Context, inputs []string, source, format string) (*model.BatchResult, error) {
	start := time.Now()
	total := &model.BatchResult{Operation: "ingest", Status: model.BatchStatusSuccess}
	if len(inputs) == 0 {
		total.Message = "no inputs"
		return total, nil
	}

	f, err := fetcher.ParseFormat(format)
	if err != nil {
		total.Fail(err.Error())
		return total, err
	}

	var firstErr error
	failedInputs := 0
	for _, in := range inputs {
		res, err := r.ingestOne(ctx, in, source, f)
		if res != nil {
			total.Processed += res.Processed
			total.Succeeded += res.Succeeded
			total.Failed += res.Failed
			total.Created += res.Created
			total.Updated += res.Updated
			total.Rejected += res.Rejected
		}
		if err != nil {
			failedInputs++
			zap.L().Error("pipeline: input failed", zap.String("input", in), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	total.DurationMs = time.Since(start).Milliseconds()
	if firstErr != nil {
		err := eris.Wrapf(firstErr, "ingest: %d of %d inputs failed", failedInputs, len(inputs))
		total.Fail(err.Error())
		return total, err
	}
	return total, nil
}

func (r *Runner) ingestOne(ctx context.Context, input, source string, format fetcher.Format) (*model.BatchResult, error) {
	src, err := r.resolveSource(ctx, input, source)
	if err != nil {
		return nil, err
	}
	records, err := r.loader.Load(ctx, input, format)
	if err != nil {
		return nil, err
	}
	return r.upserter.IngestBatch(ctx, r.store, records, src)
}

// resolveSource picks the source for an input. An explicit source is either
// a base URL or the name of a registered source. Without one, remote inputs
// are attributed to their scheme and host.
func (r *Runner) resolveSource(ctx context.Context, input, source string) (*model.Source, error) {
	if source != "" && !isBaseURL(source) {
		src, err := r.store.GetSourceByName(ctx, source)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: source %q", source)
		}
		return src, nil
	}

	baseURL, name := source, ""
	if baseURL == "" {
		u, err := url.Parse(input)
		if err != nil || !isBaseURL(input) {
			return nil, &model.ValidationError{Field: "source", Reason: fmt.Sprintf("is required for local input %s", input)}
		}
		baseURL, name = u.Scheme+"://"+u.Host, u.Host
	}
	src, err := ingest.ResolveSource(ctx, r.store, baseURL, name)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: resolve source for %s", input)
	}
	return src, nil
}

func isBaseURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
