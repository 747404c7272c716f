package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/cost"
	"github.com/sells-group/catalog-cli/internal/enrich"
	"github.com/sells-group/catalog-cli/internal/fetcher"
	"github.com/sells-group/catalog-cli/internal/ingest"
	"github.com/sells-group/catalog-cli/internal/metrics"
	"github.com/sells-group/catalog-cli/internal/pipeline"
	"github.com/sells-group/catalog-cli/internal/resilience"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/internal/textgen"
)

// catalogEnv holds the store, clients and services needed by the commands.
type catalogEnv struct {
	Store    store.Store
	Metrics  *metrics.Metrics
	Enricher *enrich.Orchestrator
	Upserter *ingest.Upserter
	Loader   *fetcher.Loader
	Runner   *pipeline.Runner
}

// Close releases resources held by the environment.
func (e *catalogEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens and migrates the store, builds the text-generation backend
// and wires the ingestion and enrichment services. mode selects which
// config settings are validated. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*catalogEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, eris.Wrap(err, "init metrics")
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	gen, err := textgen.New(cfg, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	auditor := enrich.NewAuditor(cost.NewCalculator(cfg.Pricing), m)
	orch := enrich.New(st, gen, auditor, enrich.OptionsFromConfig(cfg))
	up := ingest.NewUpserter(cfg.Ingest.DefaultCurrency, m)

	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	loader := &fetcher.Loader{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   timeout,
			RateLimit: float64(cfg.Fetch.RateLimit),
			Retry:     resilience.NewPolicy(cfg.Retry, "fetch"),
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	}

	return &catalogEnv{
		Store:    st,
		Metrics:  m,
		Enricher: orch,
		Upserter: up,
		Loader:   loader,
		Runner:   pipeline.NewRunner(st, loader, up, orch, m),
	}, nil
}

// openStore connects to the configured store and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initStore connects to the configured store, retrying transient
// connection failures.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "catalog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		policy := resilience.NewPolicy(cfg.Retry, "store connect")
		policy.Retryable = func(error) bool { return true }
		return resilience.Retry(ctx, policy, func(ctx context.Context) (store.Store, error) {
			st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
				MaxConns: cfg.Store.MaxConns,
				MinConns: cfg.Store.MinConns,
			})
			if err != nil {
				zap.L().Warn("store: connect failed", zap.Error(err))
				return nil, err
			}
			return st, nil
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
