package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	*queries
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{
		queries: &queries{db: pgConn{pool}, name: "postgres"},
		pool:    pool,
		closeFn: closeFn,
	}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	base_url         TEXT NOT NULL UNIQUE,
	kind             TEXT NOT NULL DEFAULT 'crawl',
	enabled          BOOLEAN NOT NULL DEFAULT true,
	last_ingested_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id            BIGSERIAL PRIMARY KEY,
	source_id     BIGINT NOT NULL REFERENCES sources(id),
	external_id   TEXT,
	title         TEXT NOT NULL,
	price         DOUBLE PRECISION,
	currency      TEXT NOT NULL DEFAULT 'USD',
	image_url     TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	availability  TEXT NOT NULL DEFAULT '',
	rating        DOUBLE PRECISION,
	review_count  INTEGER,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_id, source_url)
);

CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	product_id  BIGINT NOT NULL REFERENCES products(id),
	price       DOUBLE PRECISION NOT NULL,
	currency    TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS enrichments (
	product_id      BIGINT PRIMARY KEY REFERENCES products(id),
	category        TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
	reasoning       TEXT NOT NULL DEFAULT '',
	description     TEXT,
	tags            JSONB NOT NULL DEFAULT '[]',
	seo_score       INTEGER,
	risk_score      INTEGER CHECK (risk_score IS NULL OR (risk_score BETWEEN 1 AND 10)),
	anomalies       JSONB NOT NULL DEFAULT '[]',
	recommendations JSONB NOT NULL DEFAULT '[]',
	flagged         BOOLEAN NOT NULL DEFAULT false,
	strategy        TEXT NOT NULL,
	generated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            BIGSERIAL PRIMARY KEY,
	product_id    BIGINT NOT NULL,
	operation     TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	success       BOOLEAN NOT NULL,
	error         TEXT,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status      TEXT NOT NULL DEFAULT 'running',
	flags       JSONB NOT NULL,
	counters    JSONB NOT NULL,
	error       TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_source ON products(source_id);
CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_id);
CREATE INDEX IF NOT EXISTS idx_price_history_recorded ON price_history(recorded_at);
CREATE INDEX IF NOT EXISTS idx_enrichments_category ON enrichments(category);
CREATE INDEX IF NOT EXISTS idx_enrichments_pending_desc ON enrichments(product_id) WHERE description IS NULL;
CREATE INDEX IF NOT EXISTS idx_enrichments_pending_risk ON enrichments(product_id) WHERE risk_score IS NULL;
CREATE INDEX IF NOT EXISTS idx_audit_product ON audit_log(product_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);

-- Ratings were whole numbers in early schemas.
ALTER TABLE products ALTER COLUMN rating TYPE DOUBLE PRECISION;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.withTx(ctx, func(tx *txQueries) error { return fn(tx) })
}

func (s *PostgresStore) PruneHistory(ctx context.Context, before time.Time) (*PruneResult, error) {
	var res *PruneResult
	err := s.withTx(ctx, func(tx *txQueries) error {
		var err error
		res, err = tx.prune(ctx, before.UTC())
		return err
	})
	return res, err
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *txQueries) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	tx := &txQueries{
		queries: &queries{db: pgConn{pgTx}, name: "postgres"},
		seq:     new(atomic.Int64),
	}
	if err := fn(tx); err != nil {
		_ = pgTx.Rollback(ctx)
		return err
	}
	return eris.Wrap(pgTx.Commit(ctx), "postgres: commit")
}

// pgExecutor is satisfied by db.Pool and pgx.Tx.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgConn struct {
	x pgExecutor
}

func (c pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.x.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgConn) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	return c.x.Query(ctx, rebind(query), args...)
}

func (c pgConn) queryRow(ctx context.Context, query string, args ...any) scannable {
	return c.x.QueryRow(ctx, rebind(query), args...)
}

func (pgConn) noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// rebind rewrites ? placeholders into Postgres $n form.
func rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
