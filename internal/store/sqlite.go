package store

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	*queries
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{
		queries: &queries{db: sqliteConn{db}, name: "sqlite"},
		db:      db,
	}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	base_url         TEXT NOT NULL UNIQUE,
	kind             TEXT NOT NULL DEFAULT 'crawl',
	enabled          INTEGER NOT NULL DEFAULT 1,
	last_ingested_at DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS products (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id     INTEGER NOT NULL REFERENCES sources(id),
	external_id   TEXT,
	title         TEXT NOT NULL,
	price         REAL,
	currency      TEXT NOT NULL DEFAULT 'USD',
	image_url     TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	availability  TEXT NOT NULL DEFAULT '',
	rating        REAL,
	review_count  INTEGER,
	first_seen_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (source_id, source_url)
);

CREATE TABLE IF NOT EXISTS price_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id  INTEGER NOT NULL REFERENCES products(id),
	price       REAL NOT NULL,
	currency    TEXT NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS enrichments (
	product_id      INTEGER PRIMARY KEY REFERENCES products(id),
	category        TEXT NOT NULL,
	confidence      REAL NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
	reasoning       TEXT NOT NULL DEFAULT '',
	description     TEXT,
	tags            TEXT NOT NULL DEFAULT '[]',
	seo_score       INTEGER,
	risk_score      INTEGER CHECK (risk_score IS NULL OR (risk_score >= 1 AND risk_score <= 10)),
	anomalies       TEXT NOT NULL DEFAULT '[]',
	recommendations TEXT NOT NULL DEFAULT '[]',
	flagged         INTEGER NOT NULL DEFAULT 0,
	strategy        TEXT NOT NULL,
	generated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id    INTEGER NOT NULL,
	operation     TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	success       INTEGER NOT NULL,
	error         TEXT,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	flags       TEXT NOT NULL,
	counters    TEXT NOT NULL,
	error       TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_source ON products(source_id);
CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_id);
CREATE INDEX IF NOT EXISTS idx_price_history_recorded ON price_history(recorded_at);
CREATE INDEX IF NOT EXISTS idx_enrichments_category ON enrichments(category);
CREATE INDEX IF NOT EXISTS idx_audit_product ON audit_log(product_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.withTx(ctx, func(tx *txQueries) error { return fn(tx) })
}

func (s *SQLiteStore) PruneHistory(ctx context.Context, before time.Time) (*PruneResult, error) {
	var res *PruneResult
	err := s.withTx(ctx, func(tx *txQueries) error {
		var err error
		res, err = tx.prune(ctx, before.UTC())
		return err
	})
	return res, err
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *txQueries) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	tx := &txQueries{
		queries: &queries{db: sqliteConn{sqlTx}, name: "sqlite"},
		seq:     new(atomic.Int64),
	}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return eris.Wrap(sqlTx.Commit(), "sqlite: commit")
}

// sqlExecutor is satisfied by *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteConn struct {
	x sqlExecutor
}

func (c sqliteConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.x.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "rows affected")
	}
	return n, nil
}

func (c sqliteConn) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	rows, err := c.x.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (c sqliteConn) queryRow(ctx context.Context, query string, args ...any) scannable {
	return c.x.QueryRowContext(ctx, query, args...)
}

func (sqliteConn) noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRows) Err() error             { return r.rows.Err() }
func (r sqlRows) Close()                 { _ = r.rows.Close() }
