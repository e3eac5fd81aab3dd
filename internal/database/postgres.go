package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nao1215/productingest/internal/model"
)

// PostgresOptions configures PostgresStore behavior.
type PostgresOptions struct {
	// MaxConns caps the pool size. Zero keeps the default of 4.
	MaxConns int32

	// Scope decides the unique key of the products table. It is fixed when the
	// schema is created; empty adopts the stored scope.
	Scope DedupScope
}

// PostgresStore stores products and run reports in PostgreSQL.
type PostgresStore struct {
	pool  *pgxpool.Pool
	scope DedupScope
}

// OpenPostgres connects to dsn and creates the schema when missing.
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	if opts.Scope != "" && !opts.Scope.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDedupScope, opts.Scope)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := s.applyScope(ctx, opts.Scope); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			product_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			rating JSONB,
			specifications JSONB,
			media JSONB,
			pricing JSONB,
			category TEXT,
			warranty_summary TEXT,
			availability TEXT,
			source TEXT NOT NULL,
			time_update TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_source ON products(source)`,
		`CREATE INDEX IF NOT EXISTS idx_products_time_update ON products(time_update)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_source_product_id ON products(source, product_id)`,
		`CREATE TABLE IF NOT EXISTS ingest_runs (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			strategy TEXT NOT NULL,
			query TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			inserted INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			malformed INTEGER NOT NULL DEFAULT 0,
			failed_pages INTEGER NOT NULL DEFAULT 0,
			report_json JSONB NOT NULL,
			summary TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON ingest_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// applyScope records the scope of a new schema and creates its unique index.
// An existing schema keeps its scope and its indexes are left untouched.
func (s *PostgresStore) applyScope(ctx context.Context, requested DedupScope) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin scope transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	initial := requested
	if initial == "" {
		initial = ScopeGlobal
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO store_meta (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		scopeMetaKey, string(initial))
	if err != nil {
		return fmt.Errorf("failed to record dedup scope: %w", err)
	}

	var stored string
	if err := tx.QueryRow(ctx, `SELECT value FROM store_meta WHERE key = $1`, scopeMetaKey).Scan(&stored); err != nil {
		return fmt.Errorf("failed to read dedup scope: %w", err)
	}
	scope, err := resolveScope(DedupScope(stored), requested)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 1 && scope == ScopeGlobal {
		if _, err := tx.Exec(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_products_product_id ON products(product_id)`); err != nil {
			return fmt.Errorf("failed to create global unique index: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dedup scope: %w", err)
	}
	s.scope = scope
	return nil
}

// Exists reports whether a record with p's dedup key is stored.
func (s *PostgresStore) Exists(ctx context.Context, p *model.Product) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM products WHERE product_id = $1)`
	args := []any{p.ProductID}
	if s.scope == ScopeSource {
		query = `SELECT EXISTS (SELECT 1 FROM products WHERE source = $1 AND product_id = $2)`
		args = []any{p.Source, p.ProductID}
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: failed to check product %s: %v", ErrStore, p.ProductID, err)
	}
	return exists, nil
}

// Insert stores p unless a record with the same dedup key exists.
func (s *PostgresStore) Insert(ctx context.Context, p *model.Product) (bool, error) {
	cols, err := encodeProduct(p)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO products (product_id, title, url, rating, specifications, media, pricing,
			category, warranty_summary, availability, source)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING`,
		p.ProductID, p.Title, p.URL,
		string(cols.rating), string(cols.specifications), string(cols.media), string(cols.pricing),
		p.Category, p.WarrantySummary, p.Availability, p.Source,
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to insert product %s: %v", ErrStore, p.ProductID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns the record for (source, productID), or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, source, productID string) (*model.Product, error) {
	var (
		p                             model.Product
		rating, specs, media, pricing []byte
		category, warranty, available *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, product_id, title, url, rating, specifications, media, pricing,
			category, warranty_summary, availability, source, time_update
		FROM products
		WHERE source = $1 AND product_id = $2`,
		source, productID,
	).Scan(
		&p.ID, &p.ProductID, &p.Title, &p.URL,
		&rating, &specs, &media, &pricing,
		&category, &warranty, &available, &p.Source, &p.TimeUpdate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get product %s: %v", ErrStore, productID, err)
	}

	p.Rating = model.JSONOrNull(rating)
	p.Specifications = model.JSONOrNull(specs)
	p.Pricing = model.JSONOrNull(pricing)
	p.Category = deref(category)
	p.WarrantySummary = deref(warranty)
	p.Availability = deref(available)

	p.Media, err = decodeMedia(media)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Count returns the number of stored records.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count products: %v", ErrStore, err)
	}
	return n, nil
}

// Stats returns aggregate counts over stored records.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := newStats(s.scope)

	var latest *time.Time
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), MAX(time_update) FROM products`).Scan(&stats.Total, &latest)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read totals: %v", ErrStore, err)
	}
	if latest != nil {
		stats.LatestUpdate = *latest
	}

	var avg *float64
	err = s.pool.QueryRow(ctx, `
		SELECT AVG((rating->>'average')::float8), COUNT(*)
		FROM products
		WHERE jsonb_typeof(rating->'average') = 'number'
	`).Scan(&avg, &stats.Rated)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read average rating: %v", ErrStore, err)
	}
	if avg != nil {
		stats.AvgRating = *avg
	}

	groups := []struct {
		column string
		into   map[string]int64
	}{
		{column: "source", into: stats.BySource},
		{column: "category", into: stats.ByCategory},
		{column: "availability", into: stats.ByAvailability},
	}
	for _, g := range groups {
		// column names come from the fixed list above
		rows, err := s.pool.Query(ctx, `SELECT COALESCE(`+g.column+`, ''), COUNT(*) FROM products GROUP BY 1`)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to group products: %v", ErrStore, err)
		}
		for rows.Next() {
			var (
				key string
				n   int64
			)
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: failed to scan group: %v", ErrStore, err)
			}
			g.into[key] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}
	return stats, nil
}

// SaveRunReport records the outcome of one run. Saving the same run twice replaces it.
func (s *PostgresStore) SaveRunReport(ctx context.Context, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize run report: %v", ErrStore, err)
	}
	sum := runSummaryOf(report)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ingest_runs (run_id, strategy, query, source, started_at, finished_at,
			inserted, skipped, malformed, failed_pages, report_json, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			inserted = EXCLUDED.inserted,
			skipped = EXCLUDED.skipped,
			malformed = EXCLUDED.malformed,
			failed_pages = EXCLUDED.failed_pages,
			report_json = EXCLUDED.report_json,
			summary = EXCLUDED.summary`,
		sum.RunID, sum.Strategy, sum.Query, sum.Source, sum.StartedAt, sum.FinishedAt,
		sum.Inserted, sum.Skipped, sum.Malformed, sum.FailedPages, string(reportJSON), sum.Summary,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to save run report: %v", ErrStore, err)
	}
	return nil
}

// GetRunReport returns the stored report for runID, or nil when absent.
func (s *PostgresStore) GetRunReport(ctx context.Context, runID string) (*model.RunReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT report_json FROM ingest_runs WHERE run_id = $1`, runID).Scan(&reportJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get run report: %v", ErrStore, err)
	}

	var report model.RunReport
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, fmt.Errorf("%w: failed to parse run report: %v", ErrStore, err)
	}
	return &report, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, strategy, query, source, started_at, COALESCE(finished_at, started_at),
			inserted, skipped, malformed, failed_pages, COALESCE(summary, '')
		FROM ingest_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list runs: %v", ErrStore, err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Strategy, &r.Query, &r.Source, &r.StartedAt, &r.FinishedAt,
			&r.Inserted, &r.Skipped, &r.Malformed, &r.FailedPages, &r.Summary); err != nil {
			return nil, fmt.Errorf("%w: failed to scan run: %v", ErrStore, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return runs, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Store = (*PostgresStore)(nil)
