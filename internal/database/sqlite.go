package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/productingest/internal/model"
)

// DBFileName is the SQLite file created inside the data directory.
const DBFileName = "productingest.db"

// SQLiteStore stores products and run reports in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	scope  DedupScope
}

// Options configures SQLiteStore behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// Scope decides the unique key of the products table. It is fixed when the
	// database is created; empty adopts the stored scope.
	Scope DedupScope
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// OpenSQLite opens or creates the SQLite store inside dbDir.
func OpenSQLite(dbDir string, opts Options) (*SQLiteStore, error) {
	if opts.Scope != "" && !opts.Scope.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDedupScope, opts.Scope)
	}

	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := s.applyScope(context.Background(), opts.Scope); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// createTables creates the schema shared by both scopes.
func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		rating TEXT,
		specifications TEXT,
		media TEXT,
		pricing TEXT,
		category TEXT,
		warranty_summary TEXT,
		availability TEXT,
		source TEXT NOT NULL,
		time_update DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_products_source ON products(source);
	CREATE INDEX IF NOT EXISTS idx_products_time_update ON products(time_update);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_source_product_id ON products(source, product_id);

	-- Run reports store the outcome of each (strategy, query) run as JSON
	CREATE TABLE IF NOT EXISTS ingest_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		strategy TEXT NOT NULL,
		query TEXT NOT NULL,
		source TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		inserted INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		malformed INTEGER NOT NULL DEFAULT 0,
		failed_pages INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON ingest_runs(started_at);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// applyScope records the scope of a new database and creates its unique index.
// An existing database keeps its scope and its indexes are left untouched.
func (s *SQLiteStore) applyScope(ctx context.Context, requested DedupScope) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin scope transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	initial := requested
	if initial == "" {
		initial = ScopeGlobal
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		scopeMetaKey, string(initial))
	if err != nil {
		return fmt.Errorf("failed to record dedup scope: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record dedup scope: %w", err)
	}

	var stored string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, scopeMetaKey).Scan(&stored); err != nil {
		return fmt.Errorf("failed to read dedup scope: %w", err)
	}
	scope, err := resolveScope(DedupScope(stored), requested)
	if err != nil {
		return err
	}

	if created == 1 && scope == ScopeGlobal {
		if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_products_product_id ON products(product_id)`); err != nil {
			return fmt.Errorf("failed to create global unique index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dedup scope: %w", err)
	}
	s.scope = scope
	return nil
}

// Exists reports whether a record with p's dedup key is stored.
func (s *SQLiteStore) Exists(ctx context.Context, p *model.Product) (bool, error) {
	query := `SELECT 1 FROM products WHERE product_id = ? LIMIT 1`
	args := []any{p.ProductID}
	if s.scope == ScopeSource {
		query = `SELECT 1 FROM products WHERE source = ? AND product_id = ? LIMIT 1`
		args = []any{p.Source, p.ProductID}
	}

	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to check product %s: %v", ErrStore, p.ProductID, err)
	}
	return true, nil
}

// Insert stores p unless a record with the same dedup key exists.
func (s *SQLiteStore) Insert(ctx context.Context, p *model.Product) (bool, error) {
	cols, err := encodeProduct(p)
	if err != nil {
		return false, err
	}

	query := `
	INSERT INTO products (product_id, title, url, rating, specifications, media, pricing,
		category, warranty_summary, availability, source)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		p.ProductID,
		p.Title,
		p.URL,
		string(cols.rating),
		string(cols.specifications),
		string(cols.media),
		string(cols.pricing),
		p.Category,
		p.WarrantySummary,
		p.Availability,
		p.Source,
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to insert product %s: %v", ErrStore, p.ProductID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: failed to read insert result: %v", ErrStore, err)
	}
	return n == 1, nil
}

// Get returns the record for (source, productID), or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, source, productID string) (*model.Product, error) {
	query := `
	SELECT id, product_id, title, url, rating, specifications, media, pricing,
		category, warranty_summary, availability, source, time_update
	FROM products
	WHERE source = ? AND product_id = ?
	`

	var (
		p                             model.Product
		rating, specs, media, pricing sql.NullString
		category, warranty, available sql.NullString
		timeUpdate                    string
	)
	err := s.db.QueryRowContext(ctx, query, source, productID).Scan(
		&p.ID,
		&p.ProductID,
		&p.Title,
		&p.URL,
		&rating,
		&specs,
		&media,
		&pricing,
		&category,
		&warranty,
		&available,
		&p.Source,
		&timeUpdate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get product %s: %v", ErrStore, productID, err)
	}

	p.Rating = rawOrNull(rating)
	p.Specifications = rawOrNull(specs)
	p.Pricing = rawOrNull(pricing)
	p.Category = category.String
	p.WarrantySummary = warranty.String
	p.Availability = available.String
	p.TimeUpdate = parseTimestamp(timeUpdate)

	p.Media, err = decodeMedia([]byte(media.String))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count products: %v", ErrStore, err)
	}
	return n, nil
}

// Stats returns aggregate counts over stored records.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := newStats(s.scope)

	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(time_update) FROM products`).Scan(&stats.Total, &latest)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read totals: %v", ErrStore, err)
	}
	if latest.Valid {
		stats.LatestUpdate = parseTimestamp(latest.String)
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
	SELECT AVG(json_extract(rating, '$.average')), COUNT(*)
	FROM products
	WHERE json_valid(rating) AND json_type(rating, '$.average') IN ('integer', 'real')
	`).Scan(&avg, &stats.Rated)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read average rating: %v", ErrStore, err)
	}
	stats.AvgRating = avg.Float64

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
		query := `SELECT COALESCE(` + g.column + `, ''), COUNT(*) FROM products GROUP BY 1`
		if err := s.groupCount(ctx, query, g.into); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (s *SQLiteStore) groupCount(ctx context.Context, query string, into map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: failed to group products: %v", ErrStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("%w: failed to scan group: %v", ErrStore, err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// SaveRunReport records the outcome of one run. Saving the same run twice replaces it.
func (s *SQLiteStore) SaveRunReport(ctx context.Context, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize run report: %v", ErrStore, err)
	}
	sum := runSummaryOf(report)

	query := `
	INSERT INTO ingest_runs (run_id, strategy, query, source, started_at, finished_at,
		inserted, skipped, malformed, failed_pages, report_json, summary)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		finished_at = excluded.finished_at,
		inserted = excluded.inserted,
		skipped = excluded.skipped,
		malformed = excluded.malformed,
		failed_pages = excluded.failed_pages,
		report_json = excluded.report_json,
		summary = excluded.summary
	`
	_, err = s.db.ExecContext(ctx, query,
		sum.RunID,
		sum.Strategy,
		sum.Query,
		sum.Source,
		sum.StartedAt.UTC().Format(storedTimeLayout),
		sum.FinishedAt.UTC().Format(storedTimeLayout),
		sum.Inserted,
		sum.Skipped,
		sum.Malformed,
		sum.FailedPages,
		string(reportJSON),
		sum.Summary,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to save run report: %v", ErrStore, err)
	}
	return nil
}

// GetRunReport returns the stored report for runID, or nil when absent.
func (s *SQLiteStore) GetRunReport(ctx context.Context, runID string) (*model.RunReport, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM ingest_runs WHERE run_id = ?`, runID).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get run report: %v", ErrStore, err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("%w: failed to parse run report: %v", ErrStore, err)
	}
	return &report, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
	SELECT run_id, strategy, query, source, started_at, COALESCE(finished_at, ''),
		inserted, skipped, malformed, failed_pages, COALESCE(summary, '')
	FROM ingest_runs
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list runs: %v", ErrStore, err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &r.Strategy, &r.Query, &r.Source, &started, &finished,
			&r.Inserted, &r.Skipped, &r.Malformed, &r.FailedPages, &r.Summary); err != nil {
			return nil, fmt.Errorf("%w: failed to scan run: %v", ErrStore, err)
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return runs, nil
}

func rawOrNull(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return model.NullJSON
	}
	return json.RawMessage(s.String)
}

var _ Store = (*SQLiteStore)(nil)
