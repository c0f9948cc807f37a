package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldkit/hotspotd/internal/logging"
	_ "modernc.org/sqlite"
)

const slowQueryThreshold = 100 * time.Millisecond

// DB wraps a sql.DB with logging and query helpers. It stores the
// reconcile-run journal: history only, never read back to make decisions.
type DB struct {
	conn    *sql.DB
	logger  *slog.Logger
	devMode bool
}

// New opens a SQLite database and configures WAL mode, foreign keys,
// and busy timeout.
func New(ctx context.Context, dsn string, logger *slog.Logger, devMode bool) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dsn, err)
	}

	// Single writer connection for SQLite.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("journal: exec %q: %w", p, err)
		}
	}

	logger.Info("journal_opened",
		"dsn", dsn,
		"component", "journal",
	)

	return &DB{
		conn:    conn,
		logger:  logger,
		devMode: devMode,
	}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// ExecContext executes a query that doesn't return rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := d.conn.ExecContext(ctx, query, args...)
	d.logQuery(ctx, "exec", query, args, time.Since(start), err)
	return result, err
}

// QueryContext executes a query that returns rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.conn.QueryContext(ctx, query, args...)
	d.logQuery(ctx, "query", query, args, time.Since(start), err)
	return rows, err
}

// QueryRowContext executes a query that returns at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *timedRow {
	start := time.Now()
	row := d.conn.QueryRowContext(ctx, query, args...)
	return &timedRow{
		row:   row,
		db:    d,
		ctx:   ctx,
		op:    "query_row",
		query: query,
		args:  args,
		start: start,
	}
}

// IntegrityCheck runs PRAGMA integrity_check and returns the result.
// A healthy database returns "ok".
func (d *DB) IntegrityCheck(ctx context.Context) (string, error) {
	var result string
	row := d.QueryRowContext(ctx, "PRAGMA integrity_check")
	if err := row.Scan(&result); err != nil {
		return "", fmt.Errorf("journal: integrity check: %w", err)
	}
	return result, nil
}

func (d *DB) logQuery(ctx context.Context, op, query string, args []any, duration time.Duration, err error) {
	runID := logging.RunID(ctx)

	if d.devMode {
		d.logger.Debug("sql_"+op,
			"run_id", runID,
			"query", query,
			"args", fmt.Sprintf("%v", args),
			"duration_ms", duration.Milliseconds(),
			"error", err,
			"component", "journal",
		)
	}

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		d.logger.Error("sql_"+op+"_failed",
			"run_id", runID,
			"query", query,
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"duration_ms", duration.Milliseconds(),
			"component", "journal",
		)
	}

	if duration > slowQueryThreshold {
		d.logger.Warn("slow_query",
			"run_id", runID,
			"query", query,
			"duration_ms", duration.Milliseconds(),
			"component", "journal",
		)
	}
}

// timedRow wraps sql.Row to log after Scan completes.
type timedRow struct {
	row   *sql.Row
	db    *DB
	ctx   context.Context
	op    string
	query string
	args  []any
	start time.Time
}

// Scan reads the row and logs the query timing.
func (r *timedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	r.db.logQuery(r.ctx, r.op, r.query, r.args, time.Since(r.start), err)
	return err
}
