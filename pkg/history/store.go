package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coolbeans/legisync/pkg/article"
)

// ErrRunNotFound is returned when no run matches an identifier.
var ErrRunNotFound = errors.New("sync run not found")

// timestampLayout sorts lexically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	refreshed INTEGER NOT NULL DEFAULT 0,
	changed INTEGER NOT NULL DEFAULT 0,
	retained INTEGER NOT NULL DEFAULT 0,
	fallback INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	coverage REAL NOT NULL DEFAULT 0,
	registry_checksum TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);

CREATE TABLE IF NOT EXISTS article_changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES sync_runs(id),
	code TEXT NOT NULL,
	number TEXT NOT NULL,
	old_checksum TEXT,
	new_checksum TEXT,
	diff TEXT
);
CREATE INDEX IF NOT EXISTS idx_article_changes_run ON article_changes(run_id);
`

// Store is the SQLite-backed run ledger.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db, dbPath: path}, nil
}

// Close closes the database.
func (ledger *Store) Close() error {
	return ledger.db.Close()
}

// Path returns the database file path.
func (ledger *Store) Path() string {
	return ledger.dbPath
}

// RecordRun stores a run and its changes atomically.
func (ledger *Store) RecordRun(ctx context.Context, run Run, changes []Change) error {
	transaction, err := ledger.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer transaction.Rollback()

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO sync_runs (id, mode, started_at, finished_at, refreshed, changed, retained, fallback, failed, coverage, registry_checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Refreshed, run.Changed, run.Retained, run.Fallback, run.Failed, run.Coverage, run.RegistryChecksum)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for _, change := range changes {
		_, err = transaction.ExecContext(ctx, `
			INSERT INTO article_changes (run_id, code, number, old_checksum, new_checksum, diff)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, string(change.Code), change.Number, change.OldChecksum, change.NewChecksum, change.Diff)
		if err != nil {
			return fmt.Errorf("failed to insert change %s: %w", change.Number, err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, most recent first.
func (ledger *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := ledger.db.QueryContext(ctx, `
		SELECT id, mode, started_at, finished_at, refreshed, changed, retained, fallback, failed, coverage, COALESCE(registry_checksum, '')
		FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// FindRun returns the run whose identifier starts with prefix.
func (ledger *Store) FindRun(ctx context.Context, prefix string) (Run, error) {
	row := ledger.db.QueryRowContext(ctx, `
		SELECT id, mode, started_at, finished_at, refreshed, changed, retained, fallback, failed, coverage, COALESCE(registry_checksum, '')
		FROM sync_runs WHERE id LIKE ? || '%' ORDER BY started_at DESC LIMIT 1`, prefix)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", prefix, ErrRunNotFound)
	}
	return run, err
}

// ChangesForRun returns the article changes recorded for a run.
func (ledger *Store) ChangesForRun(ctx context.Context, runID string) ([]Change, error) {
	rows, err := ledger.db.QueryContext(ctx, `
		SELECT run_id, code, number, COALESCE(old_checksum, ''), COALESCE(new_checksum, ''), COALESCE(diff, '')
		FROM article_changes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var change Change
		var code string
		if err := rows.Scan(&change.RunID, &code, &change.Number, &change.OldChecksum, &change.NewChecksum, &change.Diff); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		change.Code = article.Code(code)
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}
	return changes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var startedAt, finishedAt string
	err := row.Scan(&run.ID, &run.Mode, &startedAt, &finishedAt,
		&run.Refreshed, &run.Changed, &run.Retained, &run.Fallback, &run.Failed, &run.Coverage, &run.RegistryChecksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	return run, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
