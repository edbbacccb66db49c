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
)

// FileName is the database file created inside the data directory.
const FileName = "dorkscan.db"

// ErrRunNotFound is returned by GetRun when no run has the given ID.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB provides SQLite-based storage for scan run history.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// RunRecord describes one scan run.
type RunRecord struct {
	ID          int64
	Started     time.Time
	Finished    time.Time
	Target      string
	Backend     string
	Categories  []string
	OutputDir   string
	Queries     int
	Attempted   int
	Results     int
	Duplicates  int
	Interrupted bool

	// FailureCount is the number of failed queries. ListRuns fills it
	// without loading Failures.
	FailureCount int

	// Failures is populated by GetRun and consumed by SaveRun.
	Failures []FailureRecord
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	if r.Finished.IsZero() || r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// FailureRecord is one query the backend failed to answer.
type FailureRecord struct {
	Category string
	Query    string
	Kind     string
	Status   int
	Message  string
	Time     time.Time
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

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

	// mode=rw refuses to create a missing file.
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

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started TEXT NOT NULL,
		finished TEXT NOT NULL,
		target TEXT,
		backend TEXT NOT NULL,
		categories TEXT,
		output_dir TEXT,
		queries INTEGER DEFAULT 0,
		attempted INTEGER DEFAULT 0,
		results INTEGER DEFAULT 0,
		duplicates INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		interrupted INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);

	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		category TEXT,
		query TEXT NOT NULL,
		kind TEXT NOT NULL,
		status INTEGER DEFAULT 0,
		message TEXT,
		timestamp TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores the run and its failures in one transaction and sets
// run.ID to the new row ID.
func (h *HistoryDB) SaveRun(ctx context.Context, run *RunRecord) error {
	categories, err := json.Marshal(run.Categories)
	if err != nil {
		return fmt.Errorf("failed to serialize categories: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (started, finished, target, backend, categories, output_dir,
		queries, attempted, results, duplicates, failures, interrupted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		formatTimestamp(run.Started),
		formatTimestamp(run.Finished),
		run.Target,
		run.Backend,
		string(categories),
		run.OutputDir,
		run.Queries,
		run.Attempted,
		run.Results,
		run.Duplicates,
		len(run.Failures),
		run.Interrupted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}

	for _, f := range run.Failures {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO failures (run_id, category, query, kind, status, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, f.Category, f.Query, f.Kind, f.Status, f.Message, formatTimestamp(f.Time))
		if err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	run.ID = id
	run.FailureCount = len(run.Failures)
	return nil
}

const runColumns = `id, started, finished, target, backend, categories, output_dir,
	queries, attempted, results, duplicates, failures, interrupted`

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started DESC, id DESC"
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// GetRun returns the run with the given ID together with its failures.
func (h *HistoryDB) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := h.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx, `
	SELECT category, query, kind, status, message, timestamp
	FROM failures
	WHERE run_id = ?
	ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f         FailureRecord
			category  sql.NullString
			message   sql.NullString
			timestamp sql.NullString
		)
		if err := rows.Scan(&category, &f.Query, &f.Kind, &f.Status, &message, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Category = category.String
		f.Message = message.String
		f.Time = parseTimestamp(timestamp.String)
		run.Failures = append(run.Failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read failures: %w", err)
	}

	return run, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run        RunRecord
		started    string
		finished   string
		target     sql.NullString
		categories sql.NullString
		outputDir  sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&started,
		&finished,
		&target,
		&run.Backend,
		&categories,
		&outputDir,
		&run.Queries,
		&run.Attempted,
		&run.Results,
		&run.Duplicates,
		&run.FailureCount,
		&run.Interrupted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Started = parseTimestamp(started)
	run.Finished = parseTimestamp(finished)
	run.Target = target.String
	run.OutputDir = outputDir.String
	if categories.Valid && categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &run.Categories); err != nil {
			return nil, fmt.Errorf("failed to parse categories: %w", err)
		}
	}

	return &run, nil
}

// storedTimeLayout keeps a fixed-width fraction so stored timestamps sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimeLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// More specific formats come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns zero time when none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
