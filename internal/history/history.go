// Package history keeps a local ledger of batch runs and per-record outcomes.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/residency-data/goaccredit/internal/logger"
)

// RunStatus is the state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusAborted  RunStatus = "aborted"
)

const createRunTableSQL = `
CREATE TABLE IF NOT EXISTS resolution_run (
	run_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	work_set INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL DEFAULT 'running',
	resolved INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
);
`

const createLogTableSQL = `
CREATE TABLE IF NOT EXISTS resolution_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES resolution_run(run_id) ON DELETE CASCADE,
	program_id TEXT NOT NULL,
	status TEXT NOT NULL,
	year TEXT,
	source TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	reason TEXT,
	created_at TEXT NOT NULL
);
`

const createLogIndexSQL = `CREATE INDEX IF NOT EXISTS idx_resolution_log_status ON resolution_log (status, created_at);`

// Run is one batch invocation.
type Run struct {
	RunID      string
	Mode       string
	WorkSet    int
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Resolved   int
	Failed     int
}

// Entry is the final outcome of one record within a run.
type Entry struct {
	RunID     string
	ProgramID string
	Status    string
	Year      string
	Source    string
	Attempts  int
	Reason    string
	CreatedAt time.Time
}

// Stats aggregates the ledger.
type Stats struct {
	Runs     int
	ByStatus map[string]int
	LastRun  *Run
}

// Ledger records runs and outcomes in a SQL database.
type Ledger struct {
	db     *sql.DB
	logger *logger.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the SQLite ledger at path and its tables.
func Open(ctx context.Context, path string, log *logger.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history ledger %s: %w", path, err)
	}
	// One writer; the ledger is only touched by the batch goroutine.
	db.SetMaxOpenConns(1)

	l, err := NewLedger(db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.InitializeTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// NewLedger wraps an open database.
func NewLedger(db *sql.DB, log *logger.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Ledger{db: db, logger: log, now: time.Now}, nil
}

// InitializeTables creates the ledger tables if they don't exist.
func (l *Ledger) InitializeTables(ctx context.Context) error {
	l.logger.Debug("Initializing history tables")

	if _, err := l.db.ExecContext(ctx, createRunTableSQL); err != nil {
		return fmt.Errorf("failed to create resolution_run table: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, createLogTableSQL); err != nil {
		return fmt.Errorf("failed to create resolution_log table: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, createLogIndexSQL); err != nil {
		return fmt.Errorf("failed to create resolution_log index: %w", err)
	}
	return nil
}

// StartRun registers a new run.
func (l *Ledger) StartRun(ctx context.Context, runID, mode string, workSet int) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO resolution_run (run_id, mode, work_set, started_at, status) VALUES (?, ?, ?, ?, ?)",
		runID, mode, workSet, l.timestamp(), RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", runID, err)
	}
	l.logger.Debugf("Run %s started in ledger", runID)
	return nil
}

// RecordOutcome appends one record outcome to the run.
func (l *Ledger) RecordOutcome(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO resolution_log (run_id, program_id, status, year, source, attempts, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.RunID, e.ProgramID, e.Status, e.Year, e.Source, e.Attempts, e.Reason, l.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", e.ProgramID, err)
	}
	return nil
}

// FinishRun closes a run with its final counts.
func (l *Ledger) FinishRun(ctx context.Context, runID string, status RunStatus, resolved, failed int) error {
	_, err := l.db.ExecContext(ctx,
		"UPDATE resolution_run SET finished_at = ?, status = ?, resolved = ?, failed = ? WHERE run_id = ?",
		l.timestamp(), status, resolved, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	l.logger.Debugf("Run %s finished in ledger (%s)", runID, status)
	return nil
}

// GetStats returns run count, outcome counts per status and the latest run.
func (l *Ledger) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int{}}

	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM resolution_run").Scan(&stats.Runs); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM resolution_log GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Warnf("Failed to close rows: %v", err)
		}
	}()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		stats.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome counts: %w", err)
	}

	last, err := l.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	stats.LastRun = last
	return stats, nil
}

// LastRun returns the most recently started run, or nil when there is none.
func (l *Ledger) LastRun(ctx context.Context) (*Run, error) {
	var (
		run        Run
		started    string
		finished   sql.NullString
		statusText string
	)
	err := l.db.QueryRowContext(ctx,
		"SELECT run_id, mode, work_set, started_at, finished_at, status, resolved, failed FROM resolution_run ORDER BY started_at DESC LIMIT 1",
	).Scan(&run.RunID, &run.Mode, &run.WorkSet, &started, &finished, &statusText, &run.Resolved, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	run.Status = RunStatus(statusText)
	run.StartedAt = parseTimestamp(started)
	if finished.Valid {
		run.FinishedAt = parseTimestamp(finished.String)
	}
	return &run, nil
}

// RecentFailures lists the latest failed outcomes, newest first.
func (l *Ledger) RecentFailures(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		"SELECT run_id, program_id, status, attempts, reason, created_at FROM resolution_log WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		"failed", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent failures: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			reason  sql.NullString
			created string
		)
		if err := rows.Scan(&e.RunID, &e.ProgramID, &e.Status, &e.Attempts, &reason, &created); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		e.Reason = reason.String
		e.CreatedAt = parseTimestamp(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failures: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) timestamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
