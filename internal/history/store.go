// Package history archives runs and their question results in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/gradewalker/internal/models"
)

// ErrRunNotFound is returned when no run matches an id.
var ErrRunNotFound = errors.New("run not found")

// Run is one archived runner invocation.
type Run struct {
	ID         string
	Runner     int
	Start      int
	End        int
	AppURL     string
	State      string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while the run is in progress
	Summary    models.Summary
	ReportPath string
}

// Store manages the SQLite run archive
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the archive at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// execWithRetry executes a statement, backing off on "database is locked".
// Runners in separate processes open the same file concurrently.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StartRun records a run in progress.
func (s *Store) StartRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.State == "" {
		run.State = "running"
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(id, runner, range_start, range_end, app_url, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Runner, run.Start, run.End, run.AppURL, run.State, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordResult stores a question result. Recording the same ordinal again
// for a run replaces the earlier row.
func (s *Store) RecordResult(ctx context.Context, runID string, r models.QuestionResult) error {
	units, err := json.Marshal(r.Units)
	if err != nil {
		return fmt.Errorf("marshal units: %w", err)
	}
	suggestions := "[]"
	if len(r.SuggestedRequirements) > 0 {
		data, err := json.Marshal(r.SuggestedRequirements)
		if err != nil {
			return fmt.Errorf("marshal suggested requirements: %w", err)
		}
		suggestions = string(data)
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO results
		(run_id, question_index, question_text, units, outcome, error_detail, verdict, remarks, suggested_requirements, attempts, runner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		r.Index,
		r.QuestionText,
		string(units),
		string(r.Outcome),
		r.ErrorDetail,
		string(r.ClassifierVerdict),
		r.ClassifierRemarks,
		suggestions,
		r.Attempts,
		r.Runner,
		r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// FinishRun stores the final state, counts and report path of a run.
func (s *Store) FinishRun(ctx context.Context, runID, state string, summary models.Summary, reportPath string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs
		SET state = ?, finished_at = ?, total = ?, passed = ?, failed = ?, skipped = ?, report_path = ?
		WHERE id = ?`,
		state, time.Now().UTC(), summary.Total, summary.Passed, summary.Failed, summary.Skipped, reportPath, runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, runner, range_start, range_end, app_url, state, started_at, finished_at, total, passed, failed, skipped, report_path`

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// GetRun finds a run by id or by a unique id prefix.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`, id, id+"%")
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

func scanRun(rows *sql.Rows) (*Run, error) {
	run := &Run{}
	var appURL, reportPath sql.NullString
	var finished sql.NullTime
	err := rows.Scan(
		&run.ID,
		&run.Runner,
		&run.Start,
		&run.End,
		&appURL,
		&run.State,
		&run.StartedAt,
		&finished,
		&run.Summary.Total,
		&run.Summary.Passed,
		&run.Summary.Failed,
		&run.Summary.Skipped,
		&reportPath,
	)
	if err != nil {
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	run.AppURL = appURL.String
	run.ReportPath = reportPath.String
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	run.Summary = models.SummaryFromCounts(run.Summary.Passed, run.Summary.Failed, run.Summary.Skipped)
	return run, nil
}

// Results returns the results of a run ordered by ordinal.
func (s *Store) Results(ctx context.Context, runID string) ([]models.QuestionResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_index, question_text, units, outcome, error_detail, verdict, remarks, suggested_requirements, attempts, runner, created_at
		FROM results
		WHERE run_id = ?
		ORDER BY question_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []models.QuestionResult
	for rows.Next() {
		var r models.QuestionResult
		var questionText, errorDetail, verdict, remarks, suggestions sql.NullString
		var units, outcome string
		err := rows.Scan(
			&r.Index,
			&questionText,
			&units,
			&outcome,
			&errorDetail,
			&verdict,
			&remarks,
			&suggestions,
			&r.Attempts,
			&r.Runner,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}

		r.QuestionText = questionText.String
		r.Outcome = models.ParseOutcome(outcome)
		r.ErrorDetail = errorDetail.String
		r.ClassifierVerdict = models.Verdict(verdict.String)
		r.ClassifierRemarks = remarks.String
		if err := json.Unmarshal([]byte(units), &r.Units); err != nil {
			return nil, fmt.Errorf("unmarshal units: %w", err)
		}
		if suggestions.Valid && suggestions.String != "" {
			if err := json.Unmarshal([]byte(suggestions.String), &r.SuggestedRequirements); err != nil {
				return nil, fmt.Errorf("unmarshal suggested requirements: %w", err)
			}
		}
		if len(r.SuggestedRequirements) == 0 {
			r.SuggestedRequirements = nil
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return results, nil
}
