package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// RunStore implements crawler.RunStore on the crawl_runs table. Timestamps
// are stored as RFC 3339 text in UTC.
type RunStore struct {
	db    *sql.DB
	clock crawler.Clock
}

// NewRunStore constructs a run store sharing db.
func NewRunStore(db *sql.DB, clock crawler.Clock) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &RunStore{db: db, clock: clock}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateRun inserts a queued run.
func (s *RunStore) CreateRun(ctx context.Context, run crawler.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = crawler.RunQueued
	}
	if run.Submitted.IsZero() {
		run.Submitted = s.clock.Now()
	}
	request, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}
	const query = `
		INSERT INTO crawl_runs (id, status, request, submitted_at)
		VALUES (?, ?, ?, ?);
	`
	if _, err := s.db.ExecContext(ctx, query, run.ID, string(run.Status), string(request), formatTime(run.Submitted)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// StartRun marks a run as running.
func (s *RunStore) StartRun(ctx context.Context, runID string) error {
	const query = `
		UPDATE crawl_runs
		SET status = ?, started_at = ?
		WHERE id = ?;
	`
	res, err := s.db.ExecContext(ctx, query, string(crawler.RunRunning), formatTime(s.clock.Now()), runID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return requireRow(res)
}

// CompleteRun stores the summary and the terminal reason as status.
func (s *RunStore) CompleteRun(ctx context.Context, runID string, summary crawler.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	const query = `
		UPDATE crawl_runs
		SET status = ?, finished_at = ?, summary = ?
		WHERE id = ?;
	`
	res, err := s.db.ExecContext(ctx, query, string(summary.Reason), formatTime(s.clock.Now()), string(payload), runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (crawler.Run, error) {
	const query = `
		SELECT id, status, request, submitted_at, started_at, finished_at, summary
		FROM crawl_runs
		WHERE id = ?;
	`
	var (
		run       crawler.Run
		status    string
		request   string
		submitted string
		started   sql.NullString
		finished  sql.NullString
		summary   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID,
		&status,
		&request,
		&submitted,
		&started,
		&finished,
		&summary,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Run{}, crawler.ErrNotFound
		}
		return crawler.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = crawler.RunStatus(status)
	if run.Submitted, err = time.Parse(time.RFC3339Nano, submitted); err != nil {
		return crawler.Run{}, fmt.Errorf("decode submitted_at: %w", err)
	}
	if run.Started, err = parseTime(started); err != nil {
		return crawler.Run{}, fmt.Errorf("decode started_at: %w", err)
	}
	if run.Finished, err = parseTime(finished); err != nil {
		return crawler.Run{}, fmt.Errorf("decode finished_at: %w", err)
	}
	if err := json.Unmarshal([]byte(request), &run.Request); err != nil {
		return crawler.Run{}, fmt.Errorf("decode run request: %w", err)
	}
	if summary.Valid && summary.String != "" {
		var decoded crawler.Summary
		if err := json.Unmarshal([]byte(summary.String), &decoded); err != nil {
			return crawler.Run{}, fmt.Errorf("decode run summary: %w", err)
		}
		run.Summary = &decoded
	}
	return run, nil
}
