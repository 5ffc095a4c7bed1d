package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// RunStore implements crawler.RunStore on the crawl_runs table.
type RunStore struct {
	pool  pool
	clock crawler.Clock
}

// NewRunStore constructs a run store sharing p.
func NewRunStore(p pool, clock crawler.Clock) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &RunStore{pool: p, clock: clock}, nil
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
		VALUES ($1, $2, $3, $4);
	`
	if _, err := s.pool.Exec(ctx, query, run.ID, string(run.Status), request, run.Submitted); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// StartRun marks a run as running.
func (s *RunStore) StartRun(ctx context.Context, runID string) error {
	const query = `
		UPDATE crawl_runs
		SET status = $1, started_at = $2
		WHERE id = $3;
	`
	res, err := s.pool.Exec(ctx, query, string(crawler.RunRunning), s.clock.Now(), runID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// CompleteRun stores the summary and the terminal reason as status.
func (s *RunStore) CompleteRun(ctx context.Context, runID string, summary crawler.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	const query = `
		UPDATE crawl_runs
		SET status = $1, finished_at = $2, summary = $3
		WHERE id = $4;
	`
	res, err := s.pool.Exec(ctx, query, string(summary.Reason), s.clock.Now(), payload, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (crawler.Run, error) {
	const query = `
		SELECT id, status, request, submitted_at, started_at, finished_at, summary
		FROM crawl_runs
		WHERE id = $1;
	`
	var (
		run      crawler.Run
		status   string
		request  []byte
		started  *time.Time
		finished *time.Time
		summary  []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&status,
		&request,
		&run.Submitted,
		&started,
		&finished,
		&summary,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Run{}, crawler.ErrNotFound
		}
		return crawler.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = crawler.RunStatus(status)
	run.Started = started
	run.Finished = finished
	if err := json.Unmarshal(request, &run.Request); err != nil {
		return crawler.Run{}, fmt.Errorf("decode run request: %w", err)
	}
	if len(summary) > 0 {
		var decoded crawler.Summary
		if err := json.Unmarshal(summary, &decoded); err != nil {
			return crawler.Run{}, fmt.Errorf("decode run summary: %w", err)
		}
		run.Summary = &decoded
	}
	return run, nil
}
