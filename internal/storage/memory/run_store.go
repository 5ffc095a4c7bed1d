package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// RunStore provides an in-memory crawler.RunStore for the API.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]crawler.Run
	clock crawler.Clock
}

// NewRunStore constructs a RunStore. A nil clock uses UTC wall time.
func NewRunStore(clock crawler.Clock) *RunStore {
	return &RunStore{
		runs:  make(map[string]crawler.Run),
		clock: clock,
	}
}

// CreateRun stores a new run in queued status.
func (s *RunStore) CreateRun(_ context.Context, run crawler.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	if run.Status == "" {
		run.Status = crawler.RunQueued
	}
	s.runs[run.ID] = run
	return nil
}

// StartRun marks a run as running.
func (s *RunStore) StartRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.ErrNotFound
	}
	run.Status = crawler.RunRunning
	if run.Started == nil {
		run.Started = pointerTime(s.now())
	}
	s.runs[runID] = run
	return nil
}

// CompleteRun records the summary and the terminal reason as status.
func (s *RunStore) CompleteRun(_ context.Context, runID string, summary crawler.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.ErrNotFound
	}
	run.Status = crawler.RunStatus(summary.Reason)
	run.Summary = &summary
	run.Finished = pointerTime(s.now())
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (crawler.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.Run{}, crawler.ErrNotFound
	}
	return run, nil
}

func (s *RunStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
