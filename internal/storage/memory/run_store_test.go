package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store := NewRunStore(fixedClock{now: now})
	ctx := context.Background()
	run := crawler.Run{ID: "run-1", Request: crawler.RunRequest{Source: "audiodharma"}}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := store.CreateRun(ctx, run); err == nil {
		t.Fatal("expected duplicate run error")
	}
	got, err := store.GetRun(ctx, run.ID)
	if err != nil || got.Status != crawler.RunQueued {
		t.Fatalf("expected queued run, got %+v err=%v", got, err)
	}

	if err := store.StartRun(ctx, run.ID); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	summary := crawler.Summary{Source: "audiodharma", TalksCreated: 3, Reason: crawler.ReasonFinished}
	if err := store.CompleteRun(ctx, run.ID, summary); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}

	final, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if final.Status != crawler.RunStatus(crawler.ReasonFinished) || final.Started == nil || final.Finished == nil {
		t.Fatalf("expected timestamps and terminal status, got %+v", final)
	}
	if !final.Finished.Equal(now) || final.Summary == nil || final.Summary.TalksCreated != 3 {
		t.Fatalf("expected summary to persist, got %+v", final)
	}
}

func TestRunStoreMissingRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore(nil)
	ctx := context.Background()
	if _, err := store.GetRun(ctx, "nope"); !errors.Is(err, crawler.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.StartRun(ctx, "nope"); !errors.Is(err, crawler.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.CompleteRun(ctx, "nope", crawler.Summary{}); !errors.Is(err, crawler.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
