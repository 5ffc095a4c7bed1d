package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

func item(id string) crawler.QueueItem {
	return crawler.QueueItem{RunID: id, Request: crawler.RunRequest{Source: "audiodharma"}}
}

func TestQueueIsFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, item(id)))
	}
	require.Equal(t, 3, q.Len())

	for _, id := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, id, got.RunID)
	}
	require.Zero(t, q.Len())
}

func TestDequeueWaitsForRun(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	got := make(chan crawler.QueueItem, 1)
	go func() {
		it, err := q.Dequeue(context.Background())
		if err == nil {
			got <- it
		}
	}()

	require.NoError(t, q.Enqueue(context.Background(), item("run-1")))
	select {
	case it := <-got:
		require.Equal(t, item("run-1"), it)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return the run")
	}
}

func TestFullQueueHonoursContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), item("primed")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, item("late"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "enqueue run late")

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = NewQueue(1).Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseReturnsPendingRuns(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, item("a")))
	require.NoError(t, q.Enqueue(ctx, item("b")))

	pending := q.Close()
	require.Equal(t, []crawler.QueueItem{item("a"), item("b")}, pending)
	require.Nil(t, q.Close())

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, crawler.ErrQueueClosed)
	require.ErrorIs(t, q.Enqueue(ctx, item("c")), crawler.ErrQueueClosed)
}

func TestCloseReleasesBlockedEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), item("a")))

	var wg sync.WaitGroup
	wg.Add(1)
	var blockedErr error
	go func() {
		defer wg.Done()
		blockedErr = q.Enqueue(context.Background(), item("b"))
	}()
	time.Sleep(20 * time.Millisecond)

	pending := q.Close()
	wg.Wait()
	require.ErrorIs(t, blockedErr, crawler.ErrQueueClosed)
	require.Equal(t, []crawler.QueueItem{item("a")}, pending)
}
