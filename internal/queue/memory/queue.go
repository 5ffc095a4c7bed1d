// Package memory provides the in-process run queue used by the serve command.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// Queue is a bounded FIFO of submitted runs. Enqueue blocks while the queue
// is full. After Close, both operations fail with crawler.ErrQueueClosed.
type Queue struct {
	items chan crawler.QueueItem
	done  chan struct{}
	// sending is held for reading by in-flight Enqueue calls so Close can
	// drain only after every send has landed or given up.
	sending sync.RWMutex
	once    sync.Once
}

// NewQueue constructs a queue holding at most capacity waiting runs.
func NewQueue(capacity int) *Queue {
	return &Queue{
		items: make(chan crawler.QueueItem, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue adds a run, waiting for room until ctx ends or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	q.sending.RLock()
	defer q.sending.RUnlock()
	select {
	case <-q.done:
		return crawler.ErrQueueClosed
	default:
	}
	select {
	case q.items <- item:
		return nil
	case <-q.done:
		return crawler.ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue run %s: %w", item.RunID, ctx.Err())
	}
}

// Dequeue returns the oldest waiting run. A canceled ctx wins over waiting
// runs.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return crawler.QueueItem{}, fmt.Errorf("dequeue run: %w", err)
	}
	select {
	case <-q.done:
		return crawler.QueueItem{}, crawler.ErrQueueClosed
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue run: %w", ctx.Err())
	}
}

// Len reports the number of runs waiting.
func (q *Queue) Len() int {
	return len(q.items)
}

// Close stops the queue and returns the runs that were never dequeued.
// Only the first call returns them.
func (q *Queue) Close() []crawler.QueueItem {
	var pending []crawler.QueueItem
	q.once.Do(func() {
		close(q.done)
		q.sending.Lock()
		defer q.sending.Unlock()
		for {
			select {
			case item := <-q.items:
				pending = append(pending, item)
			default:
				return
			}
		}
	})
	return pending
}
