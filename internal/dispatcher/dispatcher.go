// Package dispatcher runs the worker pool behind the serve command.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/worker"
)

// Queue is a run queue that hands back undelivered runs when closed.
type Queue interface {
	crawler.Queue
	Close() []crawler.QueueItem
}

// Dispatcher fans queued runs out to workers. Workers share one allocator
// and store, so concurrent runs draw identities from the same counters.
type Dispatcher struct {
	queue   Queue
	runs    crawler.RunStore
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue Queue, runs crawler.RunStore, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, runs: runs, workers: workers, logger: logger}
}

// Run starts the workers and blocks until ctx ends. It then closes the queue,
// records every run still waiting as canceled, and waits for in-flight runs
// to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	<-ctx.Done()

	pending := d.queue.Close()
	d.cancelPending(context.WithoutCancel(ctx), pending)
	wg.Wait()
}

func (d *Dispatcher) cancelPending(ctx context.Context, pending []crawler.QueueItem) {
	for _, item := range pending {
		summary := crawler.Summary{
			Source:  item.Request.Source,
			Recrawl: item.Request.Recrawl,
			Reason:  crawler.ReasonCanceled,
			Error:   "shutdown before the run started",
		}
		if err := d.runs.CompleteRun(ctx, item.RunID, summary); err != nil {
			d.logger.Warn("cancel pending run", zap.String("run_id", item.RunID), zap.Error(err))
			continue
		}
		d.logger.Info("pending run canceled", zap.String("run_id", item.RunID))
	}
}

// Enqueue submits a run to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue run: %w", err)
	}
	return nil
}
