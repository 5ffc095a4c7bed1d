// Package worker executes queued crawl runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/metrics"
)

const notifyTimeout = 10 * time.Second

// Runner performs one crawl for a request.
type Runner interface {
	Crawl(ctx context.Context, request crawler.RunRequest) (crawler.Summary, error)
}

// Worker consumes queue items and runs one crawl per item.
type Worker struct {
	id        int
	queue     crawler.Queue
	runs      crawler.RunStore
	runner    Runner
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger
}

// Option customizes a Worker.
type Option func(*Worker)

// WithNotifier publishes a Notification to topic after every run.
func WithNotifier(publisher crawler.Publisher, topic string) Option {
	return func(w *Worker) {
		w.publisher = publisher
		w.topic = topic
	}
}

// Notification is published when a run reaches a terminal state.
type Notification struct {
	RunID   string          `json:"run_id"`
	Status  string          `json:"status"`
	Summary crawler.Summary `json:"summary"`
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, runs crawler.RunStore, runner Runner, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	w := &Worker{
		id:     id,
		queue:  queue,
		runs:   runs,
		runner: runner,
		logger: logger.With(zap.Int("worker", id)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(zap.String("run_id", item.RunID), zap.String("source", item.Request.Source))
	if err := w.runs.StartRun(ctx, item.RunID); err != nil {
		logger.Error("mark run started", zap.Error(err))
		summary := crawler.Summary{
			Source:  item.Request.Source,
			Recrawl: item.Request.Recrawl,
			Reason:  crawler.ReasonFailed,
			Error:   "start run: " + err.Error(),
		}
		if ctx.Err() != nil {
			summary.Reason = crawler.ReasonCanceled
		}
		w.finish(ctx, logger, item.RunID, summary)
		return
	}

	metrics.IncActiveRuns()
	summary, err := w.crawl(ctx, item.Request)
	metrics.DecActiveRuns()

	if summary.Reason == "" {
		summary.Reason = crawler.ReasonFailed
	}
	if err != nil {
		if summary.Error == "" {
			summary.Error = err.Error()
		}
		logger.Warn("run ended with error", zap.String("reason", string(summary.Reason)), zap.Error(err))
	} else {
		logger.Info("run completed", zap.String("reason", string(summary.Reason)))
	}

	w.finish(ctx, logger, item.RunID, summary)
}

// finish records the terminal state even when shutdown canceled ctx.
func (w *Worker) finish(ctx context.Context, logger *zap.Logger, runID string, summary crawler.Summary) {
	doneCtx := context.WithoutCancel(ctx)
	if err := w.runs.CompleteRun(doneCtx, runID, summary); err != nil {
		logger.Error("mark run complete", zap.Error(err))
	}
	w.notify(doneCtx, logger, runID, summary)
}

func (w *Worker) notify(ctx context.Context, logger *zap.Logger, runID string, summary crawler.Summary) {
	if w.publisher == nil || w.topic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	id, err := w.publisher.Publish(ctx, w.topic, Notification{
		RunID:   runID,
		Status:  string(summary.Reason),
		Summary: summary,
	})
	if err != nil {
		logger.Warn("publish run notification", zap.String("topic", w.topic), zap.Error(err))
		return
	}
	logger.Debug("run notification published", zap.String("message_id", id))
}

func (w *Worker) crawl(ctx context.Context, request crawler.RunRequest) (summary crawler.Summary, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			summary = crawler.Summary{Source: request.Source, Recrawl: request.Recrawl, Reason: crawler.ReasonFailed}
			err = fmt.Errorf("crawl panicked: %v", rec)
		}
	}()
	if w.runner == nil {
		return crawler.Summary{Source: request.Source}, errors.New("no crawl runner configured")
	}
	return w.runner.Crawl(ctx, request)
}
