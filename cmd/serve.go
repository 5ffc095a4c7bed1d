package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/api"
	"github.com/JakeFAU/talk-catalog-crawler/internal/config"
	"github.com/JakeFAU/talk-catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/talk-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/talk-catalog-crawler/internal/queue/memory"
	"github.com/JakeFAU/talk-catalog-crawler/internal/source"
	"github.com/JakeFAU/talk-catalog-crawler/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand: the HTTP API plus a worker pool
// that executes queued runs.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the run API and executes queued crawls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt.cfg, rt.logger)
		},
	}
}

// serve blocks until ctx is done, then drains the HTTP server and workers.
func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer svc.Close()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var opts []worker.Option
	if publisher, topic := svc.Notifier(); publisher != nil {
		opts = append(opts, worker.WithNotifier(publisher, topic))
	}
	queue := memory.NewQueue(cfg.Server.QueueDepth)
	workers := make([]*worker.Worker, 0, cfg.Server.Workers)
	for i := 0; i < cfg.Server.Workers; i++ {
		workers = append(workers, worker.New(i+1, queue, svc.Runs(), svc, logger, opts...))
	}
	dispatch := dispatcher.New(queue, svc.Runs(), workers, logger.Named("dispatcher"))

	known := func(name string) bool {
		_, err := source.Lookup(name)
		return err == nil
	}
	apiServer := api.NewServer(svc.Runs(), dispatch, uuid.NewRunIDs(), svc.Clock(), known, cfg.Crawl.Source, logger)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		logger.Info("dispatcher started", zap.Int("workers", cfg.Server.Workers))
		dispatch.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-dispatched
	logger.Info("shutdown complete")

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}
