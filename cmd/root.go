// Package cmd defines and implements the CLI commands for the talkcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/app"
	"github.com/JakeFAU/talk-catalog-crawler/internal/config"
	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/logging"
)

// runtimeKeyType is the key for storing the loaded runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime carries what every subcommand needs after bootstrap.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// Service is what the subcommands use from the application.
// This allows us to inject a fake during tests.
type Service interface {
	Crawl(ctx context.Context, request crawler.RunRequest) (crawler.Summary, error)
	Runs() crawler.RunStore
	Clock() crawler.Clock
	Notifier() (crawler.Publisher, string)
	Close()
}

// newService is the application factory. It's a variable so tests can
// replace it.
var newService = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger is swapped in tests to keep output quiet.
var newLogger = logging.New

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "talkcrawler",
		Short: "Incrementally crawls talk catalogs into a persistent store.",
		Long: `talkcrawler walks paginated talk listings newest-first, persists new talks
and their speakers, and stops as soon as it reaches a talk it already knows.
Run it once with "crawl" or keep it running behind an HTTP API with "serve".`,
		SilenceUsage: true,

		// Runs before every subcommand: load config once and build the root logger.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt := &runtime{cfg: cfg, logger: logger}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment uses the TALKCRAWLER_ prefix")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSourcesCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
