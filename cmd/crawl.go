package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// errRunFailed marks a crawl whose terminal reason is failed.
var errRunFailed = errors.New("crawl run failed")

// newCrawlCmd creates the 'crawl' subcommand, which runs a single crawl to
// completion and prints its summary.
func newCrawlCmd() *cobra.Command {
	var (
		sourceName string
		recrawl    bool
		startPage  int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one incremental crawl of a source",
		Long: `Walks the source's listing pages starting at --start-page, persisting
new talks and speakers, until it reaches a known talk or runs out of pages.
With --recrawl every talk is rewritten and the walk only ends when the
listing is exhausted. The run summary is written to stdout as JSON and a
one-line status to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			request := crawler.RunRequest{
				Source:    rt.cfg.Crawl.Source,
				Recrawl:   rt.cfg.Crawl.Recrawl,
				StartPage: rt.cfg.Crawl.StartPage,
			}
			flags := cmd.Flags()
			if flags.Changed("source") {
				request.Source = sourceName
			}
			if flags.Changed("recrawl") {
				request.Recrawl = recrawl
			}
			if flags.Changed("start-page") {
				if startPage < 1 {
					return fmt.Errorf("--start-page must be >= 1, got %d", startPage)
				}
				request.StartPage = startPage
			}
			return runCrawl(cmd, rt, request)
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "source to crawl (overrides crawl.source)")
	cmd.Flags().BoolVar(&recrawl, "recrawl", false, "rewrite known talks instead of stopping at the first one")
	cmd.Flags().IntVar(&startPage, "start-page", 1, "first listing page to fetch")
	return cmd
}

func runCrawl(cmd *cobra.Command, rt *runtime, request crawler.RunRequest) error {
	svc, err := newService(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer svc.Close()

	summary, crawlErr := svc.Crawl(cmd.Context(), request)
	if crawlErr != nil && summary.Error == "" {
		summary.Error = crawlErr.Error()
	}
	if summary.Reason == "" {
		summary.Reason = crawler.ReasonFailed
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	writeStatus(cmd.ErrOrStderr(), summary)

	rt.logger.Info("crawl command finished",
		zap.String("source", summary.Source),
		zap.String("reason", string(summary.Reason)),
	)
	if summary.Reason == crawler.ReasonFailed {
		if crawlErr != nil {
			return fmt.Errorf("%w: %w", errRunFailed, crawlErr)
		}
		return errRunFailed
	}
	return nil
}
