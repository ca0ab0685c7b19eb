package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/config"
)

// newCrawlCmd creates the 'crawl' subcommand. Its flags override the config
// file and FIGHTSTATS_* environment variables.
func newCrawlCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch new events, fights and fighters",
		Long: `Crawls the listings newest first and stops at the first record already
saved. Progress is written to <name>_progress_<session>.csv after every page;
a successful run replaces <name>.csv and removes the progress files, a failed
one leaves <name>.csv untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, *cfgFile)
		},
	}

	f := cmd.Flags()
	f.String("data-dir", "data", "directory holding the CSV datasets")
	f.Bool("direct", false, "write canonical files on every save instead of progress files")
	f.Bool("update", false, "re-fetch and overwrite stored records instead of stopping at them")
	f.String("scrape", config.ScrapeAll, "what to crawl: all, events (with fights) or fighters")
	f.Bool("ignore-errors", false, "log and skip failed pages instead of aborting")
	f.Bool("prepend", false, "stage each page ahead of earlier rows")
	f.Bool("skip-events", false, "do not crawl events; fights come from stored events")
	f.Bool("skip-fights", false, "do not crawl fights")
	f.Bool("skip-fighters", false, "do not crawl fighters")
	f.Int("max-pages", 0, "maximum listing pages per listing, 0 for no limit")
	f.Duration("timeout", 0, "abort the crawl after this long, 0 for no limit")
	f.String("metrics-addr", "", "serve /healthz, /metrics and /v1/run on this address")
	return cmd
}

func runCrawl(cmd *cobra.Command, cfgFile string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	if cfg.Crawl.IgnoreErrors {
		logger.Warn("ignoring errors, the datasets may end up incomplete")
	}

	runner, err := newRunner(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer runner.Close()

	logger.Info("crawl starting", zap.String("session", runner.Session()))
	if err := runner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}
