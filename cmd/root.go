// Package cmd defines the CLI commands of the fightstats-crawler executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/app"
	"github.com/JakeFAU/fightstats-crawler/internal/config"
	"github.com/JakeFAU/fightstats-crawler/internal/logging"
)

// Runner is the part of *app.App the crawl command drives. Tests swap in a
// fake through newRunner.
type Runner interface {
	Run(ctx context.Context) error
	Session() string
	Close()
}

var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger, app.Deps{})
}

var newLogger = func(cfg config.LoggingConfig) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Development: cfg.Development,
		File:        cfg.File,
		Level:       cfg.Level,
	})
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "fightstats-crawler",
		Short: "Crawls ufcstats.com into local CSV datasets",
		Long: `fightstats-crawler walks the event and fighter listings of ufcstats.com,
stops once it reaches records saved by an earlier run, and keeps events,
fights, fighters and fighter_fights as CSV files in a data directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (YAML)")
	pf.Bool("dev", true, "development logging (colored console)")
	pf.String("log-file", "", "also write logs to this file")
	pf.String("log-level", "", "minimum log level (debug, info, warn, error)")

	cmd.AddCommand(newCrawlCmd(&cfgFile))
	cmd.AddCommand(newLastRunCmd(&cfgFile))
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, newRootCmd(), os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
