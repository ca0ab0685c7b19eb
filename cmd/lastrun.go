package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/fightstats-crawler/internal/config"
	"github.com/JakeFAU/fightstats-crawler/internal/store"
	"github.com/JakeFAU/fightstats-crawler/internal/store/postgres"
	"github.com/JakeFAU/fightstats-crawler/internal/ufcstats"
)

var openLedger = func(cmd *cobra.Command, cfg config.DBConfig) (store.RunLedger, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn must be set to read the run ledger")
	}
	return postgres.New(cmd.Context(), postgres.Config{DSN: cfg.DSN, Table: cfg.Table, MaxConns: cfg.MaxConns})
}

// newLastRunCmd creates the 'last-run' subcommand.
func newLastRunCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "last-run",
		Short: "Show the most recent crawl run from the run ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			ledger, err := openLedger(cmd, cfg.DB)
			if err != nil {
				return err
			}
			defer ledger.Close()

			run, err := ledger.LastRun(cmd.Context())
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			if err != nil {
				return err
			}
			printRun(cmd, run)
			return nil
		},
	}
}

func printRun(cmd *cobra.Command, run store.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session:  %s\n", run.ID)
	fmt.Fprintf(out, "status:   %s\n", run.Status)
	fmt.Fprintf(out, "scope:    %s\n", run.Scope)
	fmt.Fprintf(out, "started:  %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "finished: %s (%s)\n", run.FinishedAt.Format(time.RFC3339), run.FinishedAt.Sub(run.StartedAt))
	}
	for _, name := range []string{ufcstats.Events, ufcstats.Fights, ufcstats.Fighters, ufcstats.FighterFights} {
		if n, ok := run.Records[name]; ok {
			fmt.Fprintf(out, "%-15s %d\n", name+":", n)
		}
	}
	if run.ErrorMessage != nil {
		fmt.Fprintf(out, "error:    %s\n", *run.ErrorMessage)
	}
}
