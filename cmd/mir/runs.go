package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent index and update runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !opts.cfg.Journal.Enabled {
				return apperrors.New(apperrors.ErrInvalidConfig, "", "journal.enabled is false")
			}
			runs, err := recentRuns(cmd, opts.cfg.Journal, limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func recentRuns(cmd *cobra.Command, cfg config.JournalConfig, limit int) ([]journal.Run, error) {
	db, err := database.Open(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("opening run journal: %w", err)
	}
	defer db.Close()
	store, err := journal.New(cmd.Context(), db)
	if err != nil {
		return nil, err
	}
	return store.Recent(cmd.Context(), limit)
}

func printRuns(w io.Writer, runs []journal.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tGENERATION\tSTATUS\tDOCS\tTERMS\tFAILED\tDURATION\tID")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Kind,
			r.Generation,
			r.Status,
			r.Documents,
			r.Terms,
			r.Failures,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.ID,
		)
	}
	tw.Flush()
	for _, r := range runs {
		if r.Detail.ErrorMessage != "" {
			fmt.Fprintf(w, "%s: %s\n", r.ID, r.Detail.ErrorMessage)
		}
	}
}
