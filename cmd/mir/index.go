package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index <root>",
		Short: "Build the primary generation from every document below root",
		Long: `Build the primary generation from scratch. Any auxiliary generation and
tombstone list left by earlier updates are discarded once the new primary
generation is committed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.Build(cmd.Context())
			if err != nil {
				return err
			}
			a.invalidate(cmd.Context())
			printBuild(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <root>",
		Short: "Index new and changed documents into the auxiliary generation",
		Long: `Compare the documents below root with what is already indexed. New and
modified documents are indexed into the auxiliary generation; removed
documents are recorded in the tombstone list. The primary generation is
never rewritten, so run "mir index" first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.Update(cmd.Context())
			if err != nil {
				return err
			}
			if !report.NoChange() {
				a.invalidate(cmd.Context())
			}
			printUpdate(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func printBuild(w io.Writer, r *indexer.BuildReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "generation\t%s\n", r.Generation)
	fmt.Fprintf(tw, "documents\t%d\n", r.Documents)
	fmt.Fprintf(tw, "terms\t%d\n", r.Terms)
	fmt.Fprintf(tw, "tokens\t%d\n", r.Tokens)
	fmt.Fprintf(tw, "excluded\t%d\n", len(r.Excluded))
	fmt.Fprintf(tw, "failures\t%d\n", len(r.Failures))
	fmt.Fprintf(tw, "duration\t%s\n", r.Duration.Round(time.Millisecond))
	tw.Flush()
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  failed %s (%s): %v\n", f.Path, f.Reason, f.Err)
	}
}

func printUpdate(w io.Writer, r *indexer.UpdateReport) {
	if r.NoChange() {
		fmt.Fprintln(w, "no changes")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "new\t%d\n", len(r.Delta.New))
	fmt.Fprintf(tw, "changed\t%d\n", len(r.Delta.Changed))
	fmt.Fprintf(tw, "removed\t%d\n", len(r.Delta.Removed))
	fmt.Fprintf(tw, "tombstoned\t%d\n", len(r.Tombstoned))
	tw.Flush()
	if r.Build != nil {
		printBuild(w, r.Build)
	}
}
