package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/ranker"
)

type queryOptions struct {
	mode   int
	limit  int
	asJSON bool
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	q := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <root> <term>...",
		Short: "Find documents containing every term",
		Long: `Find the documents that contain every query term and rank them.

Modes:
  0  internal document order
  1  TF-IDF over the merged index
  2  quasi TF-IDF using unmerged document and term counts
  4  proximity of adjacent query terms (smaller is better)`,
		Args: cobra.MinimumNArgs(2),
		PreRun: func(cmd *cobra.Command, _ []string) {
			if !cmd.Flags().Changed("mode") {
				q.mode = opts.cfg.Query.DefaultMode
			}
			if !cmd.Flags().Changed("limit") {
				q.limit = opts.cfg.Query.Limit
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ranker.ParseMode(q.mode); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts.cfg, args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := runQuery(cmd.Context(), a, parser.Parse(args[1:]...), q)
			if err != nil {
				return err
			}
			if q.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printQuery(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVarP(&q.mode, "mode", "m", 0, "ranking mode (0, 1, 2 or 4)")
	cmd.Flags().IntVarP(&q.limit, "limit", "n", 0, "maximum results, 0 for all")
	cmd.Flags().BoolVar(&q.asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runQuery(ctx context.Context, a *app, plan *parser.QueryPlan, q *queryOptions) (*executor.SearchResult, error) {
	compute := func() (*executor.SearchResult, error) {
		return a.executor.Execute(ctx, plan, q.mode, q.limit)
	}
	if a.cache == nil || plan.Empty() {
		return compute()
	}
	stamp, err := a.executor.Stamp()
	if err != nil {
		return nil, err
	}
	key := cache.Key{Terms: plan.Terms, Mode: q.mode, Limit: q.limit, Stamp: stamp}
	res, cached, err := a.cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		return nil, err
	}
	slog.Debug("query served", "cached", cached)
	return res, nil
}

func printQuery(w io.Writer, res *executor.SearchResult) {
	if len(res.Terms) == 0 {
		fmt.Fprintln(w, "no query terms")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ts := range res.TermStats {
		if !ts.Found {
			fmt.Fprintf(tw, "%s\tnot found\n", ts.Term)
			continue
		}
		fmt.Fprintf(tw, "%s\tdf %d\n", ts.Term, ts.DF)
	}
	tw.Flush()
	if err := res.MissingErr(); err != nil {
		fmt.Fprintf(w, "%v\n", err)
	}
	fmt.Fprintf(w, "%d matching documents\n", res.TotalHits)
	if len(res.Results) == 0 {
		return
	}

	scored := ranker.Mode(res.Mode).Scored()
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if scored {
		fmt.Fprintln(tw, "RANK\tDOC\tSCORE\tPATH")
	} else {
		fmt.Fprintln(tw, "RANK\tDOC\tPATH")
	}
	for i, r := range res.Results {
		if scored {
			fmt.Fprintf(tw, "%d\t%d\t%.4f\t%s\n", i+1, r.DocID, r.Score, r.Path)
		} else {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", i+1, r.DocID, r.Path)
		}
	}
	tw.Flush()
}
