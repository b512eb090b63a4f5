package main

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/vocabulary"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

type termsOptions struct {
	top     int
	match   string
	exclude string
	asJSON  bool
}

func newTermsCmd(opts *rootOptions) *cobra.Command {
	t := &termsOptions{}
	cmd := &cobra.Command{
		Use:   "terms <root>",
		Short: "List the terms found in the most documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := t.filter()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts.cfg, args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			ix, err := a.executor.Load(cmd.Context())
			if err != nil {
				return err
			}
			report := vocabulary.Top(ix, t.top, filter)
			if t.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printTerms(cmd.OutOrStdout(), report, filter)
			return nil
		},
	}
	cmd.Flags().IntVarP(&t.top, "top", "n", 10, "number of terms to list, 0 for all")
	cmd.Flags().StringVarP(&t.match, "match", "r", "", "only list terms matching this regular expression")
	cmd.Flags().StringVarP(&t.exclude, "exclude", "R", "", "only list terms not matching this regular expression")
	cmd.Flags().BoolVar(&t.asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (t *termsOptions) filter() (vocabulary.Filter, error) {
	var f vocabulary.Filter
	var err error
	if t.match != "" {
		if f.Include, err = regexp.Compile(t.match); err != nil {
			return f, apperrors.Newf(apperrors.ErrInvalidConfig, "", "--match: %v", err)
		}
	}
	if t.exclude != "" {
		if f.Exclude, err = regexp.Compile(t.exclude); err != nil {
			return f, apperrors.Newf(apperrors.ErrInvalidConfig, "", "--exclude: %v", err)
		}
	}
	return f, nil
}

func printTerms(w io.Writer, r *vocabulary.Report, f vocabulary.Filter) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tDF\tDOCS")
	for _, e := range r.Entries {
		fmt.Fprintf(tw, "%s\t%d\t%v\n", e.Term, e.DF, e.DocIDs)
	}
	tw.Flush()
	if f.Include != nil || f.Exclude != nil {
		fmt.Fprintf(w, "%d of %d terms matched, %d did not\n", r.Matched, r.Total, r.Unmatched)
	} else {
		fmt.Fprintf(w, "%d terms\n", r.Total)
	}
	fmt.Fprintf(w, "%d documents covered\n", r.Documents)
}
