package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <root>",
		Short: "Run incremental updates whenever documents below root change",
		Long: `Watch root for file changes and run an incremental update after each burst
of activity settles. The primary generation is built first when missing.
With metrics.enabled the Prometheus endpoint is served on metrics.port.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("debounce") {
				debounce = opts.cfg.Watch.Debounce
			}
			a, err := newApp(ctx, opts.cfg, args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.cfg.Metrics.Enabled {
				shutdown := a.metrics.StartServer(opts.cfg.Metrics.Port)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(shutdownCtx); err != nil {
						slog.Error("metrics server shutdown error", "error", err)
					}
				}()
			}

			if !a.engine.Store().Exists(index.Main) {
				slog.Info("primary generation missing, building", "root", args[0])
				if _, err := a.engine.Build(ctx); err != nil {
					return err
				}
			}

			trigger := func(ctx context.Context) error {
				report, err := a.engine.Update(ctx)
				if err != nil {
					return err
				}
				if !report.NoChange() {
					a.invalidate(ctx)
				}
				printUpdate(cmd.OutOrStdout(), report)
				return nil
			}
			w, err := watch.New(args[0], opts.cfg.Index.Suffix, debounce, trigger)
			if err != nil {
				return err
			}
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			slog.Info("watch stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before an update runs (default watch.debounce)")
	return cmd
}
