package main

import (
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mir/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "mir",
		Short: "Index text documents and run ranked conjunctive queries",
		Long: `mir builds an inverted index over the text files below a root directory,
keeps it current with cheap incremental updates, and answers conjunctive
keyword queries with several ranking modes.

Examples:
  mir index ./corpus
  mir update ./corpus
  mir query ./corpus cat bird --mode 1
  mir terms ./corpus --top 20 --exclude '^[0-9]+$'`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug|info|warn|error)")

	root.AddCommand(
		newIndexCmd(opts),
		newUpdateCmd(opts),
		newQueryCmd(opts),
		newTermsCmd(opts),
		newWatchCmd(opts),
		newRunsCmd(opts),
	)
	return root
}
