package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/config"
	"github.com/JakeFAU/wikicrawler/internal/logging"
)

// NewRootCmd creates the wikicrawler command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wikicrawler",
		Short: "Recursive Wikipedia crawler with a term index",
		Long: `wikicrawler fetches Wikipedia articles down to a requested link depth,
stores every page body in a sharded file layout and keeps an inverted index
answering which documents contain a term.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "", "config file (YAML); CRAWLER_* env vars override it")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCrawlCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger for a subcommand. The
// returned cleanup flushes the logger.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, func(), error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("read config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	cleanup := func() {
		// Sync fails on terminals; nothing useful to do about it.
		_ = logger.Sync()
	}
	return cfg, logger, cleanup, nil
}
