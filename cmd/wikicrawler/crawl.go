package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/wikicrawler/internal/app"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one article tree and exit",
		Long: `crawl runs a single crawl in-process, waits for every admitted page to
resolve and prints a summary.

Example:
  wikicrawler crawl --url https://en.wikipedia.org/wiki/Go --depth 2`,
		Args: cobra.NoArgs,
		RunE: runCrawl,
	}
	cmd.Flags().StringP("url", "u", "", "article URL to start from")
	cmd.Flags().IntP("depth", "d", 1, "link depth to follow; 1 fetches only the start page")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	rawURL, err := cmd.Flags().GetString("url")
	if err != nil {
		return fmt.Errorf("read url flag: %w", err)
	}
	depth, err := cmd.Flags().GetInt("depth")
	if err != nil {
		return fmt.Errorf("read depth flag: %w", err)
	}
	cfg, logger, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	a.Start()
	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout())
		defer cancel()
		return a.Shutdown(shutdownCtx)
	}

	task, err := a.Engine.Submit(ctx, rawURL, depth)
	if err != nil {
		_ = shutdown()
		return err
	}
	select {
	case <-task.Done():
	case <-ctx.Done():
	}
	if err := shutdown(); err != nil {
		return err
	}
	// Draining the pools resolves every admitted page, so the task is done.
	<-task.Done()

	result := task.Result()
	fmt.Fprintf(cmd.OutOrStdout(), "crawl %s of %s finished: %d pages, %d failed, %d documents indexed in %s\n",
		result.TaskID, result.URL, result.Total, result.Failed, a.Index.Len(),
		result.CompletedAt.Sub(result.SubmittedAt).Round(time.Millisecond))
	return nil
}
