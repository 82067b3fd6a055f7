package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "shortlist",
	Short: "Crawl candidate links and curate a ranked reading list",
	Long: `shortlist collects candidate links from RSS feeds, web search and
YouTube, fetches each page once into an append-only ledger, and ranks the
fetched pages against an interest profile.

Typical flow:
  shortlist fetch rss
  shortlist run
  open ~/.local/share/shortlist/results/curated.md`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(fetchCmd, crawlCmd, curateCmd, runCmd, ledgerCmd)
	rootCmd.AddCommand(serveCmd, statusCmd, jobCmd, setupCmd, configCmd)
}

// setupLogging installs the default slog handler at the configured level.
func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func main() {
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
