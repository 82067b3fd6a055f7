package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/shortlist/internal/config"
	"github.com/kalambet/shortlist/internal/engine"
	"github.com/kalambet/shortlist/internal/ledger"
	"github.com/kalambet/shortlist/internal/sources"
	"github.com/kalambet/shortlist/internal/storage"
	"github.com/kalambet/shortlist/internal/worker"
)

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Collect candidate links from a source",
	Long: `Collect candidate links into <data.dir>/data/<source>_data.jsonl.
Each run replaces the previous file for that source.

Examples:
  shortlist fetch rss --feeds ./feeds.yaml
  shortlist fetch google --query "open source LLM release"
  shortlist fetch youtube --channel @SomeChannel --limit 25`,
}

var fetchRSSCmd = &cobra.Command{
	Use:   "rss",
	Short: "Collect the latest entries from RSS and Atom feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("feeds")
		if path == "" {
			path = cfg.Sources.FeedsPath
		}
		feeds, err := sources.LoadFeeds(path)
		if err != nil {
			return err
		}
		limit := limitFlag(cmd, cfg)
		p := sources.NewRSS(feeds, limit, &http.Client{Timeout: 20 * time.Second})
		return collect(cmd, cfg, p)
	},
}

var fetchGoogleCmd = &cobra.Command{
	Use:   "google",
	Short: "Collect links from Google Custom Search (past 7 days)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := sources.NewGoogle(cmd.Context(), cfg.Sources.GoogleAPIKey, cfg.Sources.GoogleCX, queryFlag(cmd, cfg))
		if err != nil {
			return err
		}
		return collect(cmd, cfg, p)
	},
}

var fetchYouTubeCmd = &cobra.Command{
	Use:   "youtube",
	Short: "Collect the newest matching YouTube videos",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		channel, _ := cmd.Flags().GetString("channel")
		if channel == "" {
			channel = cfg.Sources.YouTubeChannel
		}
		p, err := sources.NewYouTube(cmd.Context(), cfg.Sources.YouTubeAPIKey, queryFlag(cmd, cfg), channel, limitFlag(cmd, cfg))
		if err != nil {
			return err
		}
		return collect(cmd, cfg, p)
	},
}

func init() {
	fetchRSSCmd.Flags().String("feeds", "", "YAML feeds file (default: sources.feeds_path or built-in feeds)")
	fetchRSSCmd.Flags().Int("limit", 0, "maximum entries to keep (default: sources.limit)")
	fetchGoogleCmd.Flags().String("query", "", "search query (default: sources.query)")
	fetchYouTubeCmd.Flags().String("query", "", "search query (default: sources.query)")
	fetchYouTubeCmd.Flags().String("channel", "", "channel id, /channel/ URL or @handle")
	fetchYouTubeCmd.Flags().Int("limit", 0, "maximum videos to keep (default: sources.limit)")
	fetchCmd.AddCommand(fetchRSSCmd, fetchGoogleCmd, fetchYouTubeCmd)
}

func queryFlag(cmd *cobra.Command, cfg config.Config) string {
	if q, _ := cmd.Flags().GetString("query"); q != "" {
		return q
	}
	return cfg.Sources.Query
}

func limitFlag(cmd *cobra.Command, cfg config.Config) int {
	if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
		return n
	}
	return cfg.Sources.Limit
}

func collect(cmd *cobra.Command, cfg config.Config, p sources.Producer) error {
	printStep("Fetching %s candidates...", p.Source())
	path, n, err := sources.Collect(cmd.Context(), p, cfg.Data.Dir)
	if err != nil {
		return err
	}
	printSuccess("Saved %d %s candidates to %s", n, p.Source(), path)
	return nil
}

// --- crawl / curate / run ---

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Fetch every candidate not yet in the ledger",
	Long: `Fetch every candidate URL that has no successful ledger record.
Interrupted crawls resume where they stopped; already fetched URLs are
never requested again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, true, false)
	},
}

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Rank fetched pages and write curated.jsonl and curated.md",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, false, true)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl pending candidates, then curate",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")
		noCrawl, _ := cmd.Flags().GetBool("no-crawl")
		if remote {
			return queueRemoteRun(cmd, !noCrawl)
		}
		return runStages(cmd, !noCrawl, true)
	},
}

func init() {
	for _, c := range []*cobra.Command{crawlCmd, runCmd} {
		c.Flags().StringSlice("input", nil, "candidate files (default: data.inputs or <data.dir>/data/*_data.jsonl)")
	}
	runCmd.Flags().Bool("no-crawl", false, "skip the crawl and only curate")
	runCmd.Flags().Bool("remote", false, "queue the run on a running server instead")
}

func runStages(cmd *cobra.Command, doCrawl, doCurate bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	inputs := cfg.InputPaths()
	if cmd.Flags().Lookup("input") != nil {
		if in, _ := cmd.Flags().GetStringSlice("input"); len(in) > 0 {
			inputs = in
		}
	}
	return a.runPipeline(cmd.Context(), inputs, doCrawl, doCurate)
}

func queueRemoteRun(cmd *cobra.Command, doCrawl bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resp, err := newAPIClient(cfg).post(cmd.Context(), "/runs", worker.RunRequest{Crawl: doCrawl})
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	printSuccess("Queued run job %s (check with: shortlist job %s)", result["id"], result["id"])
	return nil
}

// --- job ---

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show a queued run job on the running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		resp, err := newAPIClient(cfg).get(cmd.Context(), "/jobs/"+args[0])
		if err != nil {
			return err
		}
		var job storage.Job
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		printStatus("Job", "%s", job.ID)
		printStatus("Status", "%s", job.Status)
		printStatus("Attempts", "%d/%d", job.Attempts, job.MaxAttempts)
		printStatus("Updated", "%s", job.UpdatedAt.Local().Format(time.DateTime))
		if job.LastError != "" {
			printStatus("Last error", "%s", job.LastError)
		}
		return nil
	},
}

// --- ledger ---

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or migrate the fetch ledger",
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fetch ledger totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ledger.Records(cmd.Context())
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		st := ledger.Summarize(records)
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printLedgerStats(cfg.Ledger.Backend, st)
		return nil
	},
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Copy an NDJSON ledger into the SQLite ledger",
	Long: `Copy records from an NDJSON ledger (default: <data.dir>/contents.jsonl)
into the SQLite ledger. Successful records for URLs that already succeeded
are skipped, so importing twice is harmless. Switch backends afterwards with:
  shortlist config set ledger.backend sqlite`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := cfg.LedgerPath()
		if len(args) == 1 {
			path = args[0]
		}
		store, err := storage.Open(cfg.Data.Dir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		records, err := ledger.NewFileLog(path).Records(cmd.Context())
		if err != nil {
			return err
		}
		n, err := store.ImportRecords(cmd.Context(), records)
		if err != nil {
			return err
		}
		printSuccess("Imported %d of %d records from %s", n, len(records), path)
		return nil
	},
}

func init() {
	ledgerStatsCmd.Flags().Bool("json", false, "print totals as JSON")
	ledgerCmd.AddCommand(ledgerStatsCmd, ledgerImportCmd)
}

func printLedgerStats(backend string, st ledger.Stats) {
	printStatus("Ledger", "%s backend", backend)
	printStatus("Records", "%d (%d ok, %d failed)", st.Records, st.OK, st.Failed)
	printStatus("URLs", "%d (%d never fetched)", st.URLs, st.FailedURLs)
	if st.LastFetch != nil {
		printStatus("Last fetch", "%s", st.LastFetch.Local().Format(time.DateTime))
	}
}

// --- setup ---

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Pull the local models used for embeddings and re-scoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printStep("Checking Ollama at %s", cfg.Ollama.BaseURL)
		eng := engine.NewOllama(cfg.Ollama.BaseURL)
		if err := engine.EnsureModels(cmd.Context(), eng, os.Stderr, cfg.Ollama.EmbedModel, cfg.Ollama.RescoreModel); err != nil {
			return err
		}
		printSuccess("Models ready")
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
