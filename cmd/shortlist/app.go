package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kalambet/shortlist/internal/config"
	"github.com/kalambet/shortlist/internal/content"
	"github.com/kalambet/shortlist/internal/crawl"
	"github.com/kalambet/shortlist/internal/embedding"
	"github.com/kalambet/shortlist/internal/engine"
	"github.com/kalambet/shortlist/internal/fetch"
	"github.com/kalambet/shortlist/internal/ledger"
	"github.com/kalambet/shortlist/internal/pipeline"
	"github.com/kalambet/shortlist/internal/profile"
	"github.com/kalambet/shortlist/internal/ranking"
	"github.com/kalambet/shortlist/internal/reranking"
	"github.com/kalambet/shortlist/internal/storage"
)

// app holds the stores every command works against.
type app struct {
	cfg    config.Config
	store  *storage.Store
	ledger ledger.Log
	pages  *content.Store
}

// loadConfig loads configuration and installs the logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

// openApp opens the run database and selects the ledger backend.
func openApp(cfg config.Config) (*app, error) {
	store, err := storage.Open(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{
		cfg:   cfg,
		store: store,
		pages: content.NewStore(cfg.Data.Dir),
	}
	a.ledger = openLedger(cfg, store)
	return a, nil
}

func openLedger(cfg config.Config, store *storage.Store) ledger.Log {
	if cfg.Ledger.Backend == config.LedgerSQLite {
		return store
	}
	return ledger.NewFileLog(cfg.LedgerPath())
}

func (a *app) Close() error {
	return a.store.Close()
}

func crawlConfig(c config.CrawlConfig) crawl.Config {
	retries := c.Retries
	if retries == 0 {
		// crawl.Config treats zero as "use the default".
		retries = -1
	}
	return crawl.Config{
		Concurrency: c.Concurrency,
		Retries:     retries,
		Timeout:     c.TimeoutDuration(),
		BackoffCap:  c.BackoffCapDuration(),
		BatchSize:   c.BatchSize,
	}
}

// newRunner builds the crawl and curate chain from the profile files and
// config. The returned closer releases the re-score client, if any.
func (a *app) newRunner(ctx context.Context) (*pipeline.Runner, func(), error) {
	prof, err := profile.Load(a.cfg.ProfilePath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading profile: %w", err)
	}
	llm, err := profile.LoadLLM(a.cfg.LLMPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading llm settings: %w", err)
	}

	eng := engine.NewOllama(a.cfg.Ollama.BaseURL)
	rescorer, err := reranking.New(ctx, reranking.Options{
		Enabled:      llm.Enabled,
		Backend:      llm.Backend,
		Profile:      prof.Text(),
		MaxBonus:     llm.MaxBonus,
		Timeout:      time.Duration(llm.TimeoutSeconds) * time.Second,
		Engine:       eng,
		OllamaModel:  a.cfg.Ollama.RescoreModel,
		GeminiAPIKey: a.cfg.Gemini.APIKey,
		GeminiModel:  a.cfg.Gemini.Model,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configuring re-score: %w", err)
	}
	closer := func() {
		if c, ok := rescorer.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("closing re-score client", "error", err)
			}
		}
	}

	ranker := ranking.NewRanker(rescorer, ranking.Config{
		TopK:     llm.TopK,
		FinalN:   prof.FinalN,
		MaxBonus: llm.MaxBonus,
	})
	var opts []pipeline.Option
	if prof.Embedding {
		opts = append(opts, pipeline.WithSimilarity(embedding.NewEmbedder(eng, a.cfg.Ollama.EmbedModel, embedding.WithCache(a.store))))
	}
	curator := pipeline.NewCurator(a.ledger, a.pages, prof, ranker, opts...)

	fetcher := fetch.NewHTTPFetcher(
		fetch.WithUserAgent(a.cfg.Crawl.UserAgent),
		fetch.WithMaxBytes(int64(a.cfg.Crawl.MaxBytes)),
	)
	orch := crawl.New(fetcher, a.ledger, a.pages, crawlConfig(a.cfg.Crawl))
	return pipeline.NewRunner(orch, curator, a.cfg.ResultsDir(), a.store), closer, nil
}

// runPipeline runs the stages selected by doCrawl/doCurate and prints a
// summary. Empty input ends with a warning, not an error.
func (a *app) runPipeline(ctx context.Context, inputs []string, doCrawl, doCurate bool) error {
	runner, closer, err := a.newRunner(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var rep pipeline.Report
	switch {
	case doCrawl && doCurate:
		rep, err = runner.Run(ctx, inputs, true)
	case doCrawl:
		err = runner.Crawl(ctx, inputs, &rep)
	default:
		err = runner.Curate(ctx, &rep)
	}
	if doCrawl && rep.Candidates > 0 {
		printStatus("Crawl", "%d candidates, %d already fetched, %d ok, %d failed",
			rep.Candidates, rep.Crawl.AlreadyOK, rep.Crawl.Succeeded, rep.Crawl.Failed)
	}
	if pipeline.IsEmptyInput(err) {
		printWarning("%v", err)
		return nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printWarning("interrupted")
		}
		return err
	}
	if doCurate {
		printStatus("Curate", "%d records, %d scored, %d skipped, top %d", rep.Result.Records,
			rep.Result.Scored, rep.Result.Skipped, len(rep.Result.Items))
		printSuccess("Wrote %s and %s", rep.Paths.JSONL, rep.Paths.Markdown)
	}
	return nil
}
