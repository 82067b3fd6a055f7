package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/shortlist/internal/candidate"
	"github.com/kalambet/shortlist/internal/crawl"
	"github.com/kalambet/shortlist/internal/output"
	"github.com/kalambet/shortlist/internal/ranking"
	"github.com/kalambet/shortlist/internal/storage"
)

// ErrNoCandidates means the input files held no usable candidate.
var ErrNoCandidates = errors.New("no candidates found in inputs")

// Crawler fetches the candidates that have not succeeded yet.
type Crawler interface {
	Run(ctx context.Context, items []candidate.Item) (crawl.Summary, error)
}

// RunStore keeps the history of curated runs.
type RunStore interface {
	SaveRun(ctx context.Context, run storage.Run, items []ranking.Item) (storage.Run, error)
}

// Report describes a crawl and curate run.
type Report struct {
	Loaded     candidate.LoadStats
	Candidates int
	Crawl      crawl.Summary
	Result     Result
	Paths      output.Paths
	Run        storage.Run
}

// Runner chains the stages: load and dedup candidates, crawl, curate, then
// write outputs and record the run.
type Runner struct {
	crawler Crawler
	curator *Curator
	outDir  string
	runs    RunStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewRunner returns a Runner writing outputs to outDir. runs may be nil.
func NewRunner(crawler Crawler, curator *Curator, outDir string, runs RunStore) *Runner {
	return &Runner{
		crawler: crawler,
		curator: curator,
		outDir:  outDir,
		runs:    runs,
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// Crawl loads candidates from inputs, removes duplicates and fetches the
// pending ones.
func (r *Runner) Crawl(ctx context.Context, inputs []string, rep *Report) error {
	items, stats, err := candidate.Load(inputs...)
	if err != nil {
		return fmt.Errorf("loading candidates: %w", err)
	}
	rep.Loaded = stats
	items = candidate.Dedup(items)
	rep.Candidates = len(items)
	r.logger.Info("candidates loaded", "files", stats.Files, "lines", stats.Lines, "skipped", stats.Skipped, "unique", len(items))
	if len(items) == 0 {
		return ErrNoCandidates
	}

	sum, err := r.crawler.Run(ctx, items)
	rep.Crawl = sum
	if err != nil {
		return fmt.Errorf("crawling: %w", err)
	}
	return nil
}

// Curate ranks the fetched pages, writes curated.jsonl and curated.md and
// stores the run when a RunStore is configured.
func (r *Runner) Curate(ctx context.Context, rep *Report) error {
	res, err := r.curator.Curate(ctx)
	rep.Result = res
	if err != nil {
		return err
	}

	paths, err := output.Write(r.outDir, res.Items)
	if err != nil {
		return fmt.Errorf("writing outputs: %w", err)
	}
	rep.Paths = paths

	run := storage.Run{
		CreatedAt: r.now().UTC(),
		Records:   res.Records,
		Scored:    res.Scored,
		Skipped:   res.Skipped,
		TopN:      len(res.Items),
		Rescorer:  r.curator.RescorerName(),
	}
	if r.runs != nil {
		if run, err = r.runs.SaveRun(ctx, run, res.Items); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
	}
	rep.Run = run
	return nil
}

// Run performs an optional crawl followed by a curate.
func (r *Runner) Run(ctx context.Context, inputs []string, doCrawl bool) (Report, error) {
	var rep Report
	if doCrawl {
		if err := r.Crawl(ctx, inputs, &rep); err != nil {
			return rep, err
		}
	}
	if err := r.Curate(ctx, &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// IsEmptyInput reports whether err means there was nothing to work with.
// Such runs end with a diagnostic rather than a failure.
func IsEmptyInput(err error) bool {
	return errors.Is(err, ErrNoCandidates) || errors.Is(err, ErrNoRecords) || errors.Is(err, ErrNothingScored)
}
