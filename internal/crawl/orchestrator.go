package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/shortlist/internal/candidate"
	"github.com/kalambet/shortlist/internal/content"
	"github.com/kalambet/shortlist/internal/fetch"
	"github.com/kalambet/shortlist/internal/ledger"
)

const (
	DefaultConcurrency = 8
	DefaultRetries     = 2
	DefaultTimeout     = 30 * time.Second
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 5 * time.Second
	DefaultBatchSize   = 20
)

// ContentStore persists fetched page bodies.
type ContentStore interface {
	Put(d content.Doc) (string, error)
}

// Config controls crawl limits. Zero values take the defaults above; a
// negative Retries means no retries.
type Config struct {
	Concurrency int
	Retries     int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	BatchSize   int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Summary reports what a run did.
type Summary struct {
	Total     int
	AlreadyOK int
	Pending   int
	Succeeded int
	Failed    int
}

// Orchestrator fetches pending URLs under a fixed concurrency limit,
// retrying failures with capped exponential backoff, and appends every
// terminal outcome to the ledger in small batches.
type Orchestrator struct {
	fetcher fetch.Fetcher
	ledger  ledger.Log
	store   ContentStore
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Orchestrator with defaults applied to cfg.
func New(f fetch.Fetcher, l ledger.Log, s ContentStore, cfg Config) *Orchestrator {
	return &Orchestrator{
		fetcher: f,
		ledger:  l,
		store:   s,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// Backoff returns the delay before retry number attempt (1-based):
// min(base * 2^attempt, cap).
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// Pending returns the items whose URL has no successful ledger record.
func Pending(items []candidate.Item, succeeded map[string]struct{}) []candidate.Item {
	out := make([]candidate.Item, 0, len(items))
	for _, it := range items {
		if _, ok := succeeded[it.URL]; ok {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Run fetches every item not yet marked successful. Items must already be
// deduplicated. Per-URL failures are recorded and never abort the run; only
// a ledger write failure or cancellation of ctx returns an error. Records
// completed before cancellation are still flushed.
func (o *Orchestrator) Run(ctx context.Context, items []candidate.Item) (Summary, error) {
	sum := Summary{Total: len(items)}

	succeeded, err := o.ledger.Succeeded(ctx)
	if err != nil {
		return sum, fmt.Errorf("replaying ledger: %w", err)
	}
	pending := Pending(items, succeeded)
	sum.AlreadyOK = len(items) - len(pending)
	sum.Pending = len(pending)
	if len(pending) == 0 {
		o.logger.Info("nothing to crawl", "total", sum.Total, "already_ok", sum.AlreadyOK)
		return sum, nil
	}
	o.logger.Info("crawl starting",
		"total", sum.Total, "already_ok", sum.AlreadyOK, "pending", sum.Pending,
		"concurrency", o.cfg.Concurrency, "retries", o.cfg.Retries)

	b := &batcher{
		log:  o.ledger,
		size: o.cfg.BatchSize,
		// Completed fetches are persisted even when ctx is cancelled.
		ctx: context.WithoutCancel(ctx),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	var (
		mu   sync.Mutex
		done int
	)
	for _, it := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, ok := o.fetchOne(gctx, it)
			if !ok {
				return nil
			}

			mu.Lock()
			done++
			if rec.OK {
				sum.Succeeded++
			} else {
				sum.Failed++
			}
			progress := fmt.Sprintf("%d/%d", sum.AlreadyOK+done, sum.Total)
			mu.Unlock()

			if rec.OK {
				o.logger.Info("fetched", "progress", progress, "url", rec.URL, "chars", rec.ContentLen, "attempts", rec.Attempts)
			} else {
				o.logger.Warn("fetch failed", "progress", progress, "url", rec.URL, "error", rec.Error, "attempts", rec.Attempts)
			}
			return b.add(rec)
		})
	}

	runErr := g.Wait()
	if err := b.flush(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		return sum, runErr
	}

	o.logger.Info("crawl done", "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

// fetchOne drives one URL through the retry state machine. The second
// return value is false when ctx was cancelled before a terminal outcome.
func (o *Orchestrator) fetchOne(ctx context.Context, it candidate.Item) (ledger.Record, bool) {
	rec := ledger.Record{
		URL:         it.URL,
		Title:       it.Title,
		SourceFile:  it.SourceFile,
		PublishedAt: it.PublishedAt,
	}

	var lastErr error
	for attempt := 0; attempt <= o.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt, o.cfg.BackoffBase, o.cfg.BackoffCap)
			o.logger.Debug("retrying", "url", it.URL, "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return rec, false
			}
		}

		rec.Attempts = attempt + 1
		rec.FetchedAt = o.now().UTC()
		ref, chars, err := o.attempt(ctx, it, rec.FetchedAt)
		if err == nil {
			rec.OK = true
			rec.Error = ""
			rec.ContentRef = ref
			rec.ContentLen = chars
			return rec, true
		}
		if ctx.Err() != nil {
			return rec, false
		}
		lastErr = err
	}

	rec.Error = lastErr.Error()
	return rec, true
}

func (o *Orchestrator) attempt(ctx context.Context, it candidate.Item, fetchedAt time.Time) (string, int, error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	page, err := o.fetcher.Fetch(actx, it.URL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", 0, fmt.Errorf("timeout after %s: %w", o.cfg.Timeout, err)
		}
		return "", 0, err
	}
	body := strings.TrimSpace(page.Markdown)
	if body == "" {
		return "", 0, fetch.ErrEmptyContent
	}

	title := it.Title
	if title == "" {
		title = page.Title
	}
	ref, err := o.store.Put(content.Doc{URL: it.URL, Title: title, FetchedAt: fetchedAt, Body: body})
	if err != nil {
		return "", 0, fmt.Errorf("storing content: %w", err)
	}
	return ref, utf8.RuneCountInString(body), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// batcher buffers completed records and appends them to the ledger once
// size records are pending. Records keep completion order.
type batcher struct {
	mu   sync.Mutex
	log  ledger.Log
	ctx  context.Context
	size int
	buf  []ledger.Record
}

func (b *batcher) add(r ledger.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, r)
	if len(b.buf) < b.size {
		return nil
	}
	return b.flushLocked()
}

func (b *batcher) flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *batcher) flushLocked() error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := b.log.Append(b.ctx, b.buf); err != nil {
		return fmt.Errorf("appending %d records to ledger: %w", len(b.buf), err)
	}
	b.buf = nil
	return nil
}
