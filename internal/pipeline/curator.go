// Package pipeline runs the curation stage: it reads successful ledger
// records and their stored pages, scores every page and hands the result to
// the ranker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/shortlist/internal/candidate"
	"github.com/kalambet/shortlist/internal/embedding"
	"github.com/kalambet/shortlist/internal/ledger"
	"github.com/kalambet/shortlist/internal/profile"
	"github.com/kalambet/shortlist/internal/ranking"
	"github.com/kalambet/shortlist/internal/scoring"
)

var (
	// ErrNoRecords means the ledger is empty; crawl first.
	ErrNoRecords = errors.New("no fetch records; run crawl first")

	// ErrNothingScored means no successful record had readable content.
	ErrNothingScored = errors.New("no scorable pages; check filters or pages")
)

// PageReader returns the stored body for a content ref.
type PageReader interface {
	Read(ref string) (string, error)
}

// Similarity scores documents against the profile text.
type Similarity interface {
	Similarities(ctx context.Context, profile string, docs []string) ([]float64, error)
}

// Result describes one curation run.
type Result struct {
	Records int
	Scored  int
	Skipped int
	Items   []ranking.Item
}

// Curator scores fetched pages against an interest profile.
type Curator struct {
	ledger  ledger.Log
	pages   PageReader
	profile profile.Profile
	ranker  *ranking.Ranker
	sim     Similarity
	include []scoring.Pattern
	exclude []scoring.Pattern
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Curator.
type Option func(*Curator)

// WithSimilarity enables the embedding signal.
func WithSimilarity(s Similarity) Option {
	return func(c *Curator) { c.sim = s }
}

// WithClock overrides the reference time for recency.
func WithClock(now func() time.Time) Option {
	return func(c *Curator) { c.now = now }
}

// NewCurator returns a Curator. Keyword patterns are compiled once here.
func NewCurator(l ledger.Log, pages PageReader, p profile.Profile, r *ranking.Ranker, opts ...Option) *Curator {
	c := &Curator{
		ledger:  l,
		pages:   pages,
		profile: p,
		ranker:  r,
		include: scoring.CompilePatterns(p.IncludeKeywords),
		exclude: scoring.CompilePatterns(p.ExcludeKeywords),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RescorerName names the ranker's re-score strategy.
func (c *Curator) RescorerName() string {
	return c.ranker.RescorerName()
}

// Curate scores and ranks every successfully fetched page.
func (c *Curator) Curate(ctx context.Context) (Result, error) {
	res, err := c.Score(ctx)
	if err != nil {
		return res, err
	}
	res.Items = c.ranker.Rank(ctx, res.Items)
	c.logger.Info("curated", "top", len(res.Items), "scored", res.Scored, "skipped", res.Skipped)
	return res, nil
}

type page struct {
	rec  ledger.Record
	body string
}

// Score computes signals and the fused raw score for each page, in ledger
// order. Pages whose content cannot be read are skipped.
func (c *Curator) Score(ctx context.Context) (Result, error) {
	records, err := c.ledger.Records(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading ledger: %w", err)
	}
	res := Result{Records: len(records)}
	if len(records) == 0 {
		return res, ErrNoRecords
	}

	var pages []page
	for _, rec := range ledger.Successful(records) {
		if rec.ContentRef == "" {
			res.Skipped++
			continue
		}
		body, err := c.pages.Read(rec.ContentRef)
		if err != nil || strings.TrimSpace(body) == "" {
			c.logger.Debug("skipping page", "url", rec.URL, "ref", rec.ContentRef, "error", err)
			res.Skipped++
			continue
		}
		pages = append(pages, page{rec: rec, body: body})
	}
	if len(pages) == 0 {
		return res, ErrNothingScored
	}

	sims := c.similarities(ctx, pages)
	now := c.now()
	res.Items = make([]ranking.Item, len(pages))
	for i, pg := range pages {
		var sim *float64
		if sims != nil {
			sim = &sims[i]
		}
		res.Items[i] = c.scorePage(pg, sim, now)
	}
	res.Scored = len(res.Items)
	return res, nil
}

func (c *Curator) scorePage(pg page, sim *float64, now time.Time) ranking.Item {
	p := c.profile
	rec := pg.rec
	chars := utf8.RuneCountInString(pg.body)
	domain := candidate.Domain(rec.URL)

	basis := rec.PublishedAt
	if p.UseFetchedAt {
		basis = &rec.FetchedAt
	}

	s := ranking.Signals{
		Keyword:   scoring.KeywordScore(rec.Title+"\n"+pg.body, c.include, c.exclude),
		Domain:    scoring.DomainScore(domain, p.PreferDomains, p.AvoidDomains),
		Recency:   scoring.RecencyAt(basis, now, p.HalfLifeDays, p.HardDaysCutoff),
		Length:    scoring.LengthScore(chars, p.MinChars, p.MaxChars),
		Embedding: sim,
	}

	fetchedAt := rec.FetchedAt
	return ranking.Item{
		ID:           candidate.ID(rec.URL),
		URL:          rec.URL,
		Title:        rec.Title,
		Domain:       domain,
		Source:       string(candidate.ParseSource("", rec.SourceFile)),
		ScoreRaw:     p.Weights.Fuse(s),
		Signals:      s,
		Reasons:      ranking.Reasons(s, domain, chars, p.MinChars, p.MaxChars),
		FetchedAt:    &fetchedAt,
		PublishedAt:  rec.PublishedAt,
		MarkdownPath: rec.ContentRef,
		Chars:        chars,
		Snippet:      ranking.Snippet(pg.body, p.SnippetChars),
	}
}

// similarities returns nil when the embedding signal is off or failed.
func (c *Curator) similarities(ctx context.Context, pages []page) []float64 {
	if c.sim == nil {
		return nil
	}
	docs := make([]string, len(pages))
	for i, pg := range pages {
		docs[i] = embedding.DocumentText(pg.rec.Title, pg.body)
	}
	sims, err := c.sim.Similarities(ctx, c.profile.Text(), docs)
	if err != nil || len(sims) != len(docs) {
		c.logger.Warn("embedding signal unavailable, continuing without it", "error", err)
		return nil
	}
	return sims
}
