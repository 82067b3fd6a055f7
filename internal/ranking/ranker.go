package ranking

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
)

const (
	DefaultTopK     = 60
	DefaultFinalN   = 40
	DefaultMaxBonus = 0.1
)

// Rescorer computes a bonus for each item of the provisional head. It must
// return exactly one bonus per item, in order.
type Rescorer interface {
	Name() string
	Rescore(ctx context.Context, head []Item) ([]float64, error)
}

// Config bounds the ranking stage. TopK <= 0 disables re-scoring and
// FinalN <= 0 keeps every item.
type Config struct {
	TopK     int
	FinalN   int
	MaxBonus float64
}

// Ranker orders scored items. Only the TopK items by raw score are offered
// to the Rescorer; items just outside the head are never reconsidered, so
// the order beyond K is approximate by construction.
type Ranker struct {
	rescorer Rescorer
	cfg      Config
	logger   *slog.Logger
}

// NewRanker returns a Ranker. A nil rescorer skips the re-score stage.
func NewRanker(r Rescorer, cfg Config) *Ranker {
	return &Ranker{rescorer: r, cfg: cfg, logger: slog.Default()}
}

// RescorerName names the re-score strategy, or "" when there is none.
func (r *Ranker) RescorerName() string {
	if r.rescorer == nil {
		return ""
	}
	return r.rescorer.Name()
}

type entry struct {
	item Item
	seq  int
}

// Rank sets Score and ScoreLLM on every item and returns at most FinalN of
// them ordered by Score descending. Ties keep input order. The input slice
// is not modified.
func (r *Ranker) Rank(ctx context.Context, items []Item) []Item {
	entries := make([]entry, len(items))
	for i, it := range items {
		it.Reasons = slices.Clone(it.Reasons)
		it.ScoreLLM = 0
		it.Score = it.ScoreRaw
		entries[i] = entry{item: it, seq: i}
	}

	if r.rescorer != nil && r.cfg.TopK > 0 && len(entries) > 0 {
		sortBy(entries, func(e entry) float64 { return e.item.ScoreRaw })
		r.applyBonus(ctx, entries[:min(r.cfg.TopK, len(entries))])
	}

	sortBy(entries, func(e entry) float64 { return e.item.Score })

	n := len(entries)
	if r.cfg.FinalN > 0 && r.cfg.FinalN < n {
		n = r.cfg.FinalN
	}
	out := make([]Item, n)
	for i := range out {
		out[i] = entries[i].item
	}
	return out
}

func (r *Ranker) applyBonus(ctx context.Context, head []entry) {
	items := make([]Item, len(head))
	for i, e := range head {
		items[i] = e.item
	}

	bonuses, err := r.rescorer.Rescore(ctx, items)
	if err == nil && len(bonuses) != len(head) {
		r.logger.Warn("rescore returned wrong number of bonuses", "strategy", r.rescorer.Name(), "want", len(head), "got", len(bonuses))
		return
	}
	if err != nil {
		r.logger.Warn("rescore failed, keeping raw scores", "strategy", r.rescorer.Name(), "error", err)
		return
	}

	for i := range head {
		b := clampBonus(bonuses[i], r.cfg.MaxBonus)
		head[i].item.ScoreLLM = b
		head[i].item.Score = head[i].item.ScoreRaw + b
		if b > 0 {
			head[i].item.Reasons = append(head[i].item.Reasons, BonusReason)
		}
	}
}

func clampBonus(b, limit float64) float64 {
	if math.IsNaN(b) || b < 0 {
		return 0
	}
	if b > limit {
		return limit
	}
	return b
}

// sortBy orders entries by key descending, then by input position.
func sortBy(entries []entry, key func(entry) float64) {
	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(key(b), key(a)); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}
