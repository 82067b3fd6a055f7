package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"
)

type fixedRescorer struct {
	bonus float64
	err   error
	calls [][]string
}

func (f *fixedRescorer) Name() string { return "fixed" }

func (f *fixedRescorer) Rescore(_ context.Context, head []Item) ([]float64, error) {
	urls := make([]string, len(head))
	for i, it := range head {
		urls[i] = it.URL
	}
	f.calls = append(f.calls, urls)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(head))
	for i := range out {
		out[i] = f.bonus
	}
	return out, nil
}

func items(scores ...float64) []Item {
	out := make([]Item, len(scores))
	for i, s := range scores {
		out[i] = Item{URL: fmt.Sprintf("u%d", i), ScoreRaw: s}
	}
	return out
}

func urls(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.URL
	}
	return out
}

func TestFuse(t *testing.T) {
	s := Signals{Keyword: 1, Domain: 0.6, Recency: 0.5, Length: 1}
	want := 0.5*1 + 0.2*0.6 + 0.2*0.5 + 0.1*1
	if got := DefaultWeights().Fuse(s); math.Abs(got-want) > 1e-9 {
		t.Errorf("Fuse = %v, want %v", got, want)
	}

	emb := 0.8
	s.Embedding = &emb
	w := Weights{Embedding: 0.5}
	if got := w.Fuse(s); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("Fuse with embedding = %v, want 0.4", got)
	}
}

func TestRank_NoRescorer(t *testing.T) {
	r := NewRanker(nil, Config{TopK: 60, FinalN: 3, MaxBonus: 0.1})
	got := r.Rank(context.Background(), items(0.1, 0.9, 0.5, 0.7))

	if want := []string{"u1", "u3", "u2"}; !slices.Equal(urls(got), want) {
		t.Errorf("order = %v, want %v", urls(got), want)
	}
	for _, it := range got {
		if it.ScoreLLM != 0 || it.Score != it.ScoreRaw {
			t.Errorf("item %s: score_llm %v score %v raw %v", it.URL, it.ScoreLLM, it.Score, it.ScoreRaw)
		}
	}
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	r := NewRanker(nil, Config{})
	in := items(0.5, 0.5, 0.9, 0.5)
	for i := 0; i < 5; i++ {
		got := r.Rank(context.Background(), in)
		if want := []string{"u2", "u0", "u1", "u3"}; !slices.Equal(urls(got), want) {
			t.Fatalf("run %d order = %v, want %v", i, urls(got), want)
		}
	}
}

func TestRank_TopKBonusOnlyForHead(t *testing.T) {
	rs := &fixedRescorer{bonus: 0.05}
	r := NewRanker(rs, Config{TopK: 2, FinalN: 10, MaxBonus: 0.1})
	got := r.Rank(context.Background(), items(0.1, 0.5, 0.3, 0.9, 0.2))

	if len(rs.calls) != 1 || !slices.Equal(rs.calls[0], []string{"u3", "u1"}) {
		t.Fatalf("rescorer saw %v, want head [u3 u1]", rs.calls)
	}
	bonused := 0
	for _, it := range got {
		if it.ScoreLLM != 0 {
			bonused++
			if !slices.Contains(it.Reasons, BonusReason) {
				t.Errorf("item %s has bonus but no %q reason", it.URL, BonusReason)
			}
			if math.Abs(it.Score-(it.ScoreRaw+0.05)) > 1e-9 {
				t.Errorf("item %s score = %v, want raw + bonus", it.URL, it.Score)
			}
		} else if slices.Contains(it.Reasons, BonusReason) {
			t.Errorf("tail item %s carries bonus reason", it.URL)
		}
	}
	if bonused != 2 {
		t.Errorf("items with bonus = %d, want 2", bonused)
	}
}

func TestRank_OutsideHeadKeepsZeroBonus(t *testing.T) {
	// u2 sits just outside K=2 and is never offered to the rescorer.
	rs := &fixedRescorer{bonus: 0.1}
	r := NewRanker(rs, Config{TopK: 2, MaxBonus: 0.1})
	got := r.Rank(context.Background(), items(0.50, 0.49, 0.48))

	if want := []string{"u0", "u1", "u2"}; !slices.Equal(urls(got), want) {
		t.Errorf("order = %v, want %v", urls(got), want)
	}
	if got[2].ScoreLLM != 0 {
		t.Errorf("item outside head got bonus %v", got[2].ScoreLLM)
	}
}

func TestRank_BonusClamped(t *testing.T) {
	tests := []struct {
		name  string
		bonus float64
		want  float64
	}{
		{"above max", 5, 0.1},
		{"zero", 0, 0},
		{"negative", -1, 0},
		{"nan", math.NaN(), 0},
		{"within", 0.04, 0.04},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRanker(&fixedRescorer{bonus: tt.bonus}, Config{TopK: 5, MaxBonus: 0.1})
			got := r.Rank(context.Background(), items(0.3, 0.2))
			for _, it := range got {
				if it.ScoreLLM != tt.want {
					t.Errorf("%s: ScoreLLM = %v, want %v", it.URL, it.ScoreLLM, tt.want)
				}
				if hasReason := slices.Contains(it.Reasons, BonusReason); hasReason != (tt.want > 0) {
					t.Errorf("%s: reasons = %v, want %q only for a positive bonus", it.URL, it.Reasons, BonusReason)
				}
			}
		})
	}
}

type sliceRescorer []float64

func (s sliceRescorer) Name() string { return "slice" }

func (s sliceRescorer) Rescore(context.Context, []Item) ([]float64, error) {
	return s, nil
}

func TestRank_PartialRescoreMarksOnlyRatedItems(t *testing.T) {
	// The second head item could not be rated and carries a zero bonus.
	r := NewRanker(sliceRescorer{0.05, 0}, Config{TopK: 2, MaxBonus: 0.1})
	got := r.Rank(context.Background(), items(0.2, 0.4))

	byURL := map[string]Item{}
	for _, it := range got {
		byURL[it.URL] = it
	}
	if it := byURL["u1"]; it.ScoreLLM != 0.05 || !slices.Contains(it.Reasons, BonusReason) {
		t.Errorf("rated item = %+v, want bonus 0.05 with %q", it, BonusReason)
	}
	if it := byURL["u0"]; it.ScoreLLM != 0 || slices.Contains(it.Reasons, BonusReason) {
		t.Errorf("unrated item = %+v, want no bonus and no %q", it, BonusReason)
	}
}

func TestRank_RescoreErrorDegrades(t *testing.T) {
	r := NewRanker(&fixedRescorer{err: errors.New("model offline")}, Config{TopK: 2, MaxBonus: 0.1})
	got := r.Rank(context.Background(), items(0.2, 0.4))

	for _, it := range got {
		if it.ScoreLLM != 0 || it.Score != it.ScoreRaw || slices.Contains(it.Reasons, BonusReason) {
			t.Errorf("item %+v, want untouched after rescore failure", it)
		}
	}
	if want := []string{"u1", "u0"}; !slices.Equal(urls(got), want) {
		t.Errorf("order = %v, want %v", urls(got), want)
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	in := items(0.1, 0.2)
	in[0].Reasons = []string{"x"}
	NewRanker(&fixedRescorer{bonus: 0.1}, Config{TopK: 2, MaxBonus: 0.1}).Rank(context.Background(), in)
	if in[0].Score != 0 || len(in[0].Reasons) != 1 {
		t.Errorf("input mutated: %+v", in[0])
	}
}

func TestRank_Empty(t *testing.T) {
	rs := &fixedRescorer{}
	got := NewRanker(rs, Config{TopK: 5}).Rank(context.Background(), nil)
	if len(got) != 0 || len(rs.calls) != 0 {
		t.Errorf("got %v, calls %v; want nothing", got, rs.calls)
	}
}

func TestReasons(t *testing.T) {
	emb := 0.42
	tests := []struct {
		name  string
		s     Signals
		chars int
		want  []string
	}{
		{"plain", Signals{Domain: 0.6, Recency: 0.5}, 1000, []string{}},
		{"keywords and prefer", Signals{Keyword: 0.693, Domain: 1, Recency: 0.9}, 1000,
			[]string{"keywords+:0.69", "prefer-domain:example.com", "very-recent"}},
		{"avoid and short", Signals{Domain: 0}, 10, []string{"avoid-domain:example.com", "too-short"}},
		{"long with embedding", Signals{Domain: 0.6, Embedding: &emb}, 5000, []string{"too-long", "embed:0.42"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reasons(tt.s, "example.com", tt.chars, 500, 4000)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Reasons = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("  line one\r\nline two  ", 700); got != "line one  line two" {
		t.Errorf("Snippet = %q", got)
	}
	long := strings.Repeat("ä", 10) + "   " + strings.Repeat("b", 10)
	if got := Snippet(long, 12); got != strings.Repeat("ä", 10)+"…" {
		t.Errorf("Snippet cut = %q", got)
	}
	if got := Snippet("short", 0); got != "short" {
		t.Errorf("Snippet with no limit = %q", got)
	}
}
