package reranking

import (
	"context"
	"math"

	"github.com/kalambet/shortlist/internal/ranking"
)

// LengthBonus is the offline strategy: a tiny bonus growing with the log of
// the content length, capped at 0.1.
type LengthBonus struct{}

func (LengthBonus) Name() string { return BackendLength }

func (LengthBonus) Rescore(_ context.Context, head []ranking.Item) ([]float64, error) {
	out := make([]float64, len(head))
	for i, it := range head {
		out[i] = math.Min(0.1, math.Log1p(float64(max(it.Chars, 0)))/10000)
	}
	return out, nil
}
