// Package embedding computes the optional embedding-similarity signal:
// cosine similarity between the interest profile text and each document.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/shortlist/internal/engine"
	"github.com/kalambet/shortlist/internal/scoring"
)

const (
	// MaxDocRunes bounds how much of a body is embedded.
	MaxDocRunes = 4000

	defaultBatchSize   = 16
	defaultConcurrency = 4
)

// Cache persists vectors by text hash and model.
type Cache interface {
	GetVectors(ctx context.Context, model string, keys []string) (map[string][]float32, error)
	PutVectors(ctx context.Context, model string, vectors map[string][]float32) error
}

// Embedder turns texts into vectors through an engine.Engine.
type Embedder struct {
	engine      engine.Engine
	model       string
	cache       Cache
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithCache reuses vectors of texts embedded by earlier runs.
func WithCache(c Cache) Option {
	return func(e *Embedder) { e.cache = c }
}

// NewEmbedder returns an Embedder using model on e.
func NewEmbedder(e engine.Engine, model string, opts ...Option) *Embedder {
	emb := &Embedder{
		engine:      e,
		model:       model,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(emb)
	}
	return emb
}

// CacheKey identifies a text in the cache.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedBatch returns one vector per text, in input order. Cached vectors are
// reused; cache failures only cost a recompute.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.cache == nil {
		return e.embed(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = CacheKey(t)
	}
	cached, err := e.cache.GetVectors(ctx, e.model, keys)
	if err != nil {
		e.logger.Warn("embedding cache read failed", "error", err)
		cached = nil
	}

	results := make([][]float32, len(texts))
	var (
		missing []string
		at      []int
	)
	for i, k := range keys {
		if v, ok := cached[k]; ok {
			results[i] = v
			continue
		}
		missing = append(missing, texts[i])
		at = append(at, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	fresh, err := e.embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	store := make(map[string][]float32, len(fresh))
	for j, v := range fresh {
		results[at[j]] = v
		store[keys[at[j]]] = v
	}
	if err := e.cache.PutVectors(ctx, e.model, store); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}
	e.logger.Debug("embedded texts", "cached", len(texts)-len(missing), "computed", len(missing))
	return results, nil
}

// embed sends texts in chunks of batchSize with at most concurrency chunks
// in flight.
func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.engine.Embed(gctx, e.model, texts[start:end]...)
			if err != nil {
				return fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding texts %d-%d: got %d vectors", start, end-1, len(vecs))
			}
			copy(results[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Similarities embeds profile and docs and returns the cosine similarity of
// each doc to the profile, clamped to [0, 1].
func (e *Embedder) Similarities(ctx context.Context, profile string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	vecs, err := e.EmbedBatch(ctx, append([]string{profile}, docs...))
	if err != nil {
		return nil, err
	}
	sims := make([]float64, len(docs))
	for i := range docs {
		sims[i] = scoring.Cosine(vecs[0], vecs[i+1])
	}
	return sims, nil
}

// DocumentText is the text embedded for a page: its title followed by the
// first MaxDocRunes runes of the body.
func DocumentText(title, body string) string {
	r := []rune(body)
	if len(r) > MaxDocRunes {
		body = string(r[:MaxDocRunes])
	}
	return title + "\n" + body
}
