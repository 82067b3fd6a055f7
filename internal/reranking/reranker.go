// Package reranking provides the strategies that compute the bounded bonus
// for the provisional top-K of a curation run.
package reranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/shortlist/internal/engine"
	"github.com/kalambet/shortlist/internal/ranking"
)

const (
	defaultConcurrency = 3
	defaultTimeout     = 60 * time.Second
	maxPromptSnippet   = 1200
)

// Completer sends a single prompt to a language model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMRescorer asks a language model to rate each head item against the
// interest profile. The 0..1 rating is scaled by maxBonus. Items whose
// rating fails get no bonus; the call fails only when every rating failed.
type LLMRescorer struct {
	name        string
	completer   Completer
	profile     string
	maxBonus    float64
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewLLMRescorer wraps c. profile describes what the reader is looking for.
func NewLLMRescorer(name string, c Completer, profile string, maxBonus float64, timeout time.Duration) *LLMRescorer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LLMRescorer{
		name:        name,
		completer:   c,
		profile:     profile,
		maxBonus:    maxBonus,
		timeout:     timeout,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
}

func (r *LLMRescorer) Name() string { return r.name }

// Close releases the completer when it holds a client connection.
func (r *LLMRescorer) Close() error {
	if c, ok := r.completer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (r *LLMRescorer) Rescore(ctx context.Context, head []ranking.Item) ([]float64, error) {
	bonuses := make([]float64, len(head))
	if len(head) == 0 {
		return bonuses, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sem := make(chan struct{}, r.concurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rated    int
		firstErr error
	)
	for i, it := range head {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			rating, err := r.rate(timeoutCtx, it)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Debug("rescore: rating failed", "url", it.URL, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			rated++
			bonuses[i] = rating * r.maxBonus
		}()
	}
	wg.Wait()

	if rated == 0 {
		if firstErr == nil {
			firstErr = timeoutCtx.Err()
		}
		return nil, fmt.Errorf("%s: no item could be rated: %w", r.name, firstErr)
	}
	return bonuses, nil
}

func (r *LLMRescorer) rate(ctx context.Context, it ranking.Item) (float64, error) {
	resp, err := r.completer.Complete(ctx, buildPrompt(r.profile, it))
	if err != nil {
		return 0, err
	}
	score, err := parseScore(resp)
	if err != nil {
		return 0, err
	}
	return min(max(score, 0), 1), nil
}

func buildPrompt(profile string, it ranking.Item) string {
	snippet := it.Snippet
	if r := []rune(snippet); len(r) > maxPromptSnippet {
		snippet = string(r[:maxPromptSnippet])
	}
	var b strings.Builder
	b.WriteString("Rate how relevant the following page is to the reader's interests on a scale of 0.0 to 1.0.\n")
	if profile != "" {
		b.WriteString("Interests: " + profile + "\n")
	}
	b.WriteString("Title: " + it.Title + "\n")
	b.WriteString("URL: " + it.URL + "\n")
	b.WriteString("Excerpt: " + snippet + "\n")
	b.WriteString(`Respond with only a JSON object: {"score": <float>}`)
	return b.String()
}

// parseScore extracts {"score": x} from a model reply. Small models often
// wrap the object in code fences or add chatter around it.
func parseScore(resp string) (float64, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = strings.TrimPrefix(s[idx+3:], "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return 0, errors.New("no JSON object in response")
	}

	var obj struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return 0, fmt.Errorf("unmarshal score: %w", err)
	}
	if obj.Score == nil {
		return 0, errors.New("response has no score field")
	}
	return *obj.Score, nil
}

// EngineCompleter completes prompts with a chat model on a local engine,
// requesting JSON output.
type EngineCompleter struct {
	Engine engine.Engine
	Model  string
}

var scoreSchema = &engine.Schema{
	Type: "object",
	Properties: map[string]engine.SchemaProperty{
		"score": {Type: "number", Description: "Relevance score 0.0-1.0"},
	},
	Required: []string{"score"},
}

func (c EngineCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Engine.Chat(ctx, c.Model, []engine.Message{{Role: "user", Content: prompt}}, scoreSchema)
}
