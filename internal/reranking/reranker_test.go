package reranking

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/shortlist/internal/engine"
	"github.com/kalambet/shortlist/internal/ranking"
)

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func head(titles ...string) []ranking.Item {
	out := make([]ranking.Item, len(titles))
	for i, t := range titles {
		out[i] = ranking.Item{Title: t, URL: "https://example.com/" + t, Chars: 1000}
	}
	return out
}

func TestLengthBonus(t *testing.T) {
	items := []ranking.Item{{Chars: 0}, {Chars: 1000}, {Chars: -5}}
	got, err := LengthBonus{}.Rescore(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0 || got[2] != 0 {
		t.Errorf("zero/negative length bonus = %v", got)
	}
	if want := math.Log1p(1000) / 10000; math.Abs(got[1]-want) > 1e-12 {
		t.Errorf("bonus = %v, want %v", got[1], want)
	}
}

func TestLLMRescorer_ScalesRating(t *testing.T) {
	c := completerFunc(func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Title: good"):
			return `{"score": 1.0}`, nil
		case strings.Contains(prompt, "Title: half"):
			return "Sure! ```json\n{\"score\": 0.5}\n```", nil
		default:
			return `{"score": 7}`, nil
		}
	})
	r := NewLLMRescorer("test", c, "go concurrency", 0.1, time.Second)

	got, err := r.Rescore(context.Background(), head("good", "half", "wild"))
	if err != nil {
		t.Fatalf("Rescore: %v", err)
	}
	want := []float64{0.1, 0.05, 0.1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("bonus[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLLMRescorer_PartialFailure(t *testing.T) {
	c := completerFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Title: bad") {
			return "", errors.New("model crashed")
		}
		return `{"score": 0.8}`, nil
	})
	got, err := NewLLMRescorer("test", c, "", 0.1, time.Second).Rescore(context.Background(), head("ok", "bad"))
	if err != nil {
		t.Fatalf("Rescore: %v", err)
	}
	if math.Abs(got[0]-0.08) > 1e-12 || got[1] != 0 {
		t.Errorf("bonuses = %v, want [0.08 0]", got)
	}
}

func TestLLMRescorer_PartialFailureThroughRanker(t *testing.T) {
	c := completerFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Title: bad") {
			return "", errors.New("model crashed")
		}
		return `{"score": 0.8}`, nil
	})
	in := head("ok", "bad")
	in[0].ScoreRaw, in[1].ScoreRaw = 0.5, 0.4
	r := ranking.NewRanker(NewLLMRescorer("test", c, "", 0.1, time.Second), ranking.Config{TopK: 2, MaxBonus: 0.1})

	for _, it := range r.Rank(context.Background(), in) {
		marked := slices.Contains(it.Reasons, ranking.BonusReason)
		switch it.Title {
		case "ok":
			if !marked || math.Abs(it.ScoreLLM-0.08) > 1e-12 {
				t.Errorf("rated item = %+v, want bonus 0.08 with reason", it)
			}
		case "bad":
			if marked || it.ScoreLLM != 0 {
				t.Errorf("failed item = %+v, want no bonus and no reason", it)
			}
		}
	}
}

func TestLLMRescorer_AllFail(t *testing.T) {
	c := completerFunc(func(context.Context, string) (string, error) {
		return "no idea", nil
	})
	_, err := NewLLMRescorer("test", c, "", 0.1, time.Second).Rescore(context.Background(), head("a", "b"))
	if err == nil {
		t.Fatal("expected error when no item could be rated")
	}
}

func TestLLMRescorer_Timeout(t *testing.T) {
	c := completerFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	start := time.Now()
	_, err := NewLLMRescorer("test", c, "", 0.1, 20*time.Millisecond).Rescore(context.Background(), head("a", "b", "c", "d"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Rescore took %v, want bounded by timeout", time.Since(start))
	}
}

func TestLLMRescorer_BoundedConcurrency(t *testing.T) {
	var inflight, peak atomic.Int32
	c := completerFunc(func(context.Context, string) (string, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return `{"score": 0.1}`, nil
	})
	r := NewLLMRescorer("test", c, "", 0.1, time.Second)
	if _, err := r.Rescore(context.Background(), head("a", "b", "c", "d", "e", "f", "g", "h")); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p > defaultConcurrency {
		t.Errorf("peak concurrency = %d, want <= %d", p, defaultConcurrency)
	}
}

func TestBuildPrompt(t *testing.T) {
	it := ranking.Item{Title: "T", URL: "https://x.dev", Snippet: strings.Repeat("s", maxPromptSnippet+50)}
	p := buildPrompt("distributed systems", it)
	for _, want := range []string{"Interests: distributed systems", "Title: T", "URL: https://x.dev", `{"score": <float>}`} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(p, strings.Repeat("s", maxPromptSnippet+1)) {
		t.Error("snippet not truncated in prompt")
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{"plain", `{"score": 0.7}`, 0.7, false},
		{"fenced", "```json\n{\"score\": 0.3}\n```", 0.3, false},
		{"chatter", `Here you go: {"score": 0.9} hope it helps`, 0.9, false},
		{"no object", "0.9", 0, true},
		{"missing field", `{"rating": 1}`, 0, true},
		{"bad json", `{"score": }`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScore(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

type chatEngine struct {
	mu     sync.Mutex
	models []string
	schema *engine.Schema
}

func (e *chatEngine) Chat(_ context.Context, model string, _ []engine.Message, schema *engine.Schema) (string, error) {
	e.mu.Lock()
	e.models = append(e.models, model)
	e.schema = schema
	e.mu.Unlock()
	return `{"score": 0.5}`, nil
}
func (e *chatEngine) Embed(context.Context, string, ...string) ([][]float32, error) { return nil, nil }
func (e *chatEngine) IsRunning(context.Context) bool                               { return true }
func (e *chatEngine) HasModel(context.Context, string) bool                         { return true }
func (e *chatEngine) PullModel(context.Context, string, func(engine.PullProgress)) error {
	return nil
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	r, err := New(ctx, Options{Enabled: false})
	if err != nil || r != nil {
		t.Errorf("disabled: got %v, %v; want nil, nil", r, err)
	}

	r, err = New(ctx, Options{Enabled: true})
	if err != nil || r.Name() != BackendLength {
		t.Errorf("default backend: got %v, %v", r, err)
	}

	eng := &chatEngine{}
	r, err = New(ctx, Options{Enabled: true, Backend: BackendOllama, Engine: eng, OllamaModel: "llama3.2", MaxBonus: 0.1})
	if err != nil {
		t.Fatalf("ollama backend: %v", err)
	}
	got, err := r.Rescore(ctx, head("a"))
	if err != nil || math.Abs(got[0]-0.05) > 1e-12 {
		t.Errorf("ollama rescore = %v, %v; want [0.05]", got, err)
	}
	if len(eng.models) != 1 || eng.models[0] != "llama3.2" || eng.schema == nil {
		t.Errorf("engine calls = %v, schema = %v", eng.models, eng.schema)
	}

	if _, err := New(ctx, Options{Enabled: true, Backend: BackendOllama, Engine: eng}); err == nil {
		t.Error("ollama backend without model: expected error")
	}
	if _, err := New(ctx, Options{Enabled: true, Backend: BackendGemini}); err == nil {
		t.Error("gemini backend without api key: expected error")
	}
	if _, err := New(ctx, Options{Enabled: true, Backend: "magic"}); err == nil {
		t.Error("unknown backend: expected error")
	}
}
