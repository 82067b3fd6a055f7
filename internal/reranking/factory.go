package reranking

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/shortlist/internal/engine"
	"github.com/kalambet/shortlist/internal/ranking"
)

const (
	BackendLength = "length"
	BackendOllama = "ollama"
	BackendGemini = "gemini"
)

// Options selects and configures a re-score strategy.
type Options struct {
	Enabled      bool
	Backend      string
	Profile      string
	MaxBonus     float64
	Timeout      time.Duration
	Engine       engine.Engine
	OllamaModel  string
	GeminiAPIKey string
	GeminiModel  string
}

// New returns the strategy named by opts.Backend, or nil when re-scoring is
// disabled. An empty backend means the length bonus.
func New(ctx context.Context, opts Options) (ranking.Rescorer, error) {
	if !opts.Enabled {
		return nil, nil
	}
	switch opts.Backend {
	case "", BackendLength:
		return LengthBonus{}, nil
	case BackendOllama:
		if opts.Engine == nil {
			return nil, fmt.Errorf("rescore backend %q needs a local engine", opts.Backend)
		}
		if opts.OllamaModel == "" {
			return nil, fmt.Errorf("rescore backend %q: ollama.rescore_model is not set", opts.Backend)
		}
		c := EngineCompleter{Engine: opts.Engine, Model: opts.OllamaModel}
		return NewLLMRescorer(BackendOllama, c, opts.Profile, opts.MaxBonus, opts.Timeout), nil
	case BackendGemini:
		c, err := NewGeminiCompleter(ctx, opts.GeminiAPIKey, opts.GeminiModel)
		if err != nil {
			return nil, err
		}
		return NewLLMRescorer(BackendGemini, c, opts.Profile, opts.MaxBonus, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown rescore backend %q (want length, ollama or gemini)", opts.Backend)
	}
}
