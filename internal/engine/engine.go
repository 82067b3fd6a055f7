// Package engine abstracts the local inference backend used for embeddings
// and LLM re-scoring.
package engine

import (
	"context"

	"github.com/kalambet/shortlist/internal/ollama"
)

type (
	Message        = ollama.Message
	Schema         = ollama.Schema
	SchemaProperty = ollama.SchemaProperty
	PullProgress   = ollama.PullProgress
)

// Engine is a local model server. Callers depend on this rather than on the
// Ollama client so tests can substitute a fake.
type Engine interface {
	// Chat returns the assistant reply. A non-nil schema requests JSON output.
	Chat(ctx context.Context, model string, messages []Message, schema *Schema) (string, error)

	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, model string, texts ...string) ([][]float32, error)

	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// NewOllama returns an Engine backed by the Ollama server at baseURL.
func NewOllama(baseURL string) Engine {
	return ollama.New(baseURL)
}
