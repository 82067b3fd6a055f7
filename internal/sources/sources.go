// Package sources produces candidate files from RSS feeds, Google Custom
// Search and the YouTube Data API.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kalambet/shortlist/internal/candidate"
)

// DefaultLimit caps how many candidates one producer writes.
const DefaultLimit = 50

// Producer discovers candidates from one upstream.
type Producer interface {
	Source() candidate.Source
	Fetch(ctx context.Context) ([]candidate.Item, error)
}

// OutputPath returns <dataDir>/data/<source>_data.jsonl.
func OutputPath(dataDir string, src candidate.Source) string {
	return filepath.Join(dataDir, "data", string(src)+"_data.jsonl")
}

// Collect runs p and writes its candidates to OutputPath(dataDir, ...).
// It returns the written path and the number of items.
func Collect(ctx context.Context, p Producer, dataDir string) (string, int, error) {
	items, err := p.Fetch(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("fetching %s: %w", p.Source(), err)
	}
	path := OutputPath(dataDir, p.Source())
	if err := candidate.WriteFile(path, items); err != nil {
		return "", 0, fmt.Errorf("writing %s: %w", path, err)
	}
	slog.Info("candidates saved", "source", p.Source(), "count", len(items), "path", path)
	return path, len(items), nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
