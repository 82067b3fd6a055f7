package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/kalambet/shortlist/internal/candidate"
)

const (
	// Custom Search serves at most 10 results per page.
	googlePageSize  = 10
	googleLastStart = 31
	googlePause     = 200 * time.Millisecond
	googleRecency   = "d7"
)

// Google pages through Custom Search results for one query.
type Google struct {
	svc    *customsearch.Service
	cx     string
	query  string
	pause  time.Duration
	logger *slog.Logger
}

// NewGoogle creates a Custom Search producer. opts are passed to the API
// client after the API key.
func NewGoogle(ctx context.Context, apiKey, cx, query string, opts ...option.ClientOption) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("google api key is not set (config set sources.google_api_key)")
	}
	if cx == "" {
		return nil, errors.New("google search engine id is not set (config set sources.google_cx)")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is empty")
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating custom search client: %w", err)
	}
	return &Google{svc: svc, cx: cx, query: query, pause: googlePause, logger: slog.Default()}, nil
}

func (g *Google) Source() candidate.Source { return candidate.SourceGoogle }

// Fetch requests result pages starting at 1, 11, 21 and 31, restricted to
// the last week, and stops at the first empty page.
func (g *Google) Fetch(ctx context.Context) ([]candidate.Item, error) {
	var items []candidate.Item
	for start := int64(1); start <= googleLastStart; start += googlePageSize {
		res, err := g.svc.Cse.List().
			Cx(g.cx).
			Q(g.query).
			Num(googlePageSize).
			Start(start).
			DateRestrict(googleRecency).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("custom search page %d: %w", start, err)
		}
		if len(res.Items) == 0 {
			break
		}
		for _, r := range res.Items {
			title := r.Title
			if title == "" {
				title = r.HtmlTitle
			}
			items = append(items, candidate.Item{
				Source: candidate.SourceGoogle,
				Title:  strings.TrimSpace(title),
				URL:    strings.TrimSpace(r.Link),
			})
		}
		g.logger.Debug("search page loaded", "start", start, "results", len(res.Items))
		if err := pause(ctx, g.pause); err != nil {
			return nil, err
		}
	}
	return items, nil
}
