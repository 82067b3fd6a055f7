package sources

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/shortlist/internal/candidate"
)

// Feed is one RSS or Atom feed.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

func googleNews(query string) string {
	v := url.Values{"q": {query}, "hl": {"en-US"}, "gl": {"US"}, "ceid": {"US:en"}}
	return "https://news.google.com/rss/search?" + v.Encode()
}

// DefaultFeeds is used when no feeds file is configured.
var DefaultFeeds = []Feed{
	{Name: "techcrunch", URL: "https://techcrunch.com/feed/"},
	{Name: "theverge", URL: "https://www.theverge.com/rss/index.xml"},
	{Name: "wired", URL: "https://www.wired.com/feed/rss"},
	{Name: "arstechnica", URL: "https://feeds.arstechnica.com/arstechnica/index"},
	{Name: "mit_tech_review", URL: "https://www.technologyreview.com/topnews.rss"},
	{Name: "venturebeat", URL: "https://venturebeat.com/feed/"},
	{Name: "hackernews", URL: "https://news.ycombinator.com/rss"},
	{Name: "reddit_ml", URL: "https://www.reddit.com/r/MachineLearning/.rss"},
	{Name: "reddit_artificial", URL: "https://www.reddit.com/r/Artificial/.rss"},
	{Name: "reddit_technology", URL: "https://www.reddit.com/r/technology/.rss"},
	{Name: "bloomberg_via_gnews", URL: googleNews("site:bloomberg.com/technology OR site:bloomberg.com/tech")},
	{Name: "reuters_tech_via_gnews", URL: googleNews("site:reuters.com/technology OR site:reuters.com/technology/archive")},
}

// FeedsConfig is the YAML feeds file:
//
//	feeds:
//	  - name: techcrunch
//	    url: https://techcrunch.com/feed/
type FeedsConfig struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads a feeds file. An empty path or a missing file yields
// DefaultFeeds; entries without a URL are dropped.
func LoadFeeds(path string) ([]Feed, error) {
	if path == "" {
		return DefaultFeeds, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultFeeds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading feeds file: %w", err)
	}
	var cfg FeedsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing feeds file %s: %w", path, err)
	}
	feeds := make([]Feed, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		f.URL = strings.TrimSpace(f.URL)
		if f.URL == "" {
			continue
		}
		if f.Name == "" {
			f.Name = f.URL
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

// RSS collects entries from a list of feeds.
type RSS struct {
	feeds  []Feed
	limit  int
	parser *gofeed.Parser
	now    func() time.Time
	logger *slog.Logger
}

// NewRSS returns an RSS producer keeping at most limit entries
// (DefaultLimit when limit <= 0). client may be nil.
func NewRSS(feeds []Feed, limit int, client *http.Client) *RSS {
	if limit <= 0 {
		limit = DefaultLimit
	}
	p := gofeed.NewParser()
	if client != nil {
		p.Client = client
	}
	return &RSS{feeds: feeds, limit: limit, parser: p, now: time.Now, logger: slog.Default()}
}

func (r *RSS) Source() candidate.Source { return candidate.SourceRSS }

// Fetch parses every feed, drops repeated title+link pairs and returns the
// newest entries first. A feed that fails to load is logged and skipped.
func (r *RSS) Fetch(ctx context.Context) ([]candidate.Item, error) {
	var (
		items []candidate.Item
		ok    int
	)
	seen := make(map[string]struct{})
	for _, f := range r.feeds {
		feed, err := r.parser.ParseURLWithContext(f.URL, ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("feed failed", "feed", f.Name, "url", f.URL, "error", err)
			continue
		}
		ok++
		r.logger.Debug("feed loaded", "feed", f.Name, "entries", len(feed.Items))
		for _, e := range feed.Items {
			it := r.entry(e)
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			items = append(items, it)
		}
	}
	r.logger.Info("feeds processed", "ok", ok, "total", len(r.feeds), "entries", len(items))

	slices.SortStableFunc(items, func(a, b candidate.Item) int {
		return cmp.Compare(b.PublishedAt.UnixNano(), a.PublishedAt.UnixNano())
	})
	if len(items) > r.limit {
		items = items[:r.limit]
	}
	return items, nil
}

// entry normalizes a feed item. Entries without any date are stamped with
// the current time.
func (r *RSS) entry(e *gofeed.Item) candidate.Item {
	title := strings.TrimSpace(e.Title)
	link := strings.TrimSpace(e.Link)

	var published time.Time
	switch {
	case e.PublishedParsed != nil:
		published = *e.PublishedParsed
	case e.UpdatedParsed != nil:
		published = *e.UpdatedParsed
	default:
		published = r.now()
	}
	published = published.UTC()

	sum := sha256.Sum256([]byte(title + "|" + link))
	return candidate.Item{
		ID:          hex.EncodeToString(sum[:]),
		Source:      candidate.SourceRSS,
		Title:       title,
		URL:         link,
		PublishedAt: &published,
	}
}
