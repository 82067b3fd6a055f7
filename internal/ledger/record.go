package ledger

import (
	"context"
	"time"
)

// Record is the outcome of attempting to retrieve one URL's content.
// Records are appended once and never modified.
type Record struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	SourceFile  string     `json:"source_file,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	OK          bool       `json:"ok"`
	Error       string     `json:"error,omitempty"`
	ContentRef  string     `json:"markdown_path,omitempty"`
	ContentLen  int        `json:"markdown_chars"`
	Attempts    int        `json:"attempts,omitempty"`
}

// Log is an append-only store of fetch records.
type Log interface {
	// Append persists records in the given order.
	Append(ctx context.Context, records []Record) error

	// Succeeded returns the set of URLs that have a successful record.
	Succeeded(ctx context.Context) (map[string]struct{}, error)

	// Records returns every readable record in append order.
	Records(ctx context.Context) ([]Record, error)
}

// Stats summarizes a ledger.
type Stats struct {
	Records    int        `json:"records"`
	OK         int        `json:"ok"`
	Failed     int        `json:"failed"`
	URLs       int        `json:"urls"`
	FailedURLs int        `json:"failed_urls"`
	LastFetch  *time.Time `json:"last_fetch,omitempty"`
}

// Summarize computes totals over records. FailedURLs counts URLs that have
// only failed records.
func Summarize(records []Record) Stats {
	var s Stats
	urls := make(map[string]bool, len(records))
	for _, r := range records {
		s.Records++
		if r.OK {
			s.OK++
			urls[r.URL] = true
		} else {
			s.Failed++
			if _, seen := urls[r.URL]; !seen {
				urls[r.URL] = false
			}
		}
		if s.LastFetch == nil || r.FetchedAt.After(*s.LastFetch) {
			t := r.FetchedAt
			s.LastFetch = &t
		}
	}
	s.URLs = len(urls)
	for _, ok := range urls {
		if !ok {
			s.FailedURLs++
		}
	}
	return s
}

// Successful returns the first successful record per URL in append order.
func Successful(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !r.OK || r.URL == "" {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}
