package candidate

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies which producer discovered a candidate.
type Source string

const (
	SourceRSS     Source = "rss"
	SourceGoogle  Source = "google"
	SourceYouTube Source = "youtube"
)

// Item is one discovered URL before fetching.
type Item struct {
	ID          string     `json:"id"`
	Source      Source     `json:"source,omitempty"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// SourceFile is the basename of the NDJSON file the item was read from.
	SourceFile string `json:"-"`
}

// ID returns a stable identifier derived from a canonical URL.
func ID(canonicalURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonicalURL)).String()
}
