package candidate

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxLineSize = 4 << 20

// LoadStats counts what Load saw across its inputs.
type LoadStats struct {
	Files   int
	Lines   int
	Skipped int
}

// Load reads candidate records from newline-delimited JSON files in order.
// Missing files are skipped. Malformed lines and records without a URL are
// skipped and counted. Items are returned in input order and are not
// deduplicated.
func Load(paths ...string) ([]Item, LoadStats, error) {
	var (
		items []Item
		stats LoadStats
	)
	for _, p := range paths {
		f, err := os.Open(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("opening %s: %w", p, err)
		}
		got, lines, skipped, err := Read(f, filepath.Base(p))
		f.Close()
		if err != nil {
			return nil, stats, fmt.Errorf("reading %s: %w", p, err)
		}
		stats.Files++
		stats.Lines += lines
		stats.Skipped += skipped
		items = append(items, got...)
	}
	return items, stats, nil
}

// Read decodes candidate records from r. sourceFile is attached to every
// item and used to infer the source when a record does not name one.
func Read(r io.Reader, sourceFile string) (items []Item, lines, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines++

		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		it, ok := fromRecord(rec, sourceFile)
		if !ok {
			skipped++
			continue
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return items, lines, skipped, err
	}
	return items, lines, skipped, nil
}

func fromRecord(rec map[string]any, sourceFile string) (Item, bool) {
	u := pick(rec, "url", "link")
	if u == "" {
		return Item{}, false
	}
	it := Item{
		ID:         pick(rec, "id"),
		Title:      pick(rec, "title", "htmlTitle"),
		URL:        u,
		SourceFile: sourceFile,
	}
	it.Source = ParseSource(pick(rec, "source"), sourceFile)
	if ts, ok := ParseTime(pick(rec, "published_at", "publishedAt")); ok {
		it.PublishedAt = &ts
	}
	return it, true
}

func pick(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// ParseSource resolves an explicit source name, falling back to a guess
// from the name of the file the item came from.
func ParseSource(s, sourceFile string) Source {
	switch Source(strings.ToLower(s)) {
	case SourceRSS, SourceGoogle, SourceYouTube:
		return Source(strings.ToLower(s))
	}
	name := strings.ToLower(sourceFile)
	switch {
	case strings.Contains(name, "google"):
		return SourceGoogle
	case strings.Contains(name, "youtube"):
		return SourceYouTube
	case strings.Contains(name, "rss"):
		return SourceRSS
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the ISO-8601 variants found in feed and ledger records.
// Times without a zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// WriteFile writes items as newline-delimited JSON to path, replacing any
// existing file.
func WriteFile(path string, items []Item) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			f.Close()
			return fmt.Errorf("encoding %s: %w", it.URL, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
