package content

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const pagesDir = "pages"

// Doc is one fetched page to persist.
type Doc struct {
	URL       string
	Title     string
	FetchedAt time.Time
	Body      string
}

// Store keeps one markdown file per URL under root/pages, named by the
// SHA-1 of the URL. Refs are slash-separated paths relative to root.
type Store struct {
	root string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Key returns the storage key for a URL.
func Key(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Ref returns the locator a Put for url would produce.
func Ref(url string) string {
	return path.Join(pagesDir, Key(url)+".md")
}

// Put writes the page with its metadata header and returns its ref.
// Writing the same URL again replaces the file.
func (s *Store) Put(d Doc) (string, error) {
	ref := Ref(d.URL)
	full := s.resolve(ref)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating pages dir: %w", err)
	}

	var b strings.Builder
	b.WriteString(Header(d.Title, d.URL, d.FetchedAt))
	b.WriteString("\n\n")
	b.WriteString(d.Body)

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing page: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming page: %w", err)
	}
	return ref, nil
}

// Read returns the body stored at ref with the metadata header removed.
func (s *Store) Read(ref string) (string, error) {
	data, err := os.ReadFile(s.resolve(ref))
	if err != nil {
		return "", err
	}
	return StripHeader(string(data)), nil
}

func (s *Store) resolve(ref string) string {
	p := filepath.FromSlash(ref)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.root, p)
}

// Header renders the traceability comment prepended to stored pages.
func Header(title, url string, fetchedAt time.Time) string {
	return fmt.Sprintf("<!-- title: %s\nurl: %s\nfetched_at: %s\n-->",
		oneLine(title), url, fetchedAt.UTC().Format(time.RFC3339))
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "-->", "--")
}

// StripHeader removes a leading metadata comment and surrounding whitespace.
// Text without a complete header is returned unchanged.
func StripHeader(s string) string {
	if !strings.HasPrefix(s, "<!--") {
		return s
	}
	end := strings.Index(s, "-->")
	if end == -1 {
		return s
	}
	return strings.TrimSpace(s[end+3:])
}
