// Package output renders a ranked shortlist as curated.jsonl and curated.md.
package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/shortlist/internal/ranking"
)

const (
	JSONLName    = "curated.jsonl"
	MarkdownName = "curated.md"
)

// Paths is where a run's outputs were written.
type Paths struct {
	JSONL    string
	Markdown string
}

// Write renders items into dir as curated.jsonl and curated.md.
func Write(dir string, items []ranking.Item) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating output dir: %w", err)
	}
	p := Paths{
		JSONL:    filepath.Join(dir, JSONLName),
		Markdown: filepath.Join(dir, MarkdownName),
	}
	if err := WriteJSONL(p.JSONL, items); err != nil {
		return Paths{}, err
	}
	if err := WriteMarkdown(p.Markdown, items); err != nil {
		return Paths{}, err
	}
	return p, nil
}

// WriteJSONL writes one JSON object per item, in rank order.
func WriteJSONL(path string, items []ranking.Item) error {
	return writeAtomic(path, func(w io.Writer) error {
		return EncodeJSONL(w, items)
	})
}

// EncodeJSONL writes items as newline-delimited JSON without HTML escaping.
func EncodeJSONL(w io.Writer, items []ranking.Item) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, it := range items {
		if err := enc.Encode(it); err != nil {
			return fmt.Errorf("encoding item %d: %w", i, err)
		}
	}
	return nil
}

// WriteMarkdown writes the human-readable summary.
func WriteMarkdown(path string, items []ranking.Item) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, Markdown(items))
		return err
	})
}

// Markdown renders items as a numbered list of sections.
func Markdown(items []ranking.Item) string {
	lines := []string{"# Curated Results\n"}
	for i, it := range items {
		title := it.Title
		if title == "" {
			title = "(no title)"
		}
		fetched := "-"
		if it.FetchedAt != nil && !it.FetchedAt.IsZero() {
			fetched = it.FetchedAt.UTC().Format(time.RFC3339)
		}
		lines = append(lines,
			fmt.Sprintf("## %d. %s", i+1, title),
			"- URL: "+it.URL,
			fmt.Sprintf("- Domain: `%s`  | Score: **%.3f**  | Fetched: %s", it.Domain, it.Score, fetched),
		)
		if len(it.Reasons) > 0 {
			lines = append(lines, "- Reasons: "+strings.Join(it.Reasons, ", "))
		}
		lines = append(lines, "", it.Snippet, "\n---\n")
	}
	return strings.Join(lines, "\n")
}

// writeAtomic writes to a temp file in the target directory and renames it
// over path, so readers never see a half-written file.
func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// ReadJSONL parses a curated.jsonl file back into items.
func ReadJSONL(path string) ([]ranking.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []ranking.Item
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var it ranking.Item
		if err := dec.Decode(&it); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		items = append(items, it)
	}
	return items, nil
}
