package candidate

import "strings"

// Dedup canonicalizes every item's URL and keeps the first item seen per
// canonical URL. Items without a URL or title, or whose URL does not
// canonicalize, are dropped. Items without an ID get one derived from the
// canonical URL.
func Dedup(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.URL) == "" || strings.TrimSpace(it.Title) == "" {
			continue
		}
		key := Canonicalize(it.URL)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		it.URL = key
		it.Title = strings.TrimSpace(it.Title)
		if it.ID == "" {
			it.ID = ID(key)
		}
		out = append(out, it)
	}
	return out
}
