// Package ranking fuses per-signal scores into a single score, applies the
// bounded top-K re-score stage and produces the final ordered shortlist.
package ranking

import (
	"fmt"
	"strings"
	"time"
)

// Signals holds the individual scorer outputs for one page. Embedding is nil
// when the embedding signal was disabled or unavailable.
type Signals struct {
	Keyword   float64  `json:"keyword"`
	Domain    float64  `json:"domain"`
	Recency   float64  `json:"recency"`
	Length    float64  `json:"length"`
	Embedding *float64 `json:"embedding,omitempty"`
}

// Weights are the fusion coefficients. They need not sum to 1.
type Weights struct {
	Keyword   float64 `json:"keyword" yaml:"keyword"`
	Domain    float64 `json:"domain" yaml:"domain"`
	Recency   float64 `json:"recency" yaml:"recency"`
	Length    float64 `json:"length" yaml:"length"`
	Embedding float64 `json:"embedding" yaml:"embedding"`
}

// DefaultWeights favour keyword relevance and leave embeddings off.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.50, Domain: 0.20, Recency: 0.20, Length: 0.10}
}

// Fuse returns the weighted sum of s. An absent embedding contributes 0.
func (w Weights) Fuse(s Signals) float64 {
	score := w.Keyword*s.Keyword + w.Domain*s.Domain + w.Recency*s.Recency + w.Length*s.Length
	if s.Embedding != nil {
		score += w.Embedding * *s.Embedding
	}
	return score
}

// Item is one scored page. It is also the curated.jsonl line format.
type Item struct {
	ID           string     `json:"id,omitempty"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Domain       string     `json:"domain"`
	Source       string     `json:"source,omitempty"`
	ScoreRaw     float64    `json:"score_raw"`
	ScoreLLM     float64    `json:"score_llm"`
	Score        float64    `json:"score"`
	Signals      Signals    `json:"signals"`
	Reasons      []string   `json:"reasons"`
	FetchedAt    *time.Time `json:"fetched_at"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	MarkdownPath string     `json:"markdown_path"`
	Chars        int        `json:"chars"`
	Snippet      string     `json:"snippet"`
}

// BonusReason marks items that received a positive re-score bonus.
const BonusReason = "llm:bonus"

// Reasons explains which signals stood out for an item.
func Reasons(s Signals, domain string, chars, minChars, maxChars int) []string {
	reasons := []string{}
	if s.Keyword > 0 {
		reasons = append(reasons, fmt.Sprintf("keywords+:%.2f", s.Keyword))
	}
	if s.Domain >= 0.9 {
		reasons = append(reasons, "prefer-domain:"+domain)
	}
	if s.Domain == 0 {
		reasons = append(reasons, "avoid-domain:"+domain)
	}
	if s.Recency > 0.7 {
		reasons = append(reasons, "very-recent")
	}
	if chars < minChars {
		reasons = append(reasons, "too-short")
	}
	if chars > maxChars {
		reasons = append(reasons, "too-long")
	}
	if s.Embedding != nil {
		reasons = append(reasons, fmt.Sprintf("embed:%.2f", *s.Embedding))
	}
	return reasons
}

// Snippet flattens body onto one line and cuts it to maxRunes runes,
// appending an ellipsis when it was cut.
func Snippet(body string, maxRunes int) string {
	s := strings.TrimSpace(body)
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	r := []rune(s)
	if maxRunes <= 0 || len(r) <= maxRunes {
		return s
	}
	return strings.TrimRight(string(r[:maxRunes]), " \t") + "…"
}
