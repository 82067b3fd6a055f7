// Package scoring holds the pure signal scorers used to rank fetched pages.
// Scorers never fail: missing input degrades to a fixed low score.
package scoring

import (
	"math"
	"regexp"
	"strings"
)

// Pattern is a compiled keyword: either a case-insensitive regular
// expression (written as /expr/) or a literal substring.
type Pattern struct {
	raw     string
	literal string
	re      *regexp.Regexp
}

// String returns the pattern as it was configured.
func (p Pattern) String() string { return p.raw }

// CompilePatterns compiles keyword entries. Entries of the form /expr/ are
// compiled as case-insensitive regexes; anything else is a literal matched
// case-insensitively. Blank entries, empty regexes and regexes that fail to
// compile are skipped.
func CompilePatterns(raw []string) []Pattern {
	out := make([]Pattern, 0, len(raw))
	for _, s := range raw {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		if len(trimmed) >= 2 && strings.HasPrefix(trimmed, "/") && strings.HasSuffix(trimmed, "/") {
			expr := trimmed[1 : len(trimmed)-1]
			if expr == "" {
				continue
			}
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				continue
			}
			out = append(out, Pattern{raw: trimmed, re: re})
			continue
		}
		out = append(out, Pattern{raw: trimmed, literal: strings.ToLower(trimmed)})
	}
	return out
}

// Count returns the number of non-overlapping matches of p in text.
// lower must be strings.ToLower(text); it is passed in so callers
// matching many literals lowercase once.
func (p Pattern) Count(text, lower string) int {
	if p.re != nil {
		return len(p.re.FindAllStringIndex(text, -1))
	}
	if p.literal == "" {
		return 0
	}
	return strings.Count(lower, p.literal)
}

// CountHits sums the matches of all patterns in text.
func CountHits(text string, patterns []Pattern) int {
	if text == "" || len(patterns) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	total := 0
	for _, p := range patterns {
		total += p.Count(text, lower)
	}
	return total
}

// KeywordScore rewards include hits and penalises exclude hits:
// max(0, log1p(pos) - 1.5*log1p(neg)). The log keeps keyword stuffing
// from dominating the fused score; the result is not capped at 1.
func KeywordScore(text string, include, exclude []Pattern) float64 {
	pos := CountHits(text, include)
	neg := CountHits(text, exclude)
	s := math.Log1p(float64(pos)) - 1.5*math.Log1p(float64(neg))
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return s
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
