// Package profile loads the reader's interest profile (profile.yaml) and the
// re-score settings (llm.yaml). Missing files and fields fall back to
// defaults so a bare checkout can curate without any configuration.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/shortlist/internal/ranking"
)

const (
	DefaultFinalN         = 40
	DefaultMinChars       = 500
	DefaultMaxChars       = 150000
	DefaultHalfLifeDays   = 14
	DefaultHardDaysCutoff = 365
	DefaultSnippetChars   = 700
	DefaultTimeoutSeconds = 60
)

// Profile is the resolved interest profile.
type Profile struct {
	IncludeKeywords []string
	ExcludeKeywords []string
	PreferDomains   []string
	AvoidDomains    []string
	ProfileText     string

	FinalN   int
	MinChars int
	MaxChars int

	UseFetchedAt   bool
	HalfLifeDays   int
	HardDaysCutoff int

	Weights      ranking.Weights
	SnippetChars int
	Embedding    bool
}

// LLM holds the re-score stage settings.
type LLM struct {
	Enabled        bool
	Backend        string
	TopK           int
	MaxBonus       float64
	TimeoutSeconds int
}

// Default returns the profile used when no profile.yaml exists.
func Default() Profile {
	return Profile{
		FinalN:         DefaultFinalN,
		MinChars:       DefaultMinChars,
		MaxChars:       DefaultMaxChars,
		UseFetchedAt:   true,
		HalfLifeDays:   DefaultHalfLifeDays,
		HardDaysCutoff: DefaultHardDaysCutoff,
		Weights:        ranking.DefaultWeights(),
		SnippetChars:   DefaultSnippetChars,
	}
}

// DefaultLLM returns the re-score settings used when no llm.yaml exists.
func DefaultLLM() LLM {
	return LLM{
		TopK:           ranking.DefaultTopK,
		MaxBonus:       ranking.DefaultMaxBonus,
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// Pointers distinguish an absent field from an explicit zero.
type rawProfile struct {
	Preferences struct {
		IncludeKeywords []string `yaml:"include_keywords"`
		ExcludeKeywords []string `yaml:"exclude_keywords"`
		PreferDomains   []string `yaml:"prefer_domains"`
		AvoidDomains    []string `yaml:"avoid_domains"`
		ProfileText     string   `yaml:"profile_text"`
	} `yaml:"preferences"`
	Limits struct {
		FinalN   int `yaml:"final_n"`
		MinChars int `yaml:"min_chars"`
		MaxChars int `yaml:"max_chars"`
	} `yaml:"limits"`
	Recency struct {
		UseFetchedAt   *bool `yaml:"use_fetched_at"`
		HalfLifeDays   int   `yaml:"half_life_days"`
		HardDaysCutoff int   `yaml:"hard_days_cutoff"`
	} `yaml:"recency"`
	Weights struct {
		Keyword   *float64 `yaml:"keyword"`
		Domain    *float64 `yaml:"domain"`
		Recency   *float64 `yaml:"recency"`
		Length    *float64 `yaml:"length"`
		Embedding *float64 `yaml:"embedding"`
	} `yaml:"weights"`
	Snippets struct {
		MaxChars int `yaml:"max_chars"`
	} `yaml:"snippets"`
	Embedding struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"embedding"`
}

type rawLLM struct {
	Enabled        bool     `yaml:"llm_enabled"`
	Backend        string   `yaml:"backend"`
	TopK           int      `yaml:"top_k_for_llm"`
	MaxBonus       *float64 `yaml:"max_bonus"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads profile.yaml at path. A missing file yields Default().
func Load(path string) (Profile, error) {
	var raw rawProfile
	found, err := readYAML(path, &raw)
	if err != nil || !found {
		return Default(), err
	}
	return resolve(raw), nil
}

// LoadLLM reads llm.yaml at path. A missing file yields DefaultLLM().
func LoadLLM(path string) (LLM, error) {
	var raw rawLLM
	found, err := readYAML(path, &raw)
	if err != nil || !found {
		return DefaultLLM(), err
	}
	l := DefaultLLM()
	l.Enabled = raw.Enabled
	l.Backend = strings.ToLower(strings.TrimSpace(raw.Backend))
	l.TopK = orDefault(raw.TopK, l.TopK)
	l.TimeoutSeconds = orDefault(raw.TimeoutSeconds, l.TimeoutSeconds)
	if raw.MaxBonus != nil && *raw.MaxBonus >= 0 {
		l.MaxBonus = *raw.MaxBonus
	}
	return l, nil
}

func readYAML(path string, out any) (bool, error) {
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

func resolve(raw rawProfile) Profile {
	p := Default()
	prefs := raw.Preferences
	p.IncludeKeywords = prefs.IncludeKeywords
	p.ExcludeKeywords = prefs.ExcludeKeywords
	p.PreferDomains = lowerAll(prefs.PreferDomains)
	p.AvoidDomains = lowerAll(prefs.AvoidDomains)
	p.ProfileText = strings.TrimSpace(prefs.ProfileText)

	p.FinalN = orDefault(raw.Limits.FinalN, p.FinalN)
	p.MinChars = orDefault(raw.Limits.MinChars, p.MinChars)
	p.MaxChars = orDefault(raw.Limits.MaxChars, p.MaxChars)

	if raw.Recency.UseFetchedAt != nil {
		p.UseFetchedAt = *raw.Recency.UseFetchedAt
	}
	p.HalfLifeDays = orDefault(raw.Recency.HalfLifeDays, p.HalfLifeDays)
	p.HardDaysCutoff = orDefault(raw.Recency.HardDaysCutoff, p.HardDaysCutoff)

	w := raw.Weights
	setFloat(&p.Weights.Keyword, w.Keyword)
	setFloat(&p.Weights.Domain, w.Domain)
	setFloat(&p.Weights.Recency, w.Recency)
	setFloat(&p.Weights.Length, w.Length)
	setFloat(&p.Weights.Embedding, w.Embedding)

	p.SnippetChars = orDefault(raw.Snippets.MaxChars, p.SnippetChars)
	p.Embedding = raw.Embedding.Enabled
	return p
}

// orDefault treats zero and negative values as unset.
func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		s = strings.TrimPrefix(s, "www.")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Text is the interest description fed to embeddings and LLM prompts. It is
// profile_text when set, otherwise a summary built from the keyword and
// domain lists.
func (p Profile) Text() string {
	if p.ProfileText != "" {
		return p.ProfileText
	}
	var parts []string
	if kws := plainKeywords(p.IncludeKeywords); len(kws) > 0 {
		parts = append(parts, "Interested in: "+strings.Join(kws, ", "))
	}
	if kws := plainKeywords(p.ExcludeKeywords); len(kws) > 0 {
		parts = append(parts, "Not interested in: "+strings.Join(kws, ", "))
	}
	if len(p.PreferDomains) > 0 {
		parts = append(parts, "Trusted sources: "+strings.Join(p.PreferDomains, ", "))
	}
	return strings.Join(parts, ". ")
}

// plainKeywords strips regex delimiters so patterns read as words.
func plainKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if len(k) >= 2 && strings.HasPrefix(k, "/") && strings.HasSuffix(k, "/") {
			k = k[1 : len(k)-1]
		}
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
