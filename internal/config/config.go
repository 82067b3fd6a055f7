// Package config loads runtime settings from the platform backend,
// SHORTLIST_* environment variables and the platform secret store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// secretService is the keychain service name secrets are stored under.
const secretService = "shortlist"

type Config struct {
	Data    DataConfig
	Profile ProfileConfig
	Crawl   CrawlConfig
	Ledger  LedgerConfig
	Server  ServerConfig
	Ollama  OllamaConfig
	Gemini  GeminiConfig
	Sources SourcesConfig
	Log     LogConfig
}

type DataConfig struct {
	Dir string
	// Inputs is a comma-separated list of candidate files. Empty means the
	// three source files under <Dir>/data.
	Inputs string
}

type ProfileConfig struct {
	Path    string
	LLMPath string
}

type CrawlConfig struct {
	Concurrency int
	Retries     int
	Timeout     string
	BackoffCap  string
	BatchSize   int
	UserAgent   string
	MaxBytes    int
}

type LedgerConfig struct {
	Backend string
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type OllamaConfig struct {
	BaseURL      string
	EmbedModel   string
	RescoreModel string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type SourcesConfig struct {
	Query          string
	Limit          int
	FeedsPath      string
	GoogleCX       string
	GoogleAPIKey   string
	YouTubeChannel string
	YouTubeAPIKey  string
}

type LogConfig struct {
	Level string
}

// Ledger backends.
const (
	LedgerFile   = "file"
	LedgerSQLite = "sqlite"
)

func defaults() Config {
	return Config{
		Data: DataConfig{Dir: defaultDataDir()},
		Crawl: CrawlConfig{
			Concurrency: 8,
			Retries:     2,
			Timeout:     "30s",
			BackoffCap:  "5s",
			BatchSize:   20,
			UserAgent:   "shortlist/1.0 (+https://github.com/kalambet/shortlist)",
			MaxBytes:    10 << 20,
		},
		Ledger: LedgerConfig{Backend: LedgerFile},
		Server: ServerConfig{Port: 4100},
		Ollama: OllamaConfig{
			BaseURL:      "http://localhost:11434",
			EmbedModel:   "nomic-embed-text",
			RescoreModel: "phi3.5",
		},
		Gemini:  GeminiConfig{Model: "gemini-1.5-flash"},
		Sources: SourcesConfig{Query: "AI product launch", Limit: 50},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.shortlist.app) and
// secrets fall back to macOS Keychain (service: shortlist).
// Elsewhere the backend is a YAML file at $XDG_CONFIG_HOME/shortlist/config.yaml
// and secrets fall back to $XDG_DATA_HOME/shortlist/secrets.yaml.
//
// Environment variables (SHORTLIST_*) override backend values on all
// platforms. Missing secrets are not an error; the features that need them
// report it when used.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), platformKeychain{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if cfg.Ledger.Backend != LedgerFile && cfg.Ledger.Backend != LedgerSQLite {
		return Config{}, fmt.Errorf("ledger.backend must be %q or %q, got %q", LedgerFile, LedgerSQLite, cfg.Ledger.Backend)
	}
	return cfg, nil
}

// platformKeychain reads and writes the platform secret store.
type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// InputPaths returns the candidate files a crawl reads.
func (c Config) InputPaths() []string {
	var out []string
	for _, p := range strings.Split(c.Data.Inputs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		return out
	}
	dir := filepath.Join(c.Data.Dir, "data")
	return []string{
		filepath.Join(dir, "rss_data.jsonl"),
		filepath.Join(dir, "google_data.jsonl"),
		filepath.Join(dir, "youtube_data.jsonl"),
	}
}

// ProfilePath returns profile.path, defaulting to <data.dir>/profile.yaml.
func (c Config) ProfilePath() string {
	if c.Profile.Path != "" {
		return c.Profile.Path
	}
	return filepath.Join(c.Data.Dir, "profile.yaml")
}

// LLMPath returns profile.llm_path, defaulting to <data.dir>/llm.yaml.
func (c Config) LLMPath() string {
	if c.Profile.LLMPath != "" {
		return c.Profile.LLMPath
	}
	return filepath.Join(c.Data.Dir, "llm.yaml")
}

// LedgerPath is the NDJSON fetch ledger.
func (c Config) LedgerPath() string {
	return filepath.Join(c.Data.Dir, "contents.jsonl")
}

// ResultsDir is where curated.jsonl and curated.md are written.
func (c Config) ResultsDir() string {
	return filepath.Join(c.Data.Dir, "results")
}

// TimeoutDuration parses crawl.timeout, falling back to 30s.
func (c CrawlConfig) TimeoutDuration() time.Duration {
	return parseDuration("crawl.timeout", c.Timeout, 30*time.Second)
}

// BackoffCapDuration parses crawl.backoff_cap, falling back to 5s.
func (c CrawlConfig) BackoffCapDuration() time.Duration {
	return parseDuration("crawl.backoff_cap", c.BackoffCap, 5*time.Second)
}

func parseDuration(key, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q. Using default value %s.\n", key, raw, def)
		return def
	}
	return d
}
