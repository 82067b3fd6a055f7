package config

import (
	"errors"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
	err    error
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[service+"/"+account] = value
	return m.err
}

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]string

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	return i, true, err
}

func (m mapBackend) SetString(key, val string) error { m[key] = val; return nil }
func (m mapBackend) SetInt(key string, val int) error { m[key] = strconv.Itoa(val); return nil }
func (m mapBackend) Delete(key string) error          { delete(m, key); return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when nothing is configured.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Crawl.Concurrency != 8 || cfg.Crawl.Retries != 2 || cfg.Crawl.BatchSize != 20 {
		t.Errorf("Crawl = %+v", cfg.Crawl)
	}
	if cfg.Crawl.TimeoutDuration() != 30*time.Second || cfg.Crawl.BackoffCapDuration() != 5*time.Second {
		t.Errorf("crawl durations = %s / %s", cfg.Crawl.TimeoutDuration(), cfg.Crawl.BackoffCapDuration())
	}
	if cfg.Ledger.Backend != LedgerFile {
		t.Errorf("Ledger.Backend = %q, want %q", cfg.Ledger.Backend, LedgerFile)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("Ollama.EmbedModel = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Data.Dir == "" {
		t.Error("Data.Dir is empty")
	}
}

// TestMissingSecretsAreNotFatal verifies loading succeeds without any API keys.
func TestMissingSecretsAreNotFatal(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, &mockKeychain{err: errors.New("keychain unavailable")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "" || cfg.Sources.GoogleAPIKey != "" || cfg.Server.APIToken != "" {
		t.Errorf("secrets should be empty: %+v", cfg)
	}
}

// TestBackendValues verifies that all field types are read from the backend.
func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := mapBackend{
		"data.dir":          "/tmp/shortlist-test",
		"crawl.concurrency": "3",
		"crawl.timeout":     "5s",
		"ledger.backend":    "sqlite",
		"server.port":       "5000",
		"sources.google_cx": "engine-1",
		// Secrets are never read from the backend.
		"gemini.api_key": "leaked",
	}
	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Data.Dir != "/tmp/shortlist-test" {
		t.Errorf("Data.Dir = %q", cfg.Data.Dir)
	}
	if cfg.Crawl.Concurrency != 3 {
		t.Errorf("Crawl.Concurrency = %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.TimeoutDuration() != 5*time.Second {
		t.Errorf("TimeoutDuration = %s", cfg.Crawl.TimeoutDuration())
	}
	if cfg.Ledger.Backend != LedgerSQLite || cfg.Server.Port != 5000 || cfg.Sources.GoogleCX != "engine-1" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Gemini.APIKey != "" {
		t.Errorf("Gemini.APIKey = %q, want it ignored from backend", cfg.Gemini.APIKey)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHORTLIST_SERVER_PORT", "6000")
	t.Setenv("SHORTLIST_CRAWL_RETRIES", "not-a-number")
	t.Setenv("SHORTLIST_GEMINI_API_KEY", "env-key")

	cfg, err := loadWith(mapBackend{"server.port": "5000", "crawl.retries": "4"}, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Crawl.Retries != 4 {
		t.Errorf("Crawl.Retries = %d, want backend value 4 after bad env", cfg.Crawl.Retries)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want %q", cfg.Gemini.APIKey, "env-key")
	}
}

// TestKeychainFallback verifies the secret store is consulted when env is empty.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHORTLIST_GOOGLE_API_KEY", "from-env")

	kc := &mockKeychain{values: map[string]string{
		"shortlist/google_api_key":   "from-keychain",
		"shortlist/youtube_api_key":  "yt-secret",
		"shortlist/server_api_token": "token",
	}}
	cfg, err := loadWith(mapBackend{}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Sources.GoogleAPIKey != "from-env" {
		t.Errorf("GoogleAPIKey = %q, want env to win", cfg.Sources.GoogleAPIKey)
	}
	if cfg.Sources.YouTubeAPIKey != "yt-secret" || cfg.Server.APIToken != "token" {
		t.Errorf("keychain secrets not applied: %+v / %q", cfg.Sources, cfg.Server.APIToken)
	}
}

func TestInvalidLedgerBackend(t *testing.T) {
	clearEnv(t)
	_, err := loadWith(mapBackend{"ledger.backend": "postgres"}, &mockKeychain{})
	if err == nil || !strings.Contains(err.Error(), "ledger.backend") {
		t.Errorf("err = %v, want ledger.backend error", err)
	}
}

func TestBadDurationFallsBack(t *testing.T) {
	c := CrawlConfig{Timeout: "soon", BackoffCap: "-1s"}
	if c.TimeoutDuration() != 30*time.Second || c.BackoffCapDuration() != 5*time.Second {
		t.Errorf("durations = %s / %s", c.TimeoutDuration(), c.BackoffCapDuration())
	}
}

func TestPaths(t *testing.T) {
	cfg := Config{Data: DataConfig{Dir: "/d"}}
	want := []string{"/d/data/rss_data.jsonl", "/d/data/google_data.jsonl", "/d/data/youtube_data.jsonl"}
	if got := cfg.InputPaths(); !slices.Equal(got, want) {
		t.Errorf("InputPaths = %v", got)
	}
	cfg.Data.Inputs = " a.jsonl, ,b.jsonl "
	if got := cfg.InputPaths(); !slices.Equal(got, []string{"a.jsonl", "b.jsonl"}) {
		t.Errorf("InputPaths with inputs = %v", got)
	}
	if cfg.ProfilePath() != filepath.Join("/d", "profile.yaml") || cfg.LLMPath() != filepath.Join("/d", "llm.yaml") {
		t.Errorf("profile paths = %s, %s", cfg.ProfilePath(), cfg.LLMPath())
	}
	cfg.Profile.Path = "/etc/p.yaml"
	if cfg.ProfilePath() != "/etc/p.yaml" {
		t.Errorf("ProfilePath = %s", cfg.ProfilePath())
	}
	if cfg.LedgerPath() != filepath.Join("/d", "contents.jsonl") || cfg.ResultsDir() != filepath.Join("/d", "results") {
		t.Errorf("LedgerPath = %s, ResultsDir = %s", cfg.LedgerPath(), cfg.ResultsDir())
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}
	kc := &mockKeychain{}

	if err := setKeyWith(b, kc, "crawl.concurrency", "12"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if b["crawl.concurrency"] != "12" {
		t.Errorf("backend = %v", b)
	}
	if err := setKeyWith(b, kc, "crawl.concurrency", "many"); err == nil {
		t.Error("expected error for bad integer")
	}
	if err := setKeyWith(b, kc, "sources.query", "golang"); err != nil || b["sources.query"] != "golang" {
		t.Errorf("set string: %v, backend = %v", err, b)
	}
	if err := setKeyWith(b, kc, "gemini.api_key", "secret"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	if _, leaked := b["gemini.api_key"]; leaked || kc.values["shortlist/gemini_api_key"] != "secret" {
		t.Errorf("secret stored wrongly: backend %v keychain %v", b, kc.values)
	}
	if err := setKeyWith(b, kc, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Gemini.APIKey = "super-secret"
	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "super-secret") {
			t.Errorf("%s leaks its value", ki.Key)
		}
		if ki.Key == "gemini.api_key" && ki.Value != "(set)" {
			t.Errorf("gemini.api_key = %q, want (set)", ki.Value)
		}
		if ki.Key == "sources.youtube_api_key" && ki.Value != "(unset)" {
			t.Errorf("sources.youtube_api_key = %q, want (unset)", ki.Value)
		}
	}
	if len(ValidKeys()) != len(specs) {
		t.Errorf("ValidKeys = %d, want %d", len(ValidKeys()), len(specs))
	}
}
