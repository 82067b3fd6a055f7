//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shortlist", "config.yaml")
	b := newFileBackend(path)

	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := b.SetString("data.dir", "/srv/shortlist"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	reloaded := newFileBackend(path)
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 4200 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}
	if v, ok, _ := reloaded.GetString("data.dir"); !ok || v != "/srv/shortlist" {
		t.Errorf("GetString = %q, %v", v, ok)
	}
	if err := reloaded.Delete("data.dir"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := newFileBackend(path).GetString("data.dir"); ok {
		t.Error("deleted key still present")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "server:\n    port: 4200") {
		t.Errorf("config file is not nested YAML:\n%s", data)
	}
}

func TestFileBackend_ReadsHandWrittenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "crawl:\n  concurrency: 16\n  timeout: 45s\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	b := newFileBackend(path)
	if v, ok, err := b.GetInt("crawl.concurrency"); err != nil || !ok || v != 16 {
		t.Errorf("crawl.concurrency = %d, %v, %v", v, ok, err)
	}
	if v, _, _ := b.GetString("crawl.timeout"); v != "45s" {
		t.Errorf("crawl.timeout = %q", v)
	}
	if v, _, _ := b.GetString("crawl.concurrency"); v != "16" {
		t.Errorf("crawl.concurrency as string = %q", v)
	}
	if _, _, err := b.GetString("crawl"); err == nil {
		t.Error("expected error reading a mapping as a string")
	}
	if _, ok, _ := b.GetString("crawl.retries"); ok {
		t.Error("absent key reported present")
	}
}

func TestFileBackend_BadFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("crawl: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := newFileBackend(path).GetString("data.dir"); ok {
		t.Error("unexpected value from corrupt file")
	}
}

func TestSecretsFile_RoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	kc := platformKeychain{}
	if _, err := kc.Get(secretService, "gemini_api_key"); err == nil {
		t.Error("expected error before any secret is stored")
	}
	if err := kc.Set(secretService, "gemini_api_key", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kc.Set(secretService, "google_api_key", "def"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := kc.Get(secretService, "gemini_api_key"); err != nil || v != "abc" {
		t.Errorf("Get = %q, %v", v, err)
	}
	info, err := os.Stat(secretsFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}
}
