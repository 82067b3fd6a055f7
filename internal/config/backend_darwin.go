//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// defaultsDomain is the UserDefaults domain; inspect it with
// `defaults read com.shortlist.app`.
const defaultsDomain = "com.shortlist.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "shortlist")
	}
	return "shortlist-data"
}

// darwinBackend stores each dotted key as a top-level UserDefaults entry.
type darwinBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &darwinBackend{domain: defaultsDomain}
}

func (b *darwinBackend) defaults(verb, key string, extra ...string) ([]byte, error) {
	args := append([]string{verb, b.domain, key}, extra...)
	return exec.Command("defaults", args...).CombinedOutput()
}

// read reports ok=false when the key is absent, which `defaults` signals
// with exit status 1.
func (b *darwinBackend) read(key string) (string, bool, error) {
	out, err := b.defaults("read", key)
	s := strings.TrimSpace(string(out))
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return s, true, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("reading %s from %s: %w: %s", key, b.domain, err, s)
	}
}

func (b *darwinBackend) write(key string, typeFlag, val string) error {
	if out, err := b.defaults("write", key, typeFlag, val); err != nil {
		return fmt.Errorf("writing %s to %s: %w: %s", key, b.domain, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *darwinBackend) GetString(key string) (string, bool, error) {
	return b.read(key)
}

func (b *darwinBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.read(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *darwinBackend) SetString(key, val string) error {
	return b.write(key, "-string", val)
}

func (b *darwinBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b *darwinBackend) Delete(key string) error {
	if out, err := b.defaults("delete", key); err != nil {
		return fmt.Errorf("deleting %s from %s: %w: %s", key, b.domain, err, strings.TrimSpace(string(out)))
	}
	return nil
}
