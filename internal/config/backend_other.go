//go:build !darwin

package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "shortlist")
}

// xdgDir returns $env, or ~/<fallback...>, or "." without a home directory.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

// fileBackend keeps settings in $XDG_CONFIG_HOME/shortlist/config.yaml:
//
//	crawl:
//	  concurrency: 16
//	  timeout: 45s
//	ledger:
//	  backend: sqlite
type fileBackend struct {
	doc *yamlFile
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "shortlist", "config.yaml"))
}

// newFileBackend loads path. An unreadable file is reported and treated as
// empty so defaults apply.
func newFileBackend(path string) *fileBackend {
	doc, err := loadYAMLFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	}
	return &fileBackend{doc: doc}
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.doc.lookup(key)
	if !ok || v == nil {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case map[string]any, []any:
		return "", true, fmt.Errorf("%s is not a scalar value", key)
	default:
		return fmt.Sprint(val), true, nil
	}
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.doc.lookup(key)
	if !ok || v == nil {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int:
		return val, true, nil
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	b.doc.set(key, val)
	return b.doc.save(0o600)
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.doc.set(key, val)
	return b.doc.save(0o600)
}

func (b *fileBackend) Delete(key string) error {
	b.doc.remove(key)
	return b.doc.save(0o600)
}
