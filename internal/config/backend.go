package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigBackend abstracts platform-specific config storage: UserDefaults on
// macOS, a YAML file elsewhere. Keys are dotted, e.g. "crawl.timeout".
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// yamlFile is a YAML document addressed by dotted keys; "crawl.timeout"
// names the timeout field of the crawl mapping.
type yamlFile struct {
	path string
	root map[string]any
}

// loadYAMLFile reads path. A missing file yields an empty document.
func loadYAMLFile(path string) (*yamlFile, error) {
	f := &yamlFile{path: path, root: map[string]any{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(data, &f.root); err != nil {
		return &yamlFile{path: path, root: map[string]any{}}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.root == nil {
		f.root = map[string]any{}
	}
	return f, nil
}

func (f *yamlFile) lookup(key string) (any, bool) {
	parts := strings.Split(key, ".")
	node := f.root
	for i, p := range parts {
		v, ok := node[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if node, ok = v.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

func (f *yamlFile) set(key string, v any) {
	parts := strings.Split(key, ".")
	node := f.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = v
}

func (f *yamlFile) remove(key string) {
	parts := strings.Split(key, ".")
	node := f.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	delete(node, parts[len(parts)-1])
}

// save writes the document with perm, replacing the file atomically.
func (f *yamlFile) save(perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(f.root)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
