//go:build !darwin

package config

import (
	"fmt"
	"path/filepath"
)

// Without a system keychain, secrets live in a 0600 YAML file,
// $XDG_DATA_HOME/shortlist/secrets.yaml, grouped by service.
func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "shortlist", "secrets.yaml")
}

func keychainGet(service, account string) ([]byte, error) {
	doc, err := loadYAMLFile(secretsFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading secrets: %w", err)
	}
	v, ok := doc.lookup(service + "." + account)
	s, isString := v.(string)
	if !ok || !isString {
		return nil, fmt.Errorf("secret %s/%s not found", service, account)
	}
	return []byte(s), nil
}

func keychainSet(service, account, value string) error {
	doc, err := loadYAMLFile(secretsFilePath())
	if err != nil {
		return fmt.Errorf("reading secrets: %w", err)
	}
	doc.set(service+"."+account, value)
	if err := doc.save(0o600); err != nil {
		return fmt.Errorf("writing secrets: %w", err)
	}
	return nil
}
