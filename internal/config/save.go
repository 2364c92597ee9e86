package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Save writes cfg to path in the format chosen by its extension. The file is
// written to a temporary sibling and renamed into place.
func Save(cfg *Config, path string) error {
	cfg.mu.RLock()
	data, err := encode(cfg, path)
	cfg.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func encode(cfg *Config, path string) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return nil, fmt.Errorf("encode JSON config: %w", err)
		}
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, fmt.Errorf("encode YAML config: %w", err)
		}
		enc.Close()
	default:
		buf.WriteString("# meetingd configuration\n\n")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encode TOML config: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// LoadOrCreate loads the configuration at path, first writing the defaults
// there if the file does not exist. The boolean reports creation.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = GetDefaultPaths().ConfigFile
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(DefaultConfig(), path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg, err := NewLoader(path).Load()
		return cfg, true, err
	}
	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}
