package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if no config file exists
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()

	// Parse based on extension
	ext := filepath.Ext(path)
	switch ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		// Try to auto-detect format
		if err := autoDetectAndParse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return cfg, nil
}

// autoDetectAndParse attempts to parse the config in multiple formats.
// Each attempt starts from fresh defaults so a failed attempt leaves no
// partial values behind.
func autoDetectAndParse(data []byte, cfg *Config) error {
	// Try TOML first (most common)
	if c := DefaultConfig(); tomlDecode(data, c) == nil {
		cfg.assign(c)
		return nil
	}

	// Try JSON
	if c := DefaultConfig(); json.Unmarshal(data, c) == nil {
		cfg.assign(c)
		return nil
	}

	// Try YAML
	if c := DefaultConfig(); yaml.Unmarshal(data, c) == nil {
		cfg.assign(c)
		return nil
	}

	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

func tomlDecode(data []byte, cfg *Config) error {
	_, err := toml.Decode(string(data), cfg)
	return err
}

// assign copies every setting of src into c.
func (c *Config) assign(src *Config) {
	clone := src.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Version = clone.Version
	c.Distribution = clone.Distribution
	c.Corpus = clone.Corpus
	c.Storage = clone.Storage
	c.Evaluation = clone.Evaluation
	c.Watch = clone.Watch
	c.Logging = clone.Logging
}

// LoadOrCreate loads the configuration from the specified path,
// creating a default configuration file if it doesn't exist.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	return cfg, false, nil
}

// Encode writes cfg to w as TOML, JSON or YAML, chosen by a file
// extension such as ".yaml". Unknown extensions produce TOML.
func Encode(w io.Writer, cfg *Config, ext string) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	switch ext {
	case ".json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(cfg); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	default:
		return toml.NewEncoder(w).Encode(cfg)
	}
}

// SaveConfig writes cfg to path in the format implied by its extension,
// defaulting to TOML.
func SaveConfig(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := Encode(&buf, cfg, filepath.Ext(path)); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// Write with secure permissions
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
