// Package config handles configuration loading, validation, and management for tetmeter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Version is the current configuration schema version.
const Version = 1

// Distribution sources.
const (
	SourceEnglish = "english"
	SourceFile    = "file"
	SourceCorpus  = "corpus"
	SourceStore   = "store"
)

// Config holds the complete tetmeter configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Distribution selects the reference character distribution.
	Distribution DistributionConfig `toml:"distribution" json:"distribution" yaml:"distribution"`

	// Corpus controls how frequency tables are built from text.
	Corpus CorpusConfig `toml:"corpus" json:"corpus" yaml:"corpus"`

	// Storage configuration for persisted distributions and results.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Evaluation configuration for session batches.
	Evaluation EvaluationConfig `toml:"evaluation" json:"evaluation" yaml:"evaluation"`

	// Watch configuration for session directories.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// DistributionConfig selects where the reference distribution comes from.
type DistributionConfig struct {
	// Source is one of "english", "file", "corpus" or "store".
	Source string `toml:"source" json:"source" yaml:"source"`

	// Path is the distribution or frequency file when Source is "file".
	Path string `toml:"path" json:"path" yaml:"path"`

	// Name is the stored distribution key when Source is "store", and the
	// label recorded with every result.
	Name string `toml:"name" json:"name" yaml:"name"`
}

// CorpusConfig controls corpus reading.
type CorpusConfig struct {
	// Paths are files or directories read when Source is "corpus".
	Paths []string `toml:"paths" json:"paths" yaml:"paths"`

	// Extensions filters files found while walking directories.
	Extensions []string `toml:"extensions" json:"extensions" yaml:"extensions"`

	Lowercase          bool `toml:"lowercase" json:"lowercase" yaml:"lowercase"`
	Normalize          bool `toml:"normalize" json:"normalize" yaml:"normalize"`
	CollapseWhitespace bool `toml:"collapse_whitespace" json:"collapse_whitespace" yaml:"collapse_whitespace"`

	// Alphabet restricts counted symbols. Empty counts every rune.
	Alphabet string `toml:"alphabet" json:"alphabet" yaml:"alphabet"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// EvaluationConfig holds session evaluation settings.
type EvaluationConfig struct {
	// Workers is the number of trials evaluated concurrently. 0 uses one
	// per CPU.
	Workers int `toml:"workers" json:"workers" yaml:"workers"`

	// MaxSymbols bounds the length of presented and transcribed strings.
	// The alignment matrix grows with the product of both lengths.
	MaxSymbols int `toml:"max_symbols" json:"max_symbols" yaml:"max_symbols"`

	// ValidateSchema checks session files against the session schema.
	ValidateSchema bool `toml:"validate_schema" json:"validate_schema" yaml:"validate_schema"`
}

// WatchConfig holds session directory watching configuration.
type WatchConfig struct {
	// Paths is a list of directories to monitor for session files.
	Paths []string `toml:"paths" json:"paths" yaml:"paths"`

	// DebounceMs is how long a file must be unchanged before evaluation.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// Extensions are the session file types picked up.
	Extensions []string `toml:"extensions" json:"extensions" yaml:"extensions"`

	// MetricsAddr, when set, is the listen address of the metrics endpoint.
	MetricsAddr string `toml:"metrics_addr" json:"metrics_addr" yaml:"metrics_addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: stdout, stderr, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output is file or both.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Distribution: DistributionConfig{
			Source: SourceEnglish,
			Name:   SourceEnglish,
		},
		Corpus: CorpusConfig{
			Paths:              []string{},
			Extensions:         []string{".txt", ".md"},
			Lowercase:          true,
			Normalize:          true,
			CollapseWhitespace: true,
			Alphabet:           "abcdefghijklmnopqrstuvwxyz ",
		},
		Storage: StorageConfig{
			Path:          filepath.Join(dir, "tetmeter.db"),
			BusyTimeoutMs: 5000,
		},
		Evaluation: EvaluationConfig{
			Workers:        0,
			MaxSymbols:     4096,
			ValidateSchema: true,
		},
		Watch: WatchConfig{
			Paths:      []string{},
			DebounceMs: 1000,
			Extensions: []string{".json", ".yaml", ".yml", ".toml"},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "stderr",
			FilePath: filepath.Join(PlatformLogDir(), "tetmeter.log"),
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path. An empty path searches
// the standard locations (see FindConfigFile) before falling back to
// ConfigPath. If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = FindConfigFile()
	}
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the database and log file
// live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DataDir returns the base tetmeter data directory.
// Uses platform-specific paths or the TETMETER_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("TETMETER_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with TETMETER_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Distribution overrides
	if v := os.Getenv("TETMETER_DISTRIBUTION"); v != "" {
		c.Distribution.Source = v
	}
	if v := os.Getenv("TETMETER_DISTRIBUTION_PATH"); v != "" {
		c.Distribution.Path = v
	}
	if v := os.Getenv("TETMETER_DISTRIBUTION_NAME"); v != "" {
		c.Distribution.Name = v
	}

	// Storage overrides
	if v := os.Getenv("TETMETER_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Evaluation overrides
	if v := os.Getenv("TETMETER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Evaluation.Workers = n
		}
	}

	// Logging overrides
	if v := os.Getenv("TETMETER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TETMETER_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("TETMETER_METRICS_ADDR"); v != "" {
		c.Watch.MetricsAddr = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:      c.Version,
		Distribution: c.Distribution,
		Corpus:       c.Corpus,
		Storage:      c.Storage,
		Evaluation:   c.Evaluation,
		Watch:        c.Watch,
		Logging:      c.Logging,
	}

	// Deep copy slices
	clone.Corpus.Paths = append([]string{}, c.Corpus.Paths...)
	clone.Corpus.Extensions = append([]string{}, c.Corpus.Extensions...)
	clone.Watch.Paths = append([]string{}, c.Watch.Paths...)
	clone.Watch.Extensions = append([]string{}, c.Watch.Extensions...)

	return clone
}
