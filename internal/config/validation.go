package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap makes errors.Is(err, ErrInvalidConfig) hold.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateDistribution(&c.Distribution, &c.Corpus)...)
	errs = append(errs, validateCorpus(&c.Corpus)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateEvaluation(&c.Evaluation)...)
	errs = append(errs, validateWatch(&c.Watch)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDistribution(d *DistributionConfig, corpus *CorpusConfig) ValidationErrors {
	var errs ValidationErrors

	switch d.Source {
	case SourceEnglish:
	case SourceFile:
		if d.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "distribution.path",
				Message: "path is required when source is 'file'",
			})
		}
	case SourceCorpus:
		if len(corpus.Paths) == 0 {
			errs = append(errs, ValidationError{
				Field:   "corpus.paths",
				Message: "at least one corpus path is required when source is 'corpus'",
			})
		}
	case SourceStore:
		if d.Name == "" {
			errs = append(errs, ValidationError{
				Field:   "distribution.name",
				Message: "name is required when source is 'store'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "distribution.source",
			Message: fmt.Sprintf("invalid source: %s (valid: english, file, corpus, store)", d.Source),
		})
	}

	return errs
}

func validateCorpus(c *CorpusConfig) ValidationErrors {
	var errs ValidationErrors

	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("corpus.extensions[%d]", i),
				Message: fmt.Sprintf("extension must start with a dot: %q", ext),
			})
		}
	}

	if !utf8.ValidString(c.Alphabet) {
		errs = append(errs, ValidationError{
			Field:   "corpus.alphabet",
			Message: "alphabet is not valid UTF-8",
		})
	}

	for i, path := range c.Paths {
		if _, err := os.Stat(expandPath(path)); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("corpus.paths[%d]", i),
				Message: fmt.Sprintf("path not accessible: %s", path),
			})
		}
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.path",
			Message: "database path is required",
		})
	}

	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateEvaluation(e *EvaluationConfig) ValidationErrors {
	var errs ValidationErrors

	if e.Workers < 0 {
		errs = append(errs, ValidationError{
			Field:   "evaluation.workers",
			Message: "workers cannot be negative",
		})
	}

	if e.MaxSymbols < 0 {
		errs = append(errs, ValidationError{
			Field:   "evaluation.max_symbols",
			Message: "max symbols cannot be negative",
		})
	}

	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors

	if w.DebounceMs < 10 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "debounce must be at least 10ms",
		})
	}

	if w.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(w.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "watch.metrics_addr",
				Message: fmt.Sprintf("invalid listen address: %v", err),
			})
		}
	}

	for i, path := range w.Paths {
		info, err := os.Stat(expandPath(path))
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("watch.paths[%d]", i),
				Message: fmt.Sprintf("path does not exist: %s", path),
			})
		} else if !info.IsDir() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("watch.paths[%d]", i),
				Message: fmt.Sprintf("path is not a directory: %s", path),
			})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	return errs
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	// Watched directories might not exist yet
	return strings.HasPrefix(e.Field, "watch.paths")
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}
