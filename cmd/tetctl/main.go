// tetctl measures text entry throughput from the command line.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tetmeter/internal/codec"
	"tetmeter/internal/config"
	"tetmeter/internal/corpus"
	"tetmeter/internal/logging"
	"tetmeter/internal/store"
	"tetmeter/internal/tet"
)

var (
	configPath = flag.String("config", "", "path to config file")
)

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	var err error
	switch cmd {
	case "calc":
		err = cmdCalc(args)
	case "align":
		err = cmdAlign(args)
	case "freq":
		err = cmdFreq(args)
	case "entropy":
		err = cmdEntropy(args)
	case "eval":
		err = cmdEval(args)
	case "watch":
		err = cmdWatch(args)
	case "history":
		err = cmdHistory(args)
	case "dists":
		err = cmdDistributions(args)
	case "config":
		err = cmdConfig(args)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `tetctl - Text entry throughput meter

Usage: tetctl [options] <command> [args]

Commands:
  calc -p <presented> -t <transcribed> -s <seconds>
                        Compute throughput for one trial
  align <presented> <transcribed>
                        Show the optimal alignment and distance
  freq [-o file] [-save name] <path>...
                        Build a character distribution from a text corpus
  entropy               Print H(X) of the reference distribution
  eval [-store] <session>...
                        Evaluate session files (json, yaml, toml)
  watch [-metrics addr] [dir]...
                        Evaluate and store sessions as they appear
  history [-n N] [-method M]
                        List stored results
  dists                 List stored distributions
  config init|show|validate
                        Manage the configuration file
  help                  Show this help message

Options:
  -config <path>  Path to config file (default: platform config dir)

Most commands accept -dist <source>, where source is "english", a
distribution or frequency file (.json, .yaml, .toml), or "store:<name>".`)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var verrs config.ValidationErrors
	if err := cfg.Validate(); errors.As(err, &verrs) && verrs.HasErrors() {
		return nil, verrs.Errors()
	}
	return cfg, nil
}

// setupLogger builds the process logger from cfg and installs it as the
// default.
func setupLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	lcfg := logging.DefaultConfig()
	lcfg.Level = level
	lcfg.Format = format
	lcfg.Output = cfg.Logging.Output
	lcfg.FilePath = cfg.Logging.FilePath
	lcfg.Component = "tetctl"

	logger, err := logging.New(lcfg)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logger, nil
}

func corpusOptions(cfg *config.Config) corpus.Options {
	return corpus.Options{
		Lowercase:          cfg.Corpus.Lowercase,
		Normalize:          cfg.Corpus.Normalize,
		CollapseWhitespace: cfg.Corpus.CollapseWhitespace,
		Alphabet:           cfg.Corpus.Alphabet,
	}
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.OpenWithBusyTimeout(cfg.Storage.Path, cfg.Storage.BusyTimeoutMs)
}

// resolveDistribution returns the reference distribution and the name
// results are recorded under. A non-empty override takes precedence over
// the configured source.
func resolveDistribution(cfg *config.Config, override string) (*tet.Distribution[rune], string, error) {
	source, path, name := cfg.Distribution.Source, cfg.Distribution.Path, cfg.Distribution.Name
	switch {
	case override == "":
	case override == config.SourceEnglish:
		source, name = config.SourceEnglish, config.SourceEnglish
	case strings.HasPrefix(override, "store:"):
		source, name = config.SourceStore, strings.TrimPrefix(override, "store:")
	default:
		source, path, name = config.SourceFile, override, ""
	}

	switch source {
	case config.SourceEnglish:
		return tet.English(), config.SourceEnglish, nil

	case config.SourceFile:
		d, err := codec.LoadDistributionFile(path)
		if err != nil {
			return nil, "", err
		}
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return d, name, nil

	case config.SourceCorpus:
		table, err := corpus.CountFiles(cfg.Corpus.Paths, cfg.Corpus.Extensions, corpusOptions(cfg))
		if err != nil {
			return nil, "", err
		}
		d, err := tet.NewDistribution(table)
		if err != nil {
			return nil, "", err
		}
		if name == "" || name == config.SourceEnglish {
			name = config.SourceCorpus
		}
		return d, name, nil

	case config.SourceStore:
		s, err := openStore(cfg)
		if err != nil {
			return nil, "", err
		}
		defer s.Close()
		d, err := s.LoadDistribution(name)
		if err != nil {
			return nil, "", err
		}
		return d, name, nil

	default:
		return nil, "", fmt.Errorf("unknown distribution source: %s", source)
	}
}
