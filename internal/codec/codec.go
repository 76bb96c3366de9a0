// Package codec reads and writes frequency tables and distributions as JSON,
// YAML or TOML documents.
//
// Both document kinds share one shape:
//
//	kind = "distribution"
//	[[symbols]]
//	symbol = "a"
//	p = 0.0654
//
// Frequency documents carry `count` instead of `p`. Symbols are single-rune
// strings.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"tetmeter/internal/tet"
)

var (
	// ErrUnknownFormat is returned for an unsupported document format.
	ErrUnknownFormat = errors.New("codec: unknown format")

	// ErrBadSymbol is returned when a symbol is not exactly one rune.
	ErrBadSymbol = errors.New("codec: symbol must be a single rune")

	// ErrWrongKind is returned when a document holds the other kind.
	ErrWrongKind = errors.New("codec: unexpected document kind")
)

// Document kinds.
const (
	KindFrequencies  = "frequencies"
	KindDistribution = "distribution"
)

// Format is a structured encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatTOML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

type entry struct {
	Symbol string  `json:"symbol" yaml:"symbol" toml:"symbol"`
	Count  uint64  `json:"count,omitempty" yaml:"count,omitempty" toml:"count,omitempty"`
	P      float64 `json:"p,omitempty" yaml:"p,omitempty" toml:"p,omitempty"`
}

type document struct {
	Kind    string  `json:"kind" yaml:"kind" toml:"kind"`
	Symbols []entry `json:"symbols" yaml:"symbols" toml:"symbols"`
}

func encode(w io.Writer, doc *document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(doc)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}
}

func decode(r io.Reader, format Format) (*document, error) {
	var doc document
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&doc)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&doc)
	case FormatTOML:
		_, err = toml.NewDecoder(r).Decode(&doc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	if doc.Kind == "" {
		doc.Kind = KindDistribution
		for _, e := range doc.Symbols {
			if e.Count > 0 {
				doc.Kind = KindFrequencies
				break
			}
		}
	}
	return &doc, nil
}

func parseSymbol(s string) (rune, error) {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("%w: %q", ErrBadSymbol, s)
	}
	return r, nil
}

// EncodeFrequencies writes table in the given format.
func EncodeFrequencies(w io.Writer, table *tet.FrequencyTable[rune], format Format) error {
	doc := &document{Kind: KindFrequencies}
	table.Each(func(s rune, count uint64) {
		doc.Symbols = append(doc.Symbols, entry{Symbol: string(s), Count: count})
	})
	return encode(w, doc, format)
}

// DecodeFrequencies reads a frequency document.
func DecodeFrequencies(r io.Reader, format Format) (*tet.FrequencyTable[rune], error) {
	doc, err := decode(r, format)
	if err != nil {
		return nil, err
	}
	if doc.Kind != KindFrequencies {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrWrongKind, KindFrequencies, doc.Kind)
	}
	return doc.frequencies()
}

func (doc *document) frequencies() (*tet.FrequencyTable[rune], error) {
	table := tet.NewFrequencyTable[rune]()
	for _, e := range doc.Symbols {
		s, err := parseSymbol(e.Symbol)
		if err != nil {
			return nil, err
		}
		table.Add(s, e.Count)
	}
	return table, nil
}

// EncodeDistribution writes d in the given format.
func EncodeDistribution(w io.Writer, d *tet.Distribution[rune], format Format) error {
	doc := &document{Kind: KindDistribution}
	for _, wt := range d.Weights() {
		doc.Symbols = append(doc.Symbols, entry{Symbol: string(wt.Symbol), P: wt.P})
	}
	return encode(w, doc, format)
}

// DecodeDistribution reads a distribution document. A frequency document is
// accepted too and normalized.
func DecodeDistribution(r io.Reader, format Format) (*tet.Distribution[rune], error) {
	doc, err := decode(r, format)
	if err != nil {
		return nil, err
	}

	switch doc.Kind {
	case KindFrequencies:
		table, err := doc.frequencies()
		if err != nil {
			return nil, err
		}
		return tet.NewDistribution(table)
	case KindDistribution:
		weights := make([]tet.Weighted[rune], 0, len(doc.Symbols))
		for _, e := range doc.Symbols {
			s, err := parseSymbol(e.Symbol)
			if err != nil {
				return nil, err
			}
			weights = append(weights, tet.Weighted[rune]{Symbol: s, P: e.P})
		}
		return tet.NewDistributionFromWeights(weights)
	default:
		return nil, fmt.Errorf("%w: %s", ErrWrongKind, doc.Kind)
	}
}

// LoadDistributionFile reads a distribution (or frequency) file, choosing the
// format from its extension.
func LoadDistributionFile(path string) (*tet.Distribution[rune], error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open distribution: %w", err)
	}
	defer f.Close()
	return DecodeDistribution(f, format)
}

// LoadFrequencyFile reads a frequency file.
func LoadFrequencyFile(path string) (*tet.FrequencyTable[rune], error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frequencies: %w", err)
	}
	defer f.Close()
	return DecodeFrequencies(f, format)
}

// SaveDistributionFile writes d to path.
func SaveDistributionFile(path string, d *tet.Distribution[rune]) error {
	return saveFile(path, func(w io.Writer, format Format) error {
		return EncodeDistribution(w, d, format)
	})
}

// SaveFrequencyFile writes table to path.
func SaveFrequencyFile(path string, table *tet.FrequencyTable[rune]) error {
	return saveFile(path, func(w io.Writer, format Format) error {
		return EncodeFrequencies(w, table, format)
	})
}

func saveFile(path string, write func(io.Writer, Format) error) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if err := write(f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
