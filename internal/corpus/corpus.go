// Package corpus builds symbol frequency tables from text sources.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tetmeter/internal/tet"
)

// ErrEmptyCorpus is returned when no symbol was recorded.
var ErrEmptyCorpus = errors.New("corpus: no symbols recorded")

// DefaultExtensions are the file extensions read when walking directories.
var DefaultExtensions = []string{".txt", ".md"}

// Options control how raw text is turned into symbols.
type Options struct {
	// Lowercase folds text to lower case before counting.
	Lowercase bool

	// Normalize applies Unicode NFC so composed and decomposed forms of the
	// same character count as one symbol.
	Normalize bool

	// CollapseWhitespace maps every run of whitespace to a single space.
	CollapseWhitespace bool

	// Alphabet, when non-empty, restricts counting to its runes.
	Alphabet string
}

// EnglishOptions matches the built-in English distribution: lower-case
// letters and single spaces.
func EnglishOptions() Options {
	return Options{
		Lowercase:          true,
		Normalize:          true,
		CollapseWhitespace: true,
		Alphabet:           "abcdefghijklmnopqrstuvwxyz ",
	}
}

// transformer returns the x/text chain for opts, or nil.
func (o Options) transformer() transform.Transformer {
	var chain []transform.Transformer
	if o.Normalize {
		chain = append(chain, norm.NFC)
	}
	if o.Lowercase {
		chain = append(chain, cases.Lower(language.Und))
	}
	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	default:
		return transform.Chain(chain...)
	}
}

// Count reads r to EOF and records every accepted rune into table. It returns
// the number of runes recorded.
func Count(r io.Reader, opts Options, table *tet.FrequencyTable[rune]) (int64, error) {
	if t := opts.transformer(); t != nil {
		r = transform.NewReader(r, t)
	}

	var allowed map[rune]bool
	if opts.Alphabet != "" {
		allowed = make(map[rune]bool)
		for _, a := range opts.Alphabet {
			allowed[a] = true
		}
	}

	br := bufio.NewReader(r)
	var recorded int64
	inSpace := false
	for {
		c, _, err := br.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return recorded, fmt.Errorf("read rune: %w", err)
		}

		if opts.CollapseWhitespace && unicode.IsSpace(c) {
			c = ' '
		}
		if allowed != nil && !allowed[c] {
			continue
		}
		// Runes dropped by the alphabet do not end a whitespace run.
		if opts.CollapseWhitespace {
			if c == ' ' && inSpace {
				continue
			}
			inSpace = c == ' '
		}
		table.Record(c)
		recorded++
	}
	return recorded, nil
}

// CountString is Count over a string.
func CountString(s string, opts Options, table *tet.FrequencyTable[rune]) int64 {
	n, _ := Count(strings.NewReader(s), opts, table)
	return n
}

// CountFiles counts every file in paths. Directories are walked recursively
// and only files whose extension is in extensions are read (DefaultExtensions
// when empty).
func CountFiles(paths []string, extensions []string, opts Options) (*tet.FrequencyTable[rune], error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	table := tet.NewFrequencyTable[rune]()

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat corpus path: %w", err)
		}
		if !info.IsDir() {
			if err := countFile(root, opts, table); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !hasExtension(path, extensions) {
				return nil
			}
			return countFile(path, opts, table)
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	if table.Len() == 0 {
		return nil, ErrEmptyCorpus
	}
	return table, nil
}

func countFile(path string, opts Options, table *tet.FrequencyTable[rune]) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	if _, err := Count(f, opts, table); err != nil {
		return fmt.Errorf("count %s: %w", path, err)
	}
	return nil
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
