package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tetmeter/internal/tet"
)

func TestCount_Raw(t *testing.T) {
	table := tet.NewFrequencyTable[rune]()
	n := CountString("Aa  b", Options{}, table)

	assert.Equal(t, int64(5), n)
	assert.Equal(t, uint64(1), table.Count('A'))
	assert.Equal(t, uint64(1), table.Count('a'))
	assert.Equal(t, uint64(2), table.Count(' '))
}

func TestCount_English(t *testing.T) {
	table := tet.NewFrequencyTable[rune]()
	n := CountString("The  Cat,\n\tsat!", EnglishOptions(), table)

	// "the cat sat" after folding, collapsing and filtering punctuation.
	assert.Equal(t, int64(11), n)
	assert.Equal(t, uint64(3), table.Count('t'))
	assert.Equal(t, uint64(2), table.Count(' '))
	assert.Equal(t, uint64(0), table.Count('T'))
	assert.Equal(t, uint64(0), table.Count(','))
}

func TestCount_FilteredRunesBetweenSpaces(t *testing.T) {
	tests := []struct {
		input string
		n     int64
	}{
		{"hello , world", 11},
		{"in 2019 the", 6},
		{"a - b", 3},
		{"x\t.\n y", 3},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			table := tet.NewFrequencyTable[rune]()
			n := CountString(tt.input, EnglishOptions(), table)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, uint64(1), table.Count(' '))
		})
	}
}

func TestCount_Normalize(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"
	table := tet.NewFrequencyTable[rune]()
	CountString(decomposed+composed, Options{Normalize: true}, table)

	assert.Equal(t, uint64(2), table.Count('\u00e9'), "NFC folds both forms into one symbol")
	assert.Equal(t, 1, table.Len())
}

func TestCountFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("ab"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.TXT"), []byte("bc"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.bin"), []byte("zzzz"), 0600))

	table, err := CountFiles([]string{dir}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), table.Total())
	assert.Equal(t, uint64(2), table.Count('b'))
	assert.Equal(t, uint64(0), table.Count('z'))

	single, err := CountFiles([]string{filepath.Join(dir, "skip.bin")}, nil, Options{})
	require.NoError(t, err, "explicit files are read regardless of extension")
	assert.Equal(t, uint64(4), single.Count('z'))
}

func TestCountFiles_Empty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("!!!"), 0600))

	_, err := CountFiles([]string{dir}, nil, EnglishOptions())
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	_, err = CountFiles([]string{filepath.Join(dir, "missing")}, nil, Options{})
	assert.Error(t, err)
}

func TestCount_FeedsDistribution(t *testing.T) {
	table := tet.NewFrequencyTable[rune]()
	CountString("large and appropriate text is recommended", EnglishOptions(), table)

	d, err := tet.NewDistribution(table)
	require.NoError(t, err)
	assert.Greater(t, d.Entropy(), 0.0)
	assert.LessOrEqual(t, d.Len(), 27)
}
