package tet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDistribution(t *testing.T) {
	f := NewFrequencyTable[rune]()
	for _, r := range "aaab" {
		f.Record(r)
	}

	d, err := NewDistribution(f)
	require.NoError(t, err)

	p, ok := d.P('a')
	require.True(t, ok)
	assert.Equal(t, 0.75, p)

	p, ok = d.P('b')
	require.True(t, ok)
	assert.Equal(t, 0.25, p)

	_, ok = d.P('c')
	assert.False(t, ok, "absent symbol must not report a probability")
	assert.Equal(t, 2, d.Len())
}

func TestNewDistribution_Empty(t *testing.T) {
	_, err := NewDistribution(NewFrequencyTable[rune]())
	assert.ErrorIs(t, err, ErrEmptyFrequencyTable)

	_, err = NewDistribution[rune](nil)
	assert.ErrorIs(t, err, ErrEmptyFrequencyTable)
}

func TestNewDistribution_SumsToOne(t *testing.T) {
	f := NewFrequencyTable[rune]()
	for _, r := range "the quick brown fox jumps over the lazy dog" {
		f.Record(r)
	}
	d, err := NewDistribution(f)
	require.NoError(t, err)

	sum := 0.0
	for _, w := range d.Weights() {
		sum += w.P
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Equal(t, f.Symbols(), d.Symbols())
}

func TestNewDistributionFromWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights []Weighted[rune]
		wantErr bool
		wantLen int
	}{
		{
			name:    "valid",
			weights: []Weighted[rune]{{'a', 0.5}, {'b', 0.5}},
			wantLen: 2,
		},
		{
			name:    "zero weight dropped",
			weights: []Weighted[rune]{{'a', 1}, {'b', 0}},
			wantLen: 1,
		},
		{
			name:    "empty",
			wantErr: true,
		},
		{
			name:    "all zero",
			weights: []Weighted[rune]{{'a', 0}},
			wantErr: true,
		},
		{
			name:    "negative",
			weights: []Weighted[rune]{{'a', 1.5}, {'b', -0.5}},
			wantErr: true,
		},
		{
			name:    "nan",
			weights: []Weighted[rune]{{'a', math.NaN()}},
			wantErr: true,
		},
		{
			name:    "duplicate",
			weights: []Weighted[rune]{{'a', 0.5}, {'a', 0.5}},
			wantErr: true,
		},
		{
			name:    "not normalized",
			weights: []Weighted[rune]{{'a', 0.5}, {'b', 0.4}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDistributionFromWeights(tt.weights)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDistribution)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, d.Len())
		})
	}
}

func TestDistribution_Entropy(t *testing.T) {
	uniform, err := NewDistributionFromWeights([]Weighted[rune]{
		{'a', 0.25}, {'b', 0.25}, {'c', 0.25}, {'d', 0.25},
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, uniform.Entropy(), 1e-12)

	single, err := NewDistributionFromWeights([]Weighted[rune]{{'a', 1}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, single.Entropy(), "one-symbol distribution carries no information")

	skewed, err := NewDistributionFromWeights([]Weighted[rune]{{'a', 0.9}, {'b', 0.1}})
	require.NoError(t, err)
	assert.Greater(t, skewed.Entropy(), 0.0)
	assert.Less(t, skewed.Entropy(), 1.0)
}

func TestEnglish(t *testing.T) {
	d := English()
	require.Equal(t, 27, d.Len())
	assert.InDelta(t, 4.090309047790043, d.Entropy(), 1e-11)

	p, ok := d.P(' ')
	require.True(t, ok)
	assert.Equal(t, 0.18325568938199557, p)

	_, ok = d.P('A')
	assert.False(t, ok, "table is lower-case only")

	assert.Same(t, d, English(), "table is shared")
}
