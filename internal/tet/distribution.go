package tet

import (
	"fmt"
	"math"
)

// normalizationTolerance bounds how far the weights passed to
// NewDistributionFromWeights may sum away from 1.
const normalizationTolerance = 1e-6

// Weighted pairs a symbol with its probability.
type Weighted[S comparable] struct {
	Symbol S
	P      float64
}

// Distribution is an immutable probability mass function over symbols.
//
// Only symbols with nonzero probability are part of the domain; lookups of
// anything else report absence rather than zero. A Distribution is safe to
// share between goroutines and between any number of computations.
type Distribution[S comparable] struct {
	probs   map[S]float64
	symbols []S
}

// NewDistribution normalizes a frequency table: p(s) = count(s) / n.
func NewDistribution[S comparable](table *FrequencyTable[S]) (*Distribution[S], error) {
	if table == nil || table.Len() == 0 {
		return nil, ErrEmptyFrequencyTable
	}
	n := float64(table.Total())

	d := &Distribution[S]{
		probs:   make(map[S]float64, table.Len()),
		symbols: make([]S, 0, table.Len()),
	}
	table.Each(func(s S, count uint64) {
		d.probs[s] = float64(count) / n
		d.symbols = append(d.symbols, s)
	})
	return d, nil
}

// NewDistributionFromWeights builds a distribution from explicit
// probabilities. Zero weights are dropped. Weights must lie in [0,1], name
// each symbol once, and sum to 1.
func NewDistributionFromWeights[S comparable](weights []Weighted[S]) (*Distribution[S], error) {
	d := &Distribution[S]{
		probs:   make(map[S]float64, len(weights)),
		symbols: make([]S, 0, len(weights)),
	}

	sum := 0.0
	for _, w := range weights {
		if math.IsNaN(w.P) || w.P < 0 || w.P > 1 {
			return nil, fmt.Errorf("%w: probability %v of symbol %v out of range", ErrInvalidDistribution, w.P, w.Symbol)
		}
		if _, dup := d.probs[w.Symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate symbol %v", ErrInvalidDistribution, w.Symbol)
		}
		if w.P == 0 {
			continue
		}
		d.probs[w.Symbol] = w.P
		d.symbols = append(d.symbols, w.Symbol)
		sum += w.P
	}

	if len(d.symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbol with nonzero probability", ErrInvalidDistribution)
	}
	if math.Abs(sum-1) > normalizationTolerance {
		return nil, fmt.Errorf("%w: probabilities sum to %v", ErrInvalidDistribution, sum)
	}
	return d, nil
}

// P returns p(s). The boolean is false when s is outside the domain.
func (d *Distribution[S]) P(s S) (float64, bool) {
	p, ok := d.probs[s]
	return p, ok
}

// Contains reports whether s has nonzero probability.
func (d *Distribution[S]) Contains(s S) bool {
	_, ok := d.probs[s]
	return ok
}

// Len returns k, the alphabet size.
func (d *Distribution[S]) Len() int {
	return len(d.symbols)
}

// Symbols returns the domain in construction order.
func (d *Distribution[S]) Symbols() []S {
	out := make([]S, len(d.symbols))
	copy(out, d.symbols)
	return out
}

// Weights returns the (symbol, probability) pairs in construction order.
func (d *Distribution[S]) Weights() []Weighted[S] {
	out := make([]Weighted[S], len(d.symbols))
	for i, s := range d.symbols {
		out[i] = Weighted[S]{Symbol: s, P: d.probs[s]}
	}
	return out
}

// Entropy returns the Shannon entropy H(X) in bits per symbol.
// Formula: H = -sum p_i * log2(p_i)
func (d *Distribution[S]) Entropy() float64 {
	h := 0.0
	for _, s := range d.symbols {
		if p := d.probs[s]; p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}
