package tet

import (
	"fmt"
	"math"
	"time"
)

// Measurement is the full breakdown of one throughput computation.
type Measurement[S comparable] struct {
	Alignment          *Alignment[S]
	Rates              Rates
	SourceEntropy      float64 // H(X)
	ConditionalEntropy float64 // H_Y(X)
	MutualInformation  float64 // I(X;Y), bits per character
	TranscribedSymbols int
	Elapsed            time.Duration
	SymbolsPerSecond   float64
	Throughput         float64 // bits per second
}

// Calculator computes text entry throughput against one reference
// distribution. It holds no mutable state and is safe for concurrent use.
type Calculator[S comparable] struct {
	dist *Distribution[S]
}

// NewCalculator returns a calculator backed by dist.
func NewCalculator[S comparable](dist *Distribution[S]) *Calculator[S] {
	return &Calculator[S]{dist: dist}
}

// Distribution returns the reference distribution.
func (c *Calculator[S]) Distribution() *Distribution[S] {
	return c.dist
}

// Measure aligns presented and transcribed, builds the channel model and
// returns every intermediate quantity with the throughput
//
//	throughput = I(X;Y) × len(transcribed) / elapsed.Seconds()
//
// It fails with ErrNonPositiveDuration for elapsed <= 0 and with a
// *CoverageError when either string holds a symbol outside the distribution.
func (c *Calculator[S]) Measure(presented, transcribed []S, elapsed time.Duration) (*Measurement[S], error) {
	if elapsed <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrNonPositiveDuration, elapsed)
	}

	a := Align(presented, transcribed)
	ch, err := NewChannel(a, c.dist)
	if err != nil {
		return nil, err
	}

	m := &Measurement[S]{
		Alignment:          a,
		Rates:              ch.Rates(),
		SourceEntropy:      ch.SourceEntropy(),
		ConditionalEntropy: ch.ConditionalEntropy(),
		TranscribedSymbols: len(transcribed),
		Elapsed:            elapsed,
		SymbolsPerSecond:   float64(len(transcribed)) / elapsed.Seconds(),
	}
	m.MutualInformation = m.SourceEntropy - m.ConditionalEntropy
	m.Throughput = m.MutualInformation * m.SymbolsPerSecond
	return m, nil
}

// Throughput returns the text entry throughput in bits per second.
func (c *Calculator[S]) Throughput(presented, transcribed []S, elapsed time.Duration) (float64, error) {
	m, err := c.Measure(presented, transcribed, elapsed)
	if err != nil {
		return 0, err
	}
	return m.Throughput, nil
}

// MeasureText is Measure for strings, compared rune by rune.
func MeasureText(c *Calculator[rune], presented, transcribed string, elapsed time.Duration) (*Measurement[rune], error) {
	return c.Measure([]rune(presented), []rune(transcribed), elapsed)
}

// ParseSeconds converts a number of seconds to a Duration, rejecting values
// Seconds would silently truncate to zero or overflow.
func ParseSeconds(s float64) (time.Duration, error) {
	if math.IsNaN(s) || s <= 0 {
		return 0, fmt.Errorf("%w: got %v s", ErrNonPositiveDuration, s)
	}
	ns := s * float64(time.Second)
	if ns < 1 || ns >= float64(math.MaxInt64) {
		return 0, fmt.Errorf("%w: got %v s", ErrDurationOutOfRange, s)
	}
	return time.Duration(ns), nil
}

// Seconds converts a floating-point number of seconds to a Duration. Use
// ParseSeconds for untrusted input.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
