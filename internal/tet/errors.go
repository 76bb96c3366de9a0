package tet

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFrequencyTable is returned when a distribution is built from a
	// table with no recorded symbols.
	ErrEmptyFrequencyTable = errors.New("tet: frequency table is empty")

	// ErrInvalidDistribution is returned for weights that do not form a
	// probability mass function.
	ErrInvalidDistribution = errors.New("tet: invalid distribution")

	// ErrSymbolNotCovered indicates a symbol outside the distribution's domain.
	// The throughput of such a pair is undefined.
	ErrSymbolNotCovered = errors.New("tet: symbol not covered by distribution")

	// ErrNonPositiveDuration is returned when the elapsed entry time is <= 0.
	ErrNonPositiveDuration = errors.New("tet: elapsed time must be positive")

	// ErrDurationOutOfRange is returned for a positive elapsed time that a
	// time.Duration cannot represent: below one nanosecond or above ~292 years.
	ErrDurationOutOfRange = errors.New("tet: elapsed time out of range")
)

// CoverageError reports the first aligned symbol missing from a distribution.
type CoverageError struct {
	// Track is "presented" or "transcribed".
	Track string
	// Position is the index of the offending cell in the aligned track.
	Position int
	Symbol   any
}

func (e *CoverageError) Error() string {
	if r, ok := e.Symbol.(rune); ok {
		return fmt.Sprintf("tet: %s symbol %q at cell %d not covered by distribution", e.Track, r, e.Position)
	}
	return fmt.Sprintf("tet: %s symbol %v at cell %d not covered by distribution", e.Track, e.Symbol, e.Position)
}

// Unwrap makes errors.Is(err, ErrSymbolNotCovered) hold.
func (e *CoverageError) Unwrap() error {
	return ErrSymbolNotCovered
}
