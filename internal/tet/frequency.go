package tet

// FrequencyTable counts occurrences of each distinct symbol in a corpus.
//
// Symbols are kept in first-seen order so every iteration, and every
// distribution derived from the table, is deterministic. The zero value is
// not usable; call NewFrequencyTable.
type FrequencyTable[S comparable] struct {
	counts map[S]uint64
	order  []S
}

// NewFrequencyTable returns an empty table.
func NewFrequencyTable[S comparable]() *FrequencyTable[S] {
	return &FrequencyTable[S]{counts: make(map[S]uint64)}
}

// Record counts one occurrence of s.
func (f *FrequencyTable[S]) Record(s S) {
	f.Add(s, 1)
}

// Add counts n occurrences of s. Adding zero is a no-op, so every present
// symbol always has a count of at least one.
func (f *FrequencyTable[S]) Add(s S, n uint64) {
	if n == 0 {
		return
	}
	if _, ok := f.counts[s]; !ok {
		f.order = append(f.order, s)
	}
	f.counts[s] += n
}

// Count returns the number of recorded occurrences of s.
func (f *FrequencyTable[S]) Count(s S) uint64 {
	return f.counts[s]
}

// Total returns n, the sum of all counts.
func (f *FrequencyTable[S]) Total() uint64 {
	var n uint64
	for _, c := range f.counts {
		n += c
	}
	return n
}

// Len returns the number of distinct symbols.
func (f *FrequencyTable[S]) Len() int {
	return len(f.order)
}

// Symbols returns the distinct symbols in first-seen order.
func (f *FrequencyTable[S]) Symbols() []S {
	out := make([]S, len(f.order))
	copy(out, f.order)
	return out
}

// Each calls fn for every symbol in first-seen order.
func (f *FrequencyTable[S]) Each(fn func(s S, count uint64)) {
	for _, s := range f.order {
		fn(s, f.counts[s])
	}
}

// Retain drops every symbol for which keep returns false.
func (f *FrequencyTable[S]) Retain(keep func(s S) bool) {
	kept := f.order[:0]
	for _, s := range f.order {
		if keep(s) {
			kept = append(kept, s)
			continue
		}
		delete(f.counts, s)
	}
	f.order = kept
}

// Clone returns an independent copy.
func (f *FrequencyTable[S]) Clone() *FrequencyTable[S] {
	c := &FrequencyTable[S]{
		counts: make(map[S]uint64, len(f.counts)),
		order:  f.Symbols(),
	}
	for s, n := range f.counts {
		c.counts[s] = n
	}
	return c
}
