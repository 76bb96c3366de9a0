package tet

import "math"

// Rates are the empirical channel error rates of one alignment.
//
// Insertion is normalized over all aligned cells, the other three over the
// cells with a presented symbol and then scaled by (1 - Insertion), so the
// four do not sum to one in general.
type Rates struct {
	Insertion    float64
	Omission     float64
	Substitution float64
	Correct      float64
}

// InsertionProbability returns p(I) = N(gap → symbol) / N.
func (a *Alignment[S]) InsertionProbability() float64 {
	if a.Len() == 0 {
		return 0
	}
	n := a.count(func(p, t Element[S]) bool { return p.Gap && !t.Gap })
	return float64(n) / float64(a.Len())
}

// OmissionProbability returns p(M) = N(symbol → gap) / N(symbol → ·) × (1 - p(I)).
func (a *Alignment[S]) OmissionProbability() float64 {
	return a.presentedRate(func(p, t Element[S]) bool { return !p.Gap && t.Gap })
}

// SubstitutionProbability returns
// p(S) = N(a → b, a != b) / N(symbol → ·) × (1 - p(I)).
func (a *Alignment[S]) SubstitutionProbability() float64 {
	return a.presentedRate(func(p, t Element[S]) bool {
		return !p.Gap && !t.Gap && p.Symbol != t.Symbol
	})
}

// CorrectProbability returns p(C) = N(a → a) / N(symbol → ·) × (1 - p(I)).
func (a *Alignment[S]) CorrectProbability() float64 {
	return a.presentedRate(func(p, t Element[S]) bool {
		return !p.Gap && !t.Gap && p.Symbol == t.Symbol
	})
}

// Rates returns all four error rates.
func (a *Alignment[S]) Rates() Rates {
	return Rates{
		Insertion:    a.InsertionProbability(),
		Omission:     a.OmissionProbability(),
		Substitution: a.SubstitutionProbability(),
		Correct:      a.CorrectProbability(),
	}
}

// presentedRate is 0 when no cell holds a presented symbol.
func (a *Alignment[S]) presentedRate(pred func(p, t Element[S]) bool) float64 {
	presented := a.count(func(p, _ Element[S]) bool { return !p.Gap })
	if presented == 0 {
		return 0
	}
	return float64(a.count(pred)) / float64(presented) * (1 - a.InsertionProbability())
}

// Channel is the noisy-channel model induced by one alignment and a
// reference distribution.
type Channel[S comparable] struct {
	dist  *Distribution[S]
	rates Rates
	gapP  float64
	k     float64
}

// NewChannel checks that every symbol on either track of a belongs to dist
// and returns the channel model. A symbol outside the distribution yields a
// *CoverageError; the information measures are undefined for such a pair.
func NewChannel[S comparable](a *Alignment[S], dist *Distribution[S]) (*Channel[S], error) {
	if err := checkCoverage("presented", a.presented, dist); err != nil {
		return nil, err
	}
	if err := checkCoverage("transcribed", a.transcribed, dist); err != nil {
		return nil, err
	}
	return &Channel[S]{
		dist:  dist,
		rates: a.Rates(),
		gapP:  a.GapProbability(),
		k:     float64(dist.Len()),
	}, nil
}

func checkCoverage[S comparable](track string, cells []Element[S], dist *Distribution[S]) error {
	for i, e := range cells {
		if !e.Gap && !dist.Contains(e.Symbol) {
			return &CoverageError{Track: track, Position: i, Symbol: e.Symbol}
		}
	}
	return nil
}

// Rates returns the error rates the channel was built from.
func (c *Channel[S]) Rates() Rates {
	return c.rates
}

// PPrime returns p'(i): P(gap) for the gap, p(c) × (1 - P(gap)) for a symbol.
// The boolean is false for a symbol outside the distribution.
func (c *Channel[S]) PPrime(i Element[S]) (float64, bool) {
	if i.Gap {
		return c.gapP, true
	}
	p, ok := c.dist.P(i.Symbol)
	if !ok {
		return 0, false
	}
	return p * (1 - c.gapP), true
}

// Transition returns p_i(j), the probability that presented i is entered as
// j. It is undefined (false) for the (gap, gap) pair.
func (c *Channel[S]) Transition(i, j Element[S]) (float64, bool) {
	switch {
	case i.Gap && j.Gap:
		return 0, false
	case i.Gap:
		return c.rates.Insertion / c.k, true
	case j.Gap:
		return c.rates.Omission, true
	case i.Symbol != j.Symbol:
		if c.k < 2 {
			return 0, true
		}
		return c.rates.Substitution / (c.k - 1), true
	default:
		return c.rates.Correct, true
	}
}

// Joint returns p(i,j) = p'(i) × p_i(j).
func (c *Channel[S]) Joint(i, j Element[S]) (float64, bool) {
	pi, ok := c.PPrime(i)
	if !ok {
		return 0, false
	}
	q, ok := c.Transition(i, j)
	if !ok {
		return 0, false
	}
	return pi * q, true
}

// Conditional returns p_j(i) = p(i,j) / Σ_i' p(i',j), with i' ranging over
// the distribution's symbols and the gap. A zero column yields zero.
func (c *Channel[S]) Conditional(i, j Element[S]) (float64, bool) {
	pij, ok := c.Joint(i, j)
	if !ok {
		return 0, false
	}
	if !j.Gap && !c.dist.Contains(j.Symbol) {
		return 0, false
	}
	col := c.column(j)
	if col == 0 {
		return 0, true
	}
	return pij / col, true
}

// column returns Σ_i p(i,j) over symbols and gap, skipping (gap, gap).
func (c *Channel[S]) column(j Element[S]) float64 {
	sum := 0.0
	for _, i := range c.elements() {
		if p, ok := c.Joint(i, j); ok {
			sum += p
		}
	}
	return sum
}

// elements returns the channel alphabet: every symbol, then the gap.
func (c *Channel[S]) elements() []Element[S] {
	out := make([]Element[S], 0, c.dist.Len()+1)
	for _, s := range c.dist.symbols {
		out = append(out, Sym(s))
	}
	return append(out, Gap[S]())
}

// SourceEntropy returns H(X) of the reference distribution.
func (c *Channel[S]) SourceEntropy() float64 {
	return c.dist.Entropy()
}

// ConditionalEntropy returns H_Y(X) = -Σ_{i,j} p(i,j) × log2(p_j(i)) over
// (symbols ∪ gap)², skipping (gap, gap). Terms with p(i,j) = 0 contribute 0.
func (c *Channel[S]) ConditionalEntropy() float64 {
	elems := c.elements()
	h := 0.0
	for _, j := range elems {
		col := c.column(j)
		for _, i := range elems {
			if i.Gap && j.Gap {
				continue
			}
			pij, _ := c.Joint(i, j)
			if pij == 0 {
				continue
			}
			h -= pij * math.Log2(pij/col)
		}
	}
	return h
}

// MutualInformation returns I(X;Y) = H(X) - H_Y(X) in bits per character.
func (c *Channel[S]) MutualInformation() float64 {
	return c.SourceEntropy() - c.ConditionalEntropy()
}
