package tet

import (
	"fmt"
	"strings"
)

// Element is one cell of an aligned track: either a symbol or a gap.
type Element[S comparable] struct {
	Symbol S
	Gap    bool
}

// Sym returns the element holding s.
func Sym[S comparable](s S) Element[S] {
	return Element[S]{Symbol: s}
}

// Gap returns the gap element.
func Gap[S comparable]() Element[S] {
	return Element[S]{Gap: true}
}

// IsGap reports whether e is the gap element.
func (e Element[S]) IsGap() bool {
	return e.Gap
}

func (e Element[S]) String() string {
	if e.Gap {
		return "-"
	}
	return formatSymbol(e.Symbol)
}

// Matrix is the (X+1)×(Y+1) minimum string distance matrix.
type Matrix [][]uint64

// Distance returns D[X][Y], the minimum edit distance.
func (m Matrix) Distance() uint64 {
	if len(m) == 0 {
		return 0
	}
	last := m[len(m)-1]
	return last[len(last)-1]
}

// MSD builds the minimum string distance matrix of presented (length X) and
// transcribed (length Y):
//
//	D[0][j] = j, D[i][0] = i
//	D[i][j] = min(D[i-1][j]+1, D[i][j-1]+1, D[i-1][j-1]+r(P[i-1], T[j-1]))
//
// where r(a, b) is 0 when a == b and 1 otherwise.
func MSD[S comparable](presented, transcribed []S) Matrix {
	x, y := len(presented), len(transcribed)

	d := make(Matrix, x+1)
	for i := range d {
		d[i] = make([]uint64, y+1)
		d[i][0] = uint64(i)
	}
	for j := 0; j <= y; j++ {
		d[0][j] = uint64(j)
	}

	for i := 1; i <= x; i++ {
		for j := 1; j <= y; j++ {
			diag := d[i-1][j-1]
			if presented[i-1] != transcribed[j-1] {
				diag++
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, diag)
		}
	}
	return d
}

// move is one backtrace edge out of a matrix cell.
type move int

const (
	moveMatch move = iota
	moveSubstitute
	moveUp
	moveLeft
)

// optimalMoves lists every cost-optimal edge into (x, y), in enumeration
// order. Each guard is evaluated on its own.
func optimalMoves[S comparable](presented, transcribed []S, d Matrix, x, y int) []move {
	moves := make([]move, 0, 3)
	if x > 0 && y > 0 {
		if d[x][y] == d[x-1][y-1] && presented[x-1] == transcribed[y-1] {
			moves = append(moves, moveMatch)
		}
		if d[x][y] == d[x-1][y-1]+1 {
			moves = append(moves, moveSubstitute)
		}
	}
	if x > 0 && d[x][y] == d[x-1][y]+1 {
		moves = append(moves, moveUp)
	}
	if y > 0 && d[x][y] == d[x][y-1]+1 {
		moves = append(moves, moveLeft)
	}
	return moves
}

// step applies m at (x, y) and returns the emitted cell pair and the
// predecessor coordinates.
func step[S comparable](presented, transcribed []S, m move, x, y int) (Element[S], Element[S], int, int) {
	switch m {
	case moveUp:
		return Sym(presented[x-1]), Gap[S](), x - 1, y
	case moveLeft:
		return Gap[S](), Sym(transcribed[y-1]), x, y - 1
	default:
		return Sym(presented[x-1]), Sym(transcribed[y-1]), x - 1, y - 1
	}
}

// Alignment is a pair of equal-length tracks that edits the presented
// sequence into the transcribed one at minimum cost.
type Alignment[S comparable] struct {
	presented   []Element[S]
	transcribed []Element[S]
	distance    uint64
	gapP        float64
}

// newAlignment takes ownership of two tracks built back to front.
func newAlignment[S comparable](revPresented, revTranscribed []Element[S], distance uint64) *Alignment[S] {
	if len(revPresented) != len(revTranscribed) {
		panic(fmt.Sprintf("tet: aligned tracks differ in length (%d != %d)", len(revPresented), len(revTranscribed)))
	}
	reverse(revPresented)
	reverse(revTranscribed)

	a := &Alignment[S]{
		presented:   revPresented,
		transcribed: revTranscribed,
		distance:    distance,
	}
	gaps := 0
	for i, p := range a.presented {
		if p.Gap && a.transcribed[i].Gap {
			panic(fmt.Sprintf("tet: gap aligned with gap at cell %d", i))
		}
		if p.Gap {
			gaps++
		}
	}
	if n := len(a.presented); n > 0 {
		a.gapP = float64(gaps) / float64(n)
	}
	return a
}

func reverse[T any](s []T) {
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}

// Align returns the optimal alignment of presented and transcribed that a
// depth-first enumeration of all optimal alignments completes last.
//
// Every cost-optimal edge leads back to (0,0), so the last completed path is
// the one that takes the last optimal edge (left, up, then diagonal) at every
// cell. That path is followed directly, in O(X+Y) after the matrix is built.
func Align[S comparable](presented, transcribed []S) *Alignment[S] {
	d := MSD(presented, transcribed)

	n := max(len(presented), len(transcribed))
	p := make([]Element[S], 0, n)
	t := make([]Element[S], 0, n)

	x, y := len(presented), len(transcribed)
	for x > 0 || y > 0 {
		moves := optimalMoves(presented, transcribed, d, x, y)
		if len(moves) == 0 {
			panic(fmt.Sprintf("tet: no optimal edge into cell (%d,%d)", x, y))
		}
		var pe, te Element[S]
		pe, te, x, y = step(presented, transcribed, moves[len(moves)-1], x, y)
		p = append(p, pe)
		t = append(t, te)
	}
	return newAlignment(p, t, d.Distance())
}

// AlignStrings aligns two strings rune by rune.
func AlignStrings(presented, transcribed string) *Alignment[rune] {
	return Align([]rune(presented), []rune(transcribed))
}

// frame is a pending backtrace state with its tracks built back to front.
type frame[S comparable] struct {
	x, y int
	p, t []Element[S]
}

// Enumerate visits every optimal alignment of presented and transcribed in
// depth-first order, trying match, substitution, up and left edges in that
// order at each cell. It stops early when visit returns false and returns the
// number of alignments visited.
//
// The number of optimal alignments can grow exponentially on heavily tied
// inputs; callers should bound input length or stop early.
func Enumerate[S comparable](presented, transcribed []S, visit func(*Alignment[S]) bool) int {
	d := MSD(presented, transcribed)
	distance := d.Distance()

	visited := 0
	stack := []frame[S]{{x: len(presented), y: len(transcribed)}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.x == 0 && f.y == 0 {
			visited++
			if !visit(newAlignment(f.p, f.t, distance)) {
				return visited
			}
			continue
		}

		moves := optimalMoves(presented, transcribed, d, f.x, f.y)
		// Push in reverse so the first edge is explored first.
		for i := len(moves) - 1; i >= 0; i-- {
			pe, te, nx, ny := step(presented, transcribed, moves[i], f.x, f.y)
			stack = append(stack, frame[S]{
				x: nx,
				y: ny,
				p: append(f.p[:len(f.p):len(f.p)], pe),
				t: append(f.t[:len(f.t):len(f.t)], te),
			})
		}
	}
	return visited
}

// Presented returns a copy of the presented track.
func (a *Alignment[S]) Presented() []Element[S] {
	out := make([]Element[S], len(a.presented))
	copy(out, a.presented)
	return out
}

// Transcribed returns a copy of the transcribed track.
func (a *Alignment[S]) Transcribed() []Element[S] {
	out := make([]Element[S], len(a.transcribed))
	copy(out, a.transcribed)
	return out
}

// Len returns the number of aligned cells, not the length of either input.
func (a *Alignment[S]) Len() int {
	return len(a.presented)
}

// Distance returns the minimum string distance of the aligned inputs.
func (a *Alignment[S]) Distance() uint64 {
	return a.distance
}

// GapProbability returns P(gap) in the presented track.
func (a *Alignment[S]) GapProbability() float64 {
	return a.gapP
}

// count returns N(pred), the number of cells whose pair satisfies pred.
func (a *Alignment[S]) count(pred func(p, t Element[S]) bool) int {
	n := 0
	for i, p := range a.presented {
		if pred(p, a.transcribed[i]) {
			n++
		}
	}
	return n
}

// String renders the two tracks on two lines, one column per cell.
func (a *Alignment[S]) String() string {
	var top, bottom strings.Builder
	for i := range a.presented {
		ps, ts := a.presented[i].String(), a.transcribed[i].String()
		w := max(len([]rune(ps)), len([]rune(ts)))
		if i > 0 {
			top.WriteByte(' ')
			bottom.WriteByte(' ')
		}
		top.WriteString(pad(ps, w))
		bottom.WriteString(pad(ts, w))
	}
	return top.String() + "\n" + bottom.String()
}

func pad(s string, w int) string {
	if n := len([]rune(s)); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

func formatSymbol(v any) string {
	switch s := v.(type) {
	case rune:
		if s == ' ' {
			return "␣"
		}
		return string(s)
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
