// Package placement picks a screen position for a new pane.
//
// The solver is a scatter heuristic: it samples a handful of random
// candidates and keeps the one with the least overlap against existing
// panes. It is not an exact non-overlap solver and will overlap when the
// viewport is saturated.
package placement

import (
	"math"
	"math/rand"
	"time"

	"github.com/zsprackett/display/internal/geometry"
)

// DefaultCandidates is the number of positions sampled per placement.
const DefaultCandidates = 8

type Solver struct {
	rng        *rand.Rand
	candidates int
}

// New returns a Solver drawing from src. A nil src seeds from the clock.
func New(src rand.Source) *Solver {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Solver{rng: rand.New(src), candidates: DefaultCandidates}
}

// NewSeeded returns a deterministic Solver. Used in tests.
func NewSeeded(seed int64) *Solver {
	return New(rand.NewSource(seed))
}

// SetCandidates overrides the sample count. Values below 1 are ignored.
func (s *Solver) SetCandidates(n int) {
	if n >= 1 {
		s.candidates = n
	}
}

// Candidates draws the sample positions Place would score. The returned
// rectangle origins keep a rect of the given size inside viewport whenever
// it fits.
func (s *Solver) Candidates(viewport geometry.Rect, size geometry.Size) []geometry.Position {
	maxDX := math.Max(0, viewport.Width-size.Width)
	maxDY := math.Max(0, viewport.Height-size.Height)
	out := make([]geometry.Position, s.candidates)
	for i := range out {
		out[i] = geometry.Position{
			Left: viewport.Left + math.Floor(s.rng.Float64()*maxDX),
			Top:  viewport.Top + math.Floor(s.rng.Float64()*maxDY),
		}
	}
	return out
}

// Place returns the top-left for a new pane of the given size.
func (s *Solver) Place(existing []geometry.Rect, viewport geometry.Rect, size geometry.Size) geometry.Position {
	if len(existing) == 0 {
		return viewport.Position()
	}
	best, _ := Best(s.Candidates(viewport, size), existing, size)
	return best
}

// Best scores candidates by total overlap with existing and returns the
// minimum. Ties go to the smaller left, then the smaller top.
func Best(candidates []geometry.Position, existing []geometry.Rect, size geometry.Size) (geometry.Position, float64) {
	var best geometry.Position
	bestScore := math.Inf(1)
	for _, c := range candidates {
		score := geometry.TotalOverlap(geometry.NewRect(c, size), existing)
		switch {
		case score < bestScore:
		case score == bestScore && c.Left < best.Left:
		case score == bestScore && c.Left == best.Left && c.Top < best.Top:
		default:
			continue
		}
		best, bestScore = c, score
	}
	return best, bestScore
}
