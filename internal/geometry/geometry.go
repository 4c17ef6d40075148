// Package geometry holds the pixel-space types shared by placement, panes
// and the window manager. Nothing here performs I/O.
package geometry

import "math"

type Position struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func NewRect(p Position, s Size) Rect {
	return Rect{Left: p.Left, Top: p.Top, Width: s.Width, Height: s.Height}
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

func (r Rect) Position() Position { return Position{Left: r.Left, Top: r.Top} }
func (r Rect) Size() Size         { return Size{Width: r.Width, Height: r.Height} }

func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// OverlapArea returns max(0, horizontal overlap) * max(0, vertical overlap).
func (r Rect) OverlapArea(o Rect) float64 {
	w := math.Min(r.Right(), o.Right()) - math.Max(r.Left, o.Left)
	h := math.Min(r.Bottom(), o.Bottom()) - math.Max(r.Top, o.Top)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.Left >= r.Left && o.Top >= r.Top && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

func (r Rect) ContainsPoint(p Position) bool {
	return p.Left >= r.Left && p.Left < r.Right() && p.Top >= r.Top && p.Top < r.Bottom()
}

func (r Rect) Translate(dx, dy float64) Rect {
	r.Left += dx
	r.Top += dy
	return r
}

// TotalOverlap sums the overlap of r against every rect in others.
func TotalOverlap(r Rect, others []Rect) float64 {
	var total float64
	for _, o := range others {
		total += r.OverlapArea(o)
	}
	return total
}

// Scale is a uniform content zoom with a translation offset, applied as
// screen = offset + content*Factor.
type Scale struct {
	Factor float64  `json:"factor"`
	Offset Position `json:"offset"`
}

func Identity() Scale { return Scale{Factor: 1} }

func (s Scale) IsIdentity() bool {
	return s.Factor == 1 && s.Offset == (Position{})
}

// ToScreen maps a content coordinate to pane coordinates.
func (s Scale) ToScreen(p Position) Position {
	return Position{Left: s.Offset.Left + p.Left*s.Factor, Top: s.Offset.Top + p.Top*s.Factor}
}

// ToContent is the inverse of ToScreen.
func (s Scale) ToContent(p Position) Position {
	if s.Factor == 0 {
		return Position{}
	}
	return Position{Left: (p.Left - s.Offset.Left) / s.Factor, Top: (p.Top - s.Offset.Top) / s.Factor}
}

func Clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
