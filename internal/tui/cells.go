package tui

import (
	"math"

	"github.com/zsprackett/display/internal/geometry"
)

// Metrics converts between terminal cells and the pixel space the window
// manager works in.
type Metrics struct {
	CellWidth  float64
	CellHeight float64
}

var DefaultMetrics = Metrics{CellWidth: 8, CellHeight: 16}

// Viewport is the pixel rectangle covered by cols x rows cells.
func (m Metrics) Viewport(cols, rows int) geometry.Rect {
	return geometry.Rect{Width: float64(cols) * m.CellWidth, Height: float64(rows) * m.CellHeight}
}

// Point maps the cell at col, row to the pixel at its center.
func (m Metrics) Point(col, row int) geometry.Position {
	return geometry.Position{
		Left: (float64(col) + 0.5) * m.CellWidth,
		Top:  (float64(row) + 0.5) * m.CellHeight,
	}
}

// CellRect is a rectangle in cells.
type CellRect struct {
	X, Y, W, H int
}

// Cells covers r with whole cells. Any pane gets at least one row and
// column.
func (m Metrics) Cells(r geometry.Rect) CellRect {
	x0 := int(math.Floor(r.Left / m.CellWidth))
	y0 := int(math.Floor(r.Top / m.CellHeight))
	x1 := int(math.Ceil(r.Right() / m.CellWidth))
	y1 := int(math.Ceil(r.Bottom() / m.CellHeight))
	return CellRect{X: x0, Y: y0, W: max(1, x1-x0), H: max(1, y1-y0)}
}

// Offset maps a pixel offset to whole cells, rounding toward zero.
func (m Metrics) Offset(p geometry.Position) (cols, rows int) {
	return int(p.Left / m.CellWidth), int(p.Top / m.CellHeight)
}
