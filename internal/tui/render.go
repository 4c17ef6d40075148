package tui

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"

	"github.com/zsprackett/display/internal/pane"
)

// grid is a fixed-size block of terminal cells. A zero rune marks the
// second half of a wide character.
type grid [][]rune

func newGrid(cols, rows int) grid {
	g := make(grid, rows)
	for y := range g {
		g[y] = []rune(strings.Repeat(" ", cols))
	}
	return g
}

// put writes s at x, y, clipping at the grid edges.
func (g grid) put(x, y int, s string) {
	if y < 0 || y >= len(g) {
		return
	}
	row := g[y]
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > len(row) {
			return
		}
		if x >= 0 {
			row[x] = r
			if w == 2 {
				row[x+1] = 0
			}
		}
		x += w
	}
}

func (g grid) lines() []string {
	out := make([]string, len(g))
	for i, row := range g {
		var b strings.Builder
		for _, r := range row {
			if r != 0 {
				b.WriteRune(r)
			}
		}
		out[i] = b.String()
	}
	return out
}

// Body renders a pane's content into rows lines of cols cells.
func Body(p *pane.Pane, m Metrics, cols, rows int) []string {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	switch c := p.Content().(type) {
	case *pane.TextContent:
		return renderText(c.Body, cols, rows)
	case *pane.PlotContent:
		return renderPlot(c, cols, rows)
	case *pane.ImageContent:
		return renderImage(c, m, cols, rows)
	}
	return newGrid(cols, rows).lines()
}

// Plain strips control characters so producer text is shown as literal
// characters and never drives the terminal.
func Plain(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r == '\n':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

func renderText(body string, cols, rows int) []string {
	g := newGrid(cols, rows)
	y := 0
	for _, line := range strings.Split(Plain(body), "\n") {
		for _, wrapped := range strings.Split(runewidth.Wrap(line, cols), "\n") {
			if y >= rows {
				return g.lines()
			}
			g.put(0, y, wrapped)
			y++
		}
	}
	return g.lines()
}

var markers = []string{"●", "◆", "▲", "■", "✚", "✱"}

func renderPlot(c *pane.PlotContent, cols, rows int) []string {
	g := newGrid(cols, rows)
	data := plotRows(c.Options["file"])
	lo, hi, ok := c.ValueRange()
	if !ok || len(data) == 0 {
		g.put(0, 0, "no data")
		return g.lines()
	}
	labels := plotLabels(c.Options["labels"])

	chartH := rows - 1
	ticks := min(chartH, c.MaxTicks())
	gutter := 0
	tickRows := map[int]string{}
	if ticks >= 2 {
		for i := range ticks {
			v := hi - float64(i)*(hi-lo)/float64(ticks-1)
			row := int(math.Round(float64(i) * float64(chartH-1) / float64(ticks-1)))
			s := c.FormatTick(v)
			tickRows[row] = s
			gutter = max(gutter, runewidth.StringWidth(s))
		}
	}
	for row, s := range tickRows {
		g.put(gutter-runewidth.StringWidth(s), row, s)
	}
	x0 := gutter + 1
	chartW := cols - x0
	if chartW <= 0 || chartH <= 0 {
		return g.lines()
	}
	for y := range chartH {
		g.put(x0-1, y, "│")
	}

	span := hi - lo
	for i, r := range data {
		x := x0
		if len(data) > 1 {
			x += int(math.Round(float64(i) * float64(chartW-1) / float64(len(data)-1)))
		}
		for j, v := range r[min(1, len(r)):] {
			if math.IsNaN(v) || v < lo || v > hi {
				continue
			}
			y := chartH - 1
			if span > 0 {
				y = int(math.Round((hi - v) / span * float64(chartH-1)))
			}
			g.put(x, y, markers[j%len(markers)])
		}
	}

	var legend []string
	if len(labels) > 0 {
		legend = append(legend, labels[0]+":")
	}
	for j, l := range labels[min(1, len(labels)):] {
		legend = append(legend, markers[j%len(markers)]+" "+l)
	}
	g.put(0, rows-1, runewidth.Truncate(strings.Join(legend, "  "), cols, "…"))
	return g.lines()
}

func plotRows(v any) [][]float64 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([][]float64, 0, len(list))
	for _, r := range list {
		cols, ok := r.([]any)
		if !ok {
			continue
		}
		row := make([]float64, len(cols))
		for i, c := range cols {
			f, ok := number(c)
			if !ok {
				f = math.NaN()
			}
			row[i] = f
		}
		out = append(out, row)
	}
	return out
}

func plotLabels(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, l := range list {
		out = append(out, Plain(fmt.Sprint(l)))
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func renderImage(c *pane.ImageContent, m Metrics, cols, rows int) []string {
	g := newGrid(cols, rows)
	if !c.Loaded() {
		g.put(0, 0, "no image")
		return g.lines()
	}
	scale := c.Scale()
	size := c.Rendered()
	ox, oy := m.Offset(scale.Offset)
	w := int(math.Ceil(size.Width / m.CellWidth))
	h := int(math.Ceil(size.Height / m.CellHeight))
	for y := max(0, oy); y < min(rows, oy+h); y++ {
		for x := max(0, ox); x < min(cols, ox+w); x++ {
			g[y][x] = '░'
		}
	}

	label := fmt.Sprintf("%.0f×%.0f %.0f%%", c.Intrinsic.Width, c.Intrinsic.Height, scale.Factor*100)
	g.put(max(0, ox+(w-runewidth.StringWidth(label))/2), min(rows-1, max(0, oy+h/2)), label)

	for _, o := range c.Overlays {
		at := scale.ToScreen(o.Position(c.Intrinsic))
		x, y := m.Offset(at)
		g.put(x, y, Plain(o.Text))
	}
	return g.lines()
}
