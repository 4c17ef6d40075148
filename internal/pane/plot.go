package pane

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/zsprackett/display/internal/events"
	"github.com/zsprackett/display/internal/geometry"
)

const (
	// pixelsPerLabel is the vertical room one y-axis tick label needs.
	pixelsPerLabel = 30.0
	defaultTicks   = 5
)

// PlotContent keeps the chart options a plotting widget renders from.
// Options are merged incrementally; the widget itself is opaque.
type PlotContent struct {
	Options map[string]any
	View    geometry.Size
	Redraws int

	window *[2]float64
}

func NewPlotContent() *PlotContent {
	return &PlotContent{Options: map[string]any{}}
}

func (p *PlotContent) Kind() events.Kind { return events.KindPlot }

func (p *PlotContent) SetContent(cmd events.Command) error {
	mergeOptions(p.Options, cmd.Plot)
	p.Redraws++
	return nil
}

// mergeOptions copies src into dst, recursing into nested objects so a
// partial update keeps sibling keys. Arrays and scalars are replaced.
func mergeOptions(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		cur, ok := dst[k].(map[string]any)
		if !ok {
			cur = map[string]any{}
			dst[k] = cur
		}
		mergeOptions(cur, sub)
	}
}

func (p *PlotContent) OnResize(size geometry.Size) {
	p.View = size
	p.Redraws++
}

// Reset drops any user zoom on the value axis.
func (p *PlotContent) Reset() {
	p.window = nil
	p.Redraws++
}

// SetValueWindow narrows the visible value axis, as a user zoom would.
func (p *PlotContent) SetValueWindow(lo, hi float64) {
	p.window = &[2]float64{lo, hi}
	p.Redraws++
}

// ValueRange is the visible y range: the user window, an explicit
// "valueRange" option, or the extent of the "file" data series.
func (p *PlotContent) ValueRange() (lo, hi float64, ok bool) {
	if p.window != nil {
		return p.window[0], p.window[1], true
	}
	if vr, isList := p.Options["valueRange"].([]any); isList && len(vr) == 2 {
		l, lok := toFloat(vr[0])
		h, hok := toFloat(vr[1])
		if lok && hok {
			return l, h, true
		}
	}
	rows, isList := p.Options["file"].([]any)
	if !isList {
		return 0, 0, false
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		cols, isRow := r.([]any)
		if !isRow {
			continue
		}
		// Column 0 is the x axis.
		for _, c := range cols[min(1, len(cols)):] {
			v, vok := toFloat(c)
			if !vok {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0, false
	}
	return lo, hi, true
}

// MaxTicks is how many y labels fit in the current view height.
func (p *PlotContent) MaxTicks() int {
	if p.View.Height <= 0 {
		return defaultTicks
	}
	return max(2, int(p.View.Height/pixelsPerLabel))
}

// FormatTick formats a y-axis value with as many decimals as the visible
// range needs, independent of the data's absolute scale.
func (p *PlotContent) FormatTick(v float64) string {
	lo, hi, ok := p.ValueRange()
	if !ok {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', Decimals(TickPrecision(lo, hi, p.MaxTicks())), 64)
}

// TickPrecision returns floor(log10(range / maxTicks)), the power of ten of
// one tick step. A degenerate range yields 0.
func TickPrecision(lo, hi float64, maxTicks int) int {
	r := math.Abs(hi - lo)
	if r == 0 || maxTicks <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return int(math.Floor(math.Log10(r / float64(maxTicks))))
}

// Decimals converts a tick precision to a count of fractional digits.
func Decimals(precision int) int {
	return max(0, -precision)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
