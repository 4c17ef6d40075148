package tui

import (
	"log/slog"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"

	"github.com/zsprackett/display/internal/pane"
	"github.com/zsprackett/display/internal/wm"
)

// Title bar buttons, drawn right-aligned.
const (
	buttonMaximize = "□"
	buttonClose    = "×"
)

const wheelLines = 3

// Desktop draws the window manager's panes and routes mouse input to it.
type Desktop struct {
	*tview.Box
	mgr      *wm.Manager
	metrics  Metrics
	logger   *slog.Logger
	onChange func()

	cols, rows int
}

func NewDesktop(mgr *wm.Manager, metrics Metrics, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{Box: tview.NewBox(), mgr: mgr, metrics: metrics, logger: logger}
}

// SetChangedFunc is called after input changes the pane layout.
func (d *Desktop) SetChangedFunc(fn func()) *Desktop {
	d.onChange = fn
	return d
}

func (d *Desktop) changed() {
	if d.onChange != nil {
		d.onChange()
	}
}

// syncViewport tells the manager when the drawable area changes size.
func (d *Desktop) syncViewport(cols, rows int) {
	if cols == d.cols && rows == d.rows {
		return
	}
	d.cols, d.rows = cols, rows
	d.mgr.ResizeViewport(d.metrics.Viewport(cols, rows))
}

func (d *Desktop) Draw(screen tcell.Screen) {
	d.DrawForSubclass(screen, d)
	x, y, w, h := d.GetInnerRect()
	d.syncViewport(w, h)

	theme := ThemeFor(d.mgr.LightsOff())
	bg := tcell.StyleDefault.Background(theme.Background).Foreground(theme.Text)
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			screen.SetContent(col, row, ' ', nil, bg)
		}
	}

	stack := d.mgr.Registry().Stacked()
	for i, p := range stack {
		d.drawPane(screen, p, theme, i == len(stack)-1)
	}
}

func (d *Desktop) drawPane(screen tcell.Screen, p *pane.Pane, theme Theme, focused bool) {
	ox, oy, w, h := d.GetInnerRect()
	cr := d.metrics.Cells(p.Rect())
	clip := func(col, row int) bool {
		return col < 0 || row < 0 || col >= w || row >= h || col >= cr.X+cr.W
	}
	put := func(col, row int, s string, style tcell.Style) int {
		for _, r := range s {
			rw := runewidth.RuneWidth(r)
			if rw == 0 {
				continue
			}
			if !clip(col, row) {
				screen.SetContent(ox+col, oy+row, r, nil, style)
			}
			col += rw
		}
		return col
	}

	barBG := theme.Bar
	if focused {
		barBG = theme.BarActive
	}
	bar := tcell.StyleDefault.Background(barBG).Foreground(theme.BarText)
	body := tcell.StyleDefault.Background(theme.Panel).Foreground(theme.Text)

	put(cr.X, cr.Y, runewidth.FillRight(" "+BarTitle(p, cr.W-5), cr.W), bar)
	if cr.W >= 5 {
		put(cr.X+cr.W-4, cr.Y, buttonMaximize+" "+buttonClose+" ", bar)
	}

	lines := Body(p, d.metrics, cr.W, cr.H-1)
	for i, line := range lines {
		put(cr.X, cr.Y+1+i, runewidth.FillRight(line, cr.W), body)
	}
	if !p.Maximized() && cr.H > 1 {
		put(cr.X+cr.W-1, cr.Y+cr.H-1, "◢", body.Foreground(theme.TextMuted))
	}
}

// BarTitle is the pane's title, or its id when untitled, fitted to width
// cells.
func BarTitle(p *pane.Pane, width int) string {
	title := p.Title()
	if title == "" {
		title = p.ID()
	}
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(Plain(title), width, "…")
}

// button reports which title bar button, if any, sits at col.
func (d *Desktop) button(p *pane.Pane, col int) string {
	cr := d.metrics.Cells(p.Rect())
	if cr.W < 5 {
		return ""
	}
	switch col {
	case cr.X + cr.W - 4:
		return buttonMaximize
	case cr.X + cr.W - 2:
		return buttonClose
	}
	return ""
}

func (d *Desktop) press(p *pane.Pane, button string) {
	var err error
	switch button {
	case buttonMaximize:
		err = d.mgr.ToggleMaximize(p.ID())
	case buttonClose:
		err = d.mgr.Close(p.ID())
	}
	if err != nil {
		d.logger.Debug("tui: button", "pane", p.ID(), "button", button, "err", err)
	}
	d.changed()
}

func (d *Desktop) MouseHandler() func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (consumed bool, capture tview.Primitive) {
	return d.WrapMouseHandler(func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (consumed bool, capture tview.Primitive) {
		x, y := event.Position()
		ix, iy, _, _ := d.GetInnerRect()
		col, row := x-ix, y-iy
		at := d.metrics.Point(col, row)
		_, busy := d.mgr.Active()
		if !busy && !d.InRect(x, y) {
			return false, nil
		}

		switch action {
		case tview.MouseLeftDown:
			setFocus(d)
			p, target, ok := d.mgr.HitTest(at)
			if !ok {
				return true, nil
			}
			if target == pane.TargetBar {
				if b := d.button(p, col); b != "" {
					d.press(p, b)
					return true, nil
				}
			}
			if err := d.mgr.PointerDown(p.ID(), target, at); err != nil {
				d.logger.Debug("tui: pointer down", "pane", p.ID(), "err", err)
			}
			d.changed()
			return true, d
		case tview.MouseMove:
			if busy {
				d.mgr.PointerMove(at)
				return true, d
			}
		case tview.MouseLeftUp:
			if busy {
				d.mgr.PointerUp(at)
				d.changed()
				return true, nil
			}
		case tview.MouseLeftDoubleClick:
			if p, target, ok := d.mgr.HitTest(at); ok && target == pane.TargetBar {
				d.press(p, buttonMaximize)
			}
			return true, nil
		case tview.MouseScrollUp, tview.MouseScrollDown:
			delta := float64(wheelLines)
			if action == tview.MouseScrollUp {
				delta = -delta
			}
			if err := d.mgr.Wheel(at, delta, true); err != nil {
				d.logger.Debug("tui: wheel", "err", err)
			}
			return true, nil
		}
		return false, nil
	})
}
