// Package pane models one on-screen window showing a single update stream:
// its chrome geometry, normal/maximized state, pointer gestures and typed
// content.
//
// Panes are not safe for concurrent use. The window manager drives them
// from a single event loop.
package pane

import (
	"errors"
	"log/slog"
	"math"

	"github.com/zsprackett/display/internal/events"
	"github.com/zsprackett/display/internal/geometry"
	"github.com/zsprackett/display/internal/persist"
)

const (
	// BarHeight is the title bar strip above the content box.
	BarHeight = 20.0
	MinWidth  = 50.0
	MinHeight = 30.0
)

var (
	ErrGestureActive = errors.New("pane: another gesture is in progress")
	ErrDestroyed     = errors.New("pane: destroyed")
	ErrNotZoomable   = errors.New("pane: content does not zoom")
)

type State int

const (
	Normal State = iota
	Maximized
)

func (s State) String() string {
	if s == Maximized {
		return "maximized"
	}
	return "normal"
}

// Target names the chrome element a pointer went down on.
type Target int

const (
	TargetBar Target = iota
	TargetGrip
	TargetContent
)

// Gesture is the pointer interaction currently owning the pane.
type Gesture int

const (
	Idle Gesture = iota
	Dragging
	Resizing
	Panning
)

func (g Gesture) String() string {
	switch g {
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	case Panning:
		return "panning"
	}
	return "idle"
}

type gesture struct {
	kind      Gesture
	start     geometry.Position
	origin    geometry.Rect
	originOff geometry.Position
	wasMax    bool
}

type Pane struct {
	id      string
	kind    events.Kind
	title   string
	rect    geometry.Rect
	state   State
	saved   geometry.Rect
	content Content

	// natural is true until the user sizes the pane; image panes then
	// follow their content's intrinsic size.
	natural   bool
	destroyed bool
	z         int
	g         gesture

	store  persist.Adapter
	logger *slog.Logger
}

// Options configures a new Pane.
type Options struct {
	ID      string
	Kind    events.Kind
	Rect    geometry.Rect
	Natural bool
	Store   persist.Adapter
	Loader  Loader
	Logger  *slog.Logger
}

func New(opts Options) (*Pane, error) {
	content, err := NewContent(opts.Kind, opts.Loader)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pane{
		id:      opts.ID,
		kind:    opts.Kind,
		rect:    opts.Rect,
		content: content,
		natural: opts.Natural,
		store:   opts.Store,
		logger:  logger,
	}, nil
}

func (p *Pane) ID() string          { return p.id }
func (p *Pane) Kind() events.Kind   { return p.kind }
func (p *Pane) Title() string       { return p.title }
func (p *Pane) SetTitle(t string)   { p.title = t }
func (p *Pane) Rect() geometry.Rect { return p.rect }
func (p *Pane) State() State        { return p.state }
func (p *Pane) Maximized() bool     { return p.state == Maximized }
func (p *Pane) Destroyed() bool     { return p.destroyed }
func (p *Pane) Content() Content    { return p.content }
func (p *Pane) Gesture() Gesture    { return p.g.kind }
func (p *Pane) Z() int              { return p.z }
func (p *Pane) SetZ(z int)          { p.z = z }

// ContentRect is the pane rectangle below the title bar.
func (p *Pane) ContentRect() geometry.Rect {
	r := p.rect
	r.Top += BarHeight
	r.Height = math.Max(0, r.Height-BarHeight)
	return r
}

// SetContent applies a command payload. Failures leave the pane as it was.
func (p *Pane) SetContent(cmd events.Command) error {
	if p.destroyed {
		return ErrDestroyed
	}
	if err := p.content.SetContent(cmd); err != nil {
		return err
	}
	if img, ok := p.content.(*ImageContent); ok && p.natural && p.state == Normal {
		p.rect.Width = math.Max(MinWidth, img.Intrinsic.Width)
		p.rect.Height = math.Max(MinHeight, img.Intrinsic.Height+BarHeight)
	}
	return nil
}

// Maximize fills viewport, remembering the current geometry for Restore.
func (p *Pane) Maximize(viewport geometry.Rect) {
	if p.destroyed || p.state == Maximized {
		return
	}
	p.saved = p.rect
	p.rect = viewport
	p.state = Maximized
	p.save()
	p.content.OnResize(p.ContentRect().Size())
}

// Restore leaves the maximized state and returns to the remembered geometry.
func (p *Pane) Restore() {
	if p.destroyed || p.state != Maximized {
		return
	}
	p.rect = p.saved
	p.state = Normal
	p.save()
	p.content.OnResize(p.ContentRect().Size())
}

// Minimize is Restore under the name the title-bar control uses.
func (p *Pane) Minimize() { p.Restore() }

func (p *Pane) ToggleMaximize(viewport geometry.Rect) {
	if p.state == Maximized {
		p.Restore()
		return
	}
	p.Maximize(viewport)
}

// Relayout re-fits a maximized pane to a new viewport.
func (p *Pane) Relayout(viewport geometry.Rect) {
	if p.state != Maximized {
		return
	}
	p.Restore()
	p.Maximize(viewport)
}

// PointerDown starts a gesture on target. Dragging a maximized pane is
// ignored; resizing one drops it back to normal state from its current
// rectangle.
func (p *Pane) PointerDown(target Target, at geometry.Position) error {
	if p.destroyed {
		return ErrDestroyed
	}
	if p.g.kind != Idle {
		return ErrGestureActive
	}
	switch target {
	case TargetBar:
		if p.state == Maximized {
			return nil
		}
		p.g = gesture{kind: Dragging, start: at, origin: p.rect}
	case TargetGrip:
		wasMax := p.state == Maximized
		p.state = Normal
		p.g = gesture{kind: Resizing, start: at, origin: p.rect, wasMax: wasMax}
	case TargetContent:
		z, ok := p.content.(Zoomable)
		if !ok {
			return nil
		}
		p.g = gesture{kind: Panning, start: at, originOff: z.Scale().Offset}
	}
	return nil
}

func (p *Pane) PointerMove(at geometry.Position) {
	dx, dy := at.Left-p.g.start.Left, at.Top-p.g.start.Top
	switch p.g.kind {
	case Dragging:
		p.rect.Left = p.g.origin.Left + dx
		p.rect.Top = p.g.origin.Top + dy
	case Resizing:
		p.rect.Width = math.Max(MinWidth, p.g.origin.Width+dx)
		p.rect.Height = math.Max(MinHeight, p.g.origin.Height+dy)
	case Panning:
		z := p.content.(Zoomable)
		z.SetOffset(geometry.Position{Left: p.g.originOff.Left + dx, Top: p.g.originOff.Top + dy}, p.ContentRect().Size())
	}
}

// PointerUp finishes the active gesture and releases ownership.
func (p *Pane) PointerUp(at geometry.Position) {
	kind := p.g.kind
	if kind == Idle {
		return
	}
	p.PointerMove(at)
	p.g = gesture{}
	switch kind {
	case Dragging:
		p.save()
	case Resizing:
		p.natural = false
		p.save()
		p.content.OnResize(p.ContentRect().Size())
	}
}

// CancelGesture ends the active gesture and puts the pane back where it
// started. Nothing is persisted.
func (p *Pane) CancelGesture() {
	switch p.g.kind {
	case Dragging:
		p.rect = p.g.origin
	case Resizing:
		p.rect = p.g.origin
		if p.g.wasMax {
			p.state = Maximized
		}
	case Panning:
		if z, ok := p.content.(Zoomable); ok {
			z.SetOffset(p.g.originOff, p.ContentRect().Size())
		}
	}
	p.g = gesture{}
}

// Zoom scales zoomable content about pivot, given in content-box coordinates.
func (p *Pane) Zoom(factor float64, pivot geometry.Position) error {
	z, ok := p.content.(Zoomable)
	if !ok {
		return ErrNotZoomable
	}
	z.Zoom(factor, pivot, p.ContentRect().Size())
	return nil
}

// ZoomWheel converts a wheel delta into a zoom step. deltaLines selects
// line-based deltas, which are scaled to pixels first.
func (p *Pane) ZoomWheel(deltaY float64, deltaLines bool, pivot geometry.Position) error {
	if deltaLines {
		deltaY *= 40
	}
	return p.Zoom(math.Exp(deltaY/800), pivot)
}

func (p *Pane) Pan(delta geometry.Position) error {
	z, ok := p.content.(Zoomable)
	if !ok {
		return ErrNotZoomable
	}
	z.Pan(delta, p.ContentRect().Size())
	return nil
}

// ResetView returns content to its natural layout and identity scale.
func (p *Pane) ResetView() {
	p.content.Reset()
}

// Geometry is the persisted form of the pane's placement. While maximized
// the remembered normal rectangle is stored so a reload restores it.
func (p *Pane) Geometry() persist.Geometry {
	if p.state == Maximized {
		return persist.FromRect(p.saved, true)
	}
	return persist.FromRect(p.rect, false)
}

func (p *Pane) save() {
	if p.store == nil {
		return
	}
	if err := p.store.Save(p.id, p.Geometry()); err != nil {
		p.logger.Warn("pane: save geometry failed", "pane", p.id, "err", err)
	}
}

// Destroy marks the pane finished. Unless keepPosition is set the stored
// geometry is released too. Destroy is idempotent.
func (p *Pane) Destroy(keepPosition bool) {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.g = gesture{}
	if keepPosition || p.store == nil {
		return
	}
	if err := p.store.Remove(p.id); err != nil {
		p.logger.Warn("pane: remove geometry failed", "pane", p.id, "err", err)
	}
}
