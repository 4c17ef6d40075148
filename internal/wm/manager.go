// Package wm maps the incoming command stream onto panes: it creates,
// replaces and destroys panes by id, places new ones, routes pointer input
// to the pane that owns the current gesture and tracks connection status.
//
// A Manager is single-threaded. Hosts serialize calls onto one goroutine.
package wm

import (
	"errors"
	"log/slog"

	"github.com/zsprackett/display/internal/events"
	"github.com/zsprackett/display/internal/geometry"
	"github.com/zsprackett/display/internal/pane"
	"github.com/zsprackett/display/internal/persist"
	"github.com/zsprackett/display/internal/placement"
)

// GripSize is the square in a pane's bottom-right corner that starts a resize.
const GripSize = 12.0

var ErrUnknownPane = errors.New("wm: unknown pane")

// Status is the stream connection state shown to the user.
type Status int

const (
	Offline Status = iota
	Online
)

func (s Status) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// defaultSizes are the initial pane sizes before any content arrives.
var defaultSizes = map[events.Kind]geometry.Size{
	events.KindImage: {Width: 256, Height: 192 + pane.BarHeight},
	events.KindPlot:  {Width: 400, Height: 300},
	events.KindText:  {Width: 300, Height: 200},
}

type Manager struct {
	reg      *Registry
	store    persist.Adapter
	solver   *placement.Solver
	viewport geometry.Rect
	loader   pane.Loader
	logger   *slog.Logger

	status    Status
	observers []func(Status)
	lightsOff bool
	active    *pane.Pane
	newID     func() string
}

// New returns a Manager over reg. store may be nil, in which case geometry
// is not persisted. A nil solver seeds one from the clock.
func New(reg *Registry, store persist.Adapter, solver *placement.Solver, viewport geometry.Rect, logger *slog.Logger) *Manager {
	if reg == nil {
		reg = NewRegistry()
	}
	if solver == nil {
		solver = placement.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		reg:      reg,
		store:    store,
		solver:   solver,
		viewport: viewport,
		loader:   pane.DefaultLoader,
		logger:   logger,
		newID:    events.NewPaneID,
	}
}

// SetLoader overrides how image sources are sized.
func (m *Manager) SetLoader(l pane.Loader) {
	if l != nil {
		m.loader = l
	}
}

func (m *Manager) Registry() *Registry               { return m.reg }
func (m *Manager) Viewport() geometry.Rect           { return m.viewport }
func (m *Manager) Len() int                          { return m.reg.Len() }
func (m *Manager) Panes() []*pane.Pane               { return m.reg.Panes() }
func (m *Manager) Pane(id string) (*pane.Pane, bool) { return m.reg.Get(id) }

// Dispatch applies one command, creating or replacing the target pane as
// needed. It returns the pane the command landed on, or nil when no pane
// could be created. Content errors are logged and leave the pane as it was.
func (m *Manager) Dispatch(cmd events.Command) *pane.Pane {
	id := cmd.ID
	if id == "" {
		id = m.newID()
	}

	var seed *persist.Geometry
	p, ok := m.reg.Get(id)
	if ok && p.Kind() != cmd.Kind {
		g := p.Geometry()
		seed = &g
		m.logger.Debug("wm: replacing pane", "pane", id, "from", p.Kind(), "to", cmd.Kind)
		m.destroy(p, true)
		ok = false
	}
	if !ok {
		var err error
		p, err = m.create(id, cmd.Kind, seed)
		if err != nil {
			m.logger.Warn("wm: create pane failed", "pane", id, "err", err)
			return nil
		}
	}

	if cmd.Title != "" {
		p.SetTitle(cmd.Title)
	}
	if err := p.SetContent(cmd); err != nil {
		m.logger.Warn("wm: content update failed", "pane", id, "kind", cmd.Kind, "err", err)
	}
	return p
}

// DispatchRaw decodes a stream message and dispatches it. Malformed
// messages are logged and dropped.
func (m *Manager) DispatchRaw(data []byte) *pane.Pane {
	cmd, err := events.Decode(data)
	if err != nil {
		m.logger.Warn("wm: dropping message", "err", err, "bytes", len(data))
		return nil
	}
	return m.Dispatch(cmd)
}

func (m *Manager) create(id string, kind events.Kind, seed *persist.Geometry) (*pane.Pane, error) {
	g, natural := m.initialGeometry(id, kind, seed)
	p, err := pane.New(pane.Options{
		ID:      id,
		Kind:    kind,
		Rect:    g.Rect(),
		Natural: natural,
		Store:   m.store,
		Loader:  m.loader,
		Logger:  m.logger,
	})
	if err != nil {
		return nil, err
	}
	m.reg.Add(p)
	if g.Maximized {
		p.Maximize(m.viewport)
	}
	return p, nil
}

// initialGeometry picks where a new pane goes: the geometry of the pane it
// replaces, then stored geometry, then the placement solver.
func (m *Manager) initialGeometry(id string, kind events.Kind, seed *persist.Geometry) (persist.Geometry, bool) {
	if seed != nil {
		return *seed, false
	}
	if m.store != nil {
		g, ok, err := m.store.Load(id)
		switch {
		case err != nil:
			m.logger.Warn("wm: load geometry failed", "pane", id, "err", err)
		case ok:
			return g, false
		}
	}
	size, ok := defaultSizes[kind]
	if !ok {
		size = defaultSizes[events.KindText]
	}
	pos := m.solver.Place(m.reg.Rects(id), m.viewport, size)
	return persist.FromRect(geometry.NewRect(pos, size), false), true
}

func (m *Manager) destroy(p *pane.Pane, keepPosition bool) {
	if m.active == p {
		m.active = nil
	}
	p.Destroy(keepPosition)
	m.reg.Remove(p.ID())
}

// Reset destroys every live pane, keeping their stored geometry so the
// next command for the same id reopens in place.
func (m *Manager) Reset() {
	panes := m.reg.Panes()
	for _, p := range panes {
		m.destroy(p, true)
	}
	if len(panes) > 0 {
		m.logger.Info("wm: reset", "panes", len(panes))
	}
}

// Close is a user close: the pane is destroyed and its stored geometry
// released.
func (m *Manager) Close(id string) error {
	p, ok := m.reg.Get(id)
	if !ok {
		return ErrUnknownPane
	}
	m.destroy(p, false)
	return nil
}

// ResizeViewport records a new viewport and re-fits maximized panes to it.
func (m *Manager) ResizeViewport(vp geometry.Rect) {
	m.viewport = vp
	for _, p := range m.reg.Panes() {
		p.Relayout(vp)
	}
}

// Focus raises id above the other panes.
func (m *Manager) Focus(id string) error {
	if _, ok := m.reg.Get(id); !ok {
		return ErrUnknownPane
	}
	m.reg.Raise(id)
	return nil
}

// ToggleMaximize is the title-bar double click.
func (m *Manager) ToggleMaximize(id string) error {
	p, ok := m.reg.Get(id)
	if !ok {
		return ErrUnknownPane
	}
	m.reg.Raise(id)
	p.ToggleMaximize(m.viewport)
	return nil
}

// HitTest finds the topmost pane under at and the chrome element hit.
func (m *Manager) HitTest(at geometry.Position) (*pane.Pane, pane.Target, bool) {
	stack := m.reg.Stacked()
	for i := len(stack) - 1; i >= 0; i-- {
		p := stack[i]
		r := p.Rect()
		if !r.ContainsPoint(at) {
			continue
		}
		switch {
		case at.Top < r.Top+pane.BarHeight:
			return p, pane.TargetBar, true
		case at.Left >= r.Right()-GripSize && at.Top >= r.Bottom()-GripSize:
			return p, pane.TargetGrip, true
		default:
			return p, pane.TargetContent, true
		}
	}
	return nil, 0, false
}

// PointerDown focuses id and starts a gesture on it. Only one pane may own
// a gesture at a time.
func (m *Manager) PointerDown(id string, target pane.Target, at geometry.Position) error {
	if m.active != nil {
		return pane.ErrGestureActive
	}
	p, ok := m.reg.Get(id)
	if !ok {
		return ErrUnknownPane
	}
	m.reg.Raise(id)
	if err := p.PointerDown(target, at); err != nil {
		return err
	}
	if p.Gesture() != pane.Idle {
		m.active = p
	}
	return nil
}

func (m *Manager) PointerMove(at geometry.Position) {
	if m.active != nil {
		m.active.PointerMove(at)
	}
}

func (m *Manager) PointerUp(at geometry.Position) {
	if m.active == nil {
		return
	}
	m.active.PointerUp(at)
	m.active = nil
}

// Active returns the pane owning the current gesture.
func (m *Manager) Active() (*pane.Pane, bool) {
	return m.active, m.active != nil
}

// Wheel zooms the content under at. The pivot is taken relative to the
// pane's content box.
func (m *Manager) Wheel(at geometry.Position, deltaY float64, deltaLines bool) error {
	p, target, ok := m.HitTest(at)
	if !ok || target != pane.TargetContent {
		return nil
	}
	box := p.ContentRect()
	return p.ZoomWheel(deltaY, deltaLines, geometry.Position{Left: at.Left - box.Left, Top: at.Top - box.Top})
}

func (m *Manager) Status() Status { return m.status }

// SetStatus records the connection state and notifies observers on change.
func (m *Manager) SetStatus(s Status) {
	if s == m.status {
		return
	}
	m.status = s
	for _, fn := range m.observers {
		fn(s)
	}
}

func (m *Manager) OnStatus(fn func(Status)) {
	m.observers = append(m.observers, fn)
}

// ToggleLights flips between the dark and light theme and returns true
// when the lights are now off.
func (m *Manager) ToggleLights() bool {
	m.lightsOff = !m.lightsOff
	return m.lightsOff
}

func (m *Manager) LightsOff() bool { return m.lightsOff }
