package wm

import (
	"slices"

	"github.com/zsprackett/display/internal/geometry"
	"github.com/zsprackett/display/internal/pane"
)

// Registry owns the live panes of one window manager, keyed by pane id.
// It keeps insertion order for stable iteration and a stacking counter
// for focus.
type Registry struct {
	panes map[string]*pane.Pane
	order []string
	nextZ int
}

func NewRegistry() *Registry {
	return &Registry{panes: make(map[string]*pane.Pane)}
}

func (r *Registry) Get(id string) (*pane.Pane, bool) {
	p, ok := r.panes[id]
	return p, ok
}

// Add registers p on top of the stack, replacing any pane with the same id.
func (r *Registry) Add(p *pane.Pane) {
	if _, ok := r.panes[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.panes[p.ID()] = p
	r.Raise(p.ID())
}

func (r *Registry) Remove(id string) {
	if _, ok := r.panes[id]; !ok {
		return
	}
	delete(r.panes, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
}

func (r *Registry) Len() int { return len(r.panes) }

// Panes returns the live panes in creation order.
func (r *Registry) Panes() []*pane.Pane {
	out := make([]*pane.Pane, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.panes[id])
	}
	return out
}

// Stacked returns the live panes bottom to top.
func (r *Registry) Stacked() []*pane.Pane {
	out := r.Panes()
	slices.SortStableFunc(out, func(a, b *pane.Pane) int { return a.Z() - b.Z() })
	return out
}

// Raise moves id to the top of the stacking order.
func (r *Registry) Raise(id string) {
	p, ok := r.panes[id]
	if !ok {
		return
	}
	r.nextZ++
	p.SetZ(r.nextZ)
}

// Rects returns the rectangles of every live pane except skip.
func (r *Registry) Rects(skip string) []geometry.Rect {
	out := make([]geometry.Rect, 0, len(r.panes))
	for _, id := range r.order {
		if id == skip {
			continue
		}
		out = append(out, r.panes[id].Rect())
	}
	return out
}
