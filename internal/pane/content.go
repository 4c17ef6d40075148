package pane

import (
	"fmt"

	"github.com/zsprackett/display/internal/events"
	"github.com/zsprackett/display/internal/geometry"
)

// Content is the kind-specific body of a pane.
type Content interface {
	Kind() events.Kind
	// SetContent applies an update. On error the previous state is kept.
	SetContent(cmd events.Command) error
	// OnResize is called after the pane's content box changes size.
	OnResize(size geometry.Size)
	// Reset returns the content to its natural layout.
	Reset()
}

// Zoomable content supports wheel zoom and drag panning inside the pane.
type Zoomable interface {
	Zoom(factor float64, pivot geometry.Position, view geometry.Size)
	Pan(delta geometry.Position, view geometry.Size)
	Scale() geometry.Scale
	SetOffset(offset geometry.Position, view geometry.Size)
}

// NewContent returns empty content for kind.
func NewContent(kind events.Kind, loader Loader) (Content, error) {
	switch kind {
	case events.KindImage:
		return NewImageContent(loader), nil
	case events.KindPlot:
		return NewPlotContent(), nil
	case events.KindText:
		return &TextContent{}, nil
	}
	return nil, fmt.Errorf("pane: %w: %q", events.ErrUnknownKind, kind)
}

// TextContent holds producer-supplied text. The body is stored verbatim:
// producers are trusted to sanitize markup before publishing.
type TextContent struct {
	Body string
}

func (t *TextContent) Kind() events.Kind { return events.KindText }

func (t *TextContent) SetContent(cmd events.Command) error {
	t.Body = cmd.Text
	return nil
}

func (t *TextContent) OnResize(geometry.Size) {}
func (t *TextContent) Reset()                 {}
