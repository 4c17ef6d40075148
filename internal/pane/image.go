package pane

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"strconv"
	"strings"

	"github.com/zsprackett/display/internal/events"
	"github.com/zsprackett/display/internal/geometry"
)

const (
	// MinContentWidth is the narrowest an image may be zoomed out to.
	MinContentWidth = 100.0
	// PanMargin is how much content must stay inside the pane on each edge.
	PanMargin = 20.0
)

// fallbackSize is used when neither the source nor the command gives a size.
var fallbackSize = geometry.Size{Width: 256, Height: 192}

var ErrNoSource = errors.New("pane: image has no source")

// Loader resolves an image source to its natural pixel size. A zero size
// with a nil error means the size is unknown (e.g. a remote URL).
type Loader func(src string) (geometry.Size, error)

// DefaultLoader decodes the header of data URIs and treats every other
// source as unknown-size.
func DefaultLoader(src string) (geometry.Size, error) {
	if src == "" {
		return geometry.Size{}, ErrNoSource
	}
	if !strings.HasPrefix(src, "data:") {
		return geometry.Size{}, nil
	}
	meta, data, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return geometry.Size{}, fmt.Errorf("data uri: missing comma")
	}
	var raw []byte
	if strings.HasSuffix(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return geometry.Size{}, fmt.Errorf("data uri: %w", err)
		}
		raw = b
	} else {
		s, err := url.PathUnescape(data)
		if err != nil {
			return geometry.Size{}, fmt.Errorf("data uri: %w", err)
		}
		raw = []byte(s)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return geometry.Size{}, fmt.Errorf("decode image: %w", err)
	}
	return geometry.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}, nil
}

// Coord is one overlay coordinate, either a fraction of the content box or
// absolute pixels.
type Coord struct {
	Value   float64
	Percent bool
}

func coordOf(v float64) Coord {
	return Coord{Value: v, Percent: v < 1}
}

// Resolve converts the coordinate to pixels along an axis of length extent.
func (c Coord) Resolve(extent float64) float64 {
	if c.Percent {
		return c.Value * extent
	}
	return c.Value
}

// CSS renders the coordinate as a style length ("50%" or "12px").
func (c Coord) CSS() string {
	if c.Percent {
		return strconv.FormatFloat(c.Value*100, 'f', -1, 64) + "%"
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64) + "px"
}

// Overlay is an annotation positioned over the image.
type Overlay struct {
	Text string
	Left Coord
	Top  Coord
}

// Position places the overlay within a content box of the given size.
func (o Overlay) Position(box geometry.Size) geometry.Position {
	return geometry.Position{Left: o.Left.Resolve(box.Width), Top: o.Top.Resolve(box.Height)}
}

type ImageContent struct {
	Src           string
	DeclaredWidth float64
	// Natural is the decoded source size, zero when unknown.
	Natural geometry.Size
	// Intrinsic is the displayed size at scale 1.
	Intrinsic geometry.Size
	Overlays  []Overlay

	loaded bool
	scale  geometry.Scale
	loader Loader
}

func NewImageContent(loader Loader) *ImageContent {
	if loader == nil {
		loader = DefaultLoader
	}
	return &ImageContent{scale: geometry.Identity(), loader: loader}
}

func (c *ImageContent) Kind() events.Kind { return events.KindImage }

// Loaded reports whether any source has been applied successfully.
func (c *ImageContent) Loaded() bool { return c.loaded }

func (c *ImageContent) SetContent(cmd events.Command) error {
	img := cmd.Image
	if img.Src == "" {
		return ErrNoSource
	}
	natural, err := c.loader(img.Src)
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}

	relayout := !c.loaded || img.Width != c.DeclaredWidth || natural != c.Natural
	c.Src = img.Src
	c.DeclaredWidth = img.Width
	if relayout {
		c.Natural = natural
		c.Intrinsic = intrinsicSize(natural, img.Width)
		c.scale = geometry.Identity()
	}
	c.loaded = true

	overlays := make([]Overlay, 0, len(img.Annotations))
	for _, a := range img.Annotations {
		overlays = append(overlays, Overlay{Text: a.Text, Left: coordOf(a.X), Top: coordOf(a.Y)})
	}
	c.Overlays = overlays
	return nil
}

func intrinsicSize(natural geometry.Size, declaredWidth float64) geometry.Size {
	if declaredWidth > 0 {
		aspect := fallbackSize.Height / fallbackSize.Width
		if natural.Width > 0 {
			aspect = natural.Height / natural.Width
		}
		return geometry.Size{Width: declaredWidth, Height: declaredWidth * aspect}
	}
	if natural.Width > 0 && natural.Height > 0 {
		return natural
	}
	return fallbackSize
}

func (c *ImageContent) OnResize(geometry.Size) {}

func (c *ImageContent) Reset() {
	c.scale = geometry.Identity()
}

func (c *ImageContent) Scale() geometry.Scale { return c.scale }

// Rendered is the on-screen content size at the current scale.
func (c *ImageContent) Rendered() geometry.Size {
	return geometry.Size{Width: c.Intrinsic.Width * c.scale.Factor, Height: c.Intrinsic.Height * c.scale.Factor}
}

// Zoom scales around pivot so the content point under pivot stays put.
// The factor is limited so the rendered width never drops below
// MinContentWidth.
func (c *ImageContent) Zoom(factor float64, pivot geometry.Position, view geometry.Size) {
	if factor <= 0 {
		return
	}
	if w := c.Rendered().Width; w > 0 && w*factor < MinContentWidth {
		factor = MinContentWidth / w
	}
	off := c.scale.Offset
	c.scale.Factor *= factor
	c.scale.Offset = geometry.Position{
		Left: off.Left + (1-factor)*(pivot.Left-off.Left),
		Top:  off.Top + (1-factor)*(pivot.Top-off.Top),
	}
	c.clamp(view)
}

func (c *ImageContent) Pan(delta geometry.Position, view geometry.Size) {
	c.scale.Offset.Left += delta.Left
	c.scale.Offset.Top += delta.Top
	c.clamp(view)
}

func (c *ImageContent) SetOffset(offset geometry.Position, view geometry.Size) {
	c.scale.Offset = offset
	c.clamp(view)
}

// clamp keeps at least PanMargin of the content inside view on every edge.
// A zero view means the pane has not been laid out; nothing is clamped.
func (c *ImageContent) clamp(view geometry.Size) {
	if view.Width <= 0 || view.Height <= 0 {
		return
	}
	r := c.Rendered()
	c.scale.Offset.Left = geometry.Clamp(c.scale.Offset.Left, PanMargin-r.Width, view.Width-PanMargin)
	c.scale.Offset.Top = geometry.Clamp(c.scale.Offset.Top, PanMargin-r.Height, view.Height-PanMargin)
}
