package pane_test

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsprackett/display/internal/events"
	"github.com/zsprackett/display/internal/geometry"
	"github.com/zsprackett/display/internal/pane"
)

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDefaultLoader(t *testing.T) {
	size, err := pane.DefaultLoader(pngDataURI(t, 40, 30))
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 40, Height: 30}, size)

	size, err = pane.DefaultLoader("http://example.com/x.png")
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{}, size)

	_, err = pane.DefaultLoader("")
	assert.ErrorIs(t, err, pane.ErrNoSource)

	_, err = pane.DefaultLoader("data:image/png;base64,!!!")
	assert.Error(t, err)
}

func TestImage_AnnotationAtHalf(t *testing.T) {
	p := newPane(t, events.KindImage, nil)
	require.NoError(t, p.SetContent(imageCmd("x.png", 200, events.Annotation{X: 0.5, Y: 0.5, Text: "center"})))

	img := p.Content().(*pane.ImageContent)
	require.Len(t, img.Overlays, 1)
	ov := img.Overlays[0]
	assert.Equal(t, "center", ov.Text)
	assert.True(t, ov.Left.Percent)
	assert.Equal(t, "50%", ov.Left.CSS())
	assert.Equal(t, "50%", ov.Top.CSS())

	box := p.ContentRect().Size()
	pos := ov.Position(box)
	assert.Equal(t, box.Width/2, pos.Left)
	assert.Equal(t, box.Height/2, pos.Top)
}

func TestImage_PixelAnnotation(t *testing.T) {
	c := pane.NewImageContent(nil)
	require.NoError(t, c.SetContent(imageCmd("x.png", 0, events.Annotation{X: 12, Y: 1, Text: "px"})))
	ov := c.Overlays[0]
	assert.False(t, ov.Left.Percent)
	assert.False(t, ov.Top.Percent)
	assert.Equal(t, "12px", ov.Left.CSS())
	assert.Equal(t, geometry.Position{Left: 12, Top: 1}, ov.Position(geometry.Size{Width: 500, Height: 500}))
}

func TestImage_OverlaysReplaced(t *testing.T) {
	c := pane.NewImageContent(nil)
	require.NoError(t, c.SetContent(imageCmd("x.png", 0,
		events.Annotation{X: 0.1, Y: 0.1, Text: "a"},
		events.Annotation{X: 0.2, Y: 0.2, Text: "b"})))
	require.NoError(t, c.SetContent(imageCmd("x.png", 0)))
	assert.Empty(t, c.Overlays)
}

func TestImage_IntrinsicSize(t *testing.T) {
	src := pngDataURI(t, 400, 100)

	c := pane.NewImageContent(nil)
	require.NoError(t, c.SetContent(imageCmd(src, 0)))
	assert.Equal(t, geometry.Size{Width: 400, Height: 100}, c.Intrinsic)

	require.NoError(t, c.SetContent(imageCmd(src, 200)))
	assert.Equal(t, geometry.Size{Width: 200, Height: 50}, c.Intrinsic, "declared width keeps aspect")
}

func TestImage_EmptySourceKeepsState(t *testing.T) {
	c := pane.NewImageContent(nil)
	require.NoError(t, c.SetContent(imageCmd("x.png", 200)))

	err := c.SetContent(imageCmd("", 300))
	assert.ErrorIs(t, err, pane.ErrNoSource)
	assert.Equal(t, "x.png", c.Src)
	assert.Equal(t, 200.0, c.DeclaredWidth)
	assert.True(t, c.Loaded())
}

func TestImage_SameWidthKeepsZoom(t *testing.T) {
	c := pane.NewImageContent(nil)
	view := geometry.Size{Width: 200, Height: 150}
	require.NoError(t, c.SetContent(imageCmd("x.png", 200)))
	c.Zoom(2, geometry.Position{Left: 100, Top: 75}, view)

	require.NoError(t, c.SetContent(imageCmd("y.png", 200)))
	assert.Equal(t, 2.0, c.Scale().Factor)

	require.NoError(t, c.SetContent(imageCmd("y.png", 300)))
	assert.True(t, c.Scale().IsIdentity(), "width change resets the transform")
}

func TestZoom_AnchorPreserving(t *testing.T) {
	view := geometry.Size{Width: 200, Height: 150}
	cases := []struct {
		name   string
		factor float64
		pivot  geometry.Position
	}{
		{"in at center", 2, geometry.Position{Left: 100, Top: 75}},
		{"in at corner", 1.5, geometry.Position{Left: 30, Top: 20}},
		{"out", 0.8, geometry.Position{Left: 150, Top: 40}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := pane.NewImageContent(nil)
			require.NoError(t, c.SetContent(imageCmd("x.png", 200)))

			anchor := c.Scale().ToContent(tc.pivot)
			c.Zoom(tc.factor, tc.pivot, view)
			got := c.Scale().ToScreen(anchor)
			assert.InDelta(t, tc.pivot.Left, got.Left, 1e-9)
			assert.InDelta(t, tc.pivot.Top, got.Top, 1e-9)
		})
	}
}

func TestZoom_RepeatedStaysAnchored(t *testing.T) {
	p := newPane(t, events.KindImage, nil)
	require.NoError(t, p.SetContent(imageCmd("x.png", 200)))
	img := p.Content().(*pane.ImageContent)

	pivot := geometry.Position{Left: 60, Top: 90}
	anchor := img.Scale().ToContent(pivot)
	for range 3 {
		require.NoError(t, p.ZoomWheel(-120, false, pivot))
	}
	got := img.Scale().ToScreen(anchor)
	assert.InDelta(t, pivot.Left, got.Left, 1e-6)
	assert.InDelta(t, pivot.Top, got.Top, 1e-6)
	assert.InDelta(t, math.Exp(-360.0/800), img.Scale().Factor, 1e-9)
}

func TestZoom_MinimumWidth(t *testing.T) {
	c := pane.NewImageContent(nil)
	require.NoError(t, c.SetContent(imageCmd("x.png", 200)))
	c.Zoom(0.1, geometry.Position{}, geometry.Size{Width: 200, Height: 150})
	assert.InDelta(t, pane.MinContentWidth, c.Rendered().Width, 1e-9)
}

func TestZoomWheel_LineMode(t *testing.T) {
	p := newPane(t, events.KindImage, nil)
	require.NoError(t, p.SetContent(imageCmd("x.png", 200)))
	require.NoError(t, p.ZoomWheel(3, true, geometry.Position{}))
	assert.InDelta(t, math.Exp(120.0/800), p.Content().(*pane.ImageContent).Scale().Factor, 1e-9)
}

func TestPan_Clamped(t *testing.T) {
	p := newPane(t, events.KindImage, nil)
	require.NoError(t, p.SetContent(imageCmd("x.png", 200)))
	img := p.Content().(*pane.ImageContent)

	require.NoError(t, p.Pan(geometry.Position{Left: 1000, Top: 1000}))
	assert.Equal(t, geometry.Position{Left: 200 - pane.PanMargin, Top: 150 - pane.PanMargin}, img.Scale().Offset)

	require.NoError(t, p.Pan(geometry.Position{Left: -5000, Top: -5000}))
	assert.Equal(t, geometry.Position{Left: pane.PanMargin - 200, Top: pane.PanMargin - 150}, img.Scale().Offset)
}

func TestResetView(t *testing.T) {
	p := newPane(t, events.KindImage, nil)
	require.NoError(t, p.SetContent(imageCmd("x.png", 200)))
	require.NoError(t, p.Zoom(3, geometry.Position{Left: 10, Top: 10}))
	require.NoError(t, p.Pan(geometry.Position{Left: 5}))

	p.ResetView()
	assert.True(t, p.Content().(*pane.ImageContent).Scale().IsIdentity())
}

func TestImage_NaturalPaneFollowsIntrinsic(t *testing.T) {
	p := newPane(t, events.KindImage, nil)
	require.NoError(t, p.SetContent(imageCmd(pngDataURI(t, 120, 80), 0)))
	assert.Equal(t, 120.0, p.Rect().Width)
	assert.Equal(t, 80+pane.BarHeight, p.Rect().Height)
}
