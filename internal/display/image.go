package display

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/zsprackett/display/internal/events"
)

var ErrBadRaster = errors.New("display: raster shape does not match its data")

// Raster is a row-major grid of samples with one (gray) or three (RGB)
// channels per pixel.
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []float64
}

// Gray wraps rows of gray samples.
func Gray(rows [][]float64) Raster {
	r := Raster{Height: len(rows), Channels: 1}
	if len(rows) > 0 {
		r.Width = len(rows[0])
	}
	r.Pix = make([]float64, 0, r.Width*r.Height)
	for _, row := range rows {
		r.Pix = append(r.Pix, row...)
	}
	return r
}

func (r Raster) validate() error {
	if r.Channels != 1 && r.Channels != 3 {
		return fmt.Errorf("%w: %d channels", ErrBadRaster, r.Channels)
	}
	if r.Width <= 0 || r.Height <= 0 || len(r.Pix) != r.Width*r.Height*r.Channels {
		return fmt.Errorf("%w: %dx%dx%d with %d samples", ErrBadRaster, r.Width, r.Height, r.Channels, len(r.Pix))
	}
	return nil
}

// Range reports the smallest and largest finite sample.
func (r Raster) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range r.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// Normalize maps samples from [lo, hi] onto 0..255. Samples outside the
// range saturate; an empty range maps everything to 0.
func Normalize(v, lo, hi float64) uint8 {
	if hi <= lo || math.IsNaN(v) {
		return 0
	}
	s := (v - lo) * (255 / (hi - lo))
	switch {
	case s <= 0:
		return 0
	case s >= 255:
		return 255
	}
	return uint8(s)
}

// ToImage converts r to an 8-bit RGB image. Nil bounds default to the
// raster's own range.
func (r Raster) ToImage(lo, hi *float64) (*image.RGBA, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	dlo, dhi := r.Range()
	if lo != nil {
		dlo = *lo
	}
	if hi != nil {
		dhi = *hi
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := range r.Height {
		for x := range r.Width {
			i := (y*r.Width + x) * r.Channels
			c := color.RGBA{A: 255}
			c.R = Normalize(r.Pix[i], dlo, dhi)
			if r.Channels == 3 {
				c.G = Normalize(r.Pix[i+1], dlo, dhi)
				c.B = Normalize(r.Pix[i+2], dlo, dhi)
			} else {
				c.G, c.B = c.R, c.R
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

// DataURI encodes img as a base64 PNG data URI.
func DataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

type ImageOptions struct {
	ID    string
	Title string
	// Width is the requested display width in pixels; zero keeps the
	// intrinsic width.
	Width float64
	// Min and Max override the normalization range.
	Min         *float64
	Max         *float64
	Annotations []events.Annotation
}

// Raster normalizes r and sends it as an image.
func (c *Client) Raster(ctx context.Context, r Raster, opts ImageOptions) (string, error) {
	img, err := r.ToImage(opts.Min, opts.Max)
	if err != nil {
		return "", err
	}
	return c.Image(ctx, img, opts)
}

// Image sends img unchanged. Min and Max are ignored.
func (c *Client) Image(ctx context.Context, img image.Image, opts ImageOptions) (string, error) {
	src, err := DataURI(img)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, events.Command{
		Kind:  events.KindImage,
		ID:    opts.ID,
		Title: opts.Title,
		Image: events.ImagePayload{
			Src:         src,
			Width:       opts.Width,
			Annotations: opts.Annotations,
		},
	})
}
