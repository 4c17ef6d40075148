// Package persist stores each pane's last known geometry keyed by pane id.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/zsprackett/display/internal/geometry"
)

// Geometry is the persisted placement of one pane. On the wire each
// dimension is a CSS pixel string such as "10px"; bare numbers are accepted.
type Geometry struct {
	Left      float64
	Top       float64
	Width     float64
	Height    float64
	Maximized bool
}

func FromRect(r geometry.Rect, maximized bool) Geometry {
	return Geometry{Left: r.Left, Top: r.Top, Width: r.Width, Height: r.Height, Maximized: maximized}
}

func (g Geometry) Rect() geometry.Rect {
	return geometry.Rect{Left: g.Left, Top: g.Top, Width: g.Width, Height: g.Height}
}

type geometryJSON struct {
	Left      json.RawMessage `json:"left"`
	Top       json.RawMessage `json:"top"`
	Width     json.RawMessage `json:"width"`
	Height    json.RawMessage `json:"height"`
	Maximized bool            `json:"maximized"`
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Left      string `json:"left"`
		Top       string `json:"top"`
		Width     string `json:"width"`
		Height    string `json:"height"`
		Maximized bool   `json:"maximized"`
	}{px(g.Left), px(g.Top), px(g.Width), px(g.Height), g.Maximized})
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw geometryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *float64
	}{
		{"left", raw.Left, &g.Left},
		{"top", raw.Top, &g.Top},
		{"width", raw.Width, &g.Width},
		{"height", raw.Height, &g.Height},
	}
	for _, f := range fields {
		v, err := parseLength(f.raw)
		if err != nil {
			return fmt.Errorf("geometry %s: %w", f.name, err)
		}
		*f.dst = v
	}
	g.Maximized = raw.Maximized
	return nil
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// parseLength reads "12px", "12" or 12. Empty and null read as zero.
func parseLength(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// Adapter is the keyed geometry store panes save through.
type Adapter interface {
	// Load returns the geometry for id; ok is false when none is stored.
	Load(id string) (g Geometry, ok bool, err error)
	Save(id string, g Geometry) error
	// Remove deletes the entry. Removing a missing id is not an error.
	Remove(id string) error
}

var ErrEmptyID = errors.New("persist: empty pane id")

// Memory is an in-process Adapter, safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]Geometry
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]Geometry)}
}

func (m *Memory) Load(id string) (Geometry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.data[id]
	return g, ok, nil
}

func (m *Memory) Save(id string, g Geometry) error {
	if id == "" {
		return ErrEmptyID
	}
	m.mu.Lock()
	m.data[id] = g
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(id string) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
