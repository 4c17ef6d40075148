package db

import "time"

// PaneGeometry is one stored pane placement. Scope separates viewers that
// share a server, the way browser storage is separated per origin.
type PaneGeometry struct {
	Scope     string
	PaneID    string
	Kind      string
	Left      float64
	Top       float64
	Width     float64
	Height    float64
	Maximized bool
	UpdatedAt time.Time
}
