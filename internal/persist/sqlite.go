package persist

import (
	"errors"

	"github.com/zsprackett/display/internal/db"
)

// SQLite stores geometry in the local database under a fixed scope.
type SQLite struct {
	store *db.DB
	scope string
}

func NewSQLite(store *db.DB, scope string) *SQLite {
	return &SQLite{store: store, scope: scope}
}

func (s *SQLite) Load(id string) (Geometry, bool, error) {
	row, err := s.store.GetGeometry(s.scope, id)
	if errors.Is(err, db.ErrNotFound) {
		return Geometry{}, false, nil
	}
	if err != nil {
		return Geometry{}, false, err
	}
	return Geometry{
		Left: row.Left, Top: row.Top, Width: row.Width, Height: row.Height,
		Maximized: row.Maximized,
	}, true, nil
}

func (s *SQLite) Save(id string, g Geometry) error {
	if id == "" {
		return ErrEmptyID
	}
	return s.store.SaveGeometry(&db.PaneGeometry{
		Scope:     s.scope,
		PaneID:    id,
		Left:      g.Left,
		Top:       g.Top,
		Width:     g.Width,
		Height:    g.Height,
		Maximized: g.Maximized,
	})
}

func (s *SQLite) Remove(id string) error {
	return s.store.DeleteGeometry(s.scope, id)
}
