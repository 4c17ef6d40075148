package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/zsprackett/display/internal/persist"
)

type geometryEntry struct {
	ID string `json:"id"`
	persist.Geometry
}

// MarshalJSON flattens the entry; the embedded Geometry has its own
// marshaller, which would otherwise hide the id.
func (e geometryEntry) MarshalJSON() ([]byte, error) {
	g, err := json.Marshal(e.Geometry)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(g, &fields); err != nil {
		return nil, err
	}
	fields["id"] = e.ID
	return json.Marshal(fields)
}

func (s *Server) geometryStore(w http.ResponseWriter, r *http.Request) (*persist.SQLite, bool) {
	if s.store == nil {
		http.Error(w, "geometry store disabled", http.StatusServiceUnavailable)
		return nil, false
	}
	return persist.NewSQLite(s.store, r.PathValue("scope")), true
}

func (s *Server) handleListGeometry(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "geometry store disabled", http.StatusServiceUnavailable)
		return
	}
	rows, err := s.store.ListGeometry(r.PathValue("scope"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]geometryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, geometryEntry{
			ID: row.PaneID,
			Geometry: persist.Geometry{
				Left: row.Left, Top: row.Top, Width: row.Width, Height: row.Height,
				Maximized: row.Maximized,
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"panes": out})
}

func (s *Server) handleGetGeometry(w http.ResponseWriter, r *http.Request) {
	store, ok := s.geometryStore(w, r)
	if !ok {
		return
	}
	g, found, err := store.Load(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handlePutGeometry(w http.ResponseWriter, r *http.Request) {
	store, ok := s.geometryStore(w, r)
	if !ok {
		return
	}
	var g persist.Geometry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&g); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := store.Save(r.PathValue("id"), g); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteGeometry(w http.ResponseWriter, r *http.Request) {
	store, ok := s.geometryStore(w, r)
	if !ok {
		return
	}
	if err := store.Remove(r.PathValue("id")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
