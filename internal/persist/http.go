package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTP talks to the display server's geometry API so a viewer's layout
// lives on the server rather than on the viewer's machine.
type HTTP struct {
	base   string
	scope  string
	token  string
	client *http.Client
}

// NewHTTP returns an adapter for baseURL (e.g. "http://localhost:8000").
// token, when set, is sent as a bearer token.
func NewHTTP(baseURL, scope, token string) *HTTP {
	return &HTTP{
		base:   strings.TrimRight(baseURL, "/"),
		scope:  scope,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTP) url(id string) string {
	return fmt.Sprintf("%s/api/geometry/%s/%s", h.base, url.PathEscape(h.scope), url.PathEscape(id))
}

func (h *HTTP) do(method, id string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, h.url(id), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return h.client.Do(req)
}

func (h *HTTP) Load(id string) (Geometry, bool, error) {
	resp, err := h.do(http.MethodGet, id, nil)
	if err != nil {
		return Geometry{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Geometry{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Geometry{}, false, fmt.Errorf("load geometry: server returned %d", resp.StatusCode)
	}
	var g Geometry
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return Geometry{}, false, fmt.Errorf("parse geometry: %w", err)
	}
	return g, true, nil
}

func (h *HTTP) Save(id string, g Geometry) error {
	if id == "" {
		return ErrEmptyID
	}
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	resp, err := h.do(http.MethodPut, id, bytes.NewReader(data))
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save geometry: server returned %d", resp.StatusCode)
	}
	return nil
}

func (h *HTTP) Remove(id string) error {
	resp, err := h.do(http.MethodDelete, id, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("remove geometry: server returned %d", resp.StatusCode)
	}
	return nil
}
