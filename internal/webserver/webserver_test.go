package webserver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/zsprackett/display/internal/db"
	"github.com/zsprackett/display/internal/events"
	"github.com/zsprackett/display/internal/hub"
	"github.com/zsprackett/display/internal/persist"
	"github.com/zsprackett/display/internal/viewer"
	"github.com/zsprackett/display/internal/webserver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, hubCfg hub.Config, cfg webserver.Config) (*webserver.Server, *hub.Hub, *db.DB) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	h := hub.New(hubCfg, discardLogger())
	t.Cleanup(h.Close)
	return webserver.New(h, store, cfg, discardLogger()), h, store
}

func post(t *testing.T, srv *webserver.Server, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func waitForConnections(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Stats().Connections < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, have %d", n, h.Stats().Connections)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIngest_Publishes(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{}, webserver.Config{})
	conn := h.Subscribe()

	w := post(t, srv, `{"kind":"text","id":"a","payload":"hello"}`, nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	select {
	case msg := <-conn.Messages():
		if string(msg) != `{"kind":"text","id":"a","payload":"hello"}` {
			t.Errorf("unexpected payload %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("payload not delivered")
	}
}

func TestIngest_TooLarge(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{MaxPayload: 16}, webserver.Config{})
	w := post(t, srv, `{"kind":"text","payload":"this is far too long"}`, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if h.Stats().Published != 0 {
		t.Error("oversize payload must not be published")
	}
}

func TestIngest_InvalidJSON(t *testing.T) {
	srv, _, _ := newServer(t, hub.Config{}, webserver.Config{})
	w := post(t, srv, `{not json`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestIngest_ProducerKey(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("k3y"), bcrypt.MinCost)
	srv, _, _ := newServer(t, hub.Config{}, webserver.Config{
		Auth: webserver.AuthConfig{ProducerKeyHash: string(hash)},
	})

	if w := post(t, srv, `{}`, nil); w.Code != 401 {
		t.Errorf("missing key: expected 401, got %d", w.Code)
	}
	if w := post(t, srv, `{}`, map[string]string{webserver.KeyHeader: "nope"}); w.Code != 401 {
		t.Errorf("wrong key: expected 401, got %d", w.Code)
	}
	if w := post(t, srv, `{}`, map[string]string{webserver.KeyHeader: "k3y"}); w.Code != 200 {
		t.Errorf("right key: expected 200, got %d", w.Code)
	}
}

func TestIngest_ClosedHub(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{}, webserver.Config{})
	h.Close()
	if w := post(t, srv, `{}`, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestSSE_StreamsPayloads(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{}, webserver.Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
	waitForConnections(t, h, 1)

	h.Publish([]byte(`{"kind":"text","id":"a","payload":"one"}`))
	h.Publish([]byte(`{"kind":"text","id":"a","payload":"two"}`))

	reader := bufio.NewReader(resp.Body)
	var got []string
	for len(got) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: "); ok {
			got = append(got, data)
		}
	}
	if !strings.Contains(got[0], `"one"`) || !strings.Contains(got[1], `"two"`) {
		t.Errorf("unexpected frames %v", got)
	}
}

func TestSSE_DisconnectUnsubscribes(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{}, webserver.Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	waitForConnections(t, h, 1)
	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Stats().Connections != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSSE_MultiLinePayloads(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{}, webserver.Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	waitForConnections(t, h, 1)

	got := make(chan []byte, 4)
	go viewer.ReadSSE(resp.Body, 1<<20, func(b []byte) { got <- b })

	indented := "{\n  \"kind\": \"text\",\n  \"id\": \"a\",\n  \"payload\": \"hello\"\n}"
	pr, err := http.Post(ts.URL+"/events", "application/json", strings.NewReader(indented))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	pr.Body.Close()
	if pr.StatusCode != http.StatusOK {
		t.Fatalf("POST status %d", pr.StatusCode)
	}
	h.Publish([]byte("first\nsecond"))

	select {
	case msg := <-got:
		cmd, err := events.Decode(msg)
		if err != nil {
			t.Fatalf("decode %q: %v", msg, err)
		}
		if cmd.ID != "a" || cmd.Text != "hello" {
			t.Errorf("unexpected command %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("indented payload not delivered")
	}
	select {
	case msg := <-got:
		if string(msg) != "first\nsecond" {
			t.Errorf("multi-line payload arrived as %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("multi-line payload not delivered")
	}
}

func TestSSE_StalledViewerTimesOut(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{QueueSize: 64}, webserver.Config{WriteTimeout: 200 * time.Millisecond})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// The client sends a request and never reads the response.
	c, err := net.Dial("tcp", ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if _, err := io.WriteString(c, "GET /events HTTP/1.1\r\nHost: display\r\n\r\n"); err != nil {
		t.Fatalf("write request: %v", err)
	}
	waitForConnections(t, h, 1)

	big := bytes.Repeat([]byte("x"), 1<<20)
	for range 32 {
		if err := h.Publish(big); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.Stats().Connections != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stalled viewer was never dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocket_StreamsPayloads(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{}, webserver.Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	waitForConnections(t, h, 1)

	h.Publish([]byte(`{"kind":"text","payload":"hi"}`))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, msg, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.TextMessage || string(msg) != `{"kind":"text","payload":"hi"}` {
		t.Errorf("unexpected frame %d %s", typ, msg)
	}
}

func TestGeometryAPI(t *testing.T) {
	srv, _, _ := newServer(t, hub.Config{}, webserver.Config{})
	handler := srv.Handler()
	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	if w := do("GET", "/api/geometry/local/c", ""); w.Code != 404 {
		t.Fatalf("expected 404 before save, got %d", w.Code)
	}
	if w := do("PUT", "/api/geometry/local/c", `{"left":"10px","top":"20px","width":"300px","height":"200px","maximized":false}`); w.Code != 204 {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w := do("GET", "/api/geometry/local/c", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var g persist.Geometry
	if err := json.NewDecoder(w.Body).Decode(&g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g != (persist.Geometry{Left: 10, Top: 20, Width: 300, Height: 200}) {
		t.Errorf("unexpected geometry %+v", g)
	}

	if w := do("GET", "/api/geometry/other/c", ""); w.Code != 404 {
		t.Errorf("scopes must be isolated, got %d", w.Code)
	}

	w = do("GET", "/api/geometry/local", "")
	var list struct {
		Panes []map[string]any `json:"panes"`
	}
	json.NewDecoder(w.Body).Decode(&list)
	if len(list.Panes) != 1 || list.Panes[0]["id"] != "c" || list.Panes[0]["left"] != "10px" {
		t.Errorf("unexpected list %+v", list.Panes)
	}

	if w := do("PUT", "/api/geometry/local/c", `{"left":`); w.Code != 400 {
		t.Errorf("expected 400 for bad body, got %d", w.Code)
	}
	if w := do("DELETE", "/api/geometry/local/c", ""); w.Code != 204 {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w := do("GET", "/api/geometry/local/c", ""); w.Code != 404 {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestGeometryAPI_NoStore(t *testing.T) {
	h := hub.New(hub.Config{}, discardLogger())
	defer h.Close()
	srv := webserver.New(h, nil, webserver.Config{}, discardLogger())
	req := httptest.NewRequest("GET", "/api/geometry/local/c", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestHTTPAdapterAgainstServer(t *testing.T) {
	srv, _, _ := newServer(t, hub.Config{}, webserver.Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	a := persist.NewHTTP(ts.URL, "laptop", "")
	want := persist.Geometry{Left: 5, Top: 6, Width: 70, Height: 80, Maximized: true}
	if err := a.Save("p", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := a.Load("p")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("got %+v want %+v", got, want)
	}
	if err := a.Remove("p"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := a.Load("p"); ok {
		t.Error("expected entry gone after Remove")
	}
}

func TestStatus(t *testing.T) {
	srv, h, _ := newServer(t, hub.Config{}, webserver.Config{})
	h.Subscribe()
	h.Publish([]byte(`{}`))

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["connections"] != float64(1) || body["published"] != float64(1) {
		t.Errorf("unexpected stats %v", body)
	}
	if body["max_payload"] != "4.0 MiB" {
		t.Errorf("unexpected max_payload %v", body["max_payload"])
	}
}

func TestJWT_ProtectsViewerEndpoints(t *testing.T) {
	secret := "test-secret"
	srv, _, _ := newServer(t, hub.Config{}, webserver.Config{
		Auth: webserver.AuthConfig{JWTSecret: secret},
	})
	handler := srv.Handler()
	get := func(path string) int {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		return w.Code
	}

	if code := get("/api/status"); code != 401 {
		t.Errorf("expected 401 without token, got %d", code)
	}
	token, _ := webserver.IssueAccessToken(secret, "laptop", time.Hour)
	if code := get("/api/status?token=" + token); code != 200 {
		t.Errorf("expected 200 with token, got %d", code)
	}
	if w := post(t, srv, `{}`, nil); w.Code != 200 {
		t.Errorf("ingest should bypass viewer auth, got %d", w.Code)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv, _, _ := newServer(t, hub.Config{}, webserver.Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
