// Package webserver exposes the hub over HTTP: producers POST commands to
// /events and viewers read them back as a server-sent event stream or a
// websocket. It also serves the shared geometry store and hub status.
package webserver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/bcrypt"

	"github.com/zsprackett/display/internal/db"
	"github.com/zsprackett/display/internal/hub"
)

// KeyHeader carries the producer key on POST /events.
const KeyHeader = "X-Display-Key"

type AuthConfig struct {
	// JWTSecret enables bearer-token auth on the viewer endpoints.
	JWTSecret string
	// ProducerKeyHash is a bcrypt hash; when set, POST /events requires the
	// matching key in KeyHeader.
	ProducerKeyHash string
}

type Config struct {
	Host string
	Port int
	// TLS serves HTTPS with a self-signed certificate cached in TLSCacheDir.
	TLS         bool
	TLSCacheDir string
	Auth        AuthConfig
	// Keepalive is the SSE comment and websocket ping interval.
	Keepalive    time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	hub     *hub.Hub
	store   *db.DB
	cfg     Config
	logger  *slog.Logger
	started time.Time
}

// New returns a server publishing into h. store may be nil, in which case
// the geometry API answers 503.
func New(h *hub.Hub, store *db.DB, cfg Config, logger *slog.Logger) *Server {
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{hub: h, store: store, cfg: cfg, logger: logger, started: time.Now()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", s.handleIngest)
	mux.HandleFunc("GET /events", s.handleSSE)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("GET /api/geometry/{scope}", s.handleListGeometry)
	mux.HandleFunc("GET /api/geometry/{scope}/{id}", s.handleGetGeometry)
	mux.HandleFunc("PUT /api/geometry/{scope}/{id}", s.handlePutGeometry)
	mux.HandleFunc("DELETE /api/geometry/{scope}/{id}", s.handleDeleteGeometry)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	if s.cfg.Auth.JWTSecret == "" {
		return mux
	}
	return jwtMiddleware(s.cfg.Auth.JWTSecret, isIngest, mux)
}

// isIngest lets producers through the viewer auth; they present a key.
func isIngest(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == "/events"
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.cfg.TLS {
		tlsCfg, err := selfSignedTLS(s.cfg.TLSCacheDir, s.cfg.Host, time.Now())
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		ln = tls.NewListener(ln, tlsCfg)
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("webserver: listening", "addr", ln.Addr().String(), "tls", s.cfg.TLS)
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if hash := s.cfg.Auth.ProducerKeyHash; hash != "" {
		key := r.Header.Get(KeyHeader)
		if key == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	limit := s.hub.Config().MaxPayload
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "payload exceeds "+humanize.IBytes(uint64(limit)), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Payloads travel as single-line JSON on every transport.
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		http.Error(w, "body is not valid JSON", http.StatusBadRequest)
		return
	}

	switch err := s.hub.Publish(compact.Bytes()); {
	case errors.Is(err, hub.ErrPayloadTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, hub.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	conn := s.hub.Subscribe()
	defer conn.Close()
	s.logger.Info("webserver: sse viewer connected", "conn", conn.ID(), "remote", r.RemoteAddr)

	rc := http.NewResponseController(w)
	deadline := func() error {
		err := rc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if errors.Is(err, http.ErrNotSupported) {
			return nil
		}
		return err
	}

	// Headers go out immediately so the viewer sees the stream open.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.cfg.Keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.Done():
			return
		case msg := <-conn.Messages():
			if err := deadline(); err != nil {
				return
			}
			if err := writeSSE(w, flusher, msg); err != nil {
				s.logger.Debug("webserver: sse write failed", "conn", conn.ID(), "err", err)
				return
			}
		case <-ticker.C:
			if err := deadline(); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE frames msg as one event, one data line per payload line.
func writeSSE(w io.Writer, f http.Flusher, msg []byte) error {
	for line := range bytes.SplitSeq(msg, []byte("\n")) {
		if _, err := fmt.Fprintf(w, "data: %s\n", bytes.TrimSuffix(line, []byte("\r"))); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	f.Flush()
	return nil
}

type statusResponse struct {
	hub.Stats
	MaxPayload string `json:"max_payload"`
	Uptime     string `json:"uptime"`
	Started    string `json:"started"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Stats:      s.hub.Stats(),
		MaxPayload: humanize.IBytes(uint64(s.hub.Config().MaxPayload)),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Started:    humanize.Time(s.started),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
