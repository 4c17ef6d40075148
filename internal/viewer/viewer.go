// Package viewer connects to a display server's event stream and feeds
// each message into a window manager. It reconnects with backoff and
// resets the manager on every new connection.
package viewer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zsprackett/display/internal/wm"
)

type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebsocket Transport = "ws"
)

type Config struct {
	// URL is the server base, e.g. "http://localhost:8000".
	URL       string
	Transport Transport
	// Token is sent as ?token= when the server requires viewer auth.
	Token string
	// Insecure skips certificate checks for self-signed servers.
	Insecure   bool
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxMessage bounds one stream message, in bytes.
	MaxMessage int
}

func (c Config) withDefaults() Config {
	if c.Transport == "" {
		c.Transport = TransportSSE
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxMessage <= 0 {
		c.MaxMessage = 4<<20 + 64<<10
	}
	return c
}

var ErrBadStatus = errors.New("viewer: unexpected response status")

// Client streams commands into a Manager. Manager calls are funnelled
// through the executor so hosts with their own event loop can serialize
// them.
type Client struct {
	cfg    Config
	mgr    *wm.Manager
	exec   func(func())
	logger *slog.Logger
	http   *http.Client

	mu        sync.Mutex
	paused    bool
	connected bool
	cancel    context.CancelFunc
	wake      chan struct{}
}

func New(cfg Config, mgr *wm.Manager, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		cfg:    cfg,
		mgr:    mgr,
		exec:   func(fn func()) { fn() },
		logger: logger,
		http:   &http.Client{Transport: transport},
		wake:   make(chan struct{}, 1),
	}
}

// SetExecutor routes Manager calls through fn. fn must run its argument
// eventually and in submission order.
func (c *Client) SetExecutor(fn func(func())) {
	if fn != nil {
		c.exec = fn
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect drops the current stream and holds off reconnecting until
// Reconnect is called.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.paused = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reconnect resumes after Disconnect, skipping any pending backoff.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run connects and keeps reconnecting until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		if err := c.waitUnpaused(ctx); err != nil {
			return err
		}

		start := time.Now()
		err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warn("viewer: stream ended", "url", c.cfg.URL, "err", err)
		}
		if time.Since(start) > c.cfg.MaxBackoff {
			backoff = c.cfg.MinBackoff
		}

		if c.isPaused() {
			continue
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.wake:
			timer.Stop()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

func (c *Client) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Client) waitUnpaused(ctx context.Context) error {
	for c.isPaused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
	return nil
}

// connectOnce runs one stream to completion.
func (c *Client) connectOnce(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	onOpen := func() {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.logger.Info("viewer: connected", "url", c.cfg.URL, "transport", c.cfg.Transport)
		c.exec(func() {
			c.mgr.Reset()
			c.mgr.SetStatus(wm.Online)
		})
	}
	onMessage := func(msg []byte) {
		c.exec(func() { c.mgr.DispatchRaw(msg) })
	}
	defer func() {
		c.mu.Lock()
		wasConnected := c.connected
		c.connected = false
		c.cancel = nil
		c.mu.Unlock()
		if wasConnected {
			c.logger.Info("viewer: disconnected", "url", c.cfg.URL)
		}
		c.exec(func() { c.mgr.SetStatus(wm.Offline) })
	}()

	switch c.cfg.Transport {
	case TransportWebsocket:
		return c.streamWebsocket(ctx, onOpen, onMessage)
	case TransportSSE:
		return c.streamSSE(ctx, onOpen, onMessage)
	}
	return fmt.Errorf("viewer: unknown transport %q", c.cfg.Transport)
}

// endpoint builds the stream URL for path, switching to a ws scheme when
// asked.
func (c *Client) endpoint(path string, websocket bool) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.URL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if websocket {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		case "http":
			u.Scheme = "ws"
		}
	}
	if c.cfg.Token != "" {
		q := u.Query()
		q.Set("token", c.cfg.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Scope keys stored geometry by server so panes from different servers do
// not share positions. It is the URL's host, or the raw string when the
// URL has none.
func Scope(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
