// Package hub fans producer payloads out to every connected viewer.
//
// Each subscriber gets a bounded queue. Publish never blocks on a slow
// subscriber: a full queue marks the connection stalled and further
// payloads for it are dropped until it drains. A connection that stays
// full past the grace period is closed by the reaper.
package hub

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var (
	ErrPayloadTooLarge = errors.New("hub: payload too large")
	ErrClosed          = errors.New("hub: closed")
)

type Config struct {
	// QueueSize is the per-connection buffer length.
	QueueSize int
	// Grace is how long a connection may stay full before it is dropped.
	Grace time.Duration
	// MaxPayload bounds a single published payload, in bytes.
	MaxPayload int64
	// ReapInterval is how often stalled connections are checked.
	ReapInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:    64,
		Grace:        10 * time.Second,
		MaxPayload:   4 << 20,
		ReapInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.Grace <= 0 {
		c.Grace = d.Grace
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = d.MaxPayload
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = d.ReapInterval
	}
	return c
}

// Stats is a point-in-time view of hub activity.
type Stats struct {
	Connections int   `json:"connections"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
	Reaped      int64 `json:"reaped"`
}

type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	conns  map[*Conn]struct{}
	closed bool

	// seq serializes Publish so every connection sees one hub order.
	seq sync.Mutex

	published atomic.Int64
	dropped   atomic.Int64
	reaped    atomic.Int64

	now  func() time.Time
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg.withDefaults(),
		logger: logger,
		conns:  make(map[*Conn]struct{}),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

func (h *Hub) Config() Config { return h.cfg }

// Subscribe registers a new connection. On a closed hub the returned
// connection is already closed.
func (h *Hub) Subscribe() *Conn {
	c := &Conn{
		id:      uuid.NewString(),
		hub:     h,
		ch:      make(chan []byte, h.cfg.QueueSize),
		done:    make(chan struct{}),
		created: h.now(),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.closeOnce()
		return c
	}
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("hub: subscribed", "conn", c.id, "connections", n)
	return c
}

// Unsubscribe closes c. It is the same as c.Close.
func (h *Hub) Unsubscribe(c *Conn) {
	if c != nil {
		c.Close()
	}
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("hub: unsubscribed", "conn", c.id, "connections", n, "dropped", c.Dropped())
	}
}

// Publish queues payload for every current connection. The payload is
// copied, so callers may reuse the slice.
func (h *Hub) Publish(payload []byte) error {
	if int64(len(payload)) > h.cfg.MaxPayload {
		return fmt.Errorf("%w: %s exceeds %s", ErrPayloadTooLarge,
			humanize.IBytes(uint64(len(payload))), humanize.IBytes(uint64(h.cfg.MaxPayload)))
	}

	h.seq.Lock()
	defer h.seq.Unlock()

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	msg := bytes.Clone(payload)
	now := h.now()
	for _, c := range conns {
		if !c.offer(msg, now) {
			h.dropped.Add(1)
		}
	}
	h.published.Add(1)
	return nil
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.conns)
	h.mu.RUnlock()
	return Stats{
		Connections: n,
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
		Reaped:      h.reaped.Load(),
	}
}

// Start launches the reaper that drops connections stalled past the grace
// period.
func (h *Hub) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.cfg.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				h.Reap()
			}
		}
	}()
}

// Stop halts the reaper. Connections stay open.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
	h.wg.Wait()
}

// Reap closes every connection whose queue has been full for longer than
// the grace period and clears the stall mark on connections that drained.
// It returns the number of connections closed.
func (h *Hub) Reap() int {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	now := h.now()
	n := 0
	for _, c := range conns {
		since, stalled := c.StalledSince()
		if !stalled {
			continue
		}
		if len(c.ch) < cap(c.ch) {
			c.stalled.Store(0)
			continue
		}
		if now.Sub(since) < h.cfg.Grace {
			continue
		}
		h.logger.Warn("hub: dropping stalled connection", "conn", c.id,
			"stalled", humanize.RelTime(since, now, "", ""), "dropped", c.Dropped())
		c.Close()
		h.reaped.Add(1)
		n++
	}
	return n
}

// Close stops the reaper and closes every connection. Later publishes
// return ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.Stop()
	for _, c := range conns {
		c.Close()
	}
}

// SetClock replaces the hub's time source. Used in tests.
func (h *Hub) SetClock(now func() time.Time) {
	h.now = now
}
