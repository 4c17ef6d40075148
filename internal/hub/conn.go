package hub

import (
	"sync"
	"sync/atomic"
	"time"
)

// Conn is one viewer subscription. Its message channel is never closed;
// readers select on Done to learn the connection ended.
type Conn struct {
	id      string
	hub     *Hub
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
	created time.Time

	// stalled holds the unix nano time the queue first filled, or zero.
	stalled atomic.Int64
	dropped atomic.Int64
}

func (c *Conn) ID() string              { return c.id }
func (c *Conn) Messages() <-chan []byte { return c.ch }
func (c *Conn) Done() <-chan struct{}   { return c.done }
func (c *Conn) Created() time.Time      { return c.created }
func (c *Conn) Dropped() int64          { return c.dropped.Load() }
func (c *Conn) Pending() int            { return len(c.ch) }

// StalledSince reports when the queue filled, if it is still marked full.
func (c *Conn) StalledSince() (time.Time, bool) {
	ns := c.stalled.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Close ends the subscription. It is safe to call more than once and from
// any goroutine; the hub forgets the connection exactly once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.remove(c)
	})
}

func (c *Conn) closeOnce() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// offer enqueues msg without blocking and reports whether it was queued.
func (c *Conn) offer(msg []byte, now time.Time) bool {
	if c.closed() {
		return true
	}
	select {
	case c.ch <- msg:
		c.stalled.Store(0)
		return true
	default:
		c.stalled.CompareAndSwap(0, now.UnixNano())
		c.dropped.Add(1)
		return false
	}
}
