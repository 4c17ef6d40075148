package hub_test

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsprackett/display/internal/hub"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHub(t *testing.T, cfg hub.Config) *hub.Hub {
	t.Helper()
	h := hub.New(cfg, discardLogger())
	t.Cleanup(h.Close)
	return h
}

// drain reads exactly n messages from c or fails after a timeout.
func drain(t *testing.T, c *hub.Conn, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case msg := <-c.Messages():
			out = append(out, string(msg))
		case <-timeout:
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
	}
	return out
}

func assertEmpty(t *testing.T, c *hub.Conn) {
	t.Helper()
	select {
	case msg := <-c.Messages():
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func TestPublish_OrderedExactlyOnce(t *testing.T) {
	h := newHub(t, hub.Config{QueueSize: 256})
	conns := []*hub.Conn{h.Subscribe(), h.Subscribe(), h.Subscribe()}

	var want []string
	for i := range 100 {
		msg := strconv.Itoa(i)
		want = append(want, msg)
		require.NoError(t, h.Publish([]byte(msg)))
	}
	for _, c := range conns {
		assert.Equal(t, want, drain(t, c, len(want)))
		assertEmpty(t, c)
	}
	assert.Equal(t, int64(100), h.Stats().Published)
	assert.Equal(t, int64(0), h.Stats().Dropped)
}

func TestPublish_ConcurrentPublishersShareOneOrder(t *testing.T) {
	h := newHub(t, hub.Config{QueueSize: 1024})
	a, b := h.Subscribe(), h.Subscribe()

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = h.Publish([]byte(fmt.Sprintf("%d-%d", p, i)))
			}
		}()
	}
	wg.Wait()

	gotA := drain(t, a, 200)
	gotB := drain(t, b, 200)
	assert.Equal(t, gotA, gotB)

	seen := make(map[string]bool)
	for _, m := range gotA {
		assert.False(t, seen[m], "duplicate %s", m)
		seen[m] = true
	}
}

func TestPublish_JoinAndLeave(t *testing.T) {
	h := newHub(t, hub.Config{})
	early := h.Subscribe()
	require.NoError(t, h.Publish([]byte("one")))

	late := h.Subscribe()
	require.NoError(t, h.Publish([]byte("two")))

	h.Unsubscribe(early)
	require.NoError(t, h.Publish([]byte("three")))

	assert.Equal(t, []string{"one", "two"}, drain(t, early, 2))
	assertEmpty(t, early)
	assert.Equal(t, []string{"two", "three"}, drain(t, late, 2))
	assert.Equal(t, 1, h.Stats().Connections)
}

func TestPublish_SubscribersChurnDuringPublish(t *testing.T) {
	const total = 2000
	h := newHub(t, hub.Config{QueueSize: total})

	done := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var runs [][]int
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; ; round++ {
				select {
				case <-done:
					return
				default:
				}
				c := h.Subscribe()
				var got []int
				limit := 1 + (w*7+round*13)%50
			read:
				for len(got) < limit {
					select {
					case msg := <-c.Messages():
						n, err := strconv.Atoi(string(msg))
						if err != nil {
							t.Errorf("bad payload %q", msg)
							break read
						}
						got = append(got, n)
					case <-done:
						break read
					case <-time.After(50 * time.Millisecond):
						break read
					}
				}
				c.Close()
				mu.Lock()
				runs = append(runs, got)
				mu.Unlock()
			}
		}()
	}

	for i := range total {
		require.NoError(t, h.Publish([]byte(strconv.Itoa(i))))
		if i%100 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	close(done)
	wg.Wait()

	assert.Equal(t, int64(0), h.Stats().Dropped)
	assert.Equal(t, 0, h.Stats().Connections)
	received := 0
	for _, run := range runs {
		for i := 1; i < len(run); i++ {
			require.Equal(t, run[i-1]+1, run[i], "gap or duplicate in %v", run)
		}
		received += len(run)
	}
	assert.Positive(t, received)
}

func TestPublish_CopiesPayload(t *testing.T) {
	h := newHub(t, hub.Config{})
	c := h.Subscribe()
	buf := []byte("abc")
	require.NoError(t, h.Publish(buf))
	buf[0] = 'z'
	assert.Equal(t, []string{"abc"}, drain(t, c, 1))
}

func TestPublish_TooLarge(t *testing.T) {
	h := newHub(t, hub.Config{MaxPayload: 8})
	c := h.Subscribe()

	err := h.Publish([]byte("123456789"))
	assert.ErrorIs(t, err, hub.ErrPayloadTooLarge)
	assert.NoError(t, h.Publish([]byte("12345678")))
	assert.Equal(t, []string{"12345678"}, drain(t, c, 1))
	assert.Equal(t, int64(1), h.Stats().Published)
}

func TestDefaultMaxPayload(t *testing.T) {
	assert.Equal(t, int64(4<<20), hub.DefaultConfig().MaxPayload)
	assert.Equal(t, 64, hub.DefaultConfig().QueueSize)
	assert.Equal(t, 10*time.Second, hub.DefaultConfig().Grace)
}

func TestConnClose_Idempotent(t *testing.T) {
	h := newHub(t, hub.Config{})
	c := h.Subscribe()
	other := h.Subscribe()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()
	h.Unsubscribe(c)

	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
	assert.Equal(t, 1, h.Stats().Connections)

	require.NoError(t, h.Publish([]byte("x")))
	assert.Equal(t, []string{"x"}, drain(t, other, 1))
	assertEmpty(t, c)
}

func TestClose(t *testing.T) {
	h := hub.New(hub.Config{}, discardLogger())
	h.Start()
	a, b := h.Subscribe(), h.Subscribe()

	h.Close()
	h.Close()

	for _, c := range []*hub.Conn{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatal("expected connection closed")
		}
	}
	assert.ErrorIs(t, h.Publish([]byte("x")), hub.ErrClosed)
	assert.Equal(t, 0, h.Stats().Connections)

	late := h.Subscribe()
	select {
	case <-late.Done():
	default:
		t.Fatal("expected subscription on closed hub to be closed")
	}
}

func TestSlowConsumer_DroppedAfterGrace(t *testing.T) {
	h := newHub(t, hub.Config{QueueSize: 2, Grace: 10 * time.Second})
	now := time.Unix(1_700_000_000, 0)
	h.SetClock(func() time.Time { return now })

	slow := h.Subscribe()
	fast := h.Subscribe()
	for i := range 5 {
		require.NoError(t, h.Publish([]byte(strconv.Itoa(i))))
		drain(t, fast, 1)
	}

	assert.Equal(t, int64(3), slow.Dropped())
	since, stalled := slow.StalledSince()
	require.True(t, stalled)
	assert.True(t, since.Equal(now))

	now = now.Add(5 * time.Second)
	assert.Equal(t, 0, h.Reap(), "still inside the grace period")

	now = now.Add(6 * time.Second)
	assert.Equal(t, 1, h.Reap())

	select {
	case <-slow.Done():
	default:
		t.Fatal("expected stalled connection to be dropped")
	}
	st := h.Stats()
	assert.Equal(t, 1, st.Connections)
	assert.Equal(t, int64(1), st.Reaped)
	assert.Equal(t, int64(3), st.Dropped)
}

func TestSlowConsumer_RecoversWhenDrained(t *testing.T) {
	h := newHub(t, hub.Config{QueueSize: 1, Grace: time.Second})
	now := time.Unix(1_700_000_000, 0)
	h.SetClock(func() time.Time { return now })

	c := h.Subscribe()
	require.NoError(t, h.Publish([]byte("a")))
	require.NoError(t, h.Publish([]byte("b")))
	_, stalled := c.StalledSince()
	require.True(t, stalled)

	assert.Equal(t, []string{"a"}, drain(t, c, 1))
	now = now.Add(time.Minute)
	assert.Equal(t, 0, h.Reap())
	_, stalled = c.StalledSince()
	assert.False(t, stalled)

	require.NoError(t, h.Publish([]byte("c")))
	assert.Equal(t, []string{"c"}, drain(t, c, 1))
}

func TestReaperLoop(t *testing.T) {
	h := newHub(t, hub.Config{QueueSize: 1, Grace: time.Millisecond, ReapInterval: 10 * time.Millisecond})
	c := h.Subscribe()
	require.NoError(t, h.Publish([]byte("a")))
	require.NoError(t, h.Publish([]byte("b")))

	h.Start()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not drop the stalled connection")
	}
	h.Stop()
}
