package viewer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

func (c *Client) streamSSE(ctx context.Context, onOpen func(), onMessage func([]byte)) error {
	u, err := c.endpoint("/events", false)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}
	onOpen()
	return ReadSSE(resp.Body, c.cfg.MaxMessage, onMessage)
}

// ReadSSE parses an event stream, calling fn with the data of each event.
// Multi-line data fields are joined with newlines; comments and other
// fields are skipped. It returns when r ends.
func ReadSSE(r io.Reader, maxLine int, fn func([]byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	var data bytes.Buffer
	pending := false
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if pending {
				fn(bytes.Clone(data.Bytes()))
				data.Reset()
				pending = false
			}
		case line[0] == ':':
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if pending {
				data.WriteByte('\n')
			}
			data.Write(v)
			pending = true
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return io.EOF
}

func (c *Client) streamWebsocket(ctx context.Context, onOpen func(), onMessage func([]byte)) error {
	u, err := c.endpoint("/ws", true)
	if err != nil {
		return err
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	if c.cfg.Insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadStatus, resp.Status, err)
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(int64(c.cfg.MaxMessage))

	// Unblock ReadMessage when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	onOpen()
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if typ == websocket.TextMessage {
			onMessage(msg)
		}
	}
}
