// Package display is the producer side: it turns rasters, series and text
// into commands and posts them to a display server.
package display

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zsprackett/display/internal/events"
)

const DefaultURL = "http://localhost:8000"

type Config struct {
	// URL is the server base; "/events" is appended.
	URL string
	// Key is sent in the producer key header when the server requires one.
	Key     string
	Timeout time.Duration
}

type Client struct {
	endpoint string
	key      string
	http     *http.Client
}

func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/events",
		key:      cfg.Key,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Send posts cmd, filling in a fresh pane id when it has none, and returns
// the id used.
func (c *Client) Send(ctx context.Context, cmd events.Command) (string, error) {
	if cmd.ID == "" {
		cmd.ID = events.NewPaneID()
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("encode command: %w", err)
	}
	return cmd.ID, c.SendRaw(ctx, body)
}

// SendRaw posts an already encoded command.
func (c *Client) SendRaw(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-Display-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: %s: %s", c.endpoint, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

type TextOptions struct {
	ID    string
	Title string
}

func (c *Client) Text(ctx context.Context, body string, opts TextOptions) (string, error) {
	return c.Send(ctx, events.Command{Kind: events.KindText, ID: opts.ID, Title: opts.Title, Text: body})
}

type PlotOptions struct {
	ID    string
	Title string
	// Labels names the series; the first is the x axis.
	Labels []string
	// Extra is passed through to the chart unchanged.
	Extra map[string]any
}

// Plot sends data as a line chart. Each row is an x value followed by one
// value per series.
func (c *Client) Plot(ctx context.Context, data [][]float64, opts PlotOptions) (string, error) {
	return c.Send(ctx, events.Command{
		Kind:  events.KindPlot,
		ID:    opts.ID,
		Title: opts.Title,
		Plot:  PlotConfig(data, opts),
	})
}

// PlotConfig builds the chart options Plot sends.
func PlotConfig(data [][]float64, opts PlotOptions) map[string]any {
	out := make(map[string]any, len(opts.Extra)+4)
	maps.Copy(out, opts.Extra)
	rows := make([]any, len(data))
	for i, r := range data {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = v
		}
		rows[i] = row
	}
	out["file"] = rows
	if opts.Title != "" {
		out["title"] = opts.Title
	}
	if len(opts.Labels) > 0 {
		out["labels"] = opts.Labels
		out["xlabel"] = opts.Labels[0]
	}
	return out
}

// ReadCSV reads a plot table. A first row that does not parse as numbers
// is taken as the series labels.
func ReadCSV(r io.Reader) (labels []string, rows [][]float64, err error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	for i, rec := range records {
		row := make([]float64, len(rec))
		numeric := true
		for j, f := range rec {
			v, perr := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if perr != nil {
				numeric = false
				break
			}
			row[j] = v
		}
		switch {
		case numeric:
			rows = append(rows, row)
		case i == 0:
			labels = rec
		default:
			return nil, nil, fmt.Errorf("read csv: line %d: not a number row", i+1)
		}
	}
	return labels, rows, nil
}
