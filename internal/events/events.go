package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind selects the pane type a command targets.
type Kind string

const (
	KindImage Kind = "image"
	KindPlot  Kind = "plot"
	KindText  Kind = "text"
)

func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindPlot, KindText:
		return true
	}
	return false
}

var (
	ErrMalformed   = errors.New("events: malformed command")
	ErrUnknownKind = errors.New("events: unknown kind")
)

// Annotation is a text label drawn over an image. X and Y below 1 are
// fractions of the content box; anything else is absolute pixels.
type Annotation struct {
	X, Y float64
	Text string
}

// UnmarshalJSON accepts the [x, y, text] triple form.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("annotation: want 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &a.X); err != nil {
		return fmt.Errorf("annotation x: %w", err)
	}
	if err := json.Unmarshal(raw[1], &a.Y); err != nil {
		return fmt.Errorf("annotation y: %w", err)
	}
	if err := json.Unmarshal(raw[2], &a.Text); err != nil {
		return fmt.Errorf("annotation text: %w", err)
	}
	return nil
}

func (a Annotation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{a.X, a.Y, a.Text})
}

type ImagePayload struct {
	Src         string       `json:"src"`
	Width       float64      `json:"width,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Command is one update pushed from a producer to viewers. Exactly one of
// Image, Plot or Text is meaningful, selected by Kind.
type Command struct {
	Kind  Kind
	ID    string
	Title string
	Image ImagePayload
	Plot  map[string]any
	Text  string
}

// wireCommand is the JSON shape on the stream. Older producers put the kind
// under "command" and the payload fields at top level, so both are read.
type wireCommand struct {
	Kind        Kind            `json:"kind,omitempty"`
	Command     Kind            `json:"command,omitempty"`
	ID          string          `json:"id,omitempty"`
	Title       string          `json:"title,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Src         string          `json:"src,omitempty"`
	Width       float64         `json:"width,omitempty"`
	Annotations []Annotation    `json:"annotations,omitempty"`
	Labels      json.RawMessage `json:"labels,omitempty"`
	Options     map[string]any  `json:"options,omitempty"`
	Text        *string         `json:"text,omitempty"`
}

// Decode parses one stream message into a Command.
func Decode(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind := w.Kind
	if kind == "" {
		kind = w.Command
	}
	if !kind.Valid() {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	cmd := Command{Kind: kind, ID: w.ID, Title: w.Title}
	hasPayload := len(w.Payload) > 0 && string(w.Payload) != "null"

	switch kind {
	case KindImage:
		if hasPayload {
			var p struct {
				ImagePayload
				Labels json.RawMessage `json:"labels,omitempty"`
			}
			if err := json.Unmarshal(w.Payload, &p); err != nil {
				return Command{}, fmt.Errorf("%w: image payload: %v", ErrMalformed, err)
			}
			cmd.Image = p.ImagePayload
			if len(cmd.Image.Annotations) == 0 {
				cmd.Image.Annotations = legacyLabels(p.Labels)
			}
		} else {
			cmd.Image = ImagePayload{Src: w.Src, Width: w.Width, Annotations: w.Annotations}
			if len(cmd.Image.Annotations) == 0 {
				cmd.Image.Annotations = legacyLabels(w.Labels)
			}
		}
	case KindPlot:
		if hasPayload {
			if err := json.Unmarshal(w.Payload, &cmd.Plot); err != nil {
				return Command{}, fmt.Errorf("%w: plot payload: %v", ErrMalformed, err)
			}
		} else {
			cmd.Plot = w.Options
		}
		if cmd.Plot == nil {
			cmd.Plot = map[string]any{}
		}
	case KindText:
		switch {
		case hasPayload:
			if err := json.Unmarshal(w.Payload, &cmd.Text); err != nil {
				return Command{}, fmt.Errorf("%w: text payload: %v", ErrMalformed, err)
			}
		case w.Text != nil:
			cmd.Text = *w.Text
		}
	}
	return cmd, nil
}

// legacyLabels reads annotation triples sent under "labels". Producers
// also use that key for plain image captions, which are ignored here.
func legacyLabels(raw json.RawMessage) []Annotation {
	if len(raw) == 0 {
		return nil
	}
	var out []Annotation
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// MarshalJSON writes the canonical {kind, id, title, payload} form.
func (c Command) MarshalJSON() ([]byte, error) {
	var payload any
	switch c.Kind {
	case KindImage:
		payload = c.Image
	case KindPlot:
		payload = c.Plot
	case KindText:
		payload = c.Text
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireCommand{Kind: c.Kind, ID: c.ID, Title: c.Title, Payload: raw})
}

// Publisher delivers encoded commands to connected viewers.
// A nil Publisher is safe to hold; callers check before use.
type Publisher interface {
	Publish(payload []byte) error
}

// NewPaneID returns a fresh id for commands published without one.
func NewPaneID() string {
	return "pane_" + uuid.NewString()
}
