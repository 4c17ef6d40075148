package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

type TLSConfig struct {
	Mode     string `json:"mode" yaml:"mode"`         // "self-signed" or "" (disabled)
	CacheDir string `json:"cacheDir" yaml:"cacheDir"` // defaults to ~/.display/certs
}

type AuthConfig struct {
	// JWTSecret enables viewer auth when set.
	JWTSecret string `json:"jwtSecret" yaml:"jwtSecret"`
	// ProducerKeyHash is a bcrypt hash; POST /events then requires the key.
	ProducerKeyHash string `json:"producerKeyHash" yaml:"producerKeyHash"`
}

type ServerConfig struct {
	Host         string     `json:"host" yaml:"host"`
	Port         int        `json:"port" yaml:"port"`
	TLS          TLSConfig  `json:"tls" yaml:"tls"`
	Auth         AuthConfig `json:"auth" yaml:"auth"`
	Keepalive    Duration   `json:"keepalive" yaml:"keepalive"`
	WriteTimeout Duration   `json:"writeTimeout" yaml:"writeTimeout"`
}

type HubConfig struct {
	QueueSize    int      `json:"queueSize" yaml:"queueSize"`
	Grace        Duration `json:"grace" yaml:"grace"`
	MaxPayload   int64    `json:"maxPayload" yaml:"maxPayload"`
	ReapInterval Duration `json:"reapInterval" yaml:"reapInterval"`
}

type ViewerConfig struct {
	URL       string `json:"url" yaml:"url"`
	Transport string `json:"transport" yaml:"transport"` // "sse" or "ws"
	Token     string `json:"token" yaml:"token"`
	Insecure  bool   `json:"insecure" yaml:"insecure"`
	// Store is where pane geometry is kept: "sqlite", "http" or "memory".
	Store string `json:"store" yaml:"store"`
	// Scope keys geometry per server; empty means derived from URL.
	Scope string `json:"scope" yaml:"scope"`
	// Seed fixes placement randomness when non-zero.
	Seed int64 `json:"seed" yaml:"seed"`
}

type ProducerConfig struct {
	URL string `json:"url" yaml:"url"`
	Key string `json:"key" yaml:"key"`
}

type LogConfig struct {
	Dir    string `json:"dir" yaml:"dir"`
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Hub      HubConfig      `json:"hub" yaml:"hub"`
	Viewer   ViewerConfig   `json:"viewer" yaml:"viewer"`
	Producer ProducerConfig `json:"producer" yaml:"producer"`
	Log      LogConfig      `json:"log" yaml:"log"`
	DBPath   string         `json:"dbPath" yaml:"dbPath"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8000,
			TLS:          TLSConfig{CacheDir: filepath.Join(Dir(), "certs")},
			Keepalive:    Duration(30 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
		},
		Hub: HubConfig{
			QueueSize:    64,
			Grace:        Duration(10 * time.Second),
			MaxPayload:   4 << 20,
			ReapInterval: Duration(time.Second),
		},
		Viewer: ViewerConfig{
			URL:       "http://localhost:8000",
			Transport: "sse",
			Store:     "sqlite",
		},
		Producer: ProducerConfig{URL: "http://localhost:8000"},
		Log: LogConfig{
			Dir:    filepath.Join(Dir(), "logs"),
			Level:  "info",
			Format: "text",
		},
		DBPath: DBPath(),
	}
}

// Dir is the per-user state directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".display")
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

func DBPath() string {
	return filepath.Join(Dir(), "state.db")
}

// Load reads path over Defaults. A missing file is not an error. Files
// ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the server or viewer cannot run with.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Server.TLS.Mode {
	case "", "self-signed":
	default:
		return fmt.Errorf("server.tls.mode %q: want \"self-signed\" or empty", c.Server.TLS.Mode)
	}
	switch c.Viewer.Transport {
	case "sse", "ws":
	default:
		return fmt.Errorf("viewer.transport %q: want \"sse\" or \"ws\"", c.Viewer.Transport)
	}
	switch c.Viewer.Store {
	case "sqlite", "http", "memory":
	default:
		return fmt.Errorf("viewer.store %q: want sqlite, http or memory", c.Viewer.Store)
	}
	if c.Hub.MaxPayload < 0 || c.Hub.QueueSize < 0 {
		return errors.New("hub sizes must not be negative")
	}
	return nil
}
