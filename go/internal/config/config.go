package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is not set and the file exists
const DefaultPath = "config.yaml"

// Config holds the server configuration
type Config struct {
	Port      string          `yaml:"port"`
	Log       LogConfig       `yaml:"log"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	NATS      NATSConfig      `yaml:"nats"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
}

// LogConfig controls zerolog output
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// WebSocketConfig tunes realtime connections
type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBufferSize int           `yaml:"send_buffer_size"`
}

// NATSConfig configures the room event mirror. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// UpstreamConfig points at the music API proxied under /api/
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Port: "3000",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    60 * time.Second,
			MaxMessageSize: 1024,
			SendBufferSize: 256,
		},
		NATS: NATSConfig{
			StreamName:    "ROOM_EVENTS",
			SubjectPrefix: "room.events",
		},
		Upstream: UpstreamConfig{
			BaseURL: "https://tunehub.sayqz.com/api",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_PATH (or config.yaml when present) and environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("CONFIG_PATH")
	required := path != ""
	if path == "" {
		path = DefaultPath
	}
	if err := loadFile(path, &cfg); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ErrInvalidValue is wrapped by every validation failure
var ErrInvalidValue = errors.New("value must be positive")

func (c *Config) validate() error {
	ws := c.WebSocket
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"websocket.ping_interval", ws.PingInterval},
		{"websocket.write_timeout", ws.WriteTimeout},
		{"websocket.read_timeout", ws.ReadTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s=%s: %w", d.name, d.value, ErrInvalidValue)
		}
	}
	if ws.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket.max_message_size=%d: %w", ws.MaxMessageSize, ErrInvalidValue)
	}
	if ws.SendBufferSize <= 0 {
		return fmt.Errorf("websocket.send_buffer_size=%d: %w", ws.SendBufferSize, ErrInvalidValue)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.StreamName = getEnv("NATS_STREAM", cfg.NATS.StreamName)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	cfg.Upstream.BaseURL = getEnv("TUNEHUB_BASE_URL", cfg.Upstream.BaseURL)
	cfg.Upstream.APIKey = getEnv("TUNEHUB_API_KEY", cfg.Upstream.APIKey)

	var err error
	if cfg.WebSocket.PingInterval, err = getEnvAsDuration("WS_PING_INTERVAL", cfg.WebSocket.PingInterval); err != nil {
		return err
	}
	if cfg.WebSocket.WriteTimeout, err = getEnvAsDuration("WS_WRITE_TIMEOUT", cfg.WebSocket.WriteTimeout); err != nil {
		return err
	}
	if cfg.WebSocket.ReadTimeout, err = getEnvAsDuration("WS_READ_TIMEOUT", cfg.WebSocket.ReadTimeout); err != nil {
		return err
	}

	size, err := getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(cfg.WebSocket.MaxMessageSize))
	if err != nil {
		return err
	}
	cfg.WebSocket.MaxMessageSize = int64(size)

	if cfg.WebSocket.SendBufferSize, err = getEnvAsInt("WS_SEND_BUFFER_SIZE", cfg.WebSocket.SendBufferSize); err != nil {
		return err
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
