package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the server reads at startup. Values are
// resolved in three layers: compiled defaults, then POLLROOM_* environment
// variables, then an optional JSON file named by POLLROOM_CONFIG_FILE.
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	HTTP      HTTPConfig      `json:"http"`
	WebSocket WebSocketConfig `json:"websocket"`
	Poll      PollConfig      `json:"poll"`
}

type DatabaseConfig struct {
	Path            string        `json:"path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	HealthInterval  time.Duration `json:"health_interval"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// PublicURL is the externally reachable base URL students open to
	// join; the QR endpoint encodes it.
	PublicURL string `json:"public_url"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `json:"read_buffer_size"`
	WriteBufferSize int           `json:"write_buffer_size"`
	SendQueueSize   int           `json:"send_queue_size"`
	EventQueueSize  int           `json:"event_queue_size"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	PongTimeout     time.Duration `json:"pong_timeout"`
	PingInterval    time.Duration `json:"ping_interval"`
	MaxMessageSize  int64         `json:"max_message_size"`
}

type PollConfig struct {
	// TeacherGrace is how long a dropped teacher connection holds the
	// teacher slot before it frees up.
	TeacherGrace time.Duration `json:"teacher_grace"`
	// VoteRateLimit caps vote submissions per connection per window.
	VoteRateLimit  int           `json:"vote_rate_limit"`
	VoteRateWindow time.Duration `json:"vote_rate_window"`
	// EndRetryDelay is the pause before retrying a failed poll end.
	EndRetryDelay time.Duration `json:"end_retry_delay"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "pollroom.db",
			MaxConnections:  10,
			ConnMaxLifetime: time.Hour,
			WriteTimeout:    10 * time.Second,
			HealthInterval:  30 * time.Second,
		},
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			PublicURL:    "http://localhost:8080",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendQueueSize:   64,
			EventQueueSize:  256,
			WriteTimeout:    10 * time.Second,
			PongTimeout:     60 * time.Second,
			PingInterval:    54 * time.Second,
			MaxMessageSize:  8192,
		},
		Poll: PollConfig{
			TeacherGrace:   10 * time.Second,
			VoteRateLimit:  10,
			VoteRateWindow: 10 * time.Second,
			EndRetryDelay:  5 * time.Second,
		},
	}
}

// Load resolves the configuration from defaults, environment, and the
// optional JSON file, then validates it.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if path := os.Getenv("POLLROOM_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POLLROOM_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("POLLROOM_HOST"); v != "" {
		c.HTTP.Host = v
	}
	if v := os.Getenv("POLLROOM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("POLLROOM_PUBLIC_URL"); v != "" {
		c.HTTP.PublicURL = v
	}
	if v := os.Getenv("POLLROOM_TEACHER_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Poll.TeacherGrace = d
		}
	}
	if v := os.Getenv("POLLROOM_VOTE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Poll.VoteRateLimit = n
		}
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.PublicURL == "" {
		return fmt.Errorf("public URL must not be empty")
	}
	if c.WebSocket.SendQueueSize <= 0 {
		return fmt.Errorf("websocket send queue size must be positive")
	}
	if c.WebSocket.EventQueueSize <= 0 {
		return fmt.Errorf("websocket event queue size must be positive")
	}
	if c.Poll.TeacherGrace < 0 {
		return fmt.Errorf("teacher grace must not be negative")
	}
	if c.Poll.VoteRateLimit <= 0 || c.Poll.VoteRateWindow <= 0 {
		return fmt.Errorf("vote rate limit and window must be positive")
	}
	if c.Poll.EndRetryDelay <= 0 {
		return fmt.Errorf("end retry delay must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
