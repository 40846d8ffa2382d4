package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GRPC struct {
	// Addr empty disables the admin gRPC listener.
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     string   `yaml:"readTimeout"`
	IdleTimeout     string   `yaml:"idleTimeout"`
	ShutdownTimeout string   `yaml:"shutdownTimeout"`
	AllowedOrigins  []string `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // meet-relay
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type WS struct {
	MaxMessageBytes int64   `yaml:"maxMessageBytes"`
	PingInterval    string  `yaml:"pingInterval"`
	WriteTimeout    string  `yaml:"writeTimeout"`
	SendBuffer      int     `yaml:"sendBuffer"`
	RateLimit       float64 `yaml:"rateLimit"` // frames per second, 0 disables
	RateBurst       int     `yaml:"rateBurst"`
}

type Chat struct {
	// HistoryLimit caps entries kept per room; 0 keeps all.
	HistoryLimit *int `yaml:"historyLimit"`
}

type Rooms struct {
	HostPolicy string `yaml:"hostPolicy"` // any|member|first
}

type Postgres struct {
	// DSN empty disables the meeting log.
	DSN string `yaml:"dsn"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	WS       WS       `yaml:"ws"`
	Chat     Chat     `yaml:"chat"`
	Rooms    Rooms    `yaml:"rooms"`
	ICE      ICE      `yaml:"ice"`
	Postgres Postgres `yaml:"postgres"`
}

const DefaultHistoryLimit = 500

// LoadConfig reads .env (if any), then the YAML file at CONFIG_PATH.
// A missing YAML file is not an error; defaults apply.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("config file not found, using defaults", "path", path)
	default:
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.HTTP.Addr = net.JoinHostPort("", port)
	}
	if env := strings.TrimSpace(os.Getenv("APP_ENV")); env != "" {
		c.Logging.Env = env
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8000"
	}
	if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
		return fmt.Errorf("http.addr: %w", err)
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "meet-relay"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Logging.Backend != "std" && c.Logging.Backend != "zap" {
		return fmt.Errorf("logging.backend: unknown %q", c.Logging.Backend)
	}

	if c.WS.MaxMessageBytes < 0 || c.WS.SendBuffer < 0 || c.WS.RateBurst < 0 || c.WS.RateLimit < 0 {
		return errors.New("ws: limits must not be negative")
	}
	if c.WS.RateLimit > 0 && c.WS.RateBurst == 0 {
		c.WS.RateBurst = int(c.WS.RateLimit) + 1
	}

	if c.Chat.HistoryLimit == nil {
		n := DefaultHistoryLimit
		c.Chat.HistoryLimit = &n
	}
	if *c.Chat.HistoryLimit < 0 {
		return errors.New("chat.historyLimit must not be negative")
	}

	switch strings.ToLower(c.Rooms.HostPolicy) {
	case "", "any", "member", "members", "first", "first-joiner":
	default:
		return fmt.Errorf("rooms.hostPolicy: unknown %q", c.Rooms.HostPolicy)
	}

	if err := c.ICE.validate(); err != nil {
		return fmt.Errorf("ice: %w", err)
	}
	return nil
}

func (c *Config) ReadTimeout() time.Duration {
	return parseDurationOr(10*time.Second, c.HTTP.ReadTimeout)
}

func (c *Config) IdleTimeout() time.Duration {
	return parseDurationOr(60*time.Second, c.HTTP.IdleTimeout)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return parseDurationOr(10*time.Second, c.HTTP.ShutdownTimeout)
}

// PingInterval and WriteTimeout return 0 when unset; the ws package picks defaults.
func (c *Config) PingInterval() time.Duration {
	return parseDurationOr(0, c.WS.PingInterval)
}

func (c *Config) WriteTimeout() time.Duration {
	return parseDurationOr(0, c.WS.WriteTimeout)
}

// helper for timeout parsing
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
