// Package config loads server settings from defaults, an optional YAML file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// RateLimitConfig bounds inbound frames per connection.
type RateLimitConfig struct {
	Burst     int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
	PerSecond float64 `yaml:"per_second" env:"RATE_LIMIT_PER_SECOND"`
}

// Config holds the server configuration.
type Config struct {
	Port            string          `yaml:"port" env:"PORT"`
	AllowedOrigins  []string        `yaml:"allowed_origins" env:"CLIENT_URL" envSeparator:","`
	HistoryCap      int             `yaml:"history_cap" env:"HISTORY_CAP"`
	DefaultRoom     string          `yaml:"default_room" env:"DEFAULT_ROOM"`
	MaxMessageSize  int64           `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	AMQPURL         string          `yaml:"amqp_url" env:"AMQP_URL"`
	AMQPExchange    string          `yaml:"amqp_exchange" env:"AMQP_EXCHANGE"`
	OTLPEndpoint    string          `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName     string          `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Environment     string          `yaml:"environment" env:"APP_ENV"`
	LogLevel        string          `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat       string          `yaml:"log_format" env:"LOG_FORMAT"`
	DebugRoutes     bool            `yaml:"debug_routes" env:"DEBUG_ROUTES"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           "5000",
		AllowedOrigins: []string{"http://localhost:5173"},
		HistoryCap:     100,
		DefaultRoom:    "general",
		MaxMessageSize: 8192,
		RateLimit: RateLimitConfig{
			Burst:     20,
			PerSecond: 10,
		},
		AMQPExchange:    "chat.events",
		ServiceName:     "chat-presence",
		Environment:     "development",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 15 * time.Second,
	}
}

// Load builds the configuration for args (without the program name) and the
// environment map environ, usually env.ToMap(os.Environ()). The YAML file is
// taken from --config or CONFIG_FILE.
func Load(args []string, environ map[string]string) (*Config, error) {
	cfg := Default()

	flags := pflag.NewFlagSet("chat-presence", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to a YAML config file")
	port := flags.String("port", "", "HTTP listen port")
	origins := flags.String("client-url", "", "comma-separated allowed client origins, * for any")
	historyCap := flags.Int("history-cap", 0, "messages retained per room")
	defaultRoom := flags.String("default-room", "", "room every user joins")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	debugRoutes := flags.Bool("debug-routes", false, "enable /debug endpoints")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	path := *configFile
	if path == "" {
		path = environ["CONFIG_FILE"]
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if environ == nil {
		environ = map[string]string{}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags.Changed("port") {
		cfg.Port = *port
	}
	if flags.Changed("client-url") {
		cfg.AllowedOrigins = parseList(*origins)
	}
	if flags.Changed("history-cap") {
		cfg.HistoryCap = *historyCap
	}
	if flags.Changed("default-room") {
		cfg.DefaultRoom = *defaultRoom
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("debug-routes") {
		cfg.DebugRoutes = *debugRoutes
	}

	cfg.Sanitize()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Sanitize replaces out-of-range values with defaults.
func (c *Config) Sanitize() {
	def := Default()
	c.Port = strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if c.Port == "" {
		c.Port = def.Port
	}
	c.AllowedOrigins = parseList(strings.Join(c.AllowedOrigins, ","))
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = def.AllowedOrigins
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = def.HistoryCap
	}
	c.DefaultRoom = strings.TrimSpace(c.DefaultRoom)
	if c.DefaultRoom == "" {
		c.DefaultRoom = def.DefaultRoom
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = def.RateLimit.PerSecond
	}
	if c.AMQPExchange == "" {
		c.AMQPExchange = def.AMQPExchange
	}
	if c.ServiceName == "" {
		c.ServiceName = def.ServiceName
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	c.LogFormat = strings.ToLower(c.LogFormat)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// SlogLevel maps LogLevel onto slog levels; unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to stderr.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
