package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Server    ServerConfig
	Chat      ChatConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
	Debug     DebugConfig
	Log       LogConfig
}

type ServerConfig struct {
	BaseURL        string
	WSPath         string
	SessionID      string
	RequestTimeout time.Duration
}

type ChatConfig struct {
	PollInterval        time.Duration
	ReconnectDelay      time.Duration
	ReconnectPolicy     string
	ReconnectMaxRetries int
	TypingIdle          time.Duration
}

type CacheConfig struct {
	Driver string
	DSN    string
}

type TelemetryConfig struct {
	ServiceName  string
	Environment  string
	AMQPURL      string
	AMQPExchange string
	OTLPEndpoint string
}

type DebugConfig struct {
	Addr  string
	Token string
}

type LogConfig struct {
	Level string
	File  string
}

const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

// Load reads the configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug().Err(err).Msg("[config] .env not loaded")
	}

	var errs []error
	cfg := &Config{
		Server: ServerConfig{
			BaseURL:        getEnvOrDefault("CHAT_SERVER_URL", "http://localhost:8080"),
			WSPath:         getEnvOrDefault("CHAT_WS_PATH", "/ws"),
			SessionID:      os.Getenv("CHAT_SESSION_ID"),
			RequestTimeout: getDurationOrDefault("CHAT_REQUEST_TIMEOUT", "10s", &errs),
		},
		Chat: ChatConfig{
			PollInterval:        getDurationOrDefault("CHAT_POLL_INTERVAL", "5s", &errs),
			ReconnectDelay:      getDurationOrDefault("CHAT_RECONNECT_DELAY", "5s", &errs),
			ReconnectPolicy:     strings.ToLower(getEnvOrDefault("CHAT_RECONNECT_POLICY", PolicyFixed)),
			ReconnectMaxRetries: getIntOrDefault("CHAT_RECONNECT_MAX_RETRIES", 10, &errs),
			TypingIdle:          getDurationOrDefault("CHAT_TYPING_IDLE", "500ms", &errs),
		},
		Cache: CacheConfig{
			Driver: getEnvOrDefault("CHAT_CACHE_DRIVER", "sqlite3"),
			DSN:    os.Getenv("CHAT_CACHE_DSN"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnvOrDefault("SERVICE_NAME", "chat-client"),
			Environment:  getEnvOrDefault("APP_ENV", "local"),
			AMQPURL:      os.Getenv("AMQP_URL"),
			AMQPExchange: getEnvOrDefault("AMQP_EXCHANGE", "chat.client.events"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
		Debug: DebugConfig{
			Addr:  os.Getenv("DEBUG_ADDR"),
			Token: os.Getenv("DEBUG_TOKEN"),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that flags may have overridden after Load.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.Server.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url %q must use http or https", c.Server.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server url %q has no host", c.Server.BaseURL)
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("websocket path %q must start with /", c.Server.WSPath)
	}
	switch c.Chat.ReconnectPolicy {
	case PolicyFixed, PolicyExponential:
	default:
		return fmt.Errorf("unknown reconnect policy %q", c.Chat.ReconnectPolicy)
	}
	if c.Chat.PollInterval <= 0 || c.Chat.ReconnectDelay <= 0 || c.Chat.TypingIdle <= 0 {
		return errors.New("poll interval, reconnect delay and typing idle must be positive")
	}
	switch c.Cache.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Cache.Driver)
	}
	return nil
}

// WebSocketURL derives the live channel endpoint from the server base URL.
func (c *Config) WebSocketURL() string {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.Server.WSPath
	u.RawQuery = ""
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string, errs *[]error) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid duration for %s: %w", key, err))
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid integer for %s: %w", key, err))
	}
	return intValue
}
