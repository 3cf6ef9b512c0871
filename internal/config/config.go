// Package config loads client and server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Transport names accepted by CHAT_TRANSPORT.
const (
	TransportGorilla = "gorilla"
	TransportGobwas  = "gobwas"
)

// Client holds chat client settings.
type Client struct {
	URL               string        `env:"CHAT_URL"                    envDefault:"ws://localhost:1337/"`
	Subprotocol       string        `env:"CHAT_SUBPROTOCOL"            envDefault:"chat"`
	ConnectTimeout    time.Duration `env:"CHAT_CONNECT_TIMEOUT"        envDefault:"10s"`
	Transport         string        `env:"CHAT_TRANSPORT"              envDefault:"gorilla"`
	Reconnect         bool          `env:"CHAT_RECONNECT"              envDefault:"false"`
	ReconnectAttempts int           `env:"CHAT_RECONNECT_MAX_ATTEMPTS" envDefault:"5"`
	ReconnectMinDelay time.Duration `env:"CHAT_RECONNECT_MIN_DELAY"    envDefault:"1s"`
	ReconnectMaxDelay time.Duration `env:"CHAT_RECONNECT_MAX_DELAY"    envDefault:"30s"`
	LogLevel          string        `env:"CHAT_LOG_LEVEL"              envDefault:"info"`
	MetricsAddr       string        `env:"CHAT_METRICS_ADDR"`
}

// Server holds development server settings.
type Server struct {
	Addr        string `env:"CHAT_SERVER_ADDR"  envDefault:":1337"`
	HistorySize int    `env:"CHAT_HISTORY_SIZE" envDefault:"100"`
	LogLevel    string `env:"CHAT_LOG_LEVEL"    envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadClient reads the client settings.
func LoadClient() (Client, error) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// LoadServer reads the server settings.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid client setting.
func (c Client) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid url %q: scheme must be ws or wss", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", c.URL)
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("connect timeout must be positive")
	}
	switch c.Transport {
	case TransportGorilla, TransportGobwas:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.ReconnectMinDelay <= 0 || c.ReconnectMaxDelay <= 0 {
		return errors.New("reconnect delays must be positive")
	}
	if c.ReconnectMinDelay > c.ReconnectMaxDelay {
		return fmt.Errorf("reconnect min delay %s exceeds max delay %s", c.ReconnectMinDelay, c.ReconnectMaxDelay)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Validate reports the first invalid server setting.
func (s Server) Validate() error {
	if s.Addr == "" {
		return errors.New("server address is required")
	}
	if s.HistorySize < 0 {
		return errors.New("history size must not be negative")
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// NewLogger builds a text logger writing to w at the given level.
// A nil w writes to stderr.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
