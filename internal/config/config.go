package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rpggio/reelwatch/internal/cadence"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Transport modes.
const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"
)

// Config defines server configuration.
type Config struct {
	Studio     StudioConfig     `yaml:"studio"`
	Poll       PollConfig       `yaml:"poll"`
	Server     ServerConfig     `yaml:"server"`
	Transport  TransportConfig  `yaml:"transport"`
	Auth       AuthConfig       `yaml:"auth"`
	DB         DBConfig         `yaml:"db"`
	Log        LogConfig        `yaml:"log"`
	Navigation NavigationConfig `yaml:"navigation"`
}

type StudioConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type PollConfig struct {
	Tiers       []cadence.Tier `yaml:"tiers"`
	MaxInterval time.Duration  `yaml:"max_interval"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Tokens  []string `yaml:"tokens"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// NavigationConfig controls what happens when a final video appears.
type NavigationConfig struct {
	// RememberFinal persists announced finals so a re-watch does not announce them again.
	RememberFinal bool `yaml:"remember_final"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Studio: StudioConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 15 * time.Second,
		},
		Poll: PollConfig{
			Tiers: []cadence.Tier{
				{Until: 5, Interval: 2 * time.Second},
				{Until: 15, Interval: 5 * time.Second},
				{Until: 35, Interval: 10 * time.Second},
			},
			MaxInterval: 30 * time.Second,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: ModeStdio,
		},
		DB: DBConfig{
			Path: "reelwatch.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Navigation: NavigationConfig{
			RememberFinal: true,
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("REELWATCH_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup("REELWATCH_" + key)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	if v, ok := get("STUDIO_BASE_URL"); ok {
		cfg.Studio.BaseURL = v
	}
	if v, ok := get("STUDIO_TOKEN"); ok {
		cfg.Studio.Token = v
	}
	if v, ok := get("STUDIO_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REELWATCH_STUDIO_TIMEOUT: %w", err)
		}
		cfg.Studio.Timeout = d
	}
	if v, ok := get("POLL_MAX_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REELWATCH_POLL_MAX_INTERVAL: %w", err)
		}
		cfg.Poll.MaxInterval = d
	}
	if v, ok := get("SERVER_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := get("SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REELWATCH_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := get("TRANSPORT_MODE"); ok {
		cfg.Transport.Mode = v
	}
	if v, ok := get("AUTH_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REELWATCH_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = enabled
	}
	if v, ok := get("AUTH_TOKENS"); ok {
		cfg.Auth.Tokens = splitList(v)
	}
	if v, ok := get("DB_PATH"); ok {
		cfg.DB.Path = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("REMEMBER_FINAL"); ok {
		remember, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REELWATCH_REMEMBER_FINAL: %w", err)
		}
		cfg.Navigation.RememberFinal = remember
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.Studio.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: studio.base_url %q must be an http(s) URL", ErrInvalid, c.Studio.BaseURL)
	}
	if c.Studio.Timeout <= 0 {
		return fmt.Errorf("%w: studio.timeout must be positive", ErrInvalid)
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("%w: poll: %w", ErrInvalid, err)
	}
	switch c.Transport.Mode {
	case ModeStdio:
	case ModeHTTP:
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
		}
	default:
		return fmt.Errorf("%w: transport.mode %q must be %s or %s", ErrInvalid, c.Transport.Mode, ModeStdio, ModeHTTP)
	}
	if c.Auth.Enabled && len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("%w: auth.enabled requires at least one token", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

// Policy builds the poll cadence from the configured tiers.
func (c Config) Policy() (cadence.Policy, error) {
	return cadence.New(c.Poll.Tiers, c.Poll.MaxInterval)
}
