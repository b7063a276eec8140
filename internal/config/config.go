// Package config provides application configuration.
//
// Configuration is loaded from environment variables with sensible defaults.
// All timeouts and operational parameters are configurable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SessionConfig holds per-session defaults.
type SessionConfig struct {
	TickInterval time.Duration // Evaluation tick interval
	LastLines    int           // Context line window handed to parsers
	DefaultCols  int
	DefaultRows  int
	LogDir       string // Per-session log directory; empty disables logging
}

// ManagerConfig holds session-manager policy.
type ManagerConfig struct {
	MaxSessions   int           // Hard session cap
	IdleTimeout   time.Duration // Idle eviction threshold
	SweepInterval time.Duration // Idle sweep period
}

// DockerConfig holds the optional container transport settings.
type DockerConfig struct {
	ContainerID string // When set, sessions exec inside this container
	User        string
}

// Config holds all application configuration.
type Config struct {
	Port           string
	DBPath         string
	AllowedOrigins []string
	Session        SessionConfig
	Manager        ManagerConfig
	Docker         DockerConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8765"),
		DBPath:         getEnv("DB_PATH", "./data/semterm.db"),
		AllowedOrigins: getEnvList("SEMTERM_ALLOWED_ORIGINS", []string{"*"}),
		Session: SessionConfig{
			TickInterval: getEnvDuration("SEMTERM_TICK_INTERVAL", 100*time.Millisecond),
			LastLines:    getEnvInt("SEMTERM_LAST_LINES", 10),
			DefaultCols:  getEnvInt("SEMTERM_DEFAULT_COLS", 120),
			DefaultRows:  getEnvInt("SEMTERM_DEFAULT_ROWS", 30),
			LogDir:       getEnv("SEMTERM_LOG_DIR", ""),
		},
		Manager: ManagerConfig{
			MaxSessions:   getEnvInt("SEMTERM_MAX_SESSIONS", 10),
			IdleTimeout:   getEnvDuration("SEMTERM_IDLE_TIMEOUT", 30*time.Minute),
			SweepInterval: getEnvDuration("SEMTERM_SWEEP_INTERVAL", time.Minute),
		},
		Docker: DockerConfig{
			ContainerID: getEnv("SEMTERM_DOCKER_CONTAINER", ""),
			User:        getEnv("SEMTERM_DOCKER_USER", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are sane.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Session.TickInterval <= 0 {
		return fmt.Errorf("SEMTERM_TICK_INTERVAL must be > 0")
	}
	if c.Manager.MaxSessions <= 0 {
		return fmt.Errorf("SEMTERM_MAX_SESSIONS must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
