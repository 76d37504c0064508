// Package config loads client, archive and replay server settings from a YAML
// file and DEBATE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "debate.yaml"

const envPrefix = "DEBATE_"

type Config struct {
	API       APIConfig       `koanf:"api"`
	Storage   StorageConfig   `koanf:"storage"`
	Server    ServerConfig    `koanf:"server"`
	History   HistoryConfig   `koanf:"history"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

// APIConfig locates the debate backend functions.
type APIConfig struct {
	BaseURL        string        `koanf:"base_url"` // Optional: single server hosting every route
	GenerateURL    string        `koanf:"generate_url"`
	ListURL        string        `koanf:"list_url"`
	GetURL         string        `koanf:"get_url"`
	UserAgent      string        `koanf:"user_agent"`
	Timeout        time.Duration `koanf:"timeout"`         // Whole generation attempt
	RequestTimeout time.Duration `koanf:"request_timeout"` // History requests
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig configures the replay server.
type ServerConfig struct {
	Port      int           `koanf:"port"`
	ChunkSize int           `koanf:"chunk_size"`
	Pacing    time.Duration `koanf:"pacing"`
}

// HistoryConfig bounds cache resolution.
type HistoryConfig struct {
	PageSize int `koanf:"page_size"`
	MaxPages int `koanf:"max_pages"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"api.generate_url":    "http://localhost:8081",
	"api.list_url":        "http://localhost:8086",
	"api.get_url":         "http://localhost:8084",
	"api.user_agent":      "polyglot-debate/1.0",
	"api.timeout":         "2m",
	"api.request_timeout": "30s",
	"storage.type":        "sqlite",
	"storage.sqlite.path": "debates.db",
	"server.port":         8090,
	"history.page_size":   20,
	"history.max_pages":   5,
	"log.level":           "info",
}

// Load reads path, or DefaultPath when empty, then overlays DEBATE_
// environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.API.BaseURL = substituteEnvVars(cfg.API.BaseURL)
	cfg.API.GenerateURL = substituteEnvVars(cfg.API.GenerateURL)
	cfg.API.ListURL = substituteEnvVars(cfg.API.ListURL)
	cfg.API.GetURL = substituteEnvVars(cfg.API.GetURL)
	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail later at use.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "memory", "none":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required for sqlite storage")
	}
	if c.API.Timeout < 0 || c.API.RequestTimeout < 0 {
		return fmt.Errorf("api timeouts must not be negative")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
