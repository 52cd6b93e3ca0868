package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Remote RemoteConfig `mapstructure:"remote"`
	Neo4j  Neo4jConfig  `mapstructure:"neo4j"`
	Engine EngineConfig `mapstructure:"engine"`
	Log    LogConfig    `mapstructure:"log"`
	User   UserConfig   `mapstructure:"user"`
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"`
	// Store is "neo4j" or "memory".
	Store string `mapstructure:"store"`
}

// RemoteConfig configures the client side of the REST API.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Neo4jConfig configures the Neo4j connection.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// EngineConfig tunes the sync engine.
type EngineConfig struct {
	// Rollback is "node" or "forest".
	Rollback string `mapstructure:"rollback"`
	// BulkConcurrency caps simultaneous calls in a bulk action; 0 is unbounded.
	BulkConcurrency int `mapstructure:"bulk_concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UserConfig identifies the user the client acts for.
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// EnvPrefix prefixes every environment override, e.g. TODO_REMOTE_BASE_URL.
const EnvPrefix = "TODO"

var defaults = map[string]any{
	"server.addr":             "0.0.0.0:8080",
	"server.token":            "",
	"server.store":            "neo4j",
	"remote.base_url":         "http://localhost:8080",
	"remote.token":            "",
	"remote.timeout":          time.Duration(0),
	"neo4j.uri":               "neo4j://localhost:7687",
	"neo4j.username":          "neo4j",
	"neo4j.password":          "password",
	"neo4j.database":          "",
	"engine.rollback":         "node",
	"engine.bulk_concurrency": 0,
	"log.level":               "info",
	"log.format":              "text",
	"user.id":                 "",
}

// Load reads configuration from path, or from todo.yaml in the working
// directory or the user config directory when path is empty. Environment
// variables override file values. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("todo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "todo-sync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch c.Server.Store {
	case "neo4j", "memory":
	default:
		return fmt.Errorf("server.store: unknown store %q", c.Server.Store)
	}
	switch c.Engine.Rollback {
	case "node", "forest":
	default:
		return fmt.Errorf("engine.rollback: unknown mode %q", c.Engine.Rollback)
	}
	if c.Engine.BulkConcurrency < 0 {
		return fmt.Errorf("engine.bulk_concurrency: must not be negative")
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}
