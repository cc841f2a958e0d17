// Package config resolves runtime settings from defaults, an optional YAML
// file, an optional .env file, the environment and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DialectJSONRPC = "jsonrpc"
	DialectREST    = "rest"

	BackendBolt     = "bolt"
	BackendPebble   = "pebble"
	BackendDynamoDB = "dynamodb"
)

// Config is the resolved runtime configuration.
type Config struct {
	AgentURL         string        `yaml:"agent_url"`
	Dialect          string        `yaml:"dialect"`
	AppName          string        `yaml:"app_name"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxPollAttempts  int           `yaml:"max_poll_attempts"` // consecutive unrecognised-state polls
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	NamePrefix       string        `yaml:"name_prefix"`
	StorageBackend   string        `yaml:"storage_backend"`
	StoragePath      string        `yaml:"storage_path"`
	StateTable       string        `yaml:"state_table"`
	StorageNamespace string        `yaml:"storage_namespace"`
	ParamPrefix      string        `yaml:"param_prefix"`
	LogLevel         string        `yaml:"log_level"`
	LogFile          string        `yaml:"log_file"`
	MetricsAddr      string        `yaml:"metrics_addr"`
}

// Defaults leaves PollInterval and StoragePath unset; Validate derives them
// from the dialect and backend.
func Defaults() Config {
	return Config{
		Dialect:          DialectJSONRPC,
		MaxPollAttempts:  150,
		RequestTimeout:   10 * time.Second,
		NamePrefix:       "Order #",
		StorageBackend:   BackendBolt,
		StorageNamespace: "personal-helper",
		LogLevel:         "info",
		LogFile:          "taskchat.log",
	}
}

// Load builds a Config from defaults, yamlPath, dotenvPath and env. Empty
// paths are skipped; a dotenv file that does not exist is ignored. env is
// usually os.LookupEnv.
func Load(yamlPath, dotenvPath string, env func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		b, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	dotenv := map[string]string{}
	if dotenvPath != "" {
		vals, err := godotenv.Read(dotenvPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", dotenvPath, err)
		default:
			dotenv = vals
		}
	}

	lookup := func(key string) (string, bool) {
		if env != nil {
			if v, ok := env(key); ok {
				return v, true
			}
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"AGENT_URL", &cfg.AgentURL},
		{"DIALECT", &cfg.Dialect},
		{"APP_NAME", &cfg.AppName},
		{"NAME_PREFIX", &cfg.NamePrefix},
		{"STORAGE_BACKEND", &cfg.StorageBackend},
		{"STORAGE_PATH", &cfg.StoragePath},
		{"STATE_TABLE", &cfg.StateTable},
		{"STORAGE_NAMESPACE", &cfg.StorageNamespace},
		{"PARAM_PREFIX", &cfg.ParamPrefix},
		{"LOG_LEVEL", &cfg.LogLevel},
		{"LOG_FILE", &cfg.LogFile},
		{"METRICS_ADDR", &cfg.MetricsAddr},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"POLL_INTERVAL", &cfg.PollInterval},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v, ok := lookup("MAX_POLL_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MAX_POLL_ATTEMPTS: %w", err)
		}
		cfg.MaxPollAttempts = n
	}
	return nil
}

// Validate checks required settings and fills values derived from others.
func (c *Config) Validate() error {
	c.AgentURL = strings.TrimSpace(c.AgentURL)
	if c.AgentURL == "" {
		return errors.New("config: AGENT_URL is required")
	}
	c.Dialect = strings.ToLower(strings.TrimSpace(c.Dialect))
	switch c.Dialect {
	case DialectJSONRPC:
		if c.PollInterval == 0 {
			c.PollInterval = 2 * time.Second
		}
	case DialectREST:
		if c.AppName == "" {
			return errors.New("config: APP_NAME is required for the rest dialect")
		}
		if c.PollInterval == 0 {
			c.PollInterval = time.Second
		}
	default:
		return fmt.Errorf("config: unknown dialect %q", c.Dialect)
	}
	if c.PollInterval < 0 {
		return errors.New("config: POLL_INTERVAL must be positive")
	}
	if c.MaxPollAttempts < 0 {
		return errors.New("config: MAX_POLL_ATTEMPTS must not be negative")
	}

	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	switch c.StorageBackend {
	case BackendBolt:
		if c.StoragePath == "" {
			c.StoragePath = "taskchat.db"
		}
	case BackendPebble:
		if c.StoragePath == "" {
			c.StoragePath = "taskchat-state"
		}
	case BackendDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}
	if strings.TrimSpace(c.StorageNamespace) == "" {
		return errors.New("config: STORAGE_NAMESPACE must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}
