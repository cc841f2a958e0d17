package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "", envMap(nil))
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
	require.Equal(t, 150, cfg.MaxPollAttempts)
	require.Equal(t, "Order #", cfg.NamePrefix)
	require.Equal(t, "personal-helper", cfg.StorageNamespace)
}

func TestLoad_Precedence(t *testing.T) {
	yamlPath := writeFile(t, "taskchat.yaml", `
agent_url: http://from-yaml:1
dialect: rest
app_name: pizza_house_worker
poll_interval: 3s
log_level: debug
storage_backend: pebble
`)
	dotenvPath := writeFile(t, ".env", "AGENT_URL=http://from-dotenv:2\nLOG_LEVEL=warn\nMAX_POLL_ATTEMPTS=7\n")

	cfg, err := Load(yamlPath, dotenvPath, envMap(map[string]string{
		"AGENT_URL": "http://from-env:3",
	}))
	require.NoError(t, err)
	require.Equal(t, "http://from-env:3", cfg.AgentURL)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, 7, cfg.MaxPollAttempts)
	require.Equal(t, DialectREST, cfg.Dialect)
	require.Equal(t, "pizza_house_worker", cfg.AppName)
	require.Equal(t, 3*time.Second, cfg.PollInterval)
	require.Equal(t, BackendPebble, cfg.StorageBackend)
}

func TestLoad_MissingDotenvIgnored(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), ".env"), envMap(map[string]string{"AGENT_URL": "http://x"}))
	require.NoError(t, err)
	require.Equal(t, "http://x", cfg.AgentURL)
}

func TestLoad_MissingYAMLFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "", envMap(nil))
	require.Error(t, err)
}

func TestLoad_BadValues(t *testing.T) {
	_, err := Load("", "", envMap(map[string]string{"POLL_INTERVAL": "soon"}))
	require.ErrorContains(t, err, "POLL_INTERVAL")

	_, err = Load("", "", envMap(map[string]string{"MAX_POLL_ATTEMPTS": "many"}))
	require.ErrorContains(t, err, "MAX_POLL_ATTEMPTS")

	_, err = Load(writeFile(t, "bad.yaml", "agent_url: [unterminated"), "", envMap(nil))
	require.ErrorContains(t, err, "parse")
}

func TestValidate_DerivesDialectDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.AgentURL = "http://localhost:10002"
	require.NoError(t, cfg.Validate())
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, "taskchat.db", cfg.StoragePath)

	cfg = Defaults()
	cfg.AgentURL = "http://localhost:10003"
	cfg.Dialect = "REST"
	cfg.AppName = "pizza_house_worker"
	cfg.StorageBackend = BackendPebble
	require.NoError(t, cfg.Validate())
	require.Equal(t, DialectREST, cfg.Dialect)
	require.Equal(t, time.Second, cfg.PollInterval)
	require.Equal(t, "taskchat-state", cfg.StoragePath)
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.AgentURL = " " }, "AGENT_URL"},
		{"bad dialect", func(c *Config) { c.Dialect = "grpc" }, "dialect"},
		{"rest without app", func(c *Config) { c.Dialect = DialectREST }, "APP_NAME"},
		{"bad backend", func(c *Config) { c.StorageBackend = "sqlite" }, "backend"},
		{"dynamo without table", func(c *Config) { c.StorageBackend = BackendDynamoDB }, "STATE_TABLE"},
		{"negative attempts", func(c *Config) { c.MaxPollAttempts = -1 }, "MAX_POLL_ATTEMPTS"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"empty namespace", func(c *Config) { c.StorageNamespace = "" }, "STORAGE_NAMESPACE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.AgentURL = "http://localhost:10002"
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "debug"
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}

func TestFlags_OnlyChangedFlagsApply(t *testing.T) {
	f := NewFlags("taskchat")
	require.NoError(t, f.Parse([]string{"--agent-url", "http://flag:9", "--poll-interval=500ms", "--config", "x.yaml"}))
	require.Equal(t, "x.yaml", f.ConfigPath)
	require.Equal(t, ".env", f.EnvFile)

	cfg := Defaults()
	cfg.LogLevel = "warn"
	f.Apply(&cfg)
	require.Equal(t, "http://flag:9", cfg.AgentURL)
	require.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.Equal(t, 150, cfg.MaxPollAttempts)
}

func TestFlags_UnknownFlag(t *testing.T) {
	require.Error(t, NewFlags("taskchat").Parse([]string{"--bogus"}))
}

type fakeLookup struct {
	vals  map[string]string
	err   error
	names []string
}

func (f *fakeLookup) Lookup(_ context.Context, name string) (string, bool, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.vals[name]
	return v, ok, nil
}

func TestApplyRemote(t *testing.T) {
	cfg := Defaults()
	cfg.ParamPrefix = "/taskchat/"
	cfg.AgentURL = "http://local"
	params := &fakeLookup{vals: map[string]string{"/taskchat/config/dialect": "rest"}}

	require.NoError(t, ApplyRemote(context.Background(), &cfg, params))
	require.Equal(t, "http://local", cfg.AgentURL)
	require.Equal(t, "rest", cfg.Dialect)
	require.Equal(t, []string{"/taskchat/config/agent_url", "/taskchat/config/dialect", "/taskchat/config/app_name"}, params.names)
}

func TestApplyRemote_SkippedWithoutPrefix(t *testing.T) {
	cfg := Defaults()
	params := &fakeLookup{}
	require.NoError(t, ApplyRemote(context.Background(), &cfg, params))
	require.Empty(t, params.names)
}

func TestApplyRemote_Error(t *testing.T) {
	cfg := Defaults()
	cfg.ParamPrefix = "/taskchat"
	err := ApplyRemote(context.Background(), &cfg, &fakeLookup{err: errors.New("throttled")})
	require.ErrorContains(t, err, "throttled")
}
