package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. Only flags the user actually set are
// applied, so unset flags never mask file or environment values.
type Flags struct {
	fs     *pflag.FlagSet
	values Config

	ConfigPath string
	EnvFile    string
}

// NewFlags declares the command-line flags on a ContinueOnError flag set.
func NewFlags(name string) *Flags {
	f := &Flags{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	fs := f.fs
	fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML config file")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "path to a .env file (ignored when missing)")
	fs.StringVar(&f.values.AgentURL, "agent-url", "", "agent base URL")
	fs.StringVar(&f.values.Dialect, "dialect", "", "transport dialect: jsonrpc or rest")
	fs.StringVar(&f.values.AppName, "app", "", "agent app name (rest dialect)")
	fs.DurationVar(&f.values.PollInterval, "poll-interval", 0, "task status poll interval")
	fs.IntVar(&f.values.MaxPollAttempts, "max-poll-attempts", 0, "abandon a task after this many consecutive polls in an unrecognised state (0 = unlimited)")
	fs.DurationVar(&f.values.RequestTimeout, "request-timeout", 10*time.Second, "per-request HTTP timeout")
	fs.StringVar(&f.values.NamePrefix, "name-prefix", "", "display name prefix for new conversations")
	fs.StringVar(&f.values.StorageBackend, "storage", "", "storage backend: bolt, pebble or dynamodb")
	fs.StringVar(&f.values.StoragePath, "storage-path", "", "bolt file or pebble directory")
	fs.StringVar(&f.values.StateTable, "state-table", "", "DynamoDB table (dynamodb backend)")
	fs.StringVar(&f.values.StorageNamespace, "namespace", "", "prefix for persisted keys")
	fs.StringVar(&f.values.ParamPrefix, "param-prefix", "", "SSM parameter prefix for remote overrides")
	fs.StringVar(&f.values.LogLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.values.LogFile, "log-file", "", "file receiving JSON logs")
	fs.StringVar(&f.values.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return f
}

func (f *Flags) FlagSet() *pflag.FlagSet { return f.fs }

// Parse parses args. pflag.ErrHelp is returned when help was requested.
func (f *Flags) Parse(args []string) error {
	return f.fs.Parse(args)
}

// Apply copies every flag that was set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) {
	strs := map[string]struct{ dst, src *string }{
		"agent-url":    {&cfg.AgentURL, &f.values.AgentURL},
		"dialect":      {&cfg.Dialect, &f.values.Dialect},
		"app":          {&cfg.AppName, &f.values.AppName},
		"name-prefix":  {&cfg.NamePrefix, &f.values.NamePrefix},
		"storage":      {&cfg.StorageBackend, &f.values.StorageBackend},
		"storage-path": {&cfg.StoragePath, &f.values.StoragePath},
		"state-table":  {&cfg.StateTable, &f.values.StateTable},
		"namespace":    {&cfg.StorageNamespace, &f.values.StorageNamespace},
		"param-prefix": {&cfg.ParamPrefix, &f.values.ParamPrefix},
		"log-level":    {&cfg.LogLevel, &f.values.LogLevel},
		"log-file":     {&cfg.LogFile, &f.values.LogFile},
		"metrics-addr": {&cfg.MetricsAddr, &f.values.MetricsAddr},
	}
	for name, s := range strs {
		if f.fs.Changed(name) {
			*s.dst = *s.src
		}
	}
	if f.fs.Changed("poll-interval") {
		cfg.PollInterval = f.values.PollInterval
	}
	if f.fs.Changed("request-timeout") {
		cfg.RequestTimeout = f.values.RequestTimeout
	}
	if f.fs.Changed("max-poll-attempts") {
		cfg.MaxPollAttempts = f.values.MaxPollAttempts
	}
}
