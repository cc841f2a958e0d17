package config

import (
	"context"
	"fmt"
	"strings"
)

// ParamLookup reads optional remote parameters. *paramstore.Client
// satisfies it.
type ParamLookup interface {
	Lookup(ctx context.Context, name string) (string, bool, error)
}

// ApplyRemote overrides the agent URL and dialect with the values stored
// under <ParamPrefix>/config/. Missing parameters keep the local values.
func ApplyRemote(ctx context.Context, cfg *Config, params ParamLookup) error {
	prefix := strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	if prefix == "" || params == nil {
		return nil
	}
	remote := []struct {
		name string
		dst  *string
	}{
		{prefix + "/config/agent_url", &cfg.AgentURL},
		{prefix + "/config/dialect", &cfg.Dialect},
		{prefix + "/config/app_name", &cfg.AppName},
	}
	for _, r := range remote {
		v, ok, err := params.Lookup(ctx, r.name)
		if err != nil {
			return fmt.Errorf("config: load %s: %w", r.name, err)
		}
		if ok && v != "" {
			*r.dst = v
		}
	}
	return nil
}
