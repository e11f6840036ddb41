package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "COUNSEL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.api_key", typ: kString, env: "COUNSEL_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.base_url", typ: kString, env: "COUNSEL_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "COUNSEL_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "storage.data_dir", typ: kString, env: "COUNSEL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "scheduler.sweep_interval", typ: kString, env: "COUNSEL_SCHEDULER_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Scheduler.SweepInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Scheduler.SweepInterval },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "COUNSEL_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "mcp.command", typ: kString, env: "COUNSEL_MCP_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.MCP.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.MCP.Command },
	},
	{
		key: "mcp.args", typ: kString, env: "COUNSEL_MCP_ARGS",
		apply:   func(cfg *Config, v any) { cfg.MCP.Args = v.(string) },
		extract: func(cfg Config) any { return cfg.MCP.Args },
	},
	{
		key: "mcp.tool", typ: kString, env: "COUNSEL_MCP_TOOL",
		apply:   func(cfg *Config, v any) { cfg.MCP.Tool = v.(string) },
		extract: func(cfg Config) any { return cfg.MCP.Tool },
	},
	{
		key: "mcp.arg_name", typ: kString, env: "COUNSEL_MCP_ARG_NAME",
		apply:   func(cfg *Config, v any) { cfg.MCP.ArgName = v.(string) },
		extract: func(cfg Config) any { return cfg.MCP.ArgName },
	},
	{
		key: "log.level", typ: kString, env: "COUNSEL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "COUNSEL_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
