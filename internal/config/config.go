// Package config loads counsel's configuration from a JSON file backend
// with COUNSEL_* environment overrides. Secrets are environment-only and
// never written to the backend file.
package config

import (
	"fmt"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
	MCP       MCPConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint. An
// empty APIKey is allowed: the retrieval stage degrades to placeholder
// payloads and summarization reports a configuration error.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

type SchedulerConfig struct {
	SweepInterval string // Go duration string
}

type WorkerConfig struct {
	PollInterval string // Go duration string
}

// MCPConfig describes the optional enrichment tool: an MCP server started
// over stdio. An empty Command disables the branch.
type MCPConfig struct {
	Command string
	Args    string // space-separated
	Tool    string
	ArgName string
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Scheduler: SchedulerConfig{
			SweepInterval: "30s",
		},
		Worker: WorkerConfig{
			PollInterval: "500ms",
		},
		MCP: MCPConfig{
			Tool:    "search",
			ArgName: "query",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/counsel/config.json, then applies COUNSEL_* environment
// overrides. The API token is required; the LLM key is not.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

// LoadUnchecked reads configuration like Load but skips required-field
// validation. Used by the config management commands, which must work
// before a token has been provisioned.
func LoadUnchecked() (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, newPlatformBackend()); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.Token == "" {
		return Config{}, fmt.Errorf(
			"missing required config: API token. Set it via environment variable COUNSEL_API_TOKEN")
	}

	return cfg, nil
}
