package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	Knowledge KnowledgeConfig
	Rerank    RerankConfig
	Reasoning ReasoningConfig
	Storage   StorageConfig
	Agent     AgentConfig
	Sync      SyncConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

// KnowledgeConfig locates the remote retrieval backend and the knowledge
// base it serves.
type KnowledgeConfig struct {
	BaseURL         string
	APIKey          string
	KnowledgeBaseID string
	DataSourceID    string
	Candidates      int
}

type RerankConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	TopN    int
}

type ReasoningConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

type StorageConfig struct {
	DataDir string
}

type AgentConfig struct {
	MaxRounds int
}

type SyncConfig struct {
	// PollInterval is a duration string, e.g. "3s".
	PollInterval string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		Knowledge: KnowledgeConfig{
			Candidates: 10,
		},
		Rerank: RerankConfig{
			Model: "rerank-v1",
			TopN:  3,
		},
		Reasoning: ReasoningConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Agent: AgentConfig{
			MaxRounds: 6,
		},
		Sync: SyncConfig{
			PollInterval: "3s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "briefd-data"
		}
	}
	return filepath.Join(dir, "briefd")
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/briefd/config.json, then applies BRIEFD_* environment
// overrides. Secrets (API keys) come from the environment only. Required
// settings are validated here so the daemon fails at startup, not on the
// first request.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	var missing []string
	if cfg.Knowledge.BaseURL == "" {
		missing = append(missing, "knowledge base URL (BRIEFD_KB_BASE_URL)")
	}
	if cfg.Knowledge.KnowledgeBaseID == "" {
		missing = append(missing, "knowledge base ID (BRIEFD_KB_ID)")
	}
	if cfg.Knowledge.DataSourceID == "" {
		missing = append(missing, "data source ID (BRIEFD_KB_DATA_SOURCE_ID)")
	}
	if cfg.Reasoning.APIKey == "" {
		missing = append(missing, "reasoning API key (BRIEFD_REASONING_API_KEY)")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required config: %v", missing)
	}

	return cfg, nil
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "briefd", "config.json")
}
