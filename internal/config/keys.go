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
	kFloat
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
		key: "server.port", typ: kInt, env: "BRIEFD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "knowledge.base_url", typ: kString, env: "BRIEFD_KB_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.BaseURL },
	},
	{
		key: "knowledge.api_key", typ: kString, env: "BRIEFD_KB_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Knowledge.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.APIKey },
	},
	{
		key: "knowledge.id", typ: kString, env: "BRIEFD_KB_ID",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.KnowledgeBaseID = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.KnowledgeBaseID },
	},
	{
		key: "knowledge.data_source_id", typ: kString, env: "BRIEFD_KB_DATA_SOURCE_ID",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.DataSourceID = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.DataSourceID },
	},
	{
		key: "knowledge.candidates", typ: kInt, env: "BRIEFD_KB_CANDIDATES",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.Candidates = v.(int) },
		extract: func(cfg Config) any { return cfg.Knowledge.Candidates },
	},
	{
		key: "rerank.base_url", typ: kString, env: "BRIEFD_RERANK_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Rerank.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Rerank.BaseURL },
	},
	{
		key: "rerank.api_key", typ: kString, env: "BRIEFD_RERANK_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Rerank.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Rerank.APIKey },
	},
	{
		key: "rerank.model", typ: kString, env: "BRIEFD_RERANK_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Rerank.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Rerank.Model },
	},
	{
		key: "rerank.top_n", typ: kInt, env: "BRIEFD_RERANK_TOP_N",
		apply:   func(cfg *Config, v any) { cfg.Rerank.TopN = v.(int) },
		extract: func(cfg Config) any { return cfg.Rerank.TopN },
	},
	{
		key: "reasoning.base_url", typ: kString, env: "BRIEFD_REASONING_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Reasoning.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoning.BaseURL },
	},
	{
		key: "reasoning.api_key", typ: kString, env: "BRIEFD_REASONING_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Reasoning.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoning.APIKey },
	},
	{
		key: "reasoning.model", typ: kString, env: "BRIEFD_REASONING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Reasoning.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoning.Model },
	},
	{
		key: "reasoning.temperature", typ: kFloat, env: "BRIEFD_REASONING_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Reasoning.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Reasoning.Temperature },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BRIEFD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "agent.max_rounds", typ: kInt, env: "BRIEFD_AGENT_MAX_ROUNDS",
		apply:   func(cfg *Config, v any) { cfg.Agent.MaxRounds = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.MaxRounds },
	},
	{
		key: "sync.poll_interval", typ: kString, env: "BRIEFD_SYNC_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Sync.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.PollInterval },
	},
	{
		key: "log.level", typ: kString, env: "BRIEFD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
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
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret key/value pairs from cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the file backend.
func SetKey(key, value string) error {
	b := newFileBackend(configFilePath())

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		switch s.typ {
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		default:
			return b.SetString(key, value)
		}
	}
	return fmt.Errorf("unknown config key: %q", key)
}
