package config

import (
	"strings"
	"testing"
)

// mapBackend is an in-memory Backend for tests.
type mapBackend struct {
	data map[string]any
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: make(map[string]any)}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m *mapBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *mapBackend) SetInt(key string, val int) error {
	m.data[key] = val
	return nil
}

func (m *mapBackend) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BRIEFD_KB_BASE_URL", "https://kb.example.com")
	t.Setenv("BRIEFD_KB_ID", "kb-123")
	t.Setenv("BRIEFD_KB_DATA_SOURCE_ID", "ds-456")
	t.Setenv("BRIEFD_REASONING_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4400 {
		t.Errorf("port = %d, want 4400", cfg.Server.Port)
	}
	if cfg.Knowledge.Candidates != 10 {
		t.Errorf("candidates = %d, want 10", cfg.Knowledge.Candidates)
	}
	if cfg.Rerank.TopN != 3 {
		t.Errorf("rerank top_n = %d, want 3", cfg.Rerank.TopN)
	}
	if cfg.Agent.MaxRounds != 6 {
		t.Errorf("max rounds = %d, want 6", cfg.Agent.MaxRounds)
	}
	if cfg.Sync.PollInterval != "3s" {
		t.Errorf("poll interval = %q, want 3s", cfg.Sync.PollInterval)
	}
}

func TestLoadFromBackend(t *testing.T) {
	setRequiredEnv(t)

	b := newMapBackend()
	b.data["server.port"] = 9000
	b.data["rerank.model"] = "rerank-english-v3.0"
	b.data["knowledge.candidates"] = 25

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Rerank.Model != "rerank-english-v3.0" {
		t.Errorf("rerank model = %q", cfg.Rerank.Model)
	}
	if cfg.Knowledge.Candidates != 25 {
		t.Errorf("candidates = %d, want 25", cfg.Knowledge.Candidates)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIEFD_SERVER_PORT", "8080")
	t.Setenv("BRIEFD_REASONING_TEMPERATURE", "0.25")

	b := newMapBackend()
	b.data["server.port"] = 9000

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want env override 8080", cfg.Server.Port)
	}
	if cfg.Reasoning.Temperature != 0.25 {
		t.Errorf("temperature = %v, want 0.25", cfg.Reasoning.Temperature)
	}
}

func TestMissingRequired(t *testing.T) {
	t.Setenv("BRIEFD_KB_BASE_URL", "")
	t.Setenv("BRIEFD_KB_ID", "")
	t.Setenv("BRIEFD_KB_DATA_SOURCE_ID", "")
	t.Setenv("BRIEFD_REASONING_API_KEY", "")

	_, err := loadWith(newMapBackend())
	if err == nil {
		t.Fatal("expected error for missing required config")
	}
	if !strings.Contains(err.Error(), "BRIEFD_KB_BASE_URL") {
		t.Errorf("error should name the missing env var, got %q", err)
	}
}

func TestInvalidEnvIntFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRIEFD_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4400 {
		t.Errorf("port = %d, want default 4400 after parse failure", cfg.Server.Port)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Reasoning.APIKey = "sk-secret"

	for _, info := range ShowAll(cfg) {
		if info.Key == "reasoning.api_key" || info.Value == "sk-secret" {
			t.Errorf("ShowAll leaked secret via key %q", info.Key)
		}
	}
}

func TestGetAPIToken(t *testing.T) {
	dir := t.TempDir()

	first, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(first))
	}

	second, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken second call: %v", err)
	}
	if first != second {
		t.Error("token should be stable across calls")
	}
}
