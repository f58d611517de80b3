package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"QUINN_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "QUINN_BASE_URL",
		"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD",
		"QUINN_MEMORY_MODEL", "QUINN_MEMORY_API_KEY", "QUINN_MEMORY_BASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Agent.Name != DefaultAgentName {
		t.Errorf("name = %q, want %q", cfg.Agent.Name, DefaultAgentName)
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Agent.Model, DefaultModel)
	}
	if cfg.Agent.MaxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", cfg.Agent.MaxTokens, DefaultMaxTokens)
	}
	if cfg.Graph.URI != DefaultGraphURI {
		t.Errorf("graph uri = %q, want %q", cfg.Graph.URI, DefaultGraphURI)
	}
	if cfg.Graph.Username != DefaultGraphUser {
		t.Errorf("graph user = %q, want %q", cfg.Graph.Username, DefaultGraphUser)
	}
	if cfg.Graph.Password != "" {
		t.Error("graph password should be empty by default")
	}
	if cfg.Agent.Workspace == "" {
		t.Error("workspace should not be empty")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnvOverrides(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Agent.Model)
	}
	if cfg.Graph.URI != DefaultGraphURI {
		t.Errorf("expected default graph uri %q, got %q", DefaultGraphURI, cfg.Graph.URI)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnvOverrides(t)

	cfgDir := filepath.Join(tmpDir, ".quinn")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"agent": map[string]any{
			"model":     "gpt-4o-mini",
			"maxTokens": 2048,
		},
		"provider": map[string]any{
			"apiKey": "sk-test-key",
		},
		"graph": map[string]any{
			"uri":      "bolt://graph.internal:7687",
			"username": "quinn",
			"password": "secret",
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", cfg.Agent.Model)
	}
	if cfg.Agent.MaxTokens != 2048 {
		t.Errorf("maxTokens = %d, want 2048", cfg.Agent.MaxTokens)
	}
	if cfg.Provider.APIKey != "sk-test-key" {
		t.Errorf("apiKey = %q, want sk-test-key", cfg.Provider.APIKey)
	}
	if cfg.Graph.URI != "bolt://graph.internal:7687" {
		t.Errorf("graph uri = %q", cfg.Graph.URI)
	}
	if cfg.Graph.Password != "secret" {
		t.Errorf("graph password = %q, want secret", cfg.Graph.Password)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnvOverrides(t)

	t.Setenv("QUINN_API_KEY", "quinn-key")
	t.Setenv("NEO4J_URI", "neo4j://db:7687")
	t.Setenv("NEO4J_USER", "ops")
	t.Setenv("NEO4J_PASSWORD", "hunter2")
	t.Setenv("QUINN_MEMORY_MODEL", "gpt-4o-mini")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "quinn-key" {
		t.Errorf("apiKey = %q, want quinn-key", cfg.Provider.APIKey)
	}
	if cfg.Graph.URI != "neo4j://db:7687" {
		t.Errorf("graph uri = %q", cfg.Graph.URI)
	}
	if cfg.Graph.Username != "ops" {
		t.Errorf("graph user = %q", cfg.Graph.Username)
	}
	if cfg.Graph.Password != "hunter2" {
		t.Errorf("graph password = %q", cfg.Graph.Password)
	}
	if cfg.Memory.Model != "gpt-4o-mini" {
		t.Errorf("memory model = %q", cfg.Memory.Model)
	}
}

func TestLoadConfig_OpenAIKeySetsProviderType(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnvOverrides(t)

	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-openai" {
		t.Errorf("apiKey = %q, want sk-openai", cfg.Provider.APIKey)
	}
	if cfg.Provider.Type != "openai" {
		t.Errorf("provider type = %q, want openai", cfg.Provider.Type)
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnvOverrides(t)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "persisted-key"
	cfg.Graph.Password = "persisted-pass"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Provider.APIKey != "persisted-key" {
		t.Errorf("apiKey = %q, want persisted-key", loaded.Provider.APIKey)
	}
	if loaded.Graph.Password != "persisted-pass" {
		t.Errorf("graph password = %q, want persisted-pass", loaded.Graph.Password)
	}
}
