package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.Model != DefaultModel {
		t.Fatalf("model=%q, want %q", cfg.Agent.Model, DefaultModel)
	}
	if cfg.Memory.ContextBudget != DefaultContextBudget {
		t.Fatalf("contextBudget=%d, want %d", cfg.Memory.ContextBudget, DefaultContextBudget)
	}
	if cfg.Memory.ShortTermLimit != DefaultShortTermLimit {
		t.Fatalf("shortTermLimit=%d, want %d", cfg.Memory.ShortTermLimit, DefaultShortTermLimit)
	}
	if !cfg.Scheduler.CheckinsOn {
		t.Fatal("check-ins should be enabled by default")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CARELY_API_KEY", "test-key")
	t.Setenv("CARELY_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("CARELY_DB_PATH", "/tmp/other.db")
	t.Setenv("CARELY_CONTEXT_BUDGET", "1234")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Provider.APIKey != "test-key" {
		t.Fatalf("apiKey=%q", cfg.Provider.APIKey)
	}
	if cfg.Channels.Telegram.Token != "tg-token" {
		t.Fatalf("telegram token=%q", cfg.Channels.Telegram.Token)
	}
	if cfg.Memory.DBPath != "/tmp/other.db" {
		t.Fatalf("dbPath=%q", cfg.Memory.DBPath)
	}
	if cfg.Memory.ContextBudget != 1234 {
		t.Fatalf("contextBudget=%d", cfg.Memory.ContextBudget)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CARELY_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")

	dir := filepath.Join(home, ".carely")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	raw := map[string]any{
		"agent":  map[string]any{"model": "custom-model", "maxReplyChars": 300},
		"memory": map[string]any{"shortTermLimit": 4},
	}
	data, _ := json.Marshal(raw)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != "custom-model" {
		t.Fatalf("model=%q", cfg.Agent.Model)
	}
	if cfg.Agent.MaxReplyChars != 300 {
		t.Fatalf("maxReplyChars=%d", cfg.Agent.MaxReplyChars)
	}
	if cfg.Agent.MaxTokens != DefaultMaxTokens {
		t.Fatalf("maxTokens=%d, want default backfill", cfg.Agent.MaxTokens)
	}
	if cfg.Memory.ShortTermLimit != 4 {
		t.Fatalf("shortTermLimit=%d", cfg.Memory.ShortTermLimit)
	}
	if cfg.Memory.EpisodicLimit != DefaultEpisodicLimit {
		t.Fatalf("episodicLimit=%d, want default backfill", cfg.Memory.EpisodicLimit)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CARELY_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")

	cfg := DefaultConfig()
	cfg.Agent.Model = "roundtrip-model"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Agent.Model != "roundtrip-model" {
		t.Fatalf("model=%q after round trip", loaded.Agent.Model)
	}
}
