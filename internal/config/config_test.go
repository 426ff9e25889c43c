package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
	if len(cfg.Sources.Sites) == 0 || cfg.Sources.Sites[0].Selectors.Item == "" {
		t.Error("expected a site with selectors")
	}
	if cfg.Summarization.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.Summarization.Provider)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestPolicyDefaults(t *testing.T) {
	cfg, err := parse([]byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Publish.BaseDelayMinutes != 5 || cfg.Publish.Multiplier != 4 || cfg.Publish.MaxRetries != 3 {
		t.Errorf("unexpected backoff defaults: %+v", cfg.Publish)
	}
	if cfg.Publish.BatchLimit != 20 {
		t.Errorf("expected batch limit 20, got %d", cfg.Publish.BatchLimit)
	}
	if cfg.Dedup.FuzzyThreshold != 0.65 {
		t.Errorf("expected fuzzy threshold 0.65, got %v", cfg.Dedup.FuzzyThreshold)
	}
	if cfg.Dedup.SemanticThreshold != 0.85 {
		t.Errorf("expected semantic threshold 0.85, got %v", cfg.Dedup.SemanticThreshold)
	}
	if cfg.Dedup.WindowDays != 30 || cfg.Dedup.SemanticWindowDays != 30 {
		t.Errorf("expected 30-day windows, got %d/%d", cfg.Dedup.WindowDays, cfg.Dedup.SemanticWindowDays)
	}
	if cfg.Dedup.RecentWindow != 500 {
		t.Errorf("expected recent window 500, got %d", cfg.Dedup.RecentWindow)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
summarization:
  provider: openai
  model: gpt-4o
publish:
  max_retries: 5
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Summarization.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Summarization.Provider)
	}
	if cfg.Publish.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Publish.MaxRetries)
	}
	if cfg.Publish.Multiplier != 4 {
		t.Errorf("expected default multiplier to survive, got %v", cfg.Publish.Multiplier)
	}
	if cfg.Summarization.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Summarization.OllamaURL)
	}
}

func TestParseRejectsBadThreshold(t *testing.T) {
	data := []byte(`
dedup:
  fuzzy_threshold: 1.5
`)
	if _, err := parse(data); err == nil {
		t.Error("expected error for out-of-range threshold")
	}
}

func TestParseRejectsZeroRetries(t *testing.T) {
	if _, err := parse([]byte("publish:\n  max_retries: 0\n")); err == nil {
		t.Error("expected error for zero max_retries")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LEX_TEST_TOKEN=abc123\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("LEX_TEST_TOKEN", "")
	os.Unsetenv("LEX_TEST_TOKEN")

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Env("LEX_TEST_TOKEN"); got != "abc123" {
		t.Errorf("expected token from .env, got %q", got)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() != DataDir() {
		t.Errorf("expected default data dir %q, got %q", DataDir(), cfg.GetDataDir())
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected custom data dir, got %q", cfg.GetDataDir())
	}
}
