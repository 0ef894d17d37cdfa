package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Content.MaxContentChars != 12000 {
		t.Errorf("Expected max content chars 12000, got %d", cfg.Content.MaxContentChars)
	}
	if cfg.Content.MaxReferenceChars != 2000 {
		t.Errorf("Expected max reference chars 2000, got %d", cfg.Content.MaxReferenceChars)
	}
	if cfg.Pipeline.BatchSize != 5 {
		t.Errorf("Expected batch size 5, got %d", cfg.Pipeline.BatchSize)
	}
	if got := Duration(cfg.Retry.BaseDelay, 0); got != 5*time.Second {
		t.Errorf("Expected base delay 5s, got %v", got)
	}
	if got := Duration(cfg.Retry.MaxDelay, 0); got != 40*time.Second {
		t.Errorf("Expected max delay 40s, got %v", got)
	}
	if cfg.AI.Gemini.TopK != 40 {
		t.Errorf("Expected topK 40, got %v", cfg.AI.Gemini.TopK)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.AdminToken != "" {
		t.Errorf("Unexpected server defaults: %+v", cfg.Server)
	}
}

func TestLoadFromFile(t *testing.T) {
	Reset()
	defer Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	content := `
ai:
  gemini:
    model: gemini-test
    safety:
      harassment: BLOCK_ONLY_HIGH
retry:
  max_attempts: 5
references:
  limit: 4
  exclude_domains: [example.com, blog.example.org]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AI.Gemini.Model != "gemini-test" {
		t.Errorf("Expected model gemini-test, got %s", cfg.AI.Gemini.Model)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if len(cfg.References.ExcludeDomains) != 2 {
		t.Errorf("Expected 2 excluded domains, got %v", cfg.References.ExcludeDomains)
	}
	if cfg.AI.Gemini.Safety["harassment"] != "BLOCK_ONLY_HIGH" {
		t.Errorf("Expected harassment override, got %v", cfg.AI.Gemini.Safety)
	}
	if cfg.App.ConfigFile != path {
		t.Errorf("Expected config file %s, got %s", path, cfg.App.ConfigFile)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("retry:\n  base_delay: soon\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "retry.base_delay") {
		t.Fatalf("Expected duration error for retry.base_delay, got %v", err)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "provider.yaml")
	if err := os.WriteFile(path, []byte("search:\n  provider: altavista\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "Unknown search provider") {
		t.Fatalf("Expected unknown provider error, got %v", err)
	}
}

func TestEnvironmentKeyBinding(t *testing.T) {
	Reset()
	defer Reset()
	t.Chdir(t.TempDir())
	t.Setenv("GOOGLE_AI_API_KEY", "secret-key")
	t.Setenv("SERPAPI_KEY", "serp-key")
	t.Setenv("SEARCH_PROVIDER", "serpapi")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AI.Gemini.APIKey != "secret-key" {
		t.Errorf("Expected Gemini key from GOOGLE_AI_API_KEY, got %q", cfg.AI.Gemini.APIKey)
	}
	creds := cfg.SearchProviderConfig()
	if creds["api_key"] != "serp-key" {
		t.Errorf("Expected serpapi credentials, got %v", creds)
	}
}

func TestSearchProviderConfigPlaceholder(t *testing.T) {
	cfg := &Config{}
	cfg.Search.Provider = "google"
	cfg.Search.Providers.Google.APIKey = "your-api-key"
	cfg.Search.Providers.Google.SearchID = "abc"

	if got := cfg.SearchProviderConfig(); len(got) != 0 {
		t.Errorf("Expected placeholder credentials to be ignored, got %v", got)
	}
}

func TestDurationFallback(t *testing.T) {
	if got := Duration("", time.Minute); got != time.Minute {
		t.Errorf("Expected fallback for empty value, got %v", got)
	}
	if got := Duration("2s", time.Minute); got != 2*time.Second {
		t.Errorf("Expected 2s, got %v", got)
	}
}
