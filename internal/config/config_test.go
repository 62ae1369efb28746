package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.Pipeline.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", cfg.Pipeline.Attempts)
	}
	if cfg.Pipeline.BackoffInitial != time.Second {
		t.Errorf("BackoffInitial = %v, want 1s", cfg.Pipeline.BackoffInitial)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", cfg.Gemini.Model)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen_addr: ":9090"
allowed_origins:
  - https://app.example.com
airtable:
  token: patFILE12345.secretpart
  base_id: appFILE
  table: Leads
gemini:
  api_key: file-key
pipeline:
  attempts: 3
  backoff_initial: 500ms
  rate_limit_rps: 2.5
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Airtable.BaseID != "appFILE" {
		t.Errorf("BaseID = %q", cfg.Airtable.BaseID)
	}
	if cfg.Pipeline.Attempts != 3 {
		t.Errorf("Attempts = %d", cfg.Pipeline.Attempts)
	}
	if cfg.Pipeline.BackoffInitial != 500*time.Millisecond {
		t.Errorf("BackoffInitial = %v", cfg.Pipeline.BackoffInitial)
	}
	if cfg.Pipeline.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v", cfg.Pipeline.RateLimitRPS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("airtable:\n  base_id: appFILE\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AIRTABLE_BASE_ID", "appENV")
	t.Setenv("MAX_ATTEMPTS", "2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Airtable.BaseID != "appENV" {
		t.Errorf("BaseID = %q, want appENV", cfg.Airtable.BaseID)
	}
	if cfg.Pipeline.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", cfg.Pipeline.Attempts)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestEnvExpansionInFile(t *testing.T) {
	t.Setenv("TEST_LEADS_TOKEN", "patENV99999999.abc")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("airtable:\n  token: ${TEST_LEADS_TOKEN}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Airtable.Token != "patENV99999999.abc" {
		t.Errorf("Token = %q", cfg.Airtable.Token)
	}
}

func TestValidateMissing(t *testing.T) {
	cfg := defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty credentials")
	}
	for _, want := range []string{"AIRTABLE_API_KEY", "AIRTABLE_BASE_ID", "AIRTABLE_TABLE_NAME", "GEMINI_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}

func TestInvalidEnvValue(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "lots")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric MAX_ATTEMPTS")
	}
}
