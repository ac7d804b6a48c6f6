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
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Addr)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Errorf("poll_interval = %s, want 15s", cfg.PollInterval)
	}
	if !strings.Contains(cfg.OptimizerURL, "electricitymaps.com") {
		t.Errorf("optimizer_url = %q, want default endpoint", cfg.OptimizerURL)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "addr: \":9000\"\nlog_level: debug\npoll_interval: 30s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("addr = %q, want :9000", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("poll_interval = %s, want 30s", cfg.PollInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.LogFormat != "text" {
		t.Errorf("log_format = %q, want text default", cfg.LogFormat)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CARBONSHIFT_ADDR", ":7070")
	t.Setenv("CARBONSHIFT_POLL_INTERVAL", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Errorf("addr = %q, want env override :7070", cfg.Addr)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("poll_interval = %s, want 5s", cfg.PollInterval)
	}
}

func TestTokenFromEnvOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("token: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EMAPS_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "from-env" {
		t.Errorf("token = %q, want value from environment", cfg.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: -1s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative poll_interval")
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Token = "super-secret-token"

	red := cfg.Redacted()
	if red.Token != "REDACTED" {
		t.Errorf("token = %q, want REDACTED", red.Token)
	}
	if strings.Contains(red.Token, "secret") {
		t.Error("redacted config leaks token material")
	}
	if cfg.Token != "super-secret-token" {
		t.Error("Redacted mutated the original config")
	}
}
