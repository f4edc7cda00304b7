package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Trace.AppendRetries != 8 {
		t.Errorf("expected default append_retries 8, got %d", cfg.Trace.AppendRetries)
	}
	if cfg.Trace.VerifyLimit != 1000 || cfg.Trace.RecentLimit != 50 {
		t.Errorf("unexpected trace defaults: %+v", cfg.Trace)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test.adp.yml")

	original := DefaultConfig()
	original.Database.Path = "/var/lib/adp/adp.db"
	original.Server.Port = 9090
	original.Server.AllowAllOrigins = true
	original.Server.RequestTimeout = 15 * time.Second
	original.Trace.VerifyLimit = 500
	original.Log.Format = "json"

	// Save.
	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load back.
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Database.Path != original.Database.Path {
		t.Errorf("database.path: got %q, want %q", loaded.Database.Path, original.Database.Path)
	}
	if loaded.Server.Port != 9090 || !loaded.Server.AllowAllOrigins {
		t.Errorf("server: got %+v", loaded.Server)
	}
	if loaded.Server.RequestTimeout != 15*time.Second {
		t.Errorf("request_timeout: got %v", loaded.Server.RequestTimeout)
	}
	if loaded.Trace.VerifyLimit != 500 {
		t.Errorf("verify_limit: got %d", loaded.Trace.VerifyLimit)
	}
	if loaded.Log.Format != "json" {
		t.Errorf("log.format: got %q", loaded.Log.Format)
	}
}

func TestSaveOmitsEmptyCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adp.yml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "api_key") {
		t.Errorf("empty credentials should not be written:\n%s", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adp.yml")
	content := "server:\n  port: 7070\ntrace:\n  append_retries: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Trace.AppendRetries != 3 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Trace.VerifyLimit != 1000 || cfg.Database.Path != ".adp/adp.db" {
		t.Errorf("defaults should fill unset keys: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ADP_SERVER__PORT", "9999")
	t.Setenv("ADP_LOG__LEVEL", "debug")
	t.Setenv("ADP_MCP__API_KEY", "adp_from_env")
	t.Setenv("ADP_SESSION__TTL", "2h")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server.port: got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level: got %q", cfg.Log.Level)
	}
	if cfg.MCP.APIKey != "adp_from_env" {
		t.Errorf("mcp.api_key: got %q", cfg.MCP.APIKey)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Errorf("session.ttl: got %v", cfg.Session.TTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no retries", func(c *Config) { c.Trace.AppendRetries = 0 }, "append_retries"},
		{"recent too large", func(c *Config) { c.Trace.RecentLimit = 201 }, "recent_limit"},
		{"verify too large", func(c *Config) { c.Trace.VerifyLimit = 10001 }, "verify_limit"},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	for _, s := range []string{"1", "8080", "65535"} {
		if err := validatePort(s); err != nil {
			t.Errorf("validatePort(%q): %v", s, err)
		}
	}
	for _, s := range []string{"0", "65536", "http"} {
		if err := validatePort(s); err == nil {
			t.Errorf("validatePort(%q): expected error", s)
		}
	}
}
