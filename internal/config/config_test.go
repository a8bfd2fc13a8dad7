package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  port: 9090
security:
  encryption_key: file-key
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected configured port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default host, got %s", cfg.Server.Host)
	}
	if cfg.Database.Path != "./data/fleetwatch.db" {
		t.Errorf("Expected default database path, got %s", cfg.Database.Path)
	}
	if cfg.Monitor.IntervalSeconds != 300 || cfg.Monitor.TimeoutSeconds != 30 {
		t.Errorf("Expected default monitor settings, got %+v", cfg.Monitor)
	}
	if cfg.Security.EncryptionKey != "file-key" {
		t.Errorf("Expected key from file, got %q", cfg.Security.EncryptionKey)
	}
}

func TestLoadOrDefaultWithMissingFile(t *testing.T) {
	cfg := LoadOrDefault("/nonexistent/config.yaml")
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level, got %s", cfg.Log.Level)
	}
}

func TestSecretsFromEnvironment(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "env-key")
	t.Setenv("SESSION_SECRET", "env-secret")

	cfg := LoadOrDefault("/nonexistent/config.yaml")
	if cfg.Security.EncryptionKey != "env-key" {
		t.Errorf("Expected encryption key from env, got %q", cfg.Security.EncryptionKey)
	}
	if cfg.Security.SessionSecret != "env-secret" {
		t.Errorf("Expected session secret from env, got %q", cfg.Security.SessionSecret)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for malformed yaml")
	}
}
