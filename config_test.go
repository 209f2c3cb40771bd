package imagepulse

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()

	configContent := `
port: 9090
database_path: /var/lib/imagepulse/test.db
max_concurrent_pulls: 3
per_registry_max: 1
lease_seconds: 120
`
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if config.Port != 9090 {
		t.Errorf("expected port 9090, got %d", config.Port)
	}
	if config.DatabasePath != "/var/lib/imagepulse/test.db" {
		t.Errorf("expected database_path '/var/lib/imagepulse/test.db', got '%s'", config.DatabasePath)
	}
	if config.MaxConcurrentPulls != 3 {
		t.Errorf("expected max_concurrent_pulls 3, got %d", config.MaxConcurrentPulls)
	}
	if config.PerRegistryMax != 1 {
		t.Errorf("expected per_registry_max 1, got %d", config.PerRegistryMax)
	}
	if config.LeaseSeconds != 120 {
		t.Errorf("expected lease_seconds 120, got %d", config.LeaseSeconds)
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 9090\n"), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if config.MaxConcurrentPulls != 5 {
		t.Errorf("expected default max_concurrent_pulls 5, got %d", config.MaxConcurrentPulls)
	}
	if config.PerRegistryMax != 2 {
		t.Errorf("expected default per_registry_max 2, got %d", config.PerRegistryMax)
	}
	if config.LeaseSeconds != 300 {
		t.Errorf("expected default lease_seconds 300, got %d", config.LeaseSeconds)
	}
	if config.DatabasePath == "" {
		t.Error("expected a default database path")
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 99999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected an error for an out-of-range port")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("APP_PORT", "7070")
	t.Setenv("DATABASE_PATH", "/tmp/override.db")
	t.Setenv("MAX_CONCURRENT_PULLS", "4")

	config := DefaultConfig()
	if err := config.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() failed: %v", err)
	}

	if config.Port != 7070 {
		t.Errorf("expected APP_PORT to win, got %d", config.Port)
	}
	if config.DatabasePath != "/tmp/override.db" {
		t.Errorf("expected DATABASE_PATH to win, got '%s'", config.DatabasePath)
	}
	if config.MaxConcurrentPulls != 4 {
		t.Errorf("expected MAX_CONCURRENT_PULLS to win, got %d", config.MaxConcurrentPulls)
	}
}

func TestApplyEnv_RejectsGarbage(t *testing.T) {
	t.Setenv("APP_PORT", "not-a-number")

	config := DefaultConfig()
	if err := config.ApplyEnv(); err == nil {
		t.Error("expected an error for a non-numeric APP_PORT")
	}
}

func TestValidate(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	config.MaxConcurrentPulls = 50
	if err := config.Validate(); err == nil {
		t.Error("expected an error for max_concurrent_pulls out of range")
	}
}
