package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestLoader(t *testing.T) (*Loader, string, string) {
	t.Helper()
	root := t.TempDir()
	l := NewLoader(nil)
	l.userDir = filepath.Join(root, "home")
	l.workDir = filepath.Join(root, "project", "nested")
	if err := os.MkdirAll(l.workDir, 0755); err != nil {
		t.Fatal(err)
	}
	return l, l.userDir, filepath.Join(root, "project")
}

func TestLoaderLayers(t *testing.T) {
	l, userDir, projectDir := newTestLoader(t)
	t.Cleanup(func() { _ = os.Unsetenv("MATCHROOM_TEST_DOTENV_DIR") })

	writeFile(t, filepath.Join(userDir, UserConfigFile), `
storage:
  backend: sql
log:
  level: debug
`)
	writeFile(t, filepath.Join(projectDir, ProjectConfigFile), `
storage:
  data_dir: ${MATCHROOM_TEST_DOTENV_DIR:-/fallback}
inbox:
  dir: ./inbox
`)
	writeFile(t, filepath.Join(l.workDir, EnvFile), "MATCHROOM_TEST_DOTENV_DIR=/from/dotenv\n")

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Backend != BackendSQL {
		t.Errorf("expected user layer backend sql, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/from/dotenv" {
		t.Errorf("expected data dir from .env, got %s", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Inbox.Dir != "./inbox" {
		t.Errorf("expected inbox dir from project config, got %s", cfg.Inbox.Dir)
	}
}

func TestLoaderEnvOverrides(t *testing.T) {
	l, userDir, _ := newTestLoader(t)
	writeFile(t, filepath.Join(userDir, UserConfigFile), "storage:\n  backend: sql\n")
	t.Setenv(EnvBackend, BackendMemory)
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected env backend memory, got %s", cfg.Storage.Backend)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected env log level warn, got %s", cfg.Log.Level)
	}
}

func TestLoaderExplicitPath(t *testing.T) {
	l, _, projectDir := newTestLoader(t)
	writeFile(t, filepath.Join(projectDir, ProjectConfigFile), "storage:\n  backend: sql\n")
	explicit := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, explicit, "storage:\n  backend: memory\n")

	cfg, err := l.Load(explicit)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("explicit config should replace the project config, got %s", cfg.Storage.Backend)
	}

	if _, err := l.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config")
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	l, _, projectDir := newTestLoader(t)
	writeFile(t, filepath.Join(projectDir, ProjectConfigFile), "storage:\n  backend: cassandra\n")

	if _, err := l.Load(""); err == nil {
		t.Error("expected validation error")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	l, userDir, _ := newTestLoader(t)

	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	path := filepath.Join(userDir, UserConfigFile)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("user config not created: %v", err)
	}

	writeFile(t, path, "log:\n  level: error\n")
	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "error" {
		t.Error("existing user config must not be overwritten")
	}
}

func TestLoaderProjectDisablesBackups(t *testing.T) {
	l, userDir, projectDir := newTestLoader(t)
	writeFile(t, filepath.Join(userDir, UserConfigFile), "backup:\n  enabled: true\n")
	writeFile(t, filepath.Join(projectDir, ProjectConfigFile), "backup:\n  enabled: false\n")

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backup.Enabled {
		t.Error("project config should turn off backups enabled in the user config")
	}
}
