package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Executor.Timeout != 30*time.Second {
		t.Errorf("Executor.Timeout = %v, want 30s", cfg.Executor.Timeout)
	}
	if !cfg.Executor.AutoImport {
		t.Error("Executor.AutoImport = false, want true")
	}
	if !cfg.Executor.Subprocess {
		t.Error("Executor.Subprocess = false, want true")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxInFlight != 8 {
		t.Errorf("Server.MaxInFlight = %d, want 8", cfg.Server.MaxInFlight)
	}
	if !cfg.Storage.Enabled {
		t.Error("Storage.Enabled = false, want true")
	}
	if want := filepath.Join(home, ".runbox", "runbox.db"); cfg.Storage.DBPath != want {
		t.Errorf("Storage.DBPath = %q, want %q", cfg.Storage.DBPath, want)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	body := `
executor:
  timeout: 2s
  max_output: 1024
  auto_import: false
server:
  port: 9090
storage:
  enabled: false
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p := cfg.Policy()
	if p.Timeout != 2*time.Second || p.MaxOutput != 1024 || p.AutoImport {
		t.Errorf("Policy() = %+v", p)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.Enabled {
		t.Error("Storage.Enabled = true, want false")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoad_SearchPath(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "runbox.yaml"), []byte("server:\n  port: 7000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("RUNBOX_EXECUTOR_TIMEOUT", "5s")
	t.Setenv("RUNBOX_SERVER_PORT", "9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Executor.Timeout != 5*time.Second {
		t.Errorf("Executor.Timeout = %v, want 5s", cfg.Executor.Timeout)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_RejectsNegativeValues(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("executor:\n  max_output: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPolicyFor(t *testing.T) {
	dir := isolate(t)
	profiles := filepath.Join(dir, "profiles")
	if err := os.MkdirAll(profiles, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(profiles, "fast.yaml"), []byte("name: fast\ntimeout: 250ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Executor.ProfilesDir = profiles

	p, err := cfg.PolicyFor("fast")
	if err != nil {
		t.Fatalf("PolicyFor: %v", err)
	}
	if p.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", p.Timeout)
	}

	if _, err := cfg.PolicyFor("missing"); err == nil {
		t.Error("expected error for unknown profile")
	}
}
