package executor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeProfile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "strict", `
name: strict
timeout: 2s
max_output: 4096
auto_import: false
`)

	p, err := LoadNamedProfile(dir, "strict")
	if err != nil {
		t.Fatalf("LoadNamedProfile: %v", err)
	}

	got := p.Apply(DefaultPolicy())
	if got.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", got.Timeout)
	}
	if got.MaxOutput != 4096 {
		t.Errorf("MaxOutput = %d, want 4096", got.MaxOutput)
	}
	if got.AutoImport {
		t.Error("AutoImport = true, want false")
	}
	if got.Unrestricted {
		t.Error("Unrestricted = true, want false")
	}
}

func TestLoadProfile_NameFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "quick", "timeout: 500ms\n")

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "quick" {
		t.Errorf("Name = %q, want %q", p.Name, "quick")
	}

	// Unset fields keep the base policy.
	base := Policy{Timeout: time.Minute, MaxOutput: 10, AutoImport: true}
	got := p.Apply(base)
	if got.Timeout != 500*time.Millisecond || got.MaxOutput != 10 || !got.AutoImport {
		t.Errorf("Apply = %+v", got)
	}
}

func TestLoadProfile_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad duration":        "name: x\ntimeout: soon\n",
		"negative max output": "name: x\nmax_output: -1\n",
		"not yaml":            "name: [unterminated\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeProfile(t, t.TempDir(), "p", body)
			if _, err := LoadProfile(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadProfile_Missing(t *testing.T) {
	if _, err := LoadNamedProfile(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected error for missing profile")
	}
}
