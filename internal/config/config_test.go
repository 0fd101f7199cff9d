package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[target]
register_parameter_count = 8
root_register = 6
fp_register = 7

[build]
jobs = 3
cache = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.RegisterParameterCount != 8 || cfg.Target.RootRegister != 6 {
		t.Fatalf("target = %+v", cfg.Target)
	}
	if cfg.Target.PageSizeBits != 19 || cfg.Target.CodeEntryOffset != 63 {
		t.Fatal("unset keys lost their defaults")
	}
	if cfg.Build.Jobs != 3 || !cfg.Build.Cache || cfg.Build.Backend != "placeholder" {
		t.Fatalf("build = %+v", cfg.Build)
	}
}

func TestLoadRejectsBadLayout(t *testing.T) {
	path := writeConfig(t, "[target]\nroot_register = 11\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected register clash, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[target]\nregisters = 3\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestPageMask(t *testing.T) {
	tgt := DefaultTarget()
	if got := uint32(tgt.PageMask()); got != 0xFFF80000 {
		t.Fatalf("PageMask = 0x%X", got)
	}
}

func TestFindWalksUp(t *testing.T) {
	path := writeConfig(t, "")
	sub := filepath.Join(filepath.Dir(path), "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	got, ok, err := Find(sub)
	if err != nil || !ok || got != path {
		t.Fatalf("Find = %q, %v, %v", got, ok, err)
	}
}
