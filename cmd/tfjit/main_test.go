package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tfjit/internal/codegen"
	"tfjit/internal/ir"
	"tfjit/internal/testkit"
)

func TestCollectUnitPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.toml", "b.tfir", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	paths, err := collectUnitPaths([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.toml" || filepath.Base(paths[1]) != "b.tfir" {
		t.Fatalf("paths = %v", paths)
	}
	if _, err := collectUnitPaths([]string{t.TempDir()}); err == nil {
		t.Fatal("empty directory accepted")
	}
}

func TestBackendByName(t *testing.T) {
	if b, err := backendByName("placeholder"); err != nil || b.Name() != "placeholder" {
		t.Fatalf("placeholder: %v", err)
	}
	if _, err := backendByName("llvm"); err == nil || !strings.Contains(err.Error(), "available: placeholder") {
		t.Fatalf("unknown back end: %v", err)
	}
}

func TestProgressMode(t *testing.T) {
	for in, want := range map[string]progressMode{"": progressAuto, "ON": progressOn, " off ": progressOff} {
		if got, err := parseProgressMode(in); err != nil || got != want {
			t.Errorf("parseProgressMode(%q) = %d, %v", in, got, err)
		}
	}
	if _, err := parseProgressMode("fancy"); err == nil {
		t.Error("bad mode accepted")
	}
	if !wantProgressView(progressOn, true, true) || wantProgressView(progressOff, false, false) {
		t.Error("explicit modes not honoured")
	}
	if wantProgressView(progressAuto, true, false) || wantProgressView(progressAuto, false, true) {
		t.Error("auto mode shown under --quiet or a terminal trace")
	}
}

func TestBuildThenDisassemble(t *testing.T) {
	dir := t.TempDir()
	unitDir := filepath.Join(dir, "units")
	if err := os.Mkdir(unitDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, u := range []*ir.Unit{testkit.Loop(), testkit.Diamond3()} {
		if err := ir.Save(filepath.Join(unitDir, u.Name+".tfir"), u); err != nil {
			t.Fatal(err)
		}
	}
	cfgPath := filepath.Join(dir, "tfjit.toml")
	if err := os.WriteFile(cfgPath, []byte("[build]\njobs = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"--config", cfgPath, "--color", "off", "build", "--ui", "off", "--out", outDir, unitDir})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("build: %v\n%s", err, stderr.String())
	}
	for _, name := range []string{"loop", "diamond3"} {
		if !strings.Contains(stdout.String(), name+": ") {
			t.Errorf("no summary for %s in:\n%s", name, stdout.String())
		}
	}
	data, err := os.ReadFile(filepath.Join(outDir, "loop.code"))
	if err != nil {
		t.Fatal(err)
	}
	obj, err := codegen.DecodeCodeObject(data)
	if err != nil || obj.Name != "loop" {
		t.Fatalf("loop.code: %+v, %v", obj, err)
	}

	stdout.Reset()
	rootCmd.SetArgs([]string{"disasm", filepath.Join(outDir, "loop.code")})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("disasm: %v\n%s", err, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "loop: ") || !strings.Contains(stdout.String(), "00000000") {
		t.Fatalf("disasm output:\n%s", stdout.String())
	}
}
