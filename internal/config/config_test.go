package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsPopulatesFromTags(t *testing.T) {
	f := Defaults()
	if f.RouterDebounceMs != 250 {
		t.Fatalf("expected default router debounce 250, got %d", f.RouterDebounceMs)
	}
	if f.ComplianceSink != "none" {
		t.Fatalf("expected default compliance sink none, got %q", f.ComplianceSink)
	}
}

func TestParseMissingFileReturnsDefaults(t *testing.T) {
	f, err := Parse(filepath.Join(t.TempDir(), ".ckconfig"))
	if err != nil {
		t.Fatal(err)
	}
	if f.PortRangeStart != 9000 {
		t.Fatalf("expected default port range start, got %d", f.PortRangeStart)
	}
}

func TestParseOverridesDeclaredDirectives(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ckconfig")
	contents := "# comment\nrouter debounce ms = 500\nedge versioning = yes\ncompliance sink = stdout\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.RouterDebounceMs != 500 {
		t.Fatalf("expected overridden debounce 500, got %d", f.RouterDebounceMs)
	}
	if !f.EdgeVersioning {
		t.Fatal("expected edge versioning true")
	}
	if f.ComplianceSink != "stdout" {
		t.Fatalf("expected overridden compliance sink, got %q", f.ComplianceSink)
	}
}

func TestParseRejectsUnauthorizedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ckconfig")
	if err := os.WriteFile(path, []byte("compliance sink = carrier-pigeon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(path); err == nil {
		t.Fatal("expected an unauthorized directive value to fail parsing")
	}
}

func TestGetCurrentConfigFallsBackToDefaults(t *testing.T) {
	currentConfig = nil
	c := GetCurrentConfig()
	if c.RouterDebounceMs != 250 {
		t.Fatalf("expected fallback defaults, got %+v", c)
	}
}
