package compliance

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigureWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compliance.log")
	if err := Configure(path); err != nil {
		t.Fatal(err)
	}
	defer Configure("")

	EvidenceRecord("SourceKernel", "PRODUCES", "TargetKernel", "routed")
	DenyRBAC("SourceKernel", "viewer", "write", "role lacks permission")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "evidence_record") {
		t.Fatalf("expected an evidence_record entry, got:\n%s", out)
	}
	if !strings.Contains(out, "rbac_denied") {
		t.Fatalf("expected an rbac_denied entry, got:\n%s", out)
	}
}

func TestConfigureEmptyPathFallsBackToStderr(t *testing.T) {
	if err := Configure(""); err != nil {
		t.Fatal(err)
	}
	EvidenceRecord("Source", "PRODUCES", "Target", "routed")
}
