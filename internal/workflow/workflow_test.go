package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func writeKernelManifest(t *testing.T, projectRoot, name string) {
	t.Helper()
	dir := filepath.Join(projectRoot, "concepts", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "apiVersion: conceptkernel/v1\nkind: Ontology\nmetadata:\n  name: " + name + "\n"
	if err := os.WriteFile(filepath.Join(dir, "conceptkernel.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRecognizeClassifiesForkedBrandNewAndEdges(t *testing.T) {
	projectRoot := t.TempDir()
	writeKernelManifest(t, projectRoot, "ExistingKernel")

	ckdl := `WORKFLOW ckp://Workflow.Onboarding
LABEL: "Onboarding"
TRIGGER: "daemon-startup"

KERNEL ckp://Kernel.ExistingKernel
  TYPE: node:cold

KERNEL ckp://Kernel.NewKernel
  TYPE: python:cold

EDGE ckp://Edge.PRODUCES.ExistingKernel-to-NewKernel
  TRIGGER: "on-complete"
`
	path := filepath.Join(t.TempDir(), "onboarding.ckdl")
	if err := os.WriteFile(path, []byte(ckdl), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := Recognize(path, projectRoot)
	if err != nil {
		t.Fatal(err)
	}
	if rec.WorkflowUrn != "ckp://Workflow.Onboarding" {
		t.Fatalf("unexpected workflow urn: %q", rec.WorkflowUrn)
	}
	if rec.TotalWorkflowKernel != 2 || rec.TotalEdges != 1 {
		t.Fatalf("unexpected totals: %+v", rec)
	}
	if len(rec.ForkedKernels) != 1 || rec.ForkedKernels[0] != "ckp://Kernel.ExistingKernel" {
		t.Fatalf("expected one forked kernel, got %v", rec.ForkedKernels)
	}
	if len(rec.BrandNewKernels) != 1 {
		t.Fatalf("expected one brand new kernel, got %v", rec.BrandNewKernels)
	}
}

func TestRecognizeMissingFileErrors(t *testing.T) {
	if _, err := Recognize(filepath.Join(t.TempDir(), "missing.ckdl"), t.TempDir()); err == nil {
		t.Fatal("expected an error for a missing CKDL file")
	}
}
