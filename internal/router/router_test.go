package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conceptkernel/ck-core/internal/edge"
)

func writeKernelWithContract(t *testing.T, conceptsRoot, name, target, predicate string) {
	t.Helper()
	dir := filepath.Join(conceptsRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "apiVersion: conceptkernel/v1\nkind: Ontology\nmetadata:\n  name: " + name + "\n  type: node:cold\n" +
		"spec:\n  notification_contract:\n    - target_kernel: " + target + "\n      queue: inbox\n      type: " + predicate + "\n"
	if err := os.WriteFile(filepath.Join(dir, "conceptkernel.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSourceKernelFromPathLocatesStorageComponent(t *testing.T) {
	root := "/proj/concepts"
	path := filepath.Join(root, "SourceKernel", "storage", "tx-001.inst")
	got, ok := sourceKernelFromPath(path, root)
	if !ok || got != "SourceKernel" {
		t.Fatalf("expected SourceKernel, got %q (ok=%v)", got, ok)
	}

	if _, ok := sourceKernelFromPath(filepath.Join(root, "SourceKernel", "other.inst"), root); ok {
		t.Fatal("expected no source kernel when path has no storage component")
	}
}

func TestRoutesForReadsNotificationContractAndCaches(t *testing.T) {
	conceptsRoot := filepath.Join(t.TempDir(), "concepts")
	if err := os.MkdirAll(conceptsRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	writeKernelWithContract(t, conceptsRoot, "SourceKernel", "TargetKernel", "PRODUCES")

	edgeKernel := edge.NewKernel(conceptsRoot, "", false)
	r := New(filepath.Dir(conceptsRoot), edgeKernel, false)

	routes, err := r.routesFor("SourceKernel")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].Target != "TargetKernel" || routes[0].Predicate != "PRODUCES" {
		t.Fatalf("unexpected routes: %+v", routes)
	}

	cachedRoutes, err := r.routesFor("SourceKernel")
	if err != nil {
		t.Fatal(err)
	}
	if len(cachedRoutes) != 1 {
		t.Fatalf("expected cached routes to match, got %+v", cachedRoutes)
	}
}

func TestHandleCreateRoutesNewInstanceEndToEnd(t *testing.T) {
	conceptsRoot := filepath.Join(t.TempDir(), "concepts")
	if err := os.MkdirAll(conceptsRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	writeKernelWithContract(t, conceptsRoot, "SourceKernel", "TargetKernel", "PRODUCES")

	instDir := filepath.Join(conceptsRoot, "SourceKernel", "storage", "tx-001.inst")
	if err := os.MkdirAll(instDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(instDir, "receipt.bin"), []byte(`{"txId":"tx-001"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	edgeKernel := edge.NewKernel(conceptsRoot, "", false)
	r := New(filepath.Dir(conceptsRoot), edgeKernel, false)
	r.handleCreate(instDir)

	wantLink := filepath.Join(conceptsRoot, "TargetKernel", "queue", "edges", "PRODUCES.SourceKernel", "tx-001.inst")
	if _, err := os.Lstat(wantLink); err != nil {
		t.Fatalf("expected routed symlink at %s: %v", wantLink, err)
	}
}

func TestHandleCreateIgnoresNonInstPaths(t *testing.T) {
	conceptsRoot := filepath.Join(t.TempDir(), "concepts")
	if err := os.MkdirAll(conceptsRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	edgeKernel := edge.NewKernel(conceptsRoot, "", false)
	r := New(filepath.Dir(conceptsRoot), edgeKernel, false)

	// Should not panic or error for a non-.inst path; it's simply ignored.
	r.handleCreate(filepath.Join(conceptsRoot, "SourceKernel", "storage", "receipt.bin"))
}
