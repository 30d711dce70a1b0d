package kernel

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestKernel(t *testing.T, root, name, kernelType string) {
	t.Helper()
	dir := filepath.Join(root, "concepts", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "apiVersion: conceptkernel/v1\nkind: Ontology\nmetadata:\n  name: " + name + "\n  type: " + kernelType + "\n  version: v0.1\n"
	if err := os.WriteFile(filepath.Join(dir, "conceptkernel.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ontology.ttl"), []byte("@prefix bfo: <urn:bfo:> ."), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListKernelsFiltersHiddenBusAndInstances(t *testing.T) {
	root := t.TempDir()
	writeTestKernel(t, root, "Valid.Kernel", "node:cold")
	if err := os.MkdirAll(filepath.Join(root, "concepts", ".hidden"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "concepts", "bus"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "concepts", "Valid.Kernel.1"), 0o755); err != nil {
		t.Fatal(err)
	}

	mgr, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	kernels, err := mgr.ListKernels()
	if err != nil {
		t.Fatal(err)
	}
	if len(kernels) != 1 || kernels[0] != "Valid.Kernel" {
		t.Fatalf("expected only Valid.Kernel, got %v", kernels)
	}
}

func TestStartKernelRejectsMissingOntologyTtl(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "concepts", "NoTtl.Kernel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "conceptkernel.yaml"), []byte("metadata:\n  name: NoTtl.Kernel\n  type: node:cold\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.StartKernel("NoTtl.Kernel"); err == nil {
		t.Fatal("expected start to fail without ontology.ttl")
	}
}

func TestCalculateModeHotAndCold(t *testing.T) {
	if got := calculateMode("node:hot", RunningPids{Pid: 123}); got != ModeOnline {
		t.Fatalf("expected ONLINE, got %s", got)
	}
	if got := calculateMode("node:hot", RunningPids{}); got != ModeDown {
		t.Fatalf("expected DOWN, got %s", got)
	}
	if got := calculateMode("python:cold", RunningPids{WatcherPid: 1, Pid: 2}); got != ModeProcessing {
		t.Fatalf("expected PROCESSING, got %s", got)
	}
	if got := calculateMode("python:cold", RunningPids{WatcherPid: 1}); got != ModeIdle {
		t.Fatalf("expected IDLE, got %s", got)
	}
	if got := calculateMode("python:cold", RunningPids{}); got != ModeDown {
		t.Fatalf("expected DOWN, got %s", got)
	}
}

func TestQueueStatsCountsExcludingGitkeep(t *testing.T) {
	root := t.TempDir()
	writeTestKernel(t, root, "Queue.Kernel", "node:cold")
	kernelDir := filepath.Join(root, "concepts", "Queue.Kernel")
	inbox := filepath.Join(kernelDir, "queue", "inbox")
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{".gitkeep", "job1.json", "job2.json"} {
		if err := os.WriteFile(filepath.Join(inbox, f), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := queueStats(kernelDir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Inbox != 2 {
		t.Fatalf("expected 2 counted inbox files, got %d", stats.Inbox)
	}
}

func TestStopKernelRemovesPidFilesEvenWhenNotRunning(t *testing.T) {
	root := t.TempDir()
	writeTestKernel(t, root, "Stop.Kernel", "node:cold")
	kernelDir := filepath.Join(root, "concepts", "Stop.Kernel")
	if err := os.WriteFile(filepath.Join(kernelDir, ".tool.pid"), []byte("999999:1"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.StopKernel("Stop.Kernel"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(kernelDir, ".tool.pid")); !os.IsNotExist(err) {
		t.Fatal("expected stale tool pid file to be removed")
	}
}
