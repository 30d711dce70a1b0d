package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func makeInstance(t *testing.T, kernelPath, txID string, mtime time.Time) {
	t.Helper()
	dir := filepath.Join(kernelPath, "storage", txID+".inst")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "receipt.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dir, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestScanOrdersByModTimeAscending(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	makeInstance(t, root, "tx-002", now)
	makeInstance(t, root, "tx-001", now.Add(-time.Hour))

	instances, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(instances))
	}
	if instances[0].TxID != "tx-001" || instances[1].TxID != "tx-002" {
		t.Fatalf("expected ascending mtime order, got %+v", instances)
	}
}

func TestScanMissingStorageDirReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	instances, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if instances != nil {
		t.Fatalf("expected nil for a kernel with no storage dir, got %v", instances)
	}
}

func TestScanSinceFiltersByModTime(t *testing.T) {
	root := t.TempDir()
	cutoff := time.Now()
	makeInstance(t, root, "old", cutoff.Add(-time.Hour))
	makeInstance(t, root, "new", cutoff.Add(time.Hour))

	recent, err := ScanSince(root, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].TxID != "new" {
		t.Fatalf("expected only the post-cutoff instance, got %+v", recent)
	}
}

func TestScanComputesSizeBytes(t *testing.T) {
	root := t.TempDir()
	makeInstance(t, root, "tx-004", time.Now())
	instances, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if instances[0].SizeBytes != 1 {
		t.Fatalf("expected 1 byte (the 'x' receipt), got %d", instances[0].SizeBytes)
	}
	if instances[0].HumanSize() == "" {
		t.Fatal("expected a non-empty human-readable size")
	}
	if got := TotalSize(instances); got != 1 {
		t.Fatalf("expected total size 1, got %d", got)
	}
}

func TestReadFileReturnsPayload(t *testing.T) {
	root := t.TempDir()
	makeInstance(t, root, "tx-003", time.Now())
	instances, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	data, err := ReadFile(instances[0], "receipt.bin")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "x" {
		t.Fatalf("expected payload %q, got %q", "x", data)
	}
}
