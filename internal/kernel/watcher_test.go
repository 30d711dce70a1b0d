package kernel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProcessInboxArchivesJobsWithoutEntrypoint(t *testing.T) {
	root := t.TempDir()
	writeTestKernel(t, root, "Watched.Kernel", "node:cold")
	kernelDir := filepath.Join(root, "concepts", "Watched.Kernel")
	inbox := filepath.Join(kernelDir, "queue", "inbox")
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "job1.job"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	o, err := mgr.reader.ReadByKernelName("Watched.Kernel")
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.processInbox(kernelDir, "Watched.Kernel", o); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(kernelDir, "queue", "archive", "job1.job")); err != nil {
		t.Fatalf("expected job archived: %v", err)
	}
	if _, err := os.Stat(filepath.Join(inbox, "job1.job")); !os.IsNotExist(err) {
		t.Fatal("expected job removed from inbox after processing")
	}
}

func TestProcessInboxMissingDirIsNoop(t *testing.T) {
	root := t.TempDir()
	writeTestKernel(t, root, "NoInbox.Kernel", "node:cold")
	kernelDir := filepath.Join(root, "concepts", "NoInbox.Kernel")

	mgr, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	o, err := mgr.reader.ReadByKernelName("NoInbox.Kernel")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.processInbox(kernelDir, "NoInbox.Kernel", o); err != nil {
		t.Fatal(err)
	}
}
