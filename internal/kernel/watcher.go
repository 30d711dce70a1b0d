package kernel

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conceptkernel/ck-core/internal/kernel/pidfile"
	"github.com/conceptkernel/ck-core/internal/ontology"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/conceptkernel/ck-core/pkg/cklog"
)

const watcherPollInterval = 500 * time.Millisecond

// RunWatcher is the body of a single kernel's `daemon governor
// --kernel <name>` process: it repeatedly scans the kernel's
// queue/inbox for *.job files in filesystem mtime order, processing
// each exactly once (cold kernels invoke the ontology entrypoint as a
// subprocess; hot kernels skip execution since their persistent tool
// already owns the work) before archiving it to queue/archive/, until
// stop is closed.
func (m *Manager) RunWatcher(name string, stop <-chan struct{}) error {
	kernelDir := m.GetKernelDir(name)
	o, err := m.reader.ReadByKernelName(name)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(watcherPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if err := m.processInbox(kernelDir, name, o); err != nil {
				cklog.Errorf("watcher %s: processing inbox: %v", name, err)
			}
		}
	}
}

func (m *Manager) processInbox(kernelDir, name string, o *ontology.Ontology) error {
	inbox := filepath.Join(kernelDir, "queue", "inbox")
	entries, err := os.ReadDir(inbox)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading inbox %s: %v", ckerr.IoError, inbox, err)
	}

	jobs := make([]os.DirEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".job") {
			jobs = append(jobs, e)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		ti, _ := jobs[i].Info()
		tj, _ := jobs[j].Info()
		if ti == nil || tj == nil {
			return jobs[i].Name() < jobs[j].Name()
		}
		return ti.ModTime().Before(tj.ModTime())
	})

	for _, job := range jobs {
		if err := m.processJob(kernelDir, name, filepath.Join(inbox, job.Name()), o); err != nil {
			cklog.Errorf("watcher %s: processing job %s: %v", name, job.Name(), err)
		}
	}
	return nil
}

// processJob runs the kernel's entrypoint (cold kernels only) against
// one job file, then archives it regardless of the entrypoint's
// outcome so a failing job is never retried forever.
func (m *Manager) processJob(kernelDir, name, jobPath string, o *ontology.Ontology) error {
	toolPidPath := filepath.Join(kernelDir, ".tool.pid")
	archiveDir := filepath.Join(kernelDir, "queue", "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating archive dir: %v", ckerr.IoError, err)
	}

	if strings.Contains(o.Metadata.KernelType, "cold") && o.Metadata.Entrypoint != "" {
		if err := m.runEntrypointOnce(kernelDir, toolPidPath, o, jobPath); err != nil {
			cklog.Warningf("watcher %s: entrypoint failed for %s: %v", name, jobPath, err)
		}
	}

	dest := filepath.Join(archiveDir, filepath.Base(jobPath))
	if err := os.Rename(jobPath, dest); err != nil {
		return fmt.Errorf("%w: archiving job %s: %v", ckerr.IoError, jobPath, err)
	}
	return nil
}

func (m *Manager) runEntrypointOnce(kernelDir, toolPidPath string, o *ontology.Ontology, jobPath string) error {
	scriptPath := filepath.Join(kernelDir, o.Metadata.Entrypoint)
	var cmd *exec.Cmd
	switch {
	case strings.HasPrefix(o.Metadata.KernelType, "rust"):
		cmd = exec.Command(scriptPath, jobPath)
	case strings.HasPrefix(o.Metadata.KernelType, "python"):
		cmd = exec.Command("python3", scriptPath, jobPath)
	case strings.HasPrefix(o.Metadata.KernelType, "node"):
		cmd = exec.Command("node", scriptPath, jobPath)
	default:
		return fmt.Errorf("%w: unsupported cold kernel type: %s", ckerr.Process, o.Metadata.KernelType)
	}
	cmd.Dir = kernelDir

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting entrypoint: %v", ckerr.Process, err)
	}
	if err := pidfile.Write(toolPidPath, int32(cmd.Process.Pid)); err != nil {
		cklog.Warningf("writing tool pid file for %s: %v", jobPath, err)
	}
	waitErr := cmd.Wait()
	_ = pidfile.Remove(toolPidPath)
	return waitErr
}
