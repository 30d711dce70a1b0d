// Package kernel implements the Kernel Manager (C14): the high-level
// lifecycle API for listing, starting, stopping, and monitoring
// concept kernels under a project's concepts/ tree.
package kernel

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/conceptkernel/ck-core/internal/continuant"
	"github.com/conceptkernel/ck-core/internal/kernel/pidfile"
	"github.com/conceptkernel/ck-core/internal/ontology"
	"github.com/conceptkernel/ck-core/internal/project"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/conceptkernel/ck-core/pkg/cklog"
)

// Mode is a kernel's derived runtime status.
type Mode string

const (
	ModeOnline     Mode = "ONLINE"
	ModeDown       Mode = "DOWN"
	ModeProcessing Mode = "PROCESSING"
	ModeIdle       Mode = "IDLE"
)

// QueueStats counts files other than .gitkeep in each queue stage.
type QueueStats struct {
	Inbox   int
	Staging int
	Ready   int
}

// Status is the full status report for one kernel.
type Status struct {
	Name       string
	KernelType string
	Pid        int32
	WatcherPid int32
	Mode       Mode
	Queue      QueueStats
	Port       uint16
}

// RunningPids holds the validated live PIDs for a kernel, 0 when absent.
type RunningPids struct {
	Pid        int32
	WatcherPid int32
}

// StartResult is the outcome of starting one kernel.
type StartResult struct {
	Pid            int32
	WatcherPid     int32
	KernelType     string
	AlreadyRunning bool
}

// Manager is the high-level kernel lifecycle API rooted at a project
// directory containing a concepts/ tree.
type Manager struct {
	root        string
	conceptsDir string
	reader      *ontology.Reader
}

// New creates a Manager for root, ensuring concepts/ exists.
func New(root string) (*Manager, error) {
	conceptsDir := filepath.Join(root, "concepts")
	if err := os.MkdirAll(conceptsDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating concepts directory: %v", ckerr.IoError, err)
	}
	return &Manager{root: root, conceptsDir: conceptsDir, reader: ontology.NewReader(root)}, nil
}

// GetKernelDir returns the full path to a kernel's directory.
func (m *Manager) GetKernelDir(name string) string {
	return filepath.Join(m.conceptsDir, name)
}

// Exists reports whether name is a kernel with a valid manifest.
func (m *Manager) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(m.GetKernelDir(name), "conceptkernel.yaml"))
	return err == nil
}

// ListKernels enumerates every valid kernel directory under concepts/,
// sorted by name: not dot-prefixed, not "bus", whose last dot-segment
// isn't purely numeric (excludes multi-instance directories like
// "System.Oidc.User.1"), and containing conceptkernel.yaml.
func (m *Manager) ListKernels() ([]string, error) {
	entries, err := os.ReadDir(m.conceptsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading concepts directory: %v", ckerr.IoError, err)
	}

	var kernels []string
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		name := de.Name()
		if strings.HasPrefix(name, ".") || name == "bus" {
			continue
		}
		segs := strings.Split(name, ".")
		if _, err := strconv.Atoi(segs[len(segs)-1]); err == nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.conceptsDir, name, "conceptkernel.yaml")); err != nil {
			continue
		}
		kernels = append(kernels, name)
	}
	sort.Strings(kernels)
	return kernels, nil
}

// GetStatus returns the full status of one kernel.
func (m *Manager) GetStatus(name string) (*Status, error) {
	if !m.Exists(name) {
		return nil, fmt.Errorf("%w: kernel not found: %s", ckerr.FileNotFound, name)
	}
	kernelDir := m.GetKernelDir(name)

	o, err := m.reader.ReadByKernelName(name)
	if err != nil {
		return nil, err
	}

	pids, err := m.FindRunningPids(name)
	if err != nil {
		return nil, err
	}

	mode := calculateMode(o.Metadata.KernelType, pids)
	queue, err := queueStats(kernelDir)
	if err != nil {
		return nil, err
	}

	var port uint16
	if o.Metadata.Port != nil {
		port = *o.Metadata.Port
	}

	return &Status{
		Name:       name,
		KernelType: o.Metadata.KernelType,
		Pid:        pids.Pid,
		WatcherPid: pids.WatcherPid,
		Mode:       mode,
		Queue:      queue,
		Port:       port,
	}, nil
}

// FindRunningPids reads and validates the tool/watcher/governor PID
// files for a kernel, self-healing any stale entries via pidfile.Read.
func (m *Manager) FindRunningPids(name string) (RunningPids, error) {
	kernelDir := m.GetKernelDir(name)

	toolPid, _, err := pidfile.Read(filepath.Join(kernelDir, ".tool.pid"))
	if err != nil {
		return RunningPids{}, err
	}
	watcherPid, ok, err := pidfile.Read(filepath.Join(kernelDir, ".watcher.pid"))
	if err != nil {
		return RunningPids{}, err
	}
	if !ok {
		// Fall back to the governor daemon's own PID file.
		watcherPid, _, err = pidfile.Read(filepath.Join(kernelDir, "tool", ".governor.pid"))
		if err != nil {
			return RunningPids{}, err
		}
	}
	return RunningPids{Pid: toolPid, WatcherPid: watcherPid}, nil
}

func calculateMode(kernelType string, pids RunningPids) Mode {
	switch {
	case strings.Contains(kernelType, "hot"):
		if pids.Pid != 0 {
			return ModeOnline
		}
		return ModeDown
	case strings.Contains(kernelType, "cold"):
		switch {
		case pids.WatcherPid != 0 && pids.Pid != 0:
			return ModeProcessing
		case pids.WatcherPid != 0:
			return ModeIdle
		default:
			return ModeDown
		}
	default:
		return ModeDown
	}
}

func queueStats(kernelDir string) (QueueStats, error) {
	count := func(stage string) (int, error) {
		dir := filepath.Join(kernelDir, "queue", stage)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%w: reading queue/%s: %v", ckerr.IoError, stage, err)
		}
		n := 0
		for _, e := range entries {
			if e.Name() != ".gitkeep" && !e.IsDir() {
				n++
			}
		}
		return n, nil
	}
	inbox, err := count("inbox")
	if err != nil {
		return QueueStats{}, err
	}
	staging, err := count("staging")
	if err != nil {
		return QueueStats{}, err
	}
	ready, err := count("ready")
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{Inbox: inbox, Staging: staging, Ready: ready}, nil
}

// StartKernel starts a kernel, rejecting it unless both
// conceptkernel.yaml and ontology.ttl are present (ontology.ttl is
// required for BFO alignment and unified SPARQL queries). A governor
// watcher is always spawned; hot kernels additionally get a tool
// process and an allocated port.
func (m *Manager) StartKernel(name string) (*StartResult, error) {
	if !m.Exists(name) {
		return nil, fmt.Errorf("%w: kernel not found: %s", ckerr.FileNotFound, name)
	}
	kernelDir := m.GetKernelDir(name)
	if _, err := os.Stat(filepath.Join(kernelDir, "ontology.ttl")); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: kernel %q missing required ontology.ttl; all kernels must have ontology.ttl for BFO alignment and unified SPARQL queries", ckerr.Ontology, name)
	}

	o, err := m.reader.ReadByKernelName(name)
	if err != nil {
		return nil, err
	}
	kernelType := o.Metadata.KernelType

	pids, err := m.FindRunningPids(name)
	if err != nil {
		return nil, err
	}
	if pids.Pid != 0 || pids.WatcherPid != 0 {
		return &StartResult{Pid: pids.Pid, WatcherPid: pids.WatcherPid, KernelType: kernelType, AlreadyRunning: true}, nil
	}

	isHot := strings.Contains(kernelType, "hot")

	watcherPid, err := m.spawnWatcher(name)
	if err != nil {
		return nil, err
	}
	if err := pidfile.Write(filepath.Join(kernelDir, ".watcher.pid"), watcherPid); err != nil {
		return nil, err
	}

	var toolPid int32
	if isHot {
		toolPid, err = m.spawnHotTool(name, kernelType, o)
		if err != nil {
			return nil, err
		}
		if err := pidfile.Write(filepath.Join(kernelDir, ".tool.pid"), toolPid); err != nil {
			return nil, err
		}
	}

	if err := m.ensureKernelEntity(name, o); err != nil {
		cklog.Warningf("kernel %s: continuant entity not recorded: %v", name, err)
	}

	return &StartResult{Pid: toolPid, WatcherPid: watcherPid, KernelType: kernelType}, nil
}

// canonicalFunctions maps well-known System.* kernel name prefixes to
// the BFO Function they fulfill in the kernel network.
var canonicalFunctions = []struct {
	prefix      string
	name        string
	description string
}{
	{"System.Gateway", "gateway", "HTTP API gateway for kernel network"},
	{"System.Consensus", "consensus", "Governance and consensus voting"},
	{"System.Wss", "websocket-hub", "WebSocket collaboration hub"},
	{"System.Oidc", "authentication", "OIDC authentication and authorization"},
}

func (m *Manager) ensureKernelEntity(name string, o *ontology.Ontology) error {
	tracker := continuant.NewTracker(m.conceptsDir)
	version := o.Metadata.Version
	if version == "" {
		version = "unknown"
	}
	meta := map[string]any{}
	if o.Metadata.Description != "" {
		meta["description"] = o.Metadata.Description
	}
	if o.Metadata.Port != nil {
		meta["port"] = *o.Metadata.Port
	}

	entity, err := tracker.CreateKernelEntity(name, version, o.Metadata.KernelType, "bfo:0000040", meta)
	if err != nil {
		return err
	}

	for _, cf := range canonicalFunctions {
		if strings.HasPrefix(name, cf.prefix) {
			return tracker.AssignFunction(entity.Urn, continuant.Function{Name: cf.name, Description: cf.description})
		}
	}
	return nil
}

// StopKernel sends SIGTERM to a kernel's tool and watcher processes
// and removes its PID files regardless of whether the signal
// succeeded, so a dead process never leaves stale state behind.
func (m *Manager) StopKernel(name string) (bool, error) {
	kernelDir := m.GetKernelDir(name)
	toolPidFile := filepath.Join(kernelDir, ".tool.pid")
	watcherPidFile := filepath.Join(kernelDir, ".watcher.pid")

	pids, err := m.FindRunningPids(name)
	if err != nil {
		return false, err
	}

	stopped := false
	if pids.Pid != 0 && sendSigterm(pids.Pid) {
		stopped = true
	}
	if pids.WatcherPid != 0 && sendSigterm(pids.WatcherPid) {
		stopped = true
	}

	_ = pidfile.Remove(toolPidFile)
	_ = pidfile.Remove(watcherPidFile)
	return stopped, nil
}

func sendSigterm(pid int32) bool {
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return false
	}
	return proc.Signal(syscall.SIGTERM) == nil
}

// Status returns a status report for every kernel, skipping any that
// error (e.g. a malformed manifest) rather than failing the whole scan.
func (m *Manager) Status() ([]Status, error) {
	names, err := m.ListKernels()
	if err != nil {
		return nil, err
	}
	if portManager, err := project.NewPortManager(m.root); err == nil {
		if released, err := portManager.ReconcileStaleAllocations(names); err == nil {
			for _, name := range released {
				cklog.Debugf("released stale port allocation for removed kernel %s", name)
			}
		}
	}
	var out []Status
	for _, name := range names {
		s, err := m.GetStatus(name)
		if err != nil {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

// StartAll starts every kernel, logging and continuing past individual
// failures rather than aborting the whole batch.
func (m *Manager) StartAll() ([]StartResult, error) {
	names, err := m.ListKernels()
	if err != nil {
		return nil, err
	}
	var out []StartResult
	for _, name := range names {
		r, err := m.StartKernel(name)
		if err != nil {
			cklog.Errorf("failed to start %s: %v", name, err)
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

// StopAll stops every kernel, recording per-kernel success.
func (m *Manager) StopAll() (map[string]bool, error) {
	names, err := m.ListKernels()
	if err != nil {
		return nil, err
	}
	results := make(map[string]bool, len(names))
	for _, name := range names {
		stopped, err := m.StopKernel(name)
		if err != nil {
			cklog.Errorf("failed to stop %s: %v", name, err)
			results[name] = false
			continue
		}
		results[name] = stopped
	}
	return results, nil
}

// spawnWatcher launches the unified governor daemon for a kernel,
// resolving the running binary's own canonicalized path so a symlinked
// install (e.g. /usr/local/bin/ck) still resolves to the real binary.
func (m *Manager) spawnWatcher(name string) (int32, error) {
	currentExe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("%w: resolving current executable: %v", ckerr.Process, err)
	}
	binary, err := filepath.EvalSymlinks(currentExe)
	if err != nil {
		binary = currentExe
	}
	if _, err := os.Stat(binary); err != nil {
		return 0, fmt.Errorf("%w: binary not found at %s", ckerr.FileNotFound, binary)
	}

	kernelDir := m.GetKernelDir(name)
	logsDir := filepath.Join(kernelDir, "logs")
	_ = os.MkdirAll(logsDir, 0o755)
	stderrFile, err := os.OpenFile(filepath.Join(logsDir, "governor-debug.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		stderrFile, _ = os.Open(os.DevNull)
	}
	defer stderrFile.Close()

	cmd := exec.Command(binary, "daemon", "governor", "--kernel", name, "--project", m.root)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = stderrFile
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: spawning governor daemon: %v", ckerr.Process, err)
	}
	return int32(cmd.Process.Pid), nil
}

// spawnHotTool launches the tool process for a hot kernel, allocating
// a dynamic port via the project's port manager and setting CK_PORT.
func (m *Manager) spawnHotTool(name, kernelType string, o *ontology.Ontology) (int32, error) {
	kernelDir := m.GetKernelDir(name)
	if o.Metadata.Entrypoint == "" {
		return 0, fmt.Errorf("%w: no entrypoint specified in ontology for %s", ckerr.FileNotFound, name)
	}

	portManager, err := project.NewPortManager(m.root)
	if err != nil {
		return 0, fmt.Errorf("%w: creating port manager: %v", ckerr.Process, err)
	}
	port, ok := portManager.Get(name)
	if !ok {
		port, err = portManager.Allocate(name, nil)
		if err != nil {
			return 0, fmt.Errorf("%w: allocating port for hot kernel %s: %v", ckerr.Process, name, err)
		}
	}

	var cmd *exec.Cmd
	switch {
	case strings.HasPrefix(kernelType, "rust"):
		binaryPath := filepath.Join(kernelDir, o.Metadata.Entrypoint)
		if _, err := os.Stat(binaryPath); err != nil {
			return 0, fmt.Errorf("%w: rust binary not found: %s", ckerr.FileNotFound, binaryPath)
		}
		cmd = exec.Command(binaryPath)
	case strings.HasPrefix(kernelType, "python"):
		scriptPath := filepath.Join(kernelDir, o.Metadata.Entrypoint)
		if _, err := os.Stat(scriptPath); err != nil {
			return 0, fmt.Errorf("%w: python script not found: %s", ckerr.FileNotFound, scriptPath)
		}
		cmd = exec.Command("python3", scriptPath)
		cmd.Dir = filepath.Join(kernelDir, "tool")
	case strings.HasPrefix(kernelType, "node"):
		scriptPath := filepath.Join(kernelDir, o.Metadata.Entrypoint)
		if _, err := os.Stat(scriptPath); err != nil {
			return 0, fmt.Errorf("%w: node script not found: %s", ckerr.FileNotFound, scriptPath)
		}
		cmd = exec.Command("node", scriptPath)
	default:
		return 0, fmt.Errorf("%w: unsupported kernel type: %s", ckerr.Process, kernelType)
	}

	cmd.Env = append(os.Environ(), fmt.Sprintf("CK_PORT=%d", port))
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: spawning hot tool: %v", ckerr.Process, err)
	}
	return int32(cmd.Process.Pid), nil
}
