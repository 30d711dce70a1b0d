// Package project implements the multi-project registry (C3) and
// per-project port manager (C4) from spec.md §4.2: a per-host registry
// of projects with slot-based port-range allocation so multiple
// projects coexist on one host.
package project

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conceptkernel/ck-core/internal/atomicfile"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/google/uuid"
)

// PortRange is an inclusive [Start, End] TCP port range.
type PortRange struct {
	Start uint16 `json:"start"`
	End   uint16 `json:"end"`
}

// Contains reports whether port falls within the range.
func (r PortRange) Contains(port uint16) bool {
	return port >= r.Start && port <= r.End
}

// Entry is one registered project, one-file-per-project on disk.
type Entry struct {
	Name          string    `json:"name"`
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	Version       string    `json:"version"`
	Slot          uint32    `json:"slot"`
	DiscoveryPort uint16    `json:"discoveryPort"`
	PortRange     PortRange `json:"portRange"`
	RegisteredAt  string    `json:"registeredAt"`
}

// Info is the caller-supplied payload for Register.
type Info struct {
	Name          string
	ID            string
	Path          string
	Version       string
	PreferredSlot uint32 // 0 means "no preference"
}

// Registry is a per-host registry of projects rooted at
// ~/.config/conceptkernel/projects/.
type Registry struct {
	dir   string
	cache []Entry
	ok    bool // whether cache is populated
}

const maxPortAttempts = 3

// discoveryPortBase and portsPerSlot implement §3's formula:
// discovery_port = 56000 + (slot-1)*200, port_range = [discovery, discovery+199].
const (
	discoveryPortBase = 56000
	portsPerSlot       = 200
)

// New opens the registry rooted at $HOME/.config/conceptkernel/projects,
// creating it if absent.
func New() (*Registry, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return nil, fmt.Errorf("%w: HOME environment variable not set", ckerr.ProjectError)
	}
	dir := filepath.Join(home, ".config", "conceptkernel", "projects")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating registry directory: %v", ckerr.IoError, err)
	}
	return &Registry{dir: dir}, nil
}

// NewAt opens (or creates) a registry rooted at an explicit directory,
// used by tests so they never touch $HOME.
func NewAt(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating registry directory: %v", ckerr.IoError, err)
	}
	return &Registry{dir: dir}, nil
}

// CalculateBasePort implements discovery_port = 56000 + (slot-1)*200.
func CalculateBasePort(slot uint32) uint16 {
	return uint16(discoveryPortBase + (int(slot)-1)*portsPerSlot)
}

func calculateRange(slot uint32) PortRange {
	base := CalculateBasePort(slot)
	return PortRange{Start: base, End: base + portsPerSlot - 1}
}

// loadAll reads every *.json in the registry directory; malformed
// entries are skipped silently, mirroring the original's tolerant
// loader. The result is memoized until invalidated.
func (r *Registry) loadAll() ([]Entry, error) {
	if r.ok {
		return r.cache, nil
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading registry directory: %v", ckerr.IoError, err)
	}

	var projects []Entry
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		path := filepath.Join(r.dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var p Entry
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		projects = append(projects, p)
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].Slot < projects[j].Slot })

	r.cache = projects
	r.ok = true
	return projects, nil
}

func (r *Registry) invalidateCache() {
	r.cache = nil
	r.ok = false
}

// List returns every registered project, sorted by slot.
func (r *Registry) List() ([]Entry, error) {
	return r.loadAll()
}

// Get looks up a project by name.
func (r *Registry) Get(name string) (*Entry, error) {
	projects, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].Name == name {
			e := projects[i]
			return &e, nil
		}
	}
	return nil, nil
}

// findNextSlot returns max(existing slots)+1, or 1 if none exist. This
// never fills gaps left by removed projects — documented behavior
// preserved from the original implementation (spec.md §9).
func (r *Registry) findNextSlot() (uint32, error) {
	projects, err := r.loadAll()
	if err != nil {
		return 0, err
	}
	if len(projects) == 0 {
		return 1, nil
	}
	var max uint32
	for _, p := range projects {
		if p.Slot > max {
			max = p.Slot
		}
	}
	return max + 1, nil
}

// isPortAvailable probes bindability of 127.0.0.1:port with a single
// short-lived TCP bind/close.
func isPortAvailable(port uint16) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// Register allocates a slot and port range for a new project. It
// rejects an already-registered name, then tries up to 3 consecutive
// slots starting at PreferredSlot (or one past the current maximum)
// until one's base port binds.
func (r *Registry) Register(info Info) (*Entry, error) {
	if info.Name == "" || info.ID == "" || info.Path == "" || info.Version == "" {
		return nil, fmt.Errorf("%w: missing required project fields: name, id, path, version", ckerr.ValidationError)
	}

	existing, err := r.Get(info.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: project %q is already registered at slot %d", ckerr.ProjectAlready, info.Name, existing.Slot)
	}

	initialSlot := info.PreferredSlot
	if initialSlot == 0 {
		initialSlot, err = r.findNextSlot()
		if err != nil {
			initialSlot = 1
		}
	}

	for attempt := uint32(0); attempt < maxPortAttempts; attempt++ {
		slot := initialSlot + attempt
		base := CalculateBasePort(slot)
		if !isPortAvailable(base) {
			continue
		}

		entry := Entry{
			Name:          info.Name,
			ID:            info.ID,
			Path:          info.Path,
			Version:       info.Version,
			Slot:          slot,
			DiscoveryPort: base,
			PortRange:     calculateRange(slot),
			RegisteredAt:  time.Now().UTC().Format(time.RFC3339),
		}
		if err := r.save(&entry); err != nil {
			return nil, err
		}
		r.invalidateCache()
		return &entry, nil
	}

	return nil, fmt.Errorf("%w: no bindable port found after %d attempts starting at slot %d", ckerr.PortError, maxPortAttempts, initialSlot)
}

func (r *Registry) save(e *Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	path := filepath.Join(r.dir, e.Name+".json")
	return atomicfile.WriteFile(path, data, 0o644)
}

// Remove deletes a project's registry entry. Returns false if it
// wasn't registered.
func (r *Registry) Remove(name string) (bool, error) {
	path := filepath.Join(r.dir, name+".json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("%w: removing project file: %v", ckerr.IoError, err)
	}
	r.invalidateCache()
	return true, nil
}

// GetCurrent returns the project whose Path is a prefix of cwd.
func (r *Registry) GetCurrent(cwd string) (*Entry, error) {
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("%w: getting current directory: %v", ckerr.IoError, err)
		}
		cwd = wd
	}
	projects, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	for i := range projects {
		rel, err := filepath.Rel(projects[i].Path, cwd)
		if err == nil && !strings.HasPrefix(rel, "..") {
			e := projects[i]
			return &e, nil
		}
	}
	return nil, nil
}

// SetCurrent writes the ".current" marker file (plain text project name).
func (r *Registry) SetCurrent(name string) error {
	return atomicfile.WriteFile(filepath.Join(r.dir, ".current"), []byte(name), 0o644)
}

// GetCurrentName reads the ".current" marker, or returns "" if unset.
func (r *Registry) GetCurrentName() (string, error) {
	path := filepath.Join(r.dir, ".current")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading current project marker: %v", ckerr.IoError, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// NewID generates a fresh project id (google/uuid, per the teacher's
// identifier convention).
func NewID() string {
	return uuid.NewString()
}
