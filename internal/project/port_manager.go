package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conceptkernel/ck-core/internal/atomicfile"
	ckutil "github.com/conceptkernel/ck-core/internal/util"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
)

// PortMap is the .ckports file format.
type PortMap struct {
	BasePort    *uint16           `json:"basePort"`
	Allocations map[string]uint16 `json:"allocations"`
}

// PortManager manages a single project's .ckports file and the
// dynamic allocation of ports within its slot's range (C4).
type PortManager struct {
	projectPath string
	portMapPath string
	portMap     PortMap
}

const maxOffset = 199

// NewPortManager loads (or initializes) the .ckports file at the root
// of projectPath.
func NewPortManager(projectPath string) (*PortManager, error) {
	path := filepath.Join(projectPath, ".ckports")
	pm, err := loadPortMap(path)
	if err != nil {
		return nil, err
	}
	return &PortManager{projectPath: projectPath, portMapPath: path, portMap: pm}, nil
}

func loadPortMap(path string) (PortMap, error) {
	empty := PortMap{Allocations: map[string]uint16{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("%w: reading .ckports: %v", ckerr.IoError, err)
	}
	var pm PortMap
	if err := json.Unmarshal(data, &pm); err != nil {
		// Malformed .ckports resets rather than fails, matching the
		// original's tolerant recovery.
		return empty, nil
	}
	if pm.Allocations == nil {
		pm.Allocations = map[string]uint16{}
	}
	return pm, nil
}

func (p *PortManager) save() error {
	data, err := json.MarshalIndent(p.portMap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	return atomicfile.WriteFile(p.portMapPath, data, 0o644)
}

// SetBasePort records the project's base (discovery) port. Required
// before Allocate can compute offsets.
func (p *PortManager) SetBasePort(base uint16) error {
	p.portMap.BasePort = &base
	return p.save()
}

// Allocate returns the port for kernel, allocating one if it doesn't
// already have one. Idempotent: a kernel that already has a port gets
// the same one back. If preferredOffset is non-nil and that offset is
// free and bindable, it's used; otherwise the first free, bindable
// offset in [0, 199] is chosen.
func (p *PortManager) Allocate(kernel string, preferredOffset *int) (uint16, error) {
	if existing, ok := p.portMap.Allocations[kernel]; ok {
		return existing, nil
	}
	if p.portMap.BasePort == nil {
		return 0, fmt.Errorf("%w: base port not set for project", ckerr.PortError)
	}
	base := *p.portMap.BasePort

	used := map[uint16]bool{}
	for _, port := range p.portMap.Allocations {
		used[port] = true
	}

	if preferredOffset != nil {
		port := base + uint16(*preferredOffset)
		if !used[port] && isPortAvailable(port) {
			p.portMap.Allocations[kernel] = port
			if err := p.save(); err != nil {
				return 0, err
			}
			return port, nil
		}
	}

	for offset := 0; offset <= maxOffset; offset++ {
		port := base + uint16(offset)
		if used[port] {
			continue
		}
		if isPortAvailable(port) {
			p.portMap.Allocations[kernel] = port
			if err := p.save(); err != nil {
				return 0, err
			}
			return port, nil
		}
	}

	return 0, fmt.Errorf("%w: no bindable port found in range [%d, %d]", ckerr.PortUnavailable, base, base+maxOffset)
}

// Release removes kernel's allocation, if any.
func (p *PortManager) Release(kernel string) error {
	if _, ok := p.portMap.Allocations[kernel]; !ok {
		return nil
	}
	delete(p.portMap.Allocations, kernel)
	return p.save()
}

// ClearAllocations empties all allocations but preserves BasePort.
func (p *PortManager) ClearAllocations() error {
	p.portMap.Allocations = map[string]uint16{}
	return p.save()
}

// Get returns the currently allocated port for kernel, if any.
func (p *PortManager) Get(kernel string) (uint16, bool) {
	port, ok := p.portMap.Allocations[kernel]
	return port, ok
}

// ReconcileStaleAllocations releases any allocation whose kernel is no
// longer present in activeKernels (e.g. removed from concepts/ since
// the last allocation), returning the released kernel names.
func (p *PortManager) ReconcileStaleAllocations(activeKernels []string) ([]string, error) {
	allocated := make([]string, 0, len(p.portMap.Allocations))
	for name := range p.portMap.Allocations {
		allocated = append(allocated, name)
	}
	stale := ckutil.HashingListSubtract(allocated, activeKernels)
	if len(stale) == 0 {
		return nil, nil
	}
	for _, name := range stale {
		delete(p.portMap.Allocations, name)
	}
	if err := p.save(); err != nil {
		return nil, err
	}
	return stale, nil
}
