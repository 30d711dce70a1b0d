// Package router implements the Edge Router Daemon (C15) from
// spec.md §4.9: a long-running watcher over every kernel's storage/
// directory that auto-creates and routes edges as new *.inst
// instances appear, one router per project observing all kernels.
package router

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conceptkernel/ck-core/internal/compliance"
	"github.com/conceptkernel/ck-core/internal/edge"
	"github.com/conceptkernel/ck-core/internal/ontology"
	"github.com/conceptkernel/ck-core/internal/process"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/conceptkernel/ck-core/pkg/cklog"
	"github.com/conceptkernel/ck-core/pkg/util/maps"
)

// Route is one resolved (target, predicate) delivery rule for a
// source kernel, the cached form of its notification contract.
type Route struct {
	Target    string
	Predicate string
}

// Router watches a project's concepts/ tree and routes newly-created
// instance directories according to each source kernel's notification
// contract.
type Router struct {
	conceptsRoot  string
	reader        *ontology.Reader
	edgeKernel    *edge.Kernel
	processes     *process.Tracker
	recordProcess bool

	mu          sync.Mutex
	routeCache  map[string][]Route // kernel name -> routes
	cacheMtimes map[string]time.Time
}

// New returns a Router rooted at projectRoot (containing concepts/).
// When recordProcess is true, one Process record of type "edge-comm"
// is written per routing decision, per spec.md §4.9's optional output.
func New(projectRoot string, edgeKernel *edge.Kernel, recordProcess bool) *Router {
	conceptsRoot := filepath.Join(projectRoot, "concepts")
	return &Router{
		conceptsRoot:  conceptsRoot,
		reader:        ontology.NewReader(projectRoot),
		edgeKernel:    edgeKernel,
		processes:     process.NewTracker(conceptsRoot),
		recordProcess: recordProcess,
		routeCache:    map[string][]Route{},
		cacheMtimes:   map[string]time.Time{},
	}
}

// Watch blocks, watching every kernel's storage/ directory for new
// *.inst directories and routing each one as it appears, until stop is
// closed. The set of watched directories is fixed when Watch starts:
// storage/ directories created afterwards are not watched.
func (r *Router) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: creating filesystem watcher: %v", ckerr.IoError, err)
	}
	defer watcher.Close()

	if err := r.addExistingStorageDirs(watcher); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create) == 0 {
				continue
			}
			r.handleCreate(ev.Name)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cklog.Errorf("router: watcher error: %v", watchErr)
		}
	}
}

func (r *Router) addExistingStorageDirs(watcher *fsnotify.Watcher) error {
	entries, err := os.ReadDir(r.conceptsRoot)
	if err != nil {
		return nil // no concepts/ yet; nothing to watch.
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		storageDir := filepath.Join(r.conceptsRoot, entry.Name(), "storage")
		if info, err := os.Stat(storageDir); err == nil && info.IsDir() {
			_ = watcher.Add(storageDir)
		}
	}
	return nil
}

// handleCreate processes one freshly-created filesystem entry,
// extracting the source kernel name from its path and, if it's a
// *.inst directory, routing it. Errors are logged and isolated so one
// bad entry never blocks the rest of the batch.
func (r *Router) handleCreate(path string) {
	if !strings.HasSuffix(path, ".inst") {
		return
	}
	source, ok := sourceKernelFromPath(path, r.conceptsRoot)
	if !ok {
		cklog.Warningf("router: could not extract source kernel from path %s", path)
		return
	}

	routes, err := r.routesFor(source)
	if err != nil {
		cklog.Errorf("router: loading routes for %s: %v", source, err)
		return
	}

	for _, rt := range routes {
		if err := r.routeOne(source, rt, path); err != nil {
			cklog.Errorf("router: routing %s -> %s (%s): %v", source, rt.Target, rt.Predicate, err)
			compliance.EvidenceRecord(source, rt.Predicate, rt.Target, "failed_route")
			continue
		}
		compliance.EvidenceRecord(source, rt.Predicate, rt.Target, "routed")
	}
}

func (r *Router) routeOne(source string, rt Route, instancePath string) error {
	if _, found, err := r.edgeKernel.GetEdge(rt.Predicate, source); err != nil {
		return err
	} else if !found {
		if _, err := r.edgeKernel.CreateEdge(rt.Predicate, source, rt.Target); err != nil {
			return err
		}
	}

	routed, err := r.edgeKernel.RouteInstance(instancePath, source)
	if err != nil {
		return err
	}

	if r.recordProcess {
		r.recordEdgeComm(source, rt, instancePath, routed)
	}
	return nil
}

func (r *Router) recordEdgeComm(source string, rt Route, instancePath string, routed []string) {
	txID := strings.TrimSuffix(filepath.Base(instancePath), ".inst")
	participants := map[string]any{
		"source":    source,
		"target":    rt.Target,
		"predicate": rt.Predicate,
	}
	proc, err := r.processes.CreateProcess("edge-comm", txID, participants, nil)
	if err != nil {
		cklog.Warningf("router: recording edge-comm process for %s: %v", txID, err)
		return
	}
	if _, err := r.processes.CompleteProcess(proc.Urn, map[string]any{"routed": routed}); err != nil {
		cklog.Warningf("router: completing edge-comm process %s: %v", proc.Urn, err)
	}
}

// routesFor returns the cached (target, predicate) routes for source,
// refreshing the cache when the kernel's manifest has changed since it
// was last read.
func (r *Router) routesFor(source string) ([]Route, error) {
	manifestPath := filepath.Join(r.conceptsRoot, source, "conceptkernel.yaml")
	info, err := os.Stat(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest mtime: %v", ckerr.IoError, err)
	}
	mtime := info.ModTime()

	r.mu.Lock()
	cached := r.routeCache[source]
	haveCache := maps.HasKey(r.routeCache, source)
	cachedAt := r.cacheMtimes[source]
	r.mu.Unlock()
	if haveCache && !mtime.After(cachedAt) {
		return cached, nil
	}

	contract, err := r.reader.ReadNotificationContract(source)
	if err != nil {
		return nil, err
	}
	routes := make([]Route, 0, len(contract))
	for _, entry := range contract {
		predicate := entry.Type
		if predicate == "" {
			predicate = "PRODUCES"
		}
		routes = append(routes, Route{Target: entry.TargetKernel, Predicate: predicate})
	}

	r.mu.Lock()
	r.routeCache[source] = routes
	r.cacheMtimes[source] = mtime
	r.mu.Unlock()
	return routes, nil
}

// sourceKernelFromPath extracts the kernel name K from a path of the
// form <conceptsRoot>/K/storage/<txId>.inst by locating the "storage"
// path component, per spec.md §4.9 step 2.
func sourceKernelFromPath(path, conceptsRoot string) (string, bool) {
	rel, err := filepath.Rel(conceptsRoot, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		if p == "storage" && i > 0 {
			return parts[i-1], true
		}
	}
	return "", false
}
