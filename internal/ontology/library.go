package ontology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conceptkernel/ck-core/internal/ontology/triplestore"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/conceptkernel/ck-core/pkg/cklog"
	"github.com/conceptkernel/ck-core/pkg/ckurn"
)

// BFO class IRIs spec.md §4.4/Glossary names explicitly.
const (
	bfoContinuant     = "bfo:0000002"
	bfoOccurrent      = "bfo:0000003"
	bfoMaterialEntity = "bfo:0000040"
	bfoProcess        = "bfo:0000015"
	bfoRole           = "bfo:0000023"
	bfoFunction       = "bfo:0000034"
)

const rdfType = "rdf:type"

// KernelMetadata is the get_kernel_metadata query result shape.
type KernelMetadata struct {
	Uri         string
	Name        string
	Description string
	Urn         string
	KernelType  string
	Version     string
}

// RoleMetadata is one row of get_kernel_roles.
type RoleMetadata struct {
	Uri     string
	Label   string
	Comment string
	Context string
}

// FunctionMetadata is one row of get_kernel_functions.
type FunctionMetadata struct {
	Uri          string
	Capabilities []string
}

// Library wraps an in-process RDF triplestore (C6), loaded read-only
// after startup: a kernel's graph is loaded once and never mutated.
type Library struct {
	root  string
	store *triplestore.Store
	index *boltIndex
}

// NewLibrary returns a Library rooted at a concepts/ tree, with an
// empty triplestore ready to load kernel graphs into. It opportunistically
// opens the concepts/.ontology/index.bolt warm-restart cache; failure to
// open it (e.g. a read-only filesystem) only disables the cache, it
// never prevents the Library from working by parsing Turtle directly.
func NewLibrary(root string) *Library {
	idx, err := openBoltIndex(root)
	if err != nil {
		cklog.Debugf("ontology index.bolt unavailable, loading Turtle uncached: %v", err)
		idx = nil
	}
	return &Library{root: root, store: triplestore.New(), index: idx}
}

// Close releases index.bolt, if one was opened. Safe to call on a
// Library whose index failed to open.
func (l *Library) Close() error {
	return l.index.close()
}

// graphName implements spec.md §4.4's naming convention: kernel name
// lowercased with dots/underscores folded to dashes.
func graphName(kernelName string) string {
	lowered := strings.ToLower(kernelName)
	lowered = strings.ReplaceAll(lowered, ".", "-")
	lowered = strings.ReplaceAll(lowered, "_", "-")
	return "https://conceptkernel.org/ontology/" + lowered
}

// LoadKernelOntology loads concepts/<name>/ontology.ttl into the
// kernel's named graph. A missing file is a typed OntologyLoadError,
// matching spec.md §4.6's "ontology.ttl missing is fatal". When
// index.bolt holds a still-valid compiled cache for this kernel (its
// stored mtime matches the source file's current mtime), the graph is
// replayed from the cache instead of re-parsing Turtle.
func (l *Library) LoadKernelOntology(name string) (string, error) {
	path := filepath.Join(l.root, "concepts", name, "ontology.ttl")
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: ontology.ttl not found for kernel %s", ckerr.OntologyLoadError, name)
	}
	graph := graphName(name)
	mtime := info.ModTime().UnixNano()

	if l.index != nil {
		if cached, ok := l.index.get(name); ok && cached.SourceModTime == mtime {
			for _, t := range cached.Triples {
				l.store.Add(graph, t.Subject, t.Predicate, t.Object)
			}
			return graph, nil
		}
	}

	if err := l.store.LoadTurtle(path, graph); err != nil {
		return "", fmt.Errorf("%w: %v", ckerr.OntologyParseError, err)
	}

	if l.index != nil {
		triples := l.store.Select(triplestore.Pattern{Graph: graph})
		if err := l.index.put(name, cachedGraph{Graph: graph, SourceModTime: mtime, Triples: triples}); err != nil {
			cklog.Debugf("failed to refresh ontology index.bolt cache for %s: %v", name, err)
		}
	}
	return graph, nil
}

// ProjectOntologyEntry is one listed URN in a .ckproject ontology
// config section.
type ProjectOntologyEntry struct {
	Urn string
}

// LoadFromProjectConfig resolves each listed URN via
// ckurn.ResolveToPath against <root>/concepts/<Kernel>/storage, per
// spec.md §4.4 item 1: "<name>.v<version>.ttl" (version without its
// leading 'v'), loaded into the kernel's named graph.
func (l *Library) LoadFromProjectConfig(entries []ProjectOntologyEntry) error {
	for _, e := range entries {
		parsed, err := ckurn.Parse(e.Urn)
		if err != nil {
			return fmt.Errorf("%w: %v", ckerr.OntologyUrnError, err)
		}
		version := strings.TrimPrefix(parsed.Version, "v")
		filename := fmt.Sprintf("%s.v%s.ttl", parsed.Kernel, version)
		path := filepath.Join(l.root, "concepts", parsed.Kernel, "storage", filename)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: ontology file not found: %s", ckerr.OntologyNotFound, path)
		}
		if err := l.store.LoadTurtle(path, graphName(parsed.Kernel)); err != nil {
			return fmt.Errorf("%w: %v", ckerr.OntologyParseError, err)
		}
	}
	return nil
}

// GetKernelUrn is purely formulaic, no graph lookup required.
func (l *Library) GetKernelUrn(name string) string {
	return fmt.Sprintf("ckp://Continuant#Kernel-%s", name)
}

// GetKernelMetadata reads metadata triples from the kernel's graph.
func (l *Library) GetKernelMetadata(name string) (KernelMetadata, error) {
	graph := graphName(name)
	uri := l.GetKernelUrn(name)
	rows := l.store.Select(triplestore.Pattern{Subject: uri, Graph: graph})
	if len(rows) == 0 {
		return KernelMetadata{}, fmt.Errorf("%w: no metadata found for kernel %s", ckerr.OntologyQueryError, name)
	}
	meta := KernelMetadata{Uri: uri, Urn: uri}
	for _, t := range rows {
		switch t.Predicate.Value {
		case "rdfs:label", "ckp:name":
			meta.Name = t.Object.Value
		case "rdfs:comment", "ckp:description":
			meta.Description = t.Object.Value
		case "ckp:kernelType":
			meta.KernelType = t.Object.Value
		case "ckp:version":
			meta.Version = t.Object.Value
		}
	}
	return meta, nil
}

// GetKernelRoles selects ?role rdf:type bfo:0000023 ; ckp:bearer
// <kernel> ; rdfs:label ?n ; rdfs:comment ?d ; ckp:roleContext ?c.
func (l *Library) GetKernelRoles(name string) ([]RoleMetadata, error) {
	graph := graphName(name)
	uri := l.GetKernelUrn(name)
	bearing := l.store.Select(triplestore.Pattern{Predicate: "ckp:bearer", Object: uri, Graph: graph})

	var roles []RoleMetadata
	for _, b := range bearing {
		roleUri := b.Subject.Value
		if !l.store.Ask(triplestore.Pattern{Subject: roleUri, Predicate: rdfType, Object: bfoRole, Graph: graph}) {
			continue
		}
		rm := RoleMetadata{Uri: roleUri}
		for _, t := range l.store.Select(triplestore.Pattern{Subject: roleUri, Graph: graph}) {
			switch t.Predicate.Value {
			case "rdfs:label":
				rm.Label = t.Object.Value
			case "rdfs:comment":
				rm.Comment = t.Object.Value
			case "ckp:roleContext":
				rm.Context = t.Object.Value
			}
		}
		roles = append(roles, rm)
	}
	return roles, nil
}

// GetKernelFunctions groups ckp:capability triples per function URI
// bearing the kernel.
func (l *Library) GetKernelFunctions(name string) ([]FunctionMetadata, error) {
	graph := graphName(name)
	uri := l.GetKernelUrn(name)
	bearing := l.store.Select(triplestore.Pattern{Predicate: "ckp:bearer", Object: uri, Graph: graph})

	var functions []FunctionMetadata
	for _, b := range bearing {
		funcUri := b.Subject.Value
		if !l.store.Ask(triplestore.Pattern{Subject: funcUri, Predicate: rdfType, Object: bfoFunction, Graph: graph}) {
			continue
		}
		fm := FunctionMetadata{Uri: funcUri}
		for _, t := range l.store.Select(triplestore.Pattern{Subject: funcUri, Predicate: "ckp:capability", Graph: graph}) {
			fm.Capabilities = append(fm.Capabilities, t.Object.Value)
		}
		functions = append(functions, fm)
	}
	return functions, nil
}

func (l *Library) isClass(uri, class, graph string) bool {
	return l.store.Ask(triplestore.Pattern{Subject: uri, Predicate: rdfType, Object: class, Graph: graph})
}

// IsContinuant, IsOccurrent, IsMaterialEntity, IsProcess are BFO
// subclass ASK queries over a kernel's graph.
func (l *Library) IsContinuant(uri, kernelName string) bool {
	return l.isClass(uri, bfoContinuant, graphName(kernelName))
}

func (l *Library) IsOccurrent(uri, kernelName string) bool {
	return l.isClass(uri, bfoOccurrent, graphName(kernelName))
}

func (l *Library) IsMaterialEntity(uri, kernelName string) bool {
	return l.isClass(uri, bfoMaterialEntity, graphName(kernelName))
}

func (l *Library) IsProcess(uri, kernelName string) bool {
	return l.isClass(uri, bfoProcess, graphName(kernelName))
}

// GetBfoClassification returns every BFO class the URI is asserted a
// member of within the kernel's graph.
func (l *Library) GetBfoClassification(uri, kernelName string) []string {
	graph := graphName(kernelName)
	var classes []string
	for _, c := range []string{bfoContinuant, bfoOccurrent, bfoMaterialEntity, bfoProcess, bfoRole, bfoFunction} {
		if l.isClass(uri, c, graph) {
			classes = append(classes, c)
		}
	}
	return classes
}

func (l *Library) processTimes(uri, kernelName string) (start, end string, ok bool) {
	graph := graphName(kernelName)
	starts := l.store.Select(triplestore.Pattern{Subject: uri, Predicate: "ckp:startTime", Graph: graph})
	if len(starts) == 0 {
		return "", "", false
	}
	start = starts[0].Object.Value
	ends := l.store.Select(triplestore.Pattern{Subject: uri, Predicate: "ckp:endTime", Graph: graph})
	if len(ends) > 0 {
		end = ends[0].Object.Value
	}
	return start, end, true
}

// ProcessPrecedes reports whether a's end time is at or before b's
// start time (contiguous processes count as preceding), using ISO-8601
// lexical ordering (valid because ISO-8601 timestamps of equal
// precision order lexically).
func (l *Library) ProcessPrecedes(aUri, bUri, kernelName string) bool {
	_, aEnd, aOk := l.processTimes(aUri, kernelName)
	bStart, _, bOk := l.processTimes(bUri, kernelName)
	if !aOk || !bOk || aEnd == "" {
		return false
	}
	return aEnd <= bStart
}

// ProcessesOverlap reports whether [aStart,aEnd) and [bStart,bEnd)
// intersect. An open-ended process (no end time) is treated as
// ongoing, i.e. overlapping anything that starts after it begins.
func (l *Library) ProcessesOverlap(aUri, bUri, kernelName string) bool {
	aStart, aEnd, aOk := l.processTimes(aUri, kernelName)
	bStart, bEnd, bOk := l.processTimes(bUri, kernelName)
	if !aOk || !bOk {
		return false
	}
	if aEnd == "" {
		aEnd = "9999"
	}
	if bEnd == "" {
		bEnd = "9999"
	}
	return aStart < bEnd && bStart < aEnd
}

// ProcessDuring reports whether a is wholly contained within b's
// temporal region.
func (l *Library) ProcessDuring(aUri, bUri, kernelName string) bool {
	aStart, aEnd, aOk := l.processTimes(aUri, kernelName)
	bStart, bEnd, bOk := l.processTimes(bUri, kernelName)
	if !aOk || !bOk || aEnd == "" || bEnd == "" {
		return false
	}
	return bStart <= aStart && aEnd <= bEnd
}

// GetOverlappingProcesses returns every process URI in the kernel's
// graph whose temporal region overlaps uri's.
func (l *Library) GetOverlappingProcesses(uri, kernelName string) []string {
	graph := graphName(kernelName)
	candidates := l.store.Select(triplestore.Pattern{Predicate: rdfType, Object: bfoProcess, Graph: graph})
	var overlapping []string
	for _, c := range candidates {
		if c.Subject.Value == uri {
			continue
		}
		if l.ProcessesOverlap(uri, c.Subject.Value, kernelName) {
			overlapping = append(overlapping, c.Subject.Value)
		}
	}
	return overlapping
}

// ProcessTimeline is one entry of get_process_timeline.
type ProcessTimeline struct {
	Uri   string
	Start string
	End   string
}

// GetProcessTimeline returns every process in the kernel's graph
// ordered by start time.
func (l *Library) GetProcessTimeline(kernelName string) []ProcessTimeline {
	graph := graphName(kernelName)
	candidates := l.store.Select(triplestore.Pattern{Predicate: rdfType, Object: bfoProcess, Graph: graph})
	var timeline []ProcessTimeline
	for _, c := range candidates {
		start, end, ok := l.processTimes(c.Subject.Value, kernelName)
		if !ok {
			continue
		}
		timeline = append(timeline, ProcessTimeline{Uri: c.Subject.Value, Start: start, End: end})
	}
	for i := 1; i < len(timeline); i++ {
		for j := i; j > 0 && timeline[j-1].Start > timeline[j].Start; j-- {
			timeline[j-1], timeline[j] = timeline[j], timeline[j-1]
		}
	}
	return timeline
}

// GetAgentRoles returns every role URI the agent bears, via
// ckp:hasRole triples in the kernel's graph.
func (l *Library) GetAgentRoles(agentUrn, kernelName string) []string {
	graph := graphName(kernelName)
	var roles []string
	for _, t := range l.store.Select(triplestore.Pattern{Subject: agentUrn, Predicate: "ckp:hasRole", Graph: graph}) {
		roles = append(roles, t.Object.Value)
	}
	return roles
}

// GetRolePermissions returns every permission string a role grants,
// via the join role -ckp:grants-> permission -ckp:permissionString-> string.
func (l *Library) GetRolePermissions(roleUrn, kernelName string) []string {
	graph := graphName(kernelName)
	var perms []string
	joined := l.store.Join(
		triplestore.Pattern{Subject: roleUrn, Predicate: "ckp:grants", Graph: graph},
		"object",
		triplestore.Pattern{Predicate: "ckp:permissionString", Graph: graph},
	)
	for _, pair := range joined {
		perms = append(perms, pair[1].Object.Value)
	}
	return perms
}

// CheckAgentPermission asks whether agent holds a BFO Role granting
// perm, joining ckp:hasRole, bfo:0000023, ckp:grants, ckp:permissionString.
func (l *Library) CheckAgentPermission(agentUrn, perm, kernelName string) bool {
	for _, roleUrn := range l.GetAgentRoles(agentUrn, kernelName) {
		if !l.isClass(roleUrn, bfoRole, graphName(kernelName)) {
			continue
		}
		for _, p := range l.GetRolePermissions(roleUrn, kernelName) {
			if p == perm {
				return true
			}
		}
	}
	return false
}

// GetPermissionQuorum returns the quorum URI required for perm, via
// ckp:quorum on the permission resource, or "" if unset.
func (l *Library) GetPermissionQuorum(perm, kernelName string) string {
	graph := graphName(kernelName)
	rows := l.store.Select(triplestore.Pattern{Predicate: "ckp:permissionString", Object: perm, Graph: graph})
	if len(rows) == 0 {
		return ""
	}
	quorums := l.store.Select(triplestore.Pattern{Subject: rows[0].Subject.Value, Predicate: "ckp:quorum", Graph: graph})
	if len(quorums) == 0 {
		return ""
	}
	return quorums[0].Object.Value
}

// GetAgentPermissions returns the deduplicated union of permissions
// granted by every role the agent holds.
func (l *Library) GetAgentPermissions(agentUrn, kernelName string) []string {
	seen := map[string]bool{}
	var out []string
	for _, roleUrn := range l.GetAgentRoles(agentUrn, kernelName) {
		for _, p := range l.GetRolePermissions(roleUrn, kernelName) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
