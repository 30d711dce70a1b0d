// Package edge implements the Edge Request Builder (C7) and Edge
// Kernel runtime (C8) from spec.md §4.5: notification-contract-driven
// .edgereq generation, edge directory management, and symlink-based
// instance routing.
package edge

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conceptkernel/ck-core/internal/atomicfile"
	"github.com/conceptkernel/ck-core/internal/compliance"
	"github.com/conceptkernel/ck-core/internal/ontology"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/conceptkernel/ck-core/pkg/cklog"
	yaml "go.yaml.in/yaml/v3"
)

// Metadata is the persisted edgekernel.yaml shape: only apiVersion,
// kind, urn and createdAt are serialized — predicate/source/target/
// version are re-derived from the URN on load, per spec.md §4.5/§8.
type Metadata struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Urn        string `yaml:"urn"`
	CreatedAt  string `yaml:"createdAt"`

	// Derived, not serialized.
	Predicate string `yaml:"-"`
	Source    string `yaml:"-"`
	Target    string `yaml:"-"`
	Version   string `yaml:"-"`
}

// deriveFromUrn re-parses predicate/source/target/version from m.Urn,
// the on-load half of the to_yaml/from_yaml round trip spec.md §8
// describes.
func (m *Metadata) deriveFromUrn() error {
	rest := strings.TrimPrefix(m.Urn, "ckp://Edge.")
	version := ""
	if idx := strings.LastIndex(rest, ":"); idx >= 0 && strings.HasPrefix(rest[idx+1:], "v") {
		version = rest[idx+1:]
		rest = rest[:idx]
	}
	dot := strings.Index(rest, ".")
	if dot < 0 {
		return fmt.Errorf("%w: malformed edge URN %q", ckerr.UrnParse, m.Urn)
	}
	predicate := rest[:dot]
	sourceTarget := rest[dot+1:]
	sep := strings.Index(sourceTarget, "-to-")
	if sep < 0 {
		return fmt.Errorf("%w: malformed edge URN %q", ckerr.UrnParse, m.Urn)
	}
	m.Predicate = predicate
	m.Source = sourceTarget[:sep]
	m.Target = sourceTarget[sep+len("-to-"):]
	m.Version = version
	return nil
}

// Kernel manages the edge-kernel runtime rooted at a concepts
// directory: concepts/.edges/<PRED>.<Source>/ storage, and
// concepts/<target>/queue/edges/<PRED>.<Source>/ delivery queues.
type Kernel struct {
	root          string
	edgeVersion   string // e.g. "v1.3.16"; empty disables edge versioning.
	edgeVersioning bool
}

// NewKernel returns an edge Kernel. When versioning is true, newly
// created edges are stamped with edgeVersion.
func NewKernel(conceptsRoot, edgeVersion string, versioning bool) *Kernel {
	return &Kernel{root: conceptsRoot, edgeVersion: edgeVersion, edgeVersioning: versioning}
}

// storageDirName implements the documented (predicate, source)-only
// storage key (not (predicate, source, target)): spec.md §9 notes this
// means the edgekernel.yaml on disk reflects whichever target was most
// recently created for that (predicate, source) pair, even though
// every target is still routed correctly via its own symlink. Preserve.
func storageDirName(predicate, source string) string {
	return predicate + "." + source
}

func (k *Kernel) edgeDir(predicate, source string) string {
	return filepath.Join(k.root, ".edges", storageDirName(predicate, source))
}

func (k *Kernel) manifestPath(predicate, source string) string {
	return filepath.Join(k.edgeDir(predicate, source), "edgekernel.yaml")
}

// GetEdge reads and parses edgekernel.yaml for (predicate, source), if
// present.
func (k *Kernel) GetEdge(predicate, source string) (*Metadata, bool, error) {
	path := k.manifestPath(predicate, source)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ckerr.ParseError, err)
	}
	if err := m.deriveFromUrn(); err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

// CreateEdge creates the edge directory and its edgekernel.yaml,
// stamping the configured edge version onto the URN when versioning
// is enabled.
func (k *Kernel) CreateEdge(predicate, source, target string) (*Metadata, error) {
	urn := fmt.Sprintf("ckp://Edge.%s.%s-to-%s", predicate, source, target)
	if k.edgeVersioning && k.edgeVersion != "" {
		urn += ":" + k.edgeVersion
	}
	m := &Metadata{
		APIVersion: "conceptkernel/v1",
		Kind:       "Edge",
		Urn:        urn,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.deriveFromUrn(); err != nil {
		return nil, err
	}

	dir := k.edgeDir(predicate, source)
	if err := os.MkdirAll(filepath.Join(dir, "queue", "inbox"), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating edge directory: %v", ckerr.IoError, err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.ParseError, err)
	}
	if err := atomicfile.WriteFile(k.manifestPath(predicate, source), data, 0o644); err != nil {
		return nil, fmt.Errorf("%w: writing edgekernel.yaml: %v", ckerr.IoError, err)
	}
	return m, nil
}

// ListAllEdges enumerates every edge directory under concepts/.edges/.
func (k *Kernel) ListAllEdges() ([]Metadata, error) {
	dir := filepath.Join(k.root, ".edges")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	var out []Metadata
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		path := filepath.Join(dir, de.Name(), "edgekernel.yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var m Metadata
		if err := yaml.Unmarshal(data, &m); err != nil {
			continue
		}
		if err := m.deriveFromUrn(); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// RouteInstance symlinks instancePath into every target's
// queue/edges/<PRED>.<source>/ directory, for every known edge whose
// source matches source. Returns the created target paths. A name
// collision (an existing entry at the destination) fails loudly rather
// than silently overwriting, per spec.md §4.5's invariant.
func (k *Kernel) RouteInstance(instancePath, source string) ([]string, error) {
	edges, err := k.ListAllEdges()
	if err != nil {
		return nil, err
	}
	absInstance, err := filepath.Abs(instancePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	base := filepath.Base(absInstance)

	var routed []string
	for _, m := range edges {
		if m.Source != source {
			continue
		}
		queueDir := filepath.Join(k.root, m.Target, "queue", "edges", storageDirName(m.Predicate, m.Source))
		if err := os.MkdirAll(queueDir, 0o755); err != nil {
			return routed, fmt.Errorf("%w: creating target queue directory: %v", ckerr.IoError, err)
		}
		linkPath := filepath.Join(queueDir, base)
		if _, err := os.Lstat(linkPath); err == nil {
			return routed, fmt.Errorf("%w: routing destination already exists: %s", ckerr.ValidationError, linkPath)
		}
		if err := os.Symlink(absInstance, linkPath); err != nil {
			return routed, fmt.Errorf("%w: creating edge symlink: %v", ckerr.IoError, err)
		}
		routed = append(routed, linkPath)
	}
	return routed, nil
}

// EdgeRequest is the JSON shape of a <txId>.edgereq job written into
// an edge kernel's queue/inbox/.
type EdgeRequest struct {
	RequestID string         `json:"requestId"`
	Source    EndpointPair   `json:"source"`
	Target    EndpointPair   `json:"target"`
	Type      string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// EndpointPair names a kernel+instance or kernel+queue endpoint.
type EndpointPair struct {
	Kernel string `json:"kernel"`
	Queue  string `json:"queue,omitempty"`
}

func newTxID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return time.Now().Format("060102150405.0")[:13] + hex.EncodeToString(buf)
}

// BuildRequests implements the Edge Request Builder (C7): for each
// notification contract entry, derive the edge kernel, skip with a
// logged warning if its inbox doesn't exist, otherwise write a
// <txId>.edgereq job. A failure on one entry is logged and does not
// abort the batch.
func BuildRequests(conceptsRoot, sourceKernel, sourceInstancePath string, contract []ontology.NotificationContract) {
	for _, entry := range contract {
		predicate := entry.Type
		if predicate == "" {
			predicate = "PRODUCES"
		}
		target := entry.TargetKernel
		edgeKernelName := storageDirName(predicate, sourceKernel)
		inbox := filepath.Join(conceptsRoot, ".edges", edgeKernelName, "queue", "inbox")
		if _, err := os.Stat(inbox); err != nil {
			cklog.Warningf("edge request builder: skipping %s (inbox %s missing): %v", edgeKernelName, inbox, err)
			compliance.EvidenceRecord(sourceKernel, predicate, target, "skipped_missing_inbox")
			continue
		}

		txID := newTxID()
		req := EdgeRequest{
			RequestID: txID,
			Source: EndpointPair{
				Kernel: fmt.Sprintf("ckp://%s", sourceKernel),
				Queue:  fmt.Sprintf("ckp://%s#%s", sourceKernel, filepath.Base(sourceInstancePath)),
			},
			Target: EndpointPair{
				Kernel: fmt.Sprintf("ckp://%s", target),
				Queue:  fmt.Sprintf("ckp://%s#inbox", target),
			},
			Type:       predicate,
			Properties: map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
		}
		if props, ok := entry.Properties.(map[string]any); ok {
			for k, v := range props {
				req.Properties[k] = v
			}
		}

		data, err := json.MarshalIndent(req, "", "  ")
		if err != nil {
			cklog.Errorf("edge request builder: marshaling request for %s: %v", edgeKernelName, err)
			compliance.EvidenceRecord(sourceKernel, predicate, target, "failed_marshal")
			continue
		}
		path := filepath.Join(inbox, txID+".edgereq")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			cklog.Errorf("edge request builder: writing %s: %v", path, err)
			compliance.EvidenceRecord(sourceKernel, predicate, target, "failed_write")
			continue
		}
		compliance.EvidenceRecord(sourceKernel, predicate, target, "written")
	}
}
