// Package ontology implements the kernel manifest reader (C5) and,
// alongside internal/ontology/triplestore, the RDF/SPARQL-subset
// library (C6) from spec.md §4.3-§4.4: parsing conceptkernel.yaml
// manifests and answering authorization/metadata queries over them.
package ontology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conceptkernel/ck-core/pkg/ckerr"
	yaml "go.yaml.in/yaml/v3"
)

// Ontology is the full conceptkernel.yaml document.
type Ontology struct {
	APIVersion   string         `yaml:"apiVersion"`
	Kind         string         `yaml:"kind"`
	Metadata     Metadata       `yaml:"metadata"`
	Spec         *Spec          `yaml:"spec,omitempty"`
	Capabilities []string       `yaml:"capabilities,omitempty"`
	Annotations  map[string]any `yaml:"annotations,omitempty"`
	Interfaces   []string       `yaml:"interfaces,omitempty"`
	Boundaries   []string       `yaml:"boundaries,omitempty"`
	Notes        []string       `yaml:"notes,omitempty"`
	Governance   any            `yaml:"governance,omitempty"`
}

// Metadata describes the kernel identity. Supports both the preferred
// URN form (metadata.urn) and the legacy name+version form.
type Metadata struct {
	Urn         string   `yaml:"urn,omitempty"`
	Name        string   `yaml:"name,omitempty"`
	KernelType  string   `yaml:"type"`
	Version     string   `yaml:"version,omitempty"`
	Port        *uint16  `yaml:"port,omitempty"`
	Entrypoint  string   `yaml:"entrypoint,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Authors     []string `yaml:"authors,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// GetUrn returns metadata.urn if present, otherwise constructs one
// from name+version, falling back to the bare name, then "unknown".
func (m Metadata) GetUrn() string {
	if m.Urn != "" {
		return m.Urn
	}
	if m.Name != "" && m.Version != "" {
		return fmt.Sprintf("ckp://%s:%s", m.Name, m.Version)
	}
	if m.Name != "" {
		return m.Name
	}
	return "unknown"
}

// GetName returns the kernel name without its version, extracted from
// the URN when only a URN is present.
func (m Metadata) GetName() string {
	if m.Urn != "" {
		rest := strings.TrimPrefix(m.Urn, "ckp://")
		if idx := strings.Index(rest, ":"); idx >= 0 {
			return rest[:idx]
		}
		return m.Urn
	}
	if m.Name != "" {
		return m.Name
	}
	return "unknown"
}

// Spec is the manifest's spec section.
type Spec struct {
	Description          string                 `yaml:"description,omitempty"`
	QueueContract         *QueueContract         `yaml:"queue_contract,omitempty"`
	StorageContract       *StorageContract       `yaml:"storage_contract,omitempty"`
	NotificationContract  []NotificationContract `yaml:"notification_contract,omitempty"`
	Rbac                  *Rbac                  `yaml:"rbac,omitempty"`
	DeployContract        *DeployContract        `yaml:"deploy_contract,omitempty"`
	Cli                   *CliContract           `yaml:"cli,omitempty"`
}

// CliContract exposes a kernel's operations as dynamic CLI subcommands.
type CliContract struct {
	Expose      bool             `yaml:"expose"`
	Primary     string           `yaml:"primary"`
	Aliases     []string         `yaml:"aliases,omitempty"`
	Description string           `yaml:"description,omitempty"`
	Subcommands []CliSubcommand  `yaml:"subcommands,omitempty"`
}

// CliSubcommand maps a subcommand name to a contracts.invocation action.
type CliSubcommand struct {
	Name   string `yaml:"name"`
	Action string `yaml:"action"`
}

// DeployContract describes deployment-time placement hints.
type DeployContract struct {
	Type        string `yaml:"type,omitempty"`
	Port        *uint16 `yaml:"port,omitempty"`
	UiEndpoint  string `yaml:"ui_endpoint,omitempty"`
}

// QueueContract lists authorized incoming edges.
type QueueContract struct {
	Edges    []EdgeEntry `yaml:"edges,omitempty"`
	Manifest []any       `yaml:"manifest,omitempty"`
}

// EdgeEntry is either a bare URN string or an {edge_urn|urn} object;
// the YAML shape is a union, resolved in UnmarshalYAML.
type EdgeEntry struct {
	Urn    string
	EdgeUrn string
}

// UnmarshalYAML accepts either a scalar URN string or a mapping with
// edge_urn/urn keys, mirroring the original's untagged enum.
func (e *EdgeEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Urn = node.Value
		return nil
	}
	var obj struct {
		EdgeUrn string `yaml:"edge_urn"`
		Urn     string `yaml:"urn"`
	}
	if err := node.Decode(&obj); err != nil {
		return err
	}
	e.EdgeUrn = obj.EdgeUrn
	e.Urn = obj.Urn
	return nil
}

// Resolved returns the effective URN for this edge entry: the bare
// string form, or edge_urn, or urn, in that order.
func (e EdgeEntry) Resolved() (string, bool) {
	if e.Urn != "" {
		return e.Urn, true
	}
	if e.EdgeUrn != "" {
		return e.EdgeUrn, true
	}
	return "", false
}

// StorageContract describes the shape of an instance's result payload.
type StorageContract struct {
	Result any `yaml:"result,omitempty"`
}

// NotificationContract is one outgoing-notification rule.
type NotificationContract struct {
	TargetKernel string `yaml:"target_kernel"`
	Queue        string `yaml:"queue"`
	EdgeUrn      string `yaml:"edge_urn,omitempty"`
	Type         string `yaml:"type,omitempty"`
	Properties   any    `yaml:"properties,omitempty"`
}

// Rbac is the kernel's access-control configuration.
type Rbac struct {
	Communication    *Communication `yaml:"communication,omitempty"`
	Consensus        any            `yaml:"consensus,omitempty"`
	SelfImprovement  any            `yaml:"self_improvement,omitempty"`
	Git              any            `yaml:"git,omitempty"`
}

// Communication holds allow/deny pattern lists for edge authorization.
type Communication struct {
	Allowed []string `yaml:"allowed,omitempty"`
	Denied  []string `yaml:"denied,omitempty"`
}

// KernelInfo is one list_all summary row.
type KernelInfo struct {
	Name        string
	Urn         string
	KernelType  string
	Version     string
	Description string
	Path        string
}

// Reader reads conceptkernel.yaml manifests rooted at a concepts/ tree.
type Reader struct {
	root string
}

// NewReader returns a Reader rooted at root, whose concepts/ subdirectory
// holds one directory per kernel.
func NewReader(root string) *Reader {
	return &Reader{root: root}
}

// Read parses the manifest at ontologyPath. Fails if neither
// metadata.urn nor metadata.name is set.
func (r *Reader) Read(ontologyPath string) (*Ontology, error) {
	if _, err := os.Stat(ontologyPath); err != nil {
		return nil, fmt.Errorf("%w: ontology file not found: %s", ckerr.Ontology, ontologyPath)
	}
	data, err := os.ReadFile(ontologyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading ontology file: %v", ckerr.Ontology, err)
	}
	var o Ontology
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("%w: parsing ontology YAML: %v", ckerr.Ontology, err)
	}
	if o.Metadata.Urn == "" && o.Metadata.Name == "" {
		return nil, fmt.Errorf("%w: invalid ontology format: missing both metadata.urn and metadata.name", ckerr.Ontology)
	}
	return &o, nil
}

func (r *Reader) manifestPath(kernelName string) string {
	return filepath.Join(r.root, "concepts", kernelName, "conceptkernel.yaml")
}

// ReadByKernelName reads <root>/concepts/<kernelName>/conceptkernel.yaml.
func (r *Reader) ReadByKernelName(kernelName string) (*Ontology, error) {
	return r.Read(r.manifestPath(kernelName))
}

// ReadEdges returns the kernel's authorized incoming edge URNs,
// normalizing both string and object EdgeEntry shapes.
func (r *Reader) ReadEdges(kernelName string) ([]string, error) {
	o, err := r.ReadByKernelName(kernelName)
	if err != nil {
		return nil, err
	}
	if o.Spec == nil || o.Spec.QueueContract == nil {
		return nil, nil
	}
	var urns []string
	for _, e := range o.Spec.QueueContract.Edges {
		if u, ok := e.Resolved(); ok {
			urns = append(urns, u)
		}
	}
	return urns, nil
}

// IsEdgeAuthorized decides whether edgeUrn may deliver into kernelName,
// per spec.md §4.3: RBAC denylist first (deny wins), then RBAC
// allowlist (allow wins), then queue_contract.edges as a fallback.
// Both layers support exact match and "prefix*" / "*" wildcards; the
// edge-list fallback additionally supports a single embedded "*"
// anywhere in the pattern (prefix*suffix).
func (r *Reader) IsEdgeAuthorized(kernelName, edgeUrn string) (bool, error) {
	rbac, err := r.ReadRbac(kernelName)
	if err != nil {
		return false, err
	}
	if rbac != nil && rbac.Communication != nil {
		for _, pattern := range rbac.Communication.Denied {
			if matchesDenyAllow(pattern, edgeUrn) {
				return false, nil
			}
		}
		for _, pattern := range rbac.Communication.Allowed {
			if matchesDenyAllow(pattern, edgeUrn) {
				return true, nil
			}
		}
	}

	edges, err := r.ReadEdges(kernelName)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		if edge == edgeUrn {
			return true, nil
		}
		if matchesEmbeddedWildcard(edge, edgeUrn) {
			return true, nil
		}
	}
	return false, nil
}

func matchesDenyAllow(pattern, urn string) bool {
	if pattern == "*" || pattern == urn {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(urn, prefix)
	}
	return false
}

func matchesEmbeddedWildcard(pattern, urn string) bool {
	if !strings.Contains(pattern, "*") {
		return false
	}
	parts := strings.Split(pattern, "*")
	if len(parts) != 2 {
		return false
	}
	return strings.HasPrefix(urn, parts[0]) && strings.HasSuffix(urn, parts[1])
}

// ReadRbac returns the kernel's RBAC configuration, or nil if absent.
func (r *Reader) ReadRbac(kernelName string) (*Rbac, error) {
	o, err := r.ReadByKernelName(kernelName)
	if err != nil {
		return nil, err
	}
	if o.Spec == nil {
		return nil, nil
	}
	return o.Spec.Rbac, nil
}

// ReadNotificationContract returns the kernel's outgoing notification
// rules, or an empty slice if none are declared.
func (r *Reader) ReadNotificationContract(kernelName string) ([]NotificationContract, error) {
	o, err := r.ReadByKernelName(kernelName)
	if err != nil {
		return nil, err
	}
	if o.Spec == nil {
		return nil, nil
	}
	return o.Spec.NotificationContract, nil
}

// ReadMetadata returns the kernel's metadata block.
func (r *Reader) ReadMetadata(kernelName string) (Metadata, error) {
	o, err := r.ReadByKernelName(kernelName)
	if err != nil {
		return Metadata{}, err
	}
	return o.Metadata, nil
}

// ReadCapabilities returns the kernel's free-form capability tags.
func (r *Reader) ReadCapabilities(kernelName string) ([]string, error) {
	o, err := r.ReadByKernelName(kernelName)
	if err != nil {
		return nil, err
	}
	return o.Capabilities, nil
}

// ListAll enumerates every kernel under concepts/ that has a readable
// manifest. Unreadable manifests are skipped silently; no per-kernel
// error is returned or logged.
func (r *Reader) ListAll() ([]KernelInfo, error) {
	conceptsDir := filepath.Join(r.root, "concepts")
	entries, err := os.ReadDir(conceptsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading concepts directory: %v", ckerr.IoError, err)
	}

	var kernels []KernelInfo
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		name := de.Name()
		manifestPath := filepath.Join(conceptsDir, name, "conceptkernel.yaml")
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		o, err := r.Read(manifestPath)
		if err != nil {
			continue
		}
		kernels = append(kernels, KernelInfo{
			Name:        name,
			Urn:         o.Metadata.GetUrn(),
			KernelType:  o.Metadata.KernelType,
			Version:     o.Metadata.Version,
			Description: o.Metadata.Description,
			Path:        filepath.Join(conceptsDir, name),
		})
	}
	return kernels, nil
}

// ReadAllCapabilitiesIndex builds a capability -> []kernel_name reverse
// index across ListAll (informational only). The kernel manager's
// StartAll does not call it.
func (r *Reader) ReadAllCapabilitiesIndex() (map[string][]string, error) {
	kernels, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	index := map[string][]string{}
	for _, k := range kernels {
		caps, err := r.ReadCapabilities(k.Name)
		if err != nil {
			continue
		}
		for _, c := range caps {
			index[c] = append(index[c], k.Name)
		}
	}
	return index, nil
}
