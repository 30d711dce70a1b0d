// Package continuant implements the Continuant Tracker (C10) from
// spec.md §4.8: kernel and agent entity persistence, role/function
// assignment, participation recording, and RBAC-supporting queries.
package continuant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conceptkernel/ck-core/internal/atomicfile"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/gosimple/slug"
)

// Role is an assigned role on a continuant.
type Role struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	AssignedAt  string         `json:"assigned_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Context     string         `json:"context,omitempty"`
}

// Function is an assigned function on a kernel continuant.
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	AssignedAt  string         `json:"assigned_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Participation records a continuant's role within a process.
type Participation struct {
	ProcessUrn   string         `json:"process_urn"`
	RoleInProcess string        `json:"role_in_process"`
	Timestamp    string         `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// KernelEntity is the Continuant record for a kernel.
type KernelEntity struct {
	Urn            string          `json:"urn"`
	KernelName     string          `json:"kernel_name"`
	Version        string          `json:"version"`
	KernelType     string          `json:"kernel_type"`
	BfoType        string          `json:"bfo_type"`
	Roles          []Role          `json:"roles"`
	Functions      []Function      `json:"functions"`
	Participations []Participation `json:"participations"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// AgentEntity is the Continuant record for an agent.
type AgentEntity struct {
	Urn            string          `json:"urn"`
	AgentType      string          `json:"agent_type"`
	Identifier     string          `json:"identifier"`
	Roles          []Role          `json:"roles"`
	Participations []Participation `json:"participations"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// Tracker manages continuant records rooted at concepts/.continuants/.
type Tracker struct {
	root string
}

// NewTracker returns a Tracker rooted at the concepts directory.
func NewTracker(conceptsRoot string) *Tracker {
	return &Tracker{root: conceptsRoot}
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func kernelUrn(name string) string {
	return fmt.Sprintf("ckp://Continuant#Kernel-%s", name)
}

func agentUrn(identifier string) string {
	return fmt.Sprintf("ckp://Continuant#Agent-%s", identifier)
}

// sanitizeIdentifier slugifies an agent identifier (which may be a
// URN containing '/' and ':') into a safe, deterministic filename
// component, per spec.md §4.8.
func sanitizeIdentifier(identifier string) string {
	return slug.Make(strings.NewReplacer("/", "_", ":", "_").Replace(identifier))
}

func (t *Tracker) kernelPath(name string) string {
	return filepath.Join(t.root, ".continuants", "kernels", name+".json")
}

func (t *Tracker) agentPath(identifier string) string {
	return filepath.Join(t.root, ".continuants", "agents", sanitizeIdentifier(identifier)+".json")
}

// CreateKernelEntity creates (or overwrites) a kernel continuant record.
func (t *Tracker) CreateKernelEntity(name, version, kernelType, bfoType string, metadata map[string]any) (*KernelEntity, error) {
	e := &KernelEntity{
		Urn:        kernelUrn(name),
		KernelName: name,
		Version:    version,
		KernelType: kernelType,
		BfoType:    bfoType,
		Metadata:   metadata,
		CreatedAt:  nowISO(),
	}
	if err := t.saveKernel(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (t *Tracker) saveKernel(e *KernelEntity) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	return atomicfile.WriteFile(t.kernelPath(e.KernelName), data, 0o644)
}

// GetKernelEntity loads a kernel continuant record by name.
func (t *Tracker) GetKernelEntity(name string) (*KernelEntity, error) {
	data, err := os.ReadFile(t.kernelPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: kernel entity %q not found", ckerr.FileNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	var e KernelEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	return &e, nil
}

// CreateAgent creates (or overwrites) an agent continuant record.
func (t *Tracker) CreateAgent(agentType, identifier string, metadata map[string]any) (*AgentEntity, error) {
	e := &AgentEntity{
		Urn:        agentUrn(identifier),
		AgentType:  agentType,
		Identifier: identifier,
		Metadata:   metadata,
		CreatedAt:  nowISO(),
	}
	if err := t.saveAgent(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (t *Tracker) saveAgent(e *AgentEntity) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	return atomicfile.WriteFile(t.agentPath(e.Identifier), data, 0o644)
}

func (t *Tracker) getAgent(identifier string) (*AgentEntity, error) {
	data, err := os.ReadFile(t.agentPath(identifier))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: agent %q not found", ckerr.FileNotFound, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	var e AgentEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	return &e, nil
}

// entityKind distinguishes which on-disk tree a URN's mutation targets.
func entityKindOf(urn string) (kind string, key string, err error) {
	switch {
	case strings.HasPrefix(urn, "ckp://Continuant#Kernel-"):
		return "kernel", strings.TrimPrefix(urn, "ckp://Continuant#Kernel-"), nil
	case strings.HasPrefix(urn, "ckp://Continuant#Agent-"):
		return "agent", strings.TrimPrefix(urn, "ckp://Continuant#Agent-"), nil
	default:
		return "", "", fmt.Errorf("%w: unrecognized continuant URN %q", ckerr.UrnParse, urn)
	}
}

// AssignRole appends role to the continuant identified by urn
// (read-modify-write; roles are append-only).
func (t *Tracker) AssignRole(urn string, role Role) error {
	if role.AssignedAt == "" {
		role.AssignedAt = nowISO()
	}
	kind, key, err := entityKindOf(urn)
	if err != nil {
		return err
	}
	switch kind {
	case "kernel":
		e, err := t.GetKernelEntity(key)
		if err != nil {
			return err
		}
		e.Roles = append(e.Roles, role)
		return t.saveKernel(e)
	default:
		e, err := t.getAgent(key)
		if err != nil {
			return err
		}
		e.Roles = append(e.Roles, role)
		return t.saveAgent(e)
	}
}

// AssignFunction appends fn to the kernel entity identified by kernelUrn.
func (t *Tracker) AssignFunction(kernelUrnStr string, fn Function) error {
	kind, key, err := entityKindOf(kernelUrnStr)
	if err != nil {
		return err
	}
	if kind != "kernel" {
		return fmt.Errorf("%w: functions may only be assigned to kernel continuants", ckerr.ValidationError)
	}
	if fn.AssignedAt == "" {
		fn.AssignedAt = nowISO()
	}
	e, err := t.GetKernelEntity(key)
	if err != nil {
		return err
	}
	e.Functions = append(e.Functions, fn)
	return t.saveKernel(e)
}

// RecordParticipation appends a participation record to the
// continuant identified by urn (must reference an existing process
// URN per spec.md's invariant — enforced by the caller).
func (t *Tracker) RecordParticipation(urn, processUrn, roleInProcess string, metadata map[string]any) error {
	p := Participation{ProcessUrn: processUrn, RoleInProcess: roleInProcess, Timestamp: nowISO(), Metadata: metadata}
	kind, key, err := entityKindOf(urn)
	if err != nil {
		return err
	}
	switch kind {
	case "kernel":
		e, err := t.GetKernelEntity(key)
		if err != nil {
			return err
		}
		e.Participations = append(e.Participations, p)
		return t.saveKernel(e)
	default:
		e, err := t.getAgent(key)
		if err != nil {
			return err
		}
		e.Participations = append(e.Participations, p)
		return t.saveAgent(e)
	}
}

// ListKernelEntities enumerates every kernel continuant record.
func (t *Tracker) ListKernelEntities() ([]KernelEntity, error) {
	dir := filepath.Join(t.root, ".continuants", "kernels")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	var out []KernelEntity
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			continue
		}
		var e KernelEntity
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *Tracker) listAgentEntities() ([]AgentEntity, error) {
	dir := filepath.Join(t.root, ".continuants", "agents")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	var out []AgentEntity
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			continue
		}
		var e AgentEntity
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// QueryKernelsByRole returns every kernel entity bearing roleName.
func (t *Tracker) QueryKernelsByRole(roleName string) ([]KernelEntity, error) {
	all, err := t.ListKernelEntities()
	if err != nil {
		return nil, err
	}
	var out []KernelEntity
	for _, e := range all {
		for _, r := range e.Roles {
			if r.Name == roleName {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// QueryAgentsByRole returns every agent entity bearing roleName.
func (t *Tracker) QueryAgentsByRole(roleName string) ([]AgentEntity, error) {
	all, err := t.listAgentEntities()
	if err != nil {
		return nil, err
	}
	var out []AgentEntity
	for _, e := range all {
		for _, r := range e.Roles {
			if r.Name == roleName {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// QueryParticipants returns every continuant (kernel or agent) that
// participated in processUrn, alongside its participation record.
func (t *Tracker) QueryParticipants(processUrn string) ([]Participation, error) {
	var out []Participation
	kernels, err := t.ListKernelEntities()
	if err != nil {
		return nil, err
	}
	for _, e := range kernels {
		for _, p := range e.Participations {
			if p.ProcessUrn == processUrn {
				out = append(out, p)
			}
		}
	}
	agents, err := t.listAgentEntities()
	if err != nil {
		return nil, err
	}
	for _, e := range agents {
		for _, p := range e.Participations {
			if p.ProcessUrn == processUrn {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// GetKernelRoles returns the role names a kernel bears, used by RBAC.
func (t *Tracker) GetKernelRoles(kernelName string) ([]string, error) {
	e, err := t.GetKernelEntity(kernelName)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(e.Roles))
	for i, r := range e.Roles {
		names[i] = r.Name
	}
	return names, nil
}
