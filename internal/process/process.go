// Package process implements the Process Tracker (C9) from spec.md
// §4.8: creating, phasing, completing and querying BFO-Occurrent
// process records with provenance, plus their statistics/analytics
// surface.
package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/conceptkernel/ck-core/internal/atomicfile"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
)

// TemporalPart is one phase transition recorded against a process.
type TemporalPart struct {
	Phase     string `json:"phase"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// TemporalRegion spans every temporal part of a process.
type TemporalRegion struct {
	Start      string `json:"start"`
	End        string `json:"end,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
}

// Process is a BFO-Occurrent record: §4.8's on-disk Process shape.
type Process struct {
	Urn            string         `json:"urn"`
	Type           string         `json:"type"`
	TxID           string         `json:"txId"`
	Participants   map[string]any `json:"participants"`
	TemporalParts  []TemporalPart `json:"temporal_parts"`
	TemporalRegion TemporalRegion `json:"temporal_region"`
	Status         string         `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	Result         any            `json:"result,omitempty"`
	Error          any            `json:"error,omitempty"`
}

// Controlled phase/status vocabulary, spec.md §4.9.
const (
	PhaseAccepted  = "accepted"
	PhaseProcessing = "processing"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"

	StatusCreated    = "created"
	StatusAccepted   = PhaseAccepted
	StatusProcessing = PhaseProcessing
	StatusCompleted  = PhaseCompleted
	StatusFailed     = PhaseFailed
)

// processUrnRegex is deliberately non-greedy on the type segment,
// matching the original implementation's documented quirk (it splits
// hyphenated types like "edge-comm" at the first hyphen) — preserved
// per spec.md §9's instruction not to second-guess intentional-looking
// original behavior.
var processUrnRegex = regexp.MustCompile(`^ckp://Process#([^-]+)-(.+)$`)

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Tracker manages process records rooted at concepts/.processes/<type>/<txId>.json.
type Tracker struct {
	root string // concepts root
}

// NewTracker returns a Tracker rooted at the concepts directory.
func NewTracker(conceptsRoot string) *Tracker {
	return &Tracker{root: conceptsRoot}
}

func (t *Tracker) dir(processType string) string {
	return filepath.Join(t.root, ".processes", processType)
}

func (t *Tracker) path(processType, txID string) string {
	return filepath.Join(t.dir(processType), txID+".json")
}

// CreateProcess initializes a new process record with status="created"
// and an open temporal region.
func (t *Tracker) CreateProcess(processType, txID string, participants map[string]any, metadata map[string]any) (*Process, error) {
	now := nowISO()
	p := &Process{
		Urn:            fmt.Sprintf("ckp://Process#%s-%s", processType, txID),
		Type:           processType,
		TxID:           txID,
		Participants:   participants,
		TemporalParts:  []TemporalPart{},
		TemporalRegion: TemporalRegion{Start: now},
		Status:         StatusCreated,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// parseUrn decomposes a Process URN into (type, txID).
func parseUrn(urn string) (processType, txID string, err error) {
	m := processUrnRegex.FindStringSubmatch(urn)
	if m == nil {
		return "", "", fmt.Errorf("%w: malformed process URN %q", ckerr.UrnParse, urn)
	}
	return m[1], m[2], nil
}

// LoadProcess reads a process record by URN.
func (t *Tracker) LoadProcess(urn string) (*Process, error) {
	processType, txID, err := parseUrn(urn)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(t.path(processType, txID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: process %q not found", ckerr.FileNotFound, urn)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading process record: %v", ckerr.IoError, err)
	}
	var p Process
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	return &p, nil
}

func (t *Tracker) save(p *Process) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	return atomicfile.WriteFile(t.path(p.Type, p.TxID), data, 0o644)
}

// AddTemporalPart appends a phase transition, updates status, and on
// a terminal phase closes the temporal region and computes duration_ms.
func (t *Tracker) AddTemporalPart(urn, phase string, data any) (*Process, error) {
	p, err := t.LoadProcess(urn)
	if err != nil {
		return nil, err
	}
	now := nowISO()
	p.TemporalParts = append(p.TemporalParts, TemporalPart{Phase: phase, Timestamp: now, Data: data})
	p.Status = phase
	p.UpdatedAt = now

	if phase == PhaseCompleted || phase == PhaseFailed {
		p.TemporalRegion.End = now
		if start, err := time.Parse(time.RFC3339Nano, p.TemporalRegion.Start); err == nil {
			if end, err := time.Parse(time.RFC3339Nano, now); err == nil {
				ms := end.Sub(start).Milliseconds()
				p.TemporalRegion.DurationMs = &ms
			}
		}
	}
	if err := t.save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// CompleteProcess marks urn completed and stores result.
func (t *Tracker) CompleteProcess(urn string, result any) (*Process, error) {
	p, err := t.AddTemporalPart(urn, PhaseCompleted, result)
	if err != nil {
		return nil, err
	}
	p.Result = result
	if err := t.save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// FailProcess marks urn failed and stores the error payload.
func (t *Tracker) FailProcess(urn string, processErr any) (*Process, error) {
	p, err := t.AddTemporalPart(urn, PhaseFailed, map[string]any{"error": processErr})
	if err != nil {
		return nil, err
	}
	p.Error = processErr
	if err := t.save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Filters narrows Query results.
type Filters struct {
	ProcessType string
	Kernel      string
	Status      string
	StartAfter  string
	StartBefore string
	SortField   string // createdAt|updatedAt|txId|status|type, default createdAt
	Ascending   bool   // default false: sort descending unless set
	Limit       int    // default 100, max 10000
}

func (t *Tracker) loadAllOfType(processType string) ([]Process, error) {
	dir := t.dir(processType)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	var out []Process
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			continue
		}
		var p Process
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *Tracker) loadAll(processType string) ([]Process, error) {
	if processType != "" {
		return t.loadAllOfType(processType)
	}
	typeDirs, err := os.ReadDir(filepath.Join(t.root, ".processes"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	var all []Process
	for _, td := range typeDirs {
		if !td.IsDir() {
			continue
		}
		procs, err := t.loadAllOfType(td.Name())
		if err != nil {
			continue
		}
		all = append(all, procs...)
	}
	return all, nil
}

func participantKernel(p Process) (string, bool) {
	v, ok := p.Participants["kernel"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func matchesFilters(p Process, f Filters) bool {
	if f.Kernel != "" {
		if k, ok := participantKernel(p); !ok || k != f.Kernel {
			return false
		}
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.StartAfter != "" && p.TemporalRegion.Start <= f.StartAfter {
		return false
	}
	if f.StartBefore != "" && p.TemporalRegion.Start >= f.StartBefore {
		return false
	}
	return true
}

func sortKey(p Process, field string) string {
	switch field {
	case "updatedAt":
		return p.UpdatedAt
	case "txId":
		return p.TxID
	case "status":
		return p.Status
	case "type":
		return p.Type
	default:
		return p.CreatedAt
	}
}

// Query loads, filters, sorts and truncates process records.
func (t *Tracker) Query(f Filters) ([]Process, error) {
	procs, err := t.loadAll(f.ProcessType)
	if err != nil {
		return nil, err
	}

	var filtered []Process
	for _, p := range procs {
		if matchesFilters(p, f) {
			filtered = append(filtered, p)
		}
	}

	field := f.SortField
	if field == "" {
		field = "createdAt"
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if !f.Ascending {
			return sortKey(filtered[i], field) > sortKey(filtered[j], field)
		}
		return sortKey(filtered[i], field) < sortKey(filtered[j], field)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 10000 {
		limit = 10000
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}
