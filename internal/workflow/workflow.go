// Package workflow is a structural recognition stub for CKDL
// (Concept Kernel Definition Language) files: it classifies a
// workflow's declared stages (EXTERN/KERNEL/EDGE) by whether each
// references a kernel that already exists in concepts/, a brand-new
// one, or an external dependency, without executing the workflow
// itself. Full CKDL execution is out of scope per spec.md §1.
package workflow

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/conceptkernel/ck-core/internal/ontology"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
	"github.com/conceptkernel/ck-core/pkg/util/slice"
)

// Origin classifies where a referenced kernel comes from.
type Origin string

const (
	OriginForked    Origin = "forked"
	OriginBrandNew  Origin = "brand_new"
	OriginExternal  Origin = "external"
	OriginMalformed Origin = "malformed"
)

// Stage is one top-level CKDL declaration (WORKFLOW, EXTERN, KERNEL,
// or EDGE) recognized in a file.
type Stage struct {
	Kind   string // "WORKFLOW", "EXTERN", "KERNEL", "EDGE"
	Urn    string
	Origin Origin
}

// Recognition is the structural summary of one CKDL file.
type Recognition struct {
	WorkflowUrn         string
	Stages              []Stage
	TotalExtern         int
	TotalWorkflowKernel int
	TotalEdges          int
	ForkedKernels       []string
	BrandNewKernels     []string
	ExternalDeps        []string
}

// Recognize reads ckdlPath and classifies its declared stages against
// projectRoot's concepts/ tree, identifying which referenced kernels
// are forked (already exist), brand new, or external, without parsing
// field bodies (TYPE/CAPABILITIES/etc) or building an executable
// workflow graph.
func Recognize(ckdlPath, projectRoot string) (*Recognition, error) {
	f, err := os.Open(ckdlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ckerr.IoError, ckdlPath, err)
	}
	defer f.Close()

	reader := ontology.NewReader(projectRoot)
	rec := &Recognition{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "WORKFLOW "):
			rec.WorkflowUrn = strings.TrimSpace(strings.TrimPrefix(line, "WORKFLOW "))
		case strings.HasPrefix(line, "EXTERN "):
			urn := strings.TrimSpace(strings.TrimPrefix(line, "EXTERN "))
			rec.TotalExtern++
			rec.addStage(classifyKernel("EXTERN", urn, reader))
		case strings.HasPrefix(line, "KERNEL "):
			urn := strings.TrimSpace(strings.TrimPrefix(line, "KERNEL "))
			rec.TotalWorkflowKernel++
			rec.addStage(classifyKernel("KERNEL", urn, reader))
		case strings.HasPrefix(line, "EDGE "):
			urn := strings.TrimSpace(strings.TrimPrefix(line, "EDGE "))
			rec.TotalEdges++
			rec.addStage(classifyEdge(urn, reader))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scanning %s: %v", ckerr.IoError, ckdlPath, err)
	}
	return rec, nil
}

// addStage records s and, for forked/brand-new/external kernel stages,
// appends its URN to the matching summary list unless an earlier stage
// already added the same URN there. EDGE stages are recorded in Stages
// only.
func (r *Recognition) addStage(s Stage) {
	r.Stages = append(r.Stages, s)
	if s.Kind == "EDGE" {
		return
	}
	switch s.Origin {
	case OriginForked:
		if !slice.ContainsString(r.ForkedKernels, s.Urn) {
			r.ForkedKernels = append(r.ForkedKernels, s.Urn)
		}
	case OriginBrandNew:
		if !slice.ContainsString(r.BrandNewKernels, s.Urn) {
			r.BrandNewKernels = append(r.BrandNewKernels, s.Urn)
		}
	case OriginExternal:
		if !slice.ContainsString(r.ExternalDeps, s.Urn) {
			r.ExternalDeps = append(r.ExternalDeps, s.Urn)
		}
	}
}

// classifyKernel extracts the bare kernel name from a ckp:// URN
// (stripping any :version suffix) and checks whether it already has a
// manifest under concepts/, mirroring the original CKDL parser's
// check_kernel_origin.
func classifyKernel(kind, urn string, reader *ontology.Reader) Stage {
	name, ok := strings.CutPrefix(urn, "ckp://")
	if !ok {
		return Stage{Kind: kind, Urn: urn, Origin: OriginExternal}
	}
	name, _, _ = strings.Cut(name, ":")
	name = strings.TrimPrefix(name, "Kernel.")

	if _, err := reader.ReadByKernelName(name); err == nil {
		return Stage{Kind: kind, Urn: urn, Origin: OriginForked}
	}
	return Stage{Kind: kind, Urn: urn, Origin: OriginBrandNew}
}

// classifyEdge extracts source/target kernel names from an edge URN
// of the form ckp://Edge.PREDICATE.Source-to-Target and classifies the
// edge as forked only when both endpoints already exist.
func classifyEdge(urn string, reader *ontology.Reader) Stage {
	parts := strings.Split(urn, ".")
	last := parts[len(parts)-1]
	sourceTarget := strings.Split(last, "-to-")
	if len(sourceTarget) != 2 {
		return Stage{Kind: "EDGE", Urn: urn, Origin: OriginMalformed}
	}
	_, sourceErr := reader.ReadByKernelName(sourceTarget[0])
	_, targetErr := reader.ReadByKernelName(sourceTarget[1])
	if sourceErr == nil && targetErr == nil {
		return Stage{Kind: "EDGE", Urn: urn, Origin: OriginForked}
	}
	return Stage{Kind: "EDGE", Urn: urn, Origin: OriginBrandNew}
}
