package ckurn

import (
	"fmt"
	"path/filepath"
)

// ResolveToPath is a pure function of (urn, concepts_root): it computes
// the on-disk path a Kernel URN addresses, without touching the
// filesystem. See spec.md §8: "resolve_to_path(u, root) depends only
// on u and root."
func ResolveToPath(urn, conceptsRoot string) (string, error) {
	p, err := Parse(urn)
	if err != nil {
		return "", err
	}
	return p.ResolveToPath(conceptsRoot)
}

// ResolveToPath resolves an already-parsed Kernel URN against a
// concepts root.
func (p *ParsedKernelUrn) ResolveToPath(conceptsRoot string) (string, error) {
	base := filepath.Join(conceptsRoot, p.Kernel)
	if p.Stage == "" {
		return base, nil
	}
	stageDir, ok := stagePaths[Stage(p.Stage)]
	if !ok {
		return "", newParseError("kernel", p.Build(), fmt.Sprintf("unknown stage %q", p.Stage))
	}
	full := filepath.Join(base, stageDir)
	if p.Path != "" {
		full = filepath.Join(full, p.Path)
	}
	return full, nil
}

// ResolveStage resolves a kernel URN against a fixed stage, ignoring
// any stage already present on the URN (used when building a derived
// path for a different lifecycle stage of the same kernel/version).
func ResolveStage(urn string, stage Stage, conceptsRoot string) (string, error) {
	p, err := Parse(urn)
	if err != nil {
		return "", err
	}
	p.Stage = string(stage)
	p.Path = ""
	return p.ResolveToPath(conceptsRoot)
}

// EdgeDirPath resolves an Edge URN to its on-disk edge directory, e.g.
// "<conceptsRoot>/.edges/<PRED>.<Source>-to-<Target>[:<version>]".
func EdgeDirPath(urn, conceptsRoot string) (string, error) {
	p, err := ParseEdgeUrn(urn)
	if err != nil {
		return "", err
	}
	return filepath.Join(conceptsRoot, ".edges", p.EdgeDir()), nil
}
