// Package ckurn implements the ckp:// URN grammar: parsing, validation,
// building and deterministic path resolution for the five URN shapes
// (Kernel, Edge, Agent, Process, Query).
package ckurn

import (
	"fmt"
	"regexp"
	"strings"
)

// Scheme is the fixed URN scheme prefix.
const Scheme = "ckp://"

// Predicate is the controlled vocabulary of edge predicates.
type Predicate string

const (
	PredicateProduces      Predicate = "PRODUCES"
	PredicateRequires      Predicate = "REQUIRES"
	PredicateValidates     Predicate = "VALIDATES"
	PredicateInfluences    Predicate = "INFLUENCES"
	PredicateTransforms    Predicate = "TRANSFORMS"
	PredicateLLMAssist     Predicate = "LLM_ASSIST"
	PredicateAnnounces     Predicate = "ANNOUNCES"
	PredicateLinksIdentity Predicate = "LINKS_IDENTITY"
)

var validPredicates = map[Predicate]bool{
	PredicateProduces:      true,
	PredicateRequires:      true,
	PredicateValidates:     true,
	PredicateInfluences:    true,
	PredicateTransforms:    true,
	PredicateLLMAssist:     true,
	PredicateAnnounces:     true,
	PredicateLinksIdentity: true,
}

// IsValidPredicate reports whether p is in the fixed predicate vocabulary.
func IsValidPredicate(p string) bool {
	return validPredicates[Predicate(p)]
}

// Stage is the suffix after '#' in a kernel URN.
type Stage string

const (
	StageInbox     Stage = "inbox"
	StageStaging   Stage = "staging"
	StageReady     Stage = "ready"
	StageStorage   Stage = "storage"
	StageArchive   Stage = "archive"
	StageTx        Stage = "tx"
	StageConsensus Stage = "consensus"
	StageEdges     Stage = "edges"
)

// stagePaths maps a stage to its filesystem suffix, relative to a
// kernel's directory. Fixed by spec.md §4.1.
var stagePaths = map[Stage]string{
	StageInbox:     "queue/inbox",
	StageStaging:   "queue/staging",
	StageReady:     "queue/ready",
	StageStorage:   "storage",
	StageArchive:   "archive",
	StageTx:        "tx",
	StageConsensus: "consensus",
	StageEdges:     "queue/edges",
}

var (
	kernelURNRe  = regexp.MustCompile(`^ckp://([^:]+):([^#]+)(?:#([^/]+)(?:/(.+))?)?$`)
	edgeURNRe    = regexp.MustCompile(`^ckp://Edge\.([^.]+)\.(.+?)-to-(.+?)(?::(.+))?$`)
	agentURNRe   = regexp.MustCompile(`^ckp://Agent/(user|process):(.+)$`)
	processURNRe = regexp.MustCompile(`^ckp://Process#([^-]+)-(.+)$`)
	kernelNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*([.\-][A-Za-z0-9]+)*$`)
	versionRe    = regexp.MustCompile(`^v?\d+\.\d+(\.\d+)?$`)
)

// ParseError is returned for every malformed URN. All parsing in this
// package is total: it never panics.
type ParseError struct {
	Kind string
	URN  string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: invalid %s URN %q: %s", e.Code(), e.Kind, e.URN, e.Msg)
}

// Code returns the SCREAMING_SNAKE_CASE error code mandated by spec.md §7.
func (e *ParseError) Code() string {
	switch e.Kind {
	case "edge":
		return "INVALID_EDGE_URN"
	case "agent":
		return "INVALID_AGENT_URN"
	default:
		return "INVALID_URN_FORMAT"
	}
}

func newParseError(kind, urn, msg string) *ParseError {
	return &ParseError{Kind: kind, URN: urn, Msg: msg}
}

// ParsedKernelUrn is the decomposition of a Kernel URN.
type ParsedKernelUrn struct {
	Kernel  string
	Version string
	Stage   string
	Path    string
}

// Parse decomposes a Kernel URN: ckp://<Name>:<version>[#<stage>[/<path>]].
func Parse(urn string) (*ParsedKernelUrn, error) {
	m := kernelURNRe.FindStringSubmatch(urn)
	if m == nil {
		return nil, newParseError("kernel", urn, "does not match kernel URN grammar")
	}
	return &ParsedKernelUrn{
		Kernel:  m[1],
		Version: m[2],
		Stage:   m[3],
		Path:    m[4],
	}, nil
}

// Build reconstructs a Kernel URN from its parts. Build(Parse(u)) == u
// for every well-formed u.
func (p *ParsedKernelUrn) Build() string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString(p.Kernel)
	b.WriteByte(':')
	b.WriteString(p.Version)
	if p.Stage != "" {
		b.WriteByte('#')
		b.WriteString(p.Stage)
		if p.Path != "" {
			b.WriteByte('/')
			b.WriteString(p.Path)
		}
	}
	return b.String()
}

// ParsedEdgeUrn is the decomposition of an Edge URN.
type ParsedEdgeUrn struct {
	Predicate string
	Source    string
	Target    string
	Version   string
}

// ParseEdgeUrn decomposes an Edge URN:
// ckp://Edge.<PRED>.<Source>-to-<Target>[:<version>].
func ParseEdgeUrn(urn string) (*ParsedEdgeUrn, error) {
	m := edgeURNRe.FindStringSubmatch(urn)
	if m == nil {
		return nil, newParseError("edge", urn, "does not match edge URN grammar")
	}
	return &ParsedEdgeUrn{
		Predicate: m[1],
		Source:    m[2],
		Target:    m[3],
		Version:   m[4],
	}, nil
}

// Build reconstructs an Edge URN from its parts.
func (p *ParsedEdgeUrn) Build() string {
	urn := fmt.Sprintf("%sEdge.%s.%s-to-%s", Scheme, p.Predicate, p.Source, p.Target)
	if p.Version != "" {
		urn += ":" + p.Version
	}
	return urn
}

// EdgeDir is the edge directory name: "<PRED>.<Source>-to-<Target>" or,
// with a version, "<PRED>.<Source>-to-<Target>:<version>".
func (p *ParsedEdgeUrn) EdgeDir() string {
	dir := fmt.Sprintf("%s.%s-to-%s", p.Predicate, p.Source, p.Target)
	if p.Version != "" {
		dir += ":" + p.Version
	}
	return dir
}

// QueuePath is the target-relative inbound queue path for this edge.
func (p *ParsedEdgeUrn) QueuePath() string {
	return "queue/edges/" + p.EdgeDir()
}

// IsEdgeUrn reports whether urn looks like an Edge URN.
func IsEdgeUrn(urn string) bool {
	return strings.HasPrefix(urn, Scheme+"Edge.")
}

// IsKernelUrn reports whether urn looks like a (non-edge, non-agent,
// non-process) Kernel URN.
func IsKernelUrn(urn string) bool {
	if !strings.HasPrefix(urn, Scheme) {
		return false
	}
	if IsEdgeUrn(urn) || strings.HasPrefix(urn, Scheme+"Agent/") || strings.HasPrefix(urn, Scheme+"Process#") {
		return false
	}
	return kernelURNRe.MatchString(urn)
}

// ParsedAgentUrn is the decomposition of an Agent URN.
type ParsedAgentUrn struct {
	Kind       string // "user" or "process"
	Identifier string
}

// ParseAgentUrn decomposes an Agent URN: ckp://Agent/{user|process}:<identifier>.
func ParseAgentUrn(urn string) (*ParsedAgentUrn, error) {
	m := agentURNRe.FindStringSubmatch(urn)
	if m == nil {
		return nil, newParseError("agent", urn, "does not match agent URN grammar")
	}
	return &ParsedAgentUrn{Kind: m[1], Identifier: m[2]}, nil
}

// Build reconstructs an Agent URN from its parts.
func (p *ParsedAgentUrn) Build() string {
	return fmt.Sprintf("%sAgent/%s:%s", Scheme, p.Kind, p.Identifier)
}

// ParsedProcessUrn is the decomposition of a Process URN.
type ParsedProcessUrn struct {
	Type string
	TxID string
}

// ParseProcessUrn decomposes a Process URN: ckp://Process#<type>-<txId>.
// The type segment is non-greedy by construction of the regex: the
// first hyphen after '#' separates type from txId, even if the
// process type itself legitimately contains a hyphen (e.g.
// "edge-comm"). This is preserved as documented behavior.
func ParseProcessUrn(urn string) (*ParsedProcessUrn, error) {
	m := processURNRe.FindStringSubmatch(urn)
	if m == nil {
		return nil, newParseError("process", urn, "does not match process URN grammar")
	}
	return &ParsedProcessUrn{Type: m[1], TxID: m[2]}, nil
}

// Build reconstructs a Process URN from its parts.
func (p *ParsedProcessUrn) Build() string {
	return fmt.Sprintf("%sProcess#%s-%s", Scheme, p.Type, p.TxID)
}

// ParsedQueryUrn is the decomposition of a Query URN.
type ParsedQueryUrn struct {
	Kernel   string // empty if unscoped
	Version  string
	Resource string
	Params   map[string]string
}

// ParseQueryUrn decomposes a Query URN using the legacy (v1) precedence
// rule: if the resource segment is prefixed with "<Kernel>:<ver>/" that
// scopes the query; otherwise the resource is global.
func ParseQueryUrn(urn string) (*ParsedQueryUrn, error) {
	return parseQueryUrn(urn, false)
}

// ParseQueryUrnV2 decomposes a Query URN using the v2 precedence rules
// from spec.md §4.1: an explicit "<Kernel>:<ver>/<Resource>" prefix wins
// first; failing that a "view=<R>" parameter scopes to its first value
// as the kernel and uses R as the resource; otherwise the URN is global.
func ParseQueryUrnV2(urn string) (*ParsedQueryUrn, error) {
	return parseQueryUrn(urn, true)
}

func parseQueryUrn(urn string, v2 bool) (*ParsedQueryUrn, error) {
	rest := strings.TrimPrefix(urn, Scheme)
	if rest == urn {
		return nil, newParseError("query", urn, "missing ckp:// scheme")
	}

	resourcePart := rest
	query := ""
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		resourcePart = rest[:idx]
		query = rest[idx+1:]
	}
	params := parseQueryParams(query)

	result := &ParsedQueryUrn{Params: params}

	// Rule 1: "<Kernel>:<ver>/<Resource>"
	if idx := strings.IndexByte(resourcePart, '/'); idx >= 0 {
		scope := resourcePart[:idx]
		resource := resourcePart[idx+1:]
		if cIdx := strings.IndexByte(scope, ':'); cIdx >= 0 {
			result.Kernel = scope[:cIdx]
			result.Version = scope[cIdx+1:]
			result.Resource = resource
			return result, nil
		}
	}

	if v2 {
		// Rule 2: view=<R> parameter present.
		if view, ok := params["view"]; ok {
			result.Kernel = resourcePart
			result.Resource = view
			delete(result.Params, "view")
			return result, nil
		}
	}

	// Rule 3: unscoped, resourcePart is the resource itself.
	result.Kernel = ""
	result.Version = ""
	result.Resource = resourcePart
	return result, nil
}

func parseQueryParams(query string) map[string]string {
	params := map[string]string{}
	if query == "" {
		return params
	}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			params[pair[:idx]] = pair[idx+1:]
		} else {
			params[pair] = ""
		}
	}
	return params
}

// NormalizeKernelName trims surrounding whitespace; it never mutates
// an otherwise well-formed name.
func NormalizeKernelName(name string) string {
	return strings.TrimSpace(name)
}

// ValidKernelName reports whether name matches the kernel name grammar:
// starts with an ASCII letter; thereafter alphanumerics, single dots or
// hyphens between alphanumerics; no leading/trailing '.' or '-'.
func ValidKernelName(name string) bool {
	return kernelNameRe.MatchString(name)
}

// ValidVersion reports whether v matches "v?<maj>.<min>(.<patch>)?".
func ValidVersion(v string) bool {
	return versionRe.MatchString(v)
}

// ExtractTxID pulls the txId component out of a URN that carries one
// (Process URN, or a kernel URN whose path component is "<txId>.inst"
// or "<txId>.job").
func ExtractTxID(urn string) (string, bool) {
	if p, err := ParseProcessUrn(urn); err == nil {
		return p.TxID, true
	}
	if p, err := Parse(urn); err == nil && p.Path != "" {
		base := p.Path
		if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
			base = base[idx+1:]
		}
		for _, suffix := range []string{".inst", ".job", ".edgereq"} {
			if strings.HasSuffix(base, suffix) {
				return strings.TrimSuffix(base, suffix), true
			}
		}
	}
	return "", false
}
