package ckurn

import "testing"

func TestParseResolveRoundTrip(t *testing.T) {
	urn := "ckp://Recipes.BakeCake:v0.1#storage/tx-123.inst"
	p, err := Parse(urn)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Kernel != "Recipes.BakeCake" || p.Version != "v0.1" || p.Stage != "storage" || p.Path != "tx-123.inst" {
		t.Fatalf("unexpected parse: %+v", p)
	}
	if got := p.Build(); got != urn {
		t.Fatalf("Build() round-trip: got %q want %q", got, urn)
	}

	path, err := ResolveToPath(urn, "/test/concepts")
	if err != nil {
		t.Fatalf("ResolveToPath: %v", err)
	}
	want := "/test/concepts/Recipes.BakeCake/storage/tx-123.inst"
	if path != want {
		t.Fatalf("ResolveToPath: got %q want %q", path, want)
	}
}

func TestResolveToPathIsPure(t *testing.T) {
	urn := "ckp://Sys.Gateway:v1.0#inbox"
	a, err := ResolveToPath(urn, "/a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ResolveToPath(urn, "/a")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("ResolveToPath not deterministic: %q vs %q", a, b)
	}
}

func TestKernelNameGrammar(t *testing.T) {
	valid := []string{"a", "Recipes.BakeCake", "System-Gateway", "a1.b2-c3"}
	invalid := []string{".a", "a.", "1abc", "a@b", ""}
	for _, v := range valid {
		if !ValidKernelName(v) {
			t.Errorf("expected %q to be a valid kernel name", v)
		}
	}
	for _, v := range invalid {
		if ValidKernelName(v) {
			t.Errorf("expected %q to be an invalid kernel name", v)
		}
	}
}

func TestVersionGrammar(t *testing.T) {
	valid := []string{"v0.1", "v1.3.12", "0.1"}
	invalid := []string{"v.1", "1", "invalid"}
	for _, v := range valid {
		if !ValidVersion(v) {
			t.Errorf("expected %q to be a valid version", v)
		}
	}
	for _, v := range invalid {
		if ValidVersion(v) {
			t.Errorf("expected %q to be an invalid version", v)
		}
	}
}

func TestEdgeUrnWithAndWithoutVersion(t *testing.T) {
	withoutVersion := "ckp://Edge.PRODUCES.SourceKernel-to-TargetKernel"
	p, err := ParseEdgeUrn(withoutVersion)
	if err != nil {
		t.Fatal(err)
	}
	if p.EdgeDir() != "PRODUCES.SourceKernel-to-TargetKernel" {
		t.Fatalf("unexpected edge dir: %s", p.EdgeDir())
	}

	withVersion := "ckp://Edge.PRODUCES.SourceKernel-to-TargetKernel:v1.3.16"
	p2, err := ParseEdgeUrn(withVersion)
	if err != nil {
		t.Fatal(err)
	}
	if p2.EdgeDir() != "PRODUCES.SourceKernel-to-TargetKernel:v1.3.16" {
		t.Fatalf("unexpected edge dir: %s", p2.EdgeDir())
	}
	if p.EdgeDir() == p2.EdgeDir() {
		t.Fatal("edge_dir should differ with and without version")
	}
}

func TestEdgePredicateValidation(t *testing.T) {
	if !ValidateEdge("ckp://Edge.PRODUCES.A-to-B").Valid {
		t.Fatal("expected PRODUCES to validate")
	}
	if ValidateEdge("ckp://Edge.NOT_A_PREDICATE.A-to-B").Valid {
		t.Fatal("expected unknown predicate to fail validation")
	}
}

func TestProcessUrnNonGreedyType(t *testing.T) {
	p, err := ParseProcessUrn("ckp://Process#invoke-1763656265921-c8788f41")
	if err != nil {
		t.Fatal(err)
	}
	if p.Type != "invoke" || p.TxID != "1763656265921-c8788f41" {
		t.Fatalf("unexpected process parse: %+v", p)
	}
}

func TestQueryUrnV2Precedence(t *testing.T) {
	// Rule 1: explicit kernel:version/resource scope wins.
	q, err := ParseQueryUrnV2("ckp://Recipes:v1/History?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	if q.Kernel != "Recipes" || q.Version != "v1" || q.Resource != "History" || q.Params["limit"] != "10" {
		t.Fatalf("unexpected: %+v", q)
	}

	// Rule 2: view= param scopes via first path segment as kernel.
	q2, err := ParseQueryUrnV2("ckp://Recipes?view=History&limit=5")
	if err != nil {
		t.Fatal(err)
	}
	if q2.Kernel != "Recipes" || q2.Resource != "History" || q2.Params["limit"] != "5" {
		t.Fatalf("unexpected: %+v", q2)
	}
	if _, has := q2.Params["view"]; has {
		t.Fatal("view param should be removed from Params")
	}

	// Rule 3: unscoped.
	q3, err := ParseQueryUrnV2("ckp://GlobalResource?a=1")
	if err != nil {
		t.Fatal(err)
	}
	if q3.Kernel != "" || q3.Version != "" || q3.Resource != "GlobalResource" {
		t.Fatalf("unexpected: %+v", q3)
	}
}

func TestAgentUrn(t *testing.T) {
	p, err := ParseAgentUrn("ckp://Agent/user:alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != "user" || p.Identifier != "alice" {
		t.Fatalf("unexpected: %+v", p)
	}
	if p.Build() != "ckp://Agent/user:alice" {
		t.Fatalf("round trip failed: %s", p.Build())
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{"", "ckp://", "not-a-urn", "ckp://Edge.", "ckp://Process#", "ckp://Agent/bogus:x"}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("parsing %q panicked: %v", in, r)
				}
			}()
			_, _ = Parse(in)
			_, _ = ParseEdgeUrn(in)
			_, _ = ParseAgentUrn(in)
			_, _ = ParseProcessUrn(in)
			_, _ = ParseQueryUrnV2(in)
		}()
	}
}
