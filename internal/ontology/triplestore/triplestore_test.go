package triplestore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTurtle(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ontology.ttl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTurtleAndAsk(t *testing.T) {
	path := writeTurtle(t, `
@prefix bfo: <bfo:> .
@prefix ckp: <ckp:> .
<ckp://Continuant#Kernel-Recipes.BakeCake> rdf:type bfo:0000002 .
<ckp://Continuant#Kernel-Recipes.BakeCake> rdfs:label "BakeCake" .
`)
	s := New()
	if err := s.LoadTurtle(path, "g1"); err != nil {
		t.Fatal(err)
	}

	if !s.Ask(Pattern{Subject: "ckp://Continuant#Kernel-Recipes.BakeCake", Predicate: "rdf:type", Object: "bfo:0000002", Graph: "g1"}) {
		t.Fatal("expected type triple to be present")
	}
	if s.Ask(Pattern{Subject: "ckp://Continuant#Kernel-Recipes.BakeCake", Predicate: "rdf:type", Object: "bfo:9999999", Graph: "g1"}) {
		t.Fatal("expected no match for unrelated class")
	}

	rows := s.Select(Pattern{Subject: "ckp://Continuant#Kernel-Recipes.BakeCake", Predicate: "rdfs:label", Graph: "g1"})
	if len(rows) != 1 || rows[0].Object.Value != "BakeCake" || !rows[0].Object.Literal {
		t.Fatalf("expected one literal label row, got %+v", rows)
	}
}

func TestJoin(t *testing.T) {
	path := writeTurtle(t, `
<role:baker> ckp:grants <perm:bake> .
<perm:bake> ckp:permissionString "kernel.bake" .
`)
	s := New()
	if err := s.LoadTurtle(path, "g1"); err != nil {
		t.Fatal(err)
	}

	joined := s.Join(
		Pattern{Subject: "role:baker", Predicate: "ckp:grants", Graph: "g1"},
		"object",
		Pattern{Predicate: "ckp:permissionString", Graph: "g1"},
	)
	if len(joined) != 1 || joined[0][1].Object.Value != "kernel.bake" {
		t.Fatalf("expected one joined permission string, got %+v", joined)
	}
}

func TestGraphPartitioning(t *testing.T) {
	s := New()
	s.Add("g1", Term{Value: "s"}, Term{Value: "p"}, Term{Value: "o"})
	s.Add("g2", Term{Value: "s"}, Term{Value: "p"}, Term{Value: "o"})

	if len(s.Select(Pattern{Graph: "g1"})) != 1 {
		t.Fatal("expected exactly one triple in g1")
	}
	if len(s.Select(Pattern{})) != 2 {
		t.Fatal("expected two triples with no graph filter")
	}
}
