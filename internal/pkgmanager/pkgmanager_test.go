package pkgmanager

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConceptDir(t *testing.T, root, conceptName, kernelType string) string {
	t.Helper()
	dir := filepath.Join(root, "concepts", conceptName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "apiVersion: ck/v1\nkind: ConceptKernel\nmetadata:\n  name: " + conceptName + "\n  type: " + kernelType + "\n"
	if err := os.WriteFile(filepath.Join(dir, "conceptkernel.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ontology.ttl"), []byte("@prefix bfo: <urn:bfo:> ."), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestParsePackageFilenameNewAndLegacyFormats(t *testing.T) {
	name, version, arch, rt, ok := parsePackageFilename("System.Gateway.HTTP-v1.3.14.x86_64-linux.rs.tar.gz")
	if !ok || name != "System.Gateway.HTTP" || version != "v1.3.14" || arch != "x86_64-linux" || rt != "rs" {
		t.Fatalf("unexpected parse: %q %q %q %q %v", name, version, arch, rt, ok)
	}

	name, version, arch, rt, ok = parsePackageFilename("MyKernel@v0.2.0.tar.gz")
	if !ok || name != "MyKernel" || version != "v0.2.0" || arch != "unknown" || rt != "unknown" {
		t.Fatalf("unexpected legacy parse: %q %q %q %q %v", name, version, arch, rt, ok)
	}

	if _, _, _, _, ok := parsePackageFilename("not-a-package.zip"); ok {
		t.Fatal("expected non-tar.gz filename to fail parsing")
	}
}

func TestExportThenInstallRoundTrip(t *testing.T) {
	projectDir := t.TempDir()
	writeConceptDir(t, projectDir, "Test.Kernel", "rust:binary")

	mgr, err := NewAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	pkgPath, err := mgr.Export("Test.Kernel", "v0.1.0", projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(pkgPath) == "" {
		t.Fatal("expected a non-empty package filename")
	}

	packages, err := mgr.ListCached()
	if err != nil {
		t.Fatal(err)
	}
	if len(packages) != 1 || packages[0].Name != "Test.Kernel" || packages[0].Version != "v0.1.0" {
		t.Fatalf("unexpected cached packages: %+v", packages)
	}

	installDir := t.TempDir()
	extracted, err := mgr.InstallFromPackage(packages[0], installDir, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(extracted, "conceptkernel.yaml")); err != nil {
		t.Fatalf("expected extracted manifest, got error: %v", err)
	}

	if _, err := mgr.InstallFromPackage(packages[0], installDir, ""); err == nil {
		t.Fatal("expected a second install of the same instance name to fail")
	}
}

func TestResolveInstanceNameAutoNumbers(t *testing.T) {
	targetDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(targetDir, "concepts", "Base"), 0o755); err != nil {
		t.Fatal(err)
	}

	name, err := ResolveInstanceName("Base", "", targetDir)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Base.1" {
		t.Fatalf("expected Base.1, got %q", name)
	}

	custom, err := ResolveInstanceName("Base", "MyCustomName", targetDir)
	if err != nil {
		t.Fatal(err)
	}
	if custom != "MyCustomName" {
		t.Fatalf("expected custom name passthrough, got %q", custom)
	}
}

func TestForkPackagePicksHighestVersion(t *testing.T) {
	projectDir := t.TempDir()
	srcDir := writeConceptDir(t, projectDir, "Source.Kernel", "python:service")

	mgr, err := NewAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Export("Source.Kernel", "v0.1.0", projectDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "only-in-v0.2.0.txt"), []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Export("Source.Kernel", "v0.2.0", projectDir); err != nil {
		t.Fatal(err)
	}

	forkTarget := t.TempDir()
	extracted, err := mgr.ForkPackage("Source.Kernel", "Forked.Kernel", forkTarget, false, "", "")
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(extracted, "conceptkernel.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(extracted) {
		t.Fatalf("expected absolute extracted path, got %q", extracted)
	}
	if got := string(data); !strings.Contains(got, "name: Forked.Kernel") {
		t.Fatalf("expected rewritten kernel name, got manifest:\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(extracted, "only-in-v0.2.0.txt")); err != nil {
		t.Fatalf("expected the fork to come from the v0.2.0 package: %v", err)
	}
}

func TestImportRejectsNonTarGz(t *testing.T) {
	mgr, err := NewAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	badFile := filepath.Join(t.TempDir(), "package.zip")
	if err := os.WriteFile(badFile, []byte("not a tarball"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Import(badFile); err == nil {
		t.Fatal("expected import of a non-tar.gz file to fail")
	}
}
