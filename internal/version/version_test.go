package version

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.local",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.local",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init")
	if err := os.WriteFile(filepath.Join(dir, "seed.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "seed")
	return dir
}

func TestFormatVersion(t *testing.T) {
	clean, err := formatVersion("v0.2.0-0-gab12cd")
	if err != nil {
		t.Fatal(err)
	}
	if clean != "v0.2.0" {
		t.Fatalf("expected clean tag collapse, got %q", clean)
	}

	dirty, err := formatVersion("v0.2.0-3-gab12cd")
	if err != nil {
		t.Fatal(err)
	}
	if dirty != "v0.2.3-gab12cd" {
		t.Fatalf("expected commits-ahead as patch, got %q", dirty)
	}

	malformed, err := formatVersion("justahash")
	if err != nil {
		t.Fatal(err)
	}
	if malformed != "justahash" {
		t.Fatalf("expected malformed input returned as-is, got %q", malformed)
	}
}

func TestDetectFindsGit(t *testing.T) {
	dir := initRepo(t)
	driver := Detect(dir, "Test.Kernel")
	if driver == nil {
		t.Fatal("expected a git driver to be detected")
	}
	if driver.BackendType() != BackendGit {
		t.Fatalf("expected git backend, got %v", driver.BackendType())
	}
}

func TestDetectNoVersioning(t *testing.T) {
	dir := t.TempDir()
	if driver := Detect(dir, "Test.Kernel"); driver != nil {
		t.Fatal("expected no driver for an unversioned directory")
	}
}

func TestGetVersionNoTagsReturnsNil(t *testing.T) {
	dir := initRepo(t)
	driver := NewGitDriver(dir, "Test.Kernel")
	info, err := driver.GetVersion()
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Fatalf("expected nil version info with no tags, got %+v", info)
	}
}

func TestCreateVersionAndListVersions(t *testing.T) {
	dir := initRepo(t)
	driver := NewGitDriver(dir, "Test.Kernel")

	first, err := driver.CreateVersion("initial release")
	if err != nil {
		t.Fatal(err)
	}
	if first != "v0.0.1" {
		t.Fatalf("expected first patch tag v0.0.1, got %q", first)
	}

	info, err := driver.GetVersion()
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || !info.IsClean || info.Version != "v0.0.1" {
		t.Fatalf("expected clean v0.0.1, got %+v", info)
	}

	tags, err := driver.ListVersions()
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0] != "v0.0.1" {
		t.Fatalf("expected [v0.0.1], got %v", tags)
	}
}

func TestIncrementVersionBumpsCorrectComponent(t *testing.T) {
	dir := initRepo(t)
	driver := NewGitDriver(dir, "Test.Kernel")
	if _, err := driver.CreateVersion("v1"); err != nil {
		t.Fatal(err)
	}

	minor, err := driver.IncrementVersion(BumpMinor)
	if err != nil {
		t.Fatal(err)
	}
	if minor != "v0.1.0" {
		t.Fatalf("expected v0.1.0, got %q", minor)
	}

	major, err := driver.IncrementVersion(BumpMajor)
	if err != nil {
		t.Fatal(err)
	}
	if major != "v1.0.0" {
		t.Fatalf("expected v1.0.0, got %q", major)
	}
}

func TestIsCleanReflectsCommitsAhead(t *testing.T) {
	dir := initRepo(t)
	driver := NewGitDriver(dir, "Test.Kernel")
	if _, err := driver.CreateVersion("v1"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "more.txt"), []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("git", "add", ".")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v: %s", err, out)
	}
	cmd = exec.Command("git", "-c", "user.name=test", "-c", "user.email=test@test.local", "commit", "-m", "more")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v: %s", err, out)
	}

	info, err := driver.GetVersion()
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.IsClean {
		t.Fatalf("expected unclean version past a tag, got %+v", info)
	}
}
