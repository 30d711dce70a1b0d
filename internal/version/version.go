// Package version implements the Version Driver (C13): a unified
// versioning interface over a kernel's storage directory, backed today
// by Git and detected by marker file per spec.md §4.11.
package version

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
)

// Backend identifies which versioning system backs a Driver.
type Backend int

const (
	BackendNone Backend = iota
	BackendGit
	BackendS3
	BackendFilesystem
)

func (b Backend) String() string {
	switch b {
	case BackendGit:
		return "git"
	case BackendS3:
		return "s3"
	case BackendFilesystem:
		return "filesystem"
	default:
		return "none"
	}
}

// Bump selects which semver component increment_version advances.
type Bump int

const (
	BumpPatch Bump = iota
	BumpMinor
	BumpMajor
)

// Info is the unified result of a version query across backends.
type Info struct {
	Version  string
	IsClean  bool
	Metadata string
	Backend  Backend
}

// Driver is the unified versioning interface. Every concrete backend
// (today only Git) implements it the same way regardless of storage.
type Driver interface {
	GetVersion() (*Info, error)
	Init() error
	IsInitialized() bool
	CreateVersion(message string) (string, error)
	ListVersions() ([]string, error)
	BackendType() Backend
}

// Detect inspects kernelPath for a recognized versioning marker and
// returns the matching driver, in this order: .git, .s3-versioned,
// .version. Only Git is implemented; the other two markers are
// recognized but report no driver, matching the original's detect()
// which prints a TODO and returns None for them.
func Detect(kernelPath, kernelName string) Driver {
	if _, err := os.Stat(filepath.Join(kernelPath, ".git")); err == nil {
		return NewGitDriver(kernelPath, kernelName)
	}
	if _, err := os.Stat(filepath.Join(kernelPath, ".s3-versioned")); err == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(kernelPath, ".version")); err == nil {
		return nil
	}
	return nil
}

// Create builds a driver for an explicit backend, used during kernel
// creation to set up versioning deliberately rather than by detection.
func Create(backend Backend, kernelPath, kernelName string) (Driver, error) {
	switch backend {
	case BackendGit:
		return NewGitDriver(kernelPath, kernelName), nil
	case BackendNone:
		return nil, fmt.Errorf("%w: cannot create a version driver for backend \"none\"", ckerr.ValidationError)
	default:
		return nil, fmt.Errorf("%w: %s version driver not yet implemented", ckerr.ValidationError, backend)
	}
}

// GitDriver is the authoritative version source for a kernel backed by
// a git repository: all version strings are derived from `git describe`,
// never tracked separately in kernel metadata.
type GitDriver struct {
	kernelPath string
	kernelName string
}

func NewGitDriver(kernelPath, kernelName string) *GitDriver {
	return &GitDriver{kernelPath: kernelPath, kernelName: kernelName}
}

func (g *GitDriver) BackendType() Backend { return BackendGit }

func (g *GitDriver) IsInitialized() bool {
	_, err := os.Stat(filepath.Join(g.kernelPath, ".git"))
	return err == nil
}

func (g *GitDriver) Init() error {
	if g.IsInitialized() {
		return nil
	}
	if _, err := g.run("init"); err != nil {
		return fmt.Errorf("%w: git init: %v", ckerr.IoError, err)
	}
	return nil
}

// GetVersion returns the current version as derived from `git describe
// --tags --always --long`, or nil if the repository has no tags yet.
func (g *GitDriver) GetVersion() (*Info, error) {
	current, err := g.currentVersion()
	if err != nil {
		return nil, err
	}
	if current == "" {
		return nil, nil
	}
	return &Info{
		Version: current,
		IsClean: !strings.Contains(current, "-g"),
		Backend: BackendGit,
	}, nil
}

// CreateVersion increments the patch version from the latest tag and
// annotates it with message; it does not commit changes itself.
func (g *GitDriver) CreateVersion(message string) (string, error) {
	next, err := g.IncrementVersion(BumpPatch)
	if err != nil {
		return "", err
	}
	if _, err := g.run("tag", "-a", next, "-m", message); err != nil {
		return "", fmt.Errorf("%w: git tag: %v", ckerr.IoError, err)
	}
	return next, nil
}

// ListVersions returns every tag in the repository, in git's own order.
func (g *GitDriver) ListVersions() ([]string, error) {
	out, err := g.run("tag", "-l")
	if err != nil {
		return nil, nil
	}
	var tags []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line != "" {
			tags = append(tags, line)
		}
	}
	return tags, nil
}

// currentVersion formats `git describe --tags --always --long` output
// (e.g. "v0.2.0-3-gab12cd") into the authoritative kernel version
// string: commits-ahead becomes the patch component, and the string
// collapses to a clean "vMAJOR.MINOR.PATCH" when exactly on a tag.
func (g *GitDriver) currentVersion() (string, error) {
	raw, err := g.run("describe", "--tags", "--always", "--long")
	if err != nil {
		// No git repo or no tags at all.
		return "", nil
	}
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "v") {
		return "", nil
	}
	return formatVersion(raw)
}

func formatVersion(raw string) (string, error) {
	parts := strings.Split(raw, "-")
	if len(parts) < 3 {
		return raw, nil
	}
	base, commitsAhead, hash := parts[0], parts[1], parts[2]

	versionParts := strings.Split(strings.TrimPrefix(base, "v"), ".")
	if len(versionParts) != 3 {
		return raw, nil
	}
	major, minor := versionParts[0], versionParts[1]

	commits, err := strconv.ParseUint(commitsAhead, 10, 32)
	if err != nil {
		return "", fmt.Errorf("%w: invalid commits_ahead %q: %v", ckerr.ParseError, commitsAhead, err)
	}
	if commits == 0 {
		return fmt.Sprintf("v%s.%s.%s", major, minor, versionParts[2]), nil
	}
	return fmt.Sprintf("v%s.%s.%d-%s", major, minor, commits, hash), nil
}

// latestTag returns the nearest reachable tag with no distance or
// hash suffix, or "" if the repository has no tags.
func (g *GitDriver) latestTag() (string, error) {
	out, err := g.run("describe", "--tags", "--abbrev=0")
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

// IncrementVersion bumps the latest tag by the requested component,
// zeroing the components below it per standard semver conventions.
func (g *GitDriver) IncrementVersion(bump Bump) (string, error) {
	latest, err := g.latestTag()
	if err != nil {
		return "", err
	}
	if latest == "" {
		latest = "v0.0.0"
	}
	v, err := semver.Parse(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return "", fmt.Errorf("%w: invalid tag %q: %v", ckerr.ParseError, latest, err)
	}
	switch bump {
	case BumpMajor:
		v.Major++
		v.Minor = 0
		v.Patch = 0
	case BumpMinor:
		v.Minor++
		v.Patch = 0
	default:
		v.Patch++
	}
	return "v" + v.String(), nil
}

func (g *GitDriver) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.kernelPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
