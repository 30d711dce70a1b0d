// Package pkgmanager implements the Package Manager (C12): a local
// tar.gz cache of exported concept kernels under
// ~/.config/conceptkernel/cache/, and the export/install/fork/import
// operations spec.md §4.12 describes over it.
package pkgmanager

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/conceptkernel/ck-core/pkg/ckerr"
	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"
)

const maxInstanceSuffix = 1000

// PackageInfo describes one cached tar.gz entry.
type PackageInfo struct {
	Name      string
	Version   string
	Arch      string
	Runtime   string
	Filename  string
	SizeBytes int64
}

// HumanSize formats SizeBytes the way `package list` reports it, e.g.
// "14.2MB", matching the same family of helper the teacher uses for
// image size reporting.
func (p PackageInfo) HumanSize() string {
	return units.HumanSize(float64(p.SizeBytes))
}

// Manager manages a local cache directory of concept kernel packages.
type Manager struct {
	cacheDir string
}

// New creates a Manager rooted at ~/.config/conceptkernel/cache,
// creating it if necessary.
func New() (*Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("%w: HOME not resolvable: %v", ckerr.IoError, err)
	}
	return NewAt(filepath.Join(home, ".config", "conceptkernel", "cache"))
}

// NewAt creates a Manager rooted at an explicit cache directory,
// primarily for tests.
func NewAt(cacheDir string) (*Manager, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating cache directory: %v", ckerr.IoError, err)
	}
	return &Manager{cacheDir: cacheDir}, nil
}

// CacheDir returns the manager's cache directory.
func (m *Manager) CacheDir() string { return m.cacheDir }

// ListCached enumerates every package in the cache, sorted by name.
func (m *Manager) ListCached() ([]PackageInfo, error) {
	entries, err := os.ReadDir(m.cacheDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading cache directory: %v", ckerr.IoError, err)
	}

	var packages []PackageInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".gz") {
			continue
		}
		name, version, arch, rt, ok := parsePackageFilename(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
		}
		packages = append(packages, PackageInfo{
			Name:      name,
			Version:   version,
			Arch:      arch,
			Runtime:   rt,
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
		})
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })
	return packages, nil
}

// ResolveInstanceName picks the name a freshly-installed concept
// should use: customName verbatim if given, baseName if free, or the
// first free "<baseName>.N" suffix (N from 1 to 1000).
func ResolveInstanceName(baseName, customName string, targetDir string) (string, error) {
	if customName != "" {
		return customName, nil
	}
	conceptsDir := filepath.Join(targetDir, "concepts")
	if _, err := os.Stat(filepath.Join(conceptsDir, baseName)); os.IsNotExist(err) {
		return baseName, nil
	}
	for n := 1; n <= maxInstanceSuffix; n++ {
		candidate := fmt.Sprintf("%s.%d", baseName, n)
		if _, err := os.Stat(filepath.Join(conceptsDir, candidate)); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: too many instances of %s", ckerr.ValidationError, baseName)
}

// InstallFromPackage extracts pkg from the cache into
// targetDir/concepts/<instanceName or pkg.Name>/.
func (m *Manager) InstallFromPackage(pkg PackageInfo, targetDir, instanceName string) (string, error) {
	packagePath := filepath.Join(m.cacheDir, pkg.Filename)
	if _, err := os.Stat(packagePath); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: package not found in cache: %s", ckerr.FileNotFound, pkg.Filename)
	}
	return m.installFromPath(pkg.Name, packagePath, targetDir, instanceName)
}

// Install resolves name@version by scanning the cached packages (in
// either filename format) for a matching name and version, and
// installs the first match.
func (m *Manager) Install(name, version, targetDir, instanceName string) (string, error) {
	packages, err := m.ListCached()
	if err != nil {
		return "", err
	}
	for _, p := range packages {
		if p.Name == name && p.Version == version {
			return m.InstallFromPackage(p, targetDir, instanceName)
		}
	}
	return "", fmt.Errorf("%w: package not found in cache: %s@%s", ckerr.FileNotFound, name, version)
}

func (m *Manager) installFromPath(conceptName, packagePath, targetDir, instanceName string) (string, error) {
	finalName := conceptName
	if instanceName != "" {
		finalName = instanceName
	}

	conceptsDir := filepath.Join(targetDir, "concepts")
	conceptDir := filepath.Join(conceptsDir, finalName)
	if _, err := os.Stat(conceptDir); err == nil {
		return "", fmt.Errorf("%w: concept already exists: %s", ckerr.ValidationError, finalName)
	}
	if err := os.MkdirAll(conceptsDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating concepts directory: %v", ckerr.IoError, err)
	}

	tempDir := filepath.Join(os.TempDir(), "ck-extract-"+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating temp extract directory: %v", ckerr.IoError, err)
	}
	defer os.RemoveAll(tempDir)

	if err := extractTarball(packagePath, tempDir); err != nil {
		return "", err
	}

	extractedDir := filepath.Join(tempDir, conceptName)
	if _, err := os.Stat(extractedDir); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: extraction did not produce %s", ckerr.IoError, conceptName)
	}
	if err := os.Rename(extractedDir, conceptDir); err != nil {
		return "", fmt.Errorf("%w: moving extracted concept to final location: %v", ckerr.IoError, err)
	}
	return conceptDir, nil
}

// Export packages sourceDir/concepts/<conceptName> into the cache as
// "<name>-<version>.<arch>.<runtime>.tar.gz", deriving arch/runtime
// from conceptkernel.yaml's metadata.type prefix.
func (m *Manager) Export(conceptName, version, sourceDir string) (string, error) {
	conceptDir := filepath.Join(sourceDir, "concepts", conceptName)
	if _, err := os.Stat(conceptDir); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: concept not found: %s", ckerr.FileNotFound, conceptName)
	}

	arch, rt, err := detectRuntimeAndArch(conceptDir)
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s-%s.%s.%s.tar.gz", conceptName, version, arch, rt)
	packagePath := filepath.Join(m.cacheDir, filename)
	if err := createTarball(conceptDir, packagePath, conceptName); err != nil {
		return "", err
	}
	return packagePath, nil
}

// ForkPackage extracts the lexicographically-highest cached version of
// sourceName as newName, rewrites its conceptkernel.yaml name, and
// optionally clears runtime-data directories and creates a git tag.
func (m *Manager) ForkPackage(sourceName, newName, targetDir string, clean bool, tag, tagMessage string) (string, error) {
	packages, err := m.ListCached()
	if err != nil {
		return "", err
	}
	var best *PackageInfo
	for i := range packages {
		if packages[i].Name != sourceName {
			continue
		}
		if best == nil || packages[i].Version > best.Version {
			best = &packages[i]
		}
	}
	if best == nil {
		return "", fmt.Errorf("%w: no cached package found for %q", ckerr.FileNotFound, sourceName)
	}

	conceptsDir := filepath.Join(targetDir, "concepts")
	newKernelDir := filepath.Join(conceptsDir, newName)
	if _, err := os.Stat(newKernelDir); err == nil {
		return "", fmt.Errorf("%w: kernel already exists: %s", ckerr.ValidationError, newName)
	}

	extractedDir, err := m.InstallFromPackage(*best, targetDir, newName)
	if err != nil {
		return "", err
	}

	if err := rewriteKernelName(filepath.Join(extractedDir, "conceptkernel.yaml"), newName); err != nil {
		return "", err
	}

	if clean {
		for _, name := range []string{"queue", "storage", "tx", "consensus", "logs"} {
			dirPath := filepath.Join(extractedDir, name)
			if _, err := os.Stat(dirPath); err != nil {
				continue
			}
			if err := os.RemoveAll(dirPath); err != nil {
				return "", fmt.Errorf("%w: cleaning %s: %v", ckerr.IoError, name, err)
			}
			if err := os.MkdirAll(dirPath, 0o755); err != nil {
				return "", fmt.Errorf("%w: recreating %s: %v", ckerr.IoError, name, err)
			}
		}
	}

	if tag != "" {
		if err := gitTag(extractedDir, tag, tagMessage); err != nil {
			return "", err
		}
	}

	return extractedDir, nil
}

// Import validates and copies an external .tar.gz package into the
// cache.
func (m *Manager) Import(tarballPath string) (PackageInfo, error) {
	if _, err := os.Stat(tarballPath); os.IsNotExist(err) {
		return PackageInfo{}, fmt.Errorf("%w: file not found: %s", ckerr.FileNotFound, tarballPath)
	}
	filename := filepath.Base(tarballPath)
	if !strings.HasSuffix(filename, ".tar.gz") {
		return PackageInfo{}, fmt.Errorf("%w: invalid package file, must be .tar.gz", ckerr.ParseError)
	}
	name, version, arch, rt, ok := parsePackageFilename(filename)
	if !ok {
		return PackageInfo{}, fmt.Errorf("%w: invalid package filename format", ckerr.ParseError)
	}

	destPath := filepath.Join(m.cacheDir, filename)
	if err := copyFile(tarballPath, destPath); err != nil {
		return PackageInfo{}, err
	}
	info, err := os.Stat(destPath)
	if err != nil {
		return PackageInfo{}, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	return PackageInfo{
		Name: name, Version: version, Arch: arch, Runtime: rt,
		Filename: filename, SizeBytes: info.Size(),
	}, nil
}

// Remove deletes a cached package by its legacy "name@version.tar.gz"
// filename, returning false if it wasn't present.
func (m *Manager) Remove(conceptName, version string) (bool, error) {
	path := filepath.Join(m.cacheDir, fmt.Sprintf("%s@%s.tar.gz", conceptName, version))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("%w: removing package: %v", ckerr.IoError, err)
	}
	return true, nil
}

func detectRuntimeAndArch(conceptDir string) (arch, rt string, err error) {
	manifestPath := filepath.Join(conceptDir, "conceptkernel.yaml")
	data, readErr := os.ReadFile(manifestPath)
	if os.IsNotExist(readErr) {
		return "unknown", "unknown", nil
	}
	if readErr != nil {
		return "", "", fmt.Errorf("%w: reading conceptkernel.yaml: %v", ckerr.IoError, readErr)
	}
	var doc struct {
		Metadata struct {
			Type string `yaml:"type"`
		} `yaml:"metadata"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", "", fmt.Errorf("%w: parsing conceptkernel.yaml: %v", ckerr.ParseError, err)
	}

	switch {
	case strings.HasPrefix(doc.Metadata.Type, "rust:"):
		return detectSystemArch(), "rs", nil
	case strings.HasPrefix(doc.Metadata.Type, "python:"):
		return "universal", "py", nil
	case strings.HasPrefix(doc.Metadata.Type, "node:"):
		return "universal", "js", nil
	default:
		return "unknown", "unknown", nil
	}
}

func detectSystemArch() string {
	switch {
	case runtime.GOARCH == "amd64" && runtime.GOOS == "linux":
		return "x86_64-linux"
	case runtime.GOARCH == "arm64" && runtime.GOOS == "linux":
		return "aarch64-linux"
	case runtime.GOARCH == "amd64" && runtime.GOOS == "windows":
		return "x86_64-windows"
	case runtime.GOARCH == "amd64" && runtime.GOOS == "darwin":
		return "x86_64-darwin"
	case runtime.GOARCH == "arm64" && runtime.GOOS == "darwin":
		return "aarch64-darwin"
	default:
		return fmt.Sprintf("%s-%s", runtime.GOARCH, runtime.GOOS)
	}
}

// parsePackageFilename extracts (name, version, arch, runtime) from
// either the current "<name>-<version>.<arch>.<runtime>.tar.gz" format
// or the legacy "<name>@<version>.tar.gz" format.
func parsePackageFilename(filename string) (name, version, arch, rt string, ok bool) {
	namePart := strings.TrimSuffix(filename, ".tar.gz")
	if namePart == filename {
		return "", "", "", "", false
	}

	if lastDot := strings.LastIndex(namePart, "."); lastDot >= 0 {
		beforeRuntime := namePart[:lastDot]
		runtimePart := namePart[lastDot+1:]
		if secondLastDot := strings.LastIndex(beforeRuntime, "."); secondLastDot >= 0 {
			beforeArch := beforeRuntime[:secondLastDot]
			archPart := beforeRuntime[secondLastDot+1:]
			if hyphenPos := strings.LastIndex(beforeArch, "-"); hyphenPos >= 0 {
				return beforeArch[:hyphenPos], beforeArch[hyphenPos+1:], archPart, runtimePart, true
			}
		}
	}

	if parts := strings.SplitN(namePart, "@", 2); len(parts) == 2 {
		return parts[0], parts[1], "unknown", "unknown", true
	}
	return "", "", "", "", false
}

func rewriteKernelName(manifestPath, newName string) error {
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("%w: reading conceptkernel.yaml: %v", ckerr.IoError, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: parsing conceptkernel.yaml: %v", ckerr.ParseError, err)
	}
	setMappingField(&doc, "metadata", "name", newName)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("%w: serializing conceptkernel.yaml: %v", ckerr.IoError, err)
	}
	if err := os.WriteFile(manifestPath, out, 0o644); err != nil {
		return fmt.Errorf("%w: writing conceptkernel.yaml: %v", ckerr.IoError, err)
	}
	return nil
}

// setMappingField walks a !!map document node to section.field and
// sets it to value, appending the field if absent.
func setMappingField(doc *yaml.Node, section, field, value string) {
	if len(doc.Content) == 0 {
		return
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != section {
			continue
		}
		sectionNode := root.Content[i+1]
		for j := 0; j+1 < len(sectionNode.Content); j += 2 {
			if sectionNode.Content[j].Value == field {
				sectionNode.Content[j+1].Value = value
				return
			}
		}
		sectionNode.Content = append(sectionNode.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: field},
			&yaml.Node{Kind: yaml.ScalarNode, Value: value},
		)
		return
	}
}

func gitTag(dir, tag, message string) error {
	cmd := exec.Command("git", "tag", "-a", tag, "-m", message)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: git tag failed: %s", ckerr.IoError, out)
	}
	return nil
}

func extractTarball(tarballPath, targetDir string) error {
	f, err := os.Open(tarballPath)
	if err != nil {
		return fmt.Errorf("%w: opening tarball: %v", ckerr.IoError, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: decompressing tarball: %v", ckerr.IoError, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar entry: %v", ckerr.IoError, err)
		}
		dest := filepath.Join(targetDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ckerr.IoError, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("%w: %v", ckerr.IoError, err)
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("%w: %v", ckerr.IoError, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("%w: %v", ckerr.IoError, err)
			}
			out.Close()
		}
	}
}

// createTarball writes sourceDir into tarballPath as a gzipped tar
// archive rooted at conceptName, without following symlinks (so a
// broken symlink never fails the export).
func createTarball(sourceDir, tarballPath, conceptName string) error {
	out, err := os.Create(tarballPath)
	if err != nil {
		return fmt.Errorf("%w: creating tarball: %v", ckerr.IoError, err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	fsys := os.DirFS(sourceDir)
	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(conceptName, name))
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := fsys.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: building tarball: %v", ckerr.IoError, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	return nil
}
