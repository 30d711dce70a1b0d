// Package atomicfile provides the write-to-temp-then-rename primitive
// used by every on-disk JSON/YAML artifact in this module (registry
// entries, .ckports, process and continuant records, edge metadata).
// A sibling flock-guarded lock file serializes concurrent writers to
// the same path, satisfying spec.md §5's "single-writer per URN /
// serialize via in-process cache" guarantee even across processes.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// WriteFile atomically replaces path with data: it writes to a
// sibling temp file and renames over the target, guarded by a flock on
// "<path>.lock" so concurrent writers within or across processes
// serialize instead of racing.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.NewString()))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// WithLock runs fn while holding an exclusive flock on "<path>.lock",
// for read-modify-write sequences that span more than one WriteFile
// call (e.g. load port map, mutate, save).
func WithLock(path string, fn func() error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()
	return fn()
}
