// Package storage implements the Storage Scanner (C11): enumerating
// a kernel's *.inst instance directories and extracting their
// envelope and payload data.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"github.com/conceptkernel/ck-core/pkg/ckerr"
)

// Instance is one scanned *.inst directory.
type Instance struct {
	TxID      string
	Path      string
	ModTime   time.Time
	Files     []string
	SizeBytes int64
}

// HumanSize formats an instance's total envelope+payload size the way
// status output reports it, e.g. "2.1MB".
func (i Instance) HumanSize() string {
	return units.HumanSize(float64(i.SizeBytes))
}

// Scan enumerates every *.inst directory directly under
// <kernelPath>/storage/, sorted by modification time ascending.
func Scan(kernelPath string) ([]Instance, error) {
	dir := filepath.Join(kernelPath, "storage")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapIo(err)
	}

	var out []Instance
	for _, de := range entries {
		if !de.IsDir() || !strings.HasSuffix(de.Name(), ".inst") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		instPath := filepath.Join(dir, de.Name())
		files, _ := listFiles(instPath)
		out = append(out, Instance{
			TxID:      strings.TrimSuffix(de.Name(), ".inst"),
			Path:      instPath,
			ModTime:   info.ModTime(),
			Files:     files,
			SizeBytes: totalSize(instPath, files),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	return out, nil
}

// ScanSince enumerates instances under kernelPath modified after
// since, supplemental to Scan for incremental polling consumers.
func ScanSince(kernelPath string, since time.Time) ([]Instance, error) {
	all, err := Scan(kernelPath)
	if err != nil {
		return nil, err
	}
	var out []Instance
	for _, inst := range all {
		if inst.ModTime.After(since) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func totalSize(instPath string, files []string) int64 {
	var total int64
	for _, name := range files {
		if info, err := os.Stat(filepath.Join(instPath, name)); err == nil {
			total += info.Size()
		}
	}
	return total
}

// TotalSize sums SizeBytes across instances, for a kernel-level
// storage usage summary.
func TotalSize(instances []Instance) int64 {
	var total int64
	for _, inst := range instances {
		total += inst.SizeBytes
	}
	return total
}

// HumanSize formats an arbitrary byte count the same way Instance's
// HumanSize does, for aggregate totals.
func HumanSize(bytes int64) string {
	return units.HumanSize(float64(bytes))
}

func listFiles(instPath string) ([]string, error) {
	entries, err := os.ReadDir(instPath)
	if err != nil {
		return nil, wrapIo(err)
	}
	var files []string
	for _, de := range entries {
		if !de.IsDir() {
			files = append(files, de.Name())
		}
	}
	return files, nil
}

// ReadFile reads one file out of an instance directory (e.g.
// "receipt.bin" or "result.json"), the envelope/payload extraction
// spec.md §4 refers to as "extract envelope+data".
func ReadFile(inst Instance, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(inst.Path, name))
	if err != nil {
		return nil, wrapIo(err)
	}
	return data, nil
}

func wrapIo(err error) error {
	return fmt.Errorf("%w: %v", ckerr.IoError, err)
}
