// Package pidfile implements the universal PID file protocol from
// spec.md §4.7: "<pid>:<start_time>" content, with self-healing reads
// that delete the file whenever it's malformed, stale, or its PID is
// no longer the same OS process. Process start time comes from the
// OS process table (via gopsutil), never from the file itself, so
// PID reuse can never produce a false positive.
package pidfile

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/conceptkernel/ck-core/pkg/ckerr"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Write stamps path with "<pid>:<start_time>", where start_time is
// queried live from the OS process table for pid.
func Write(path string, pid int32) error {
	startTime, err := startTimeOf(pid)
	if err != nil {
		return fmt.Errorf("%w: process %d not found: %v", ckerr.Process, pid, err)
	}
	content := fmt.Sprintf("%d:%d", pid, startTime)
	return os.WriteFile(path, []byte(content), 0o644)
}

// Read validates and returns the live PID recorded at path, or
// (0, false, nil) if the file is absent, malformed, or stale — in
// every such case the file is deleted so the next caller doesn't
// re-examine dead state.
func Read(path string) (pid int32, ok bool, err error) {
	data, readErr := os.ReadFile(path)
	if os.IsNotExist(readErr) {
		return 0, false, nil
	}
	if readErr != nil {
		return 0, false, fmt.Errorf("%w: reading pid file: %v", ckerr.IoError, readErr)
	}

	parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
	if len(parts) != 2 {
		_ = os.Remove(path)
		return 0, false, nil
	}
	parsedPid, parseErr := strconv.ParseInt(parts[0], 10, 32)
	if parseErr != nil {
		_ = os.Remove(path)
		return 0, false, nil
	}
	expectedStart, parseErr := strconv.ParseUint(parts[1], 10, 64)
	if parseErr != nil {
		_ = os.Remove(path)
		return 0, false, nil
	}

	actualStart, startErr := startTimeOf(int32(parsedPid))
	if startErr != nil || actualStart != expectedStart {
		_ = os.Remove(path)
		return 0, false, nil
	}
	return int32(parsedPid), true, nil
}

// Remove deletes the pid file if present, ignoring a not-exist error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing pid file: %v", ckerr.IoError, err)
	}
	return nil
}

func startTimeOf(pid int32) (uint64, error) {
	exists, err := gopsproc.PidExistsWithContext(context.Background(), pid)
	if err != nil || !exists {
		return 0, fmt.Errorf("process %d not running", pid)
	}
	proc, err := gopsproc.NewProcess(pid)
	if err != nil {
		return 0, err
	}
	createTimeMs, err := proc.CreateTimeWithContext(context.Background())
	if err != nil {
		return 0, err
	}
	return uint64(createTimeMs), nil
}

// Cwd returns the live working directory of pid, per spec.md §4.7's
// "operational display" contract: this must query the OS for the
// live process, never be derived from a registry path or the caller's
// own working directory.
func Cwd(pid int32) (string, error) {
	proc, err := gopsproc.NewProcess(pid)
	if err != nil {
		return "", fmt.Errorf("%w: process %d not found: %v", ckerr.Process, pid, err)
	}
	cwd, err := proc.CwdWithContext(context.Background())
	if err != nil {
		return "", fmt.Errorf("%w: reading cwd of process %d: %v", ckerr.Process, pid, err)
	}
	return cwd, nil
}
