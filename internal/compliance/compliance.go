// Package compliance is the thin governance wrapper spec.md §1 calls
// out as "referenced only by interface": a secondary structured sink,
// independent of the primary apex/log logger, that records one entry
// per RBAC denial and per evidence-ready metadata line so an operator
// can reconstruct who touched what without this package implementing
// any retention or audit policy itself.
package compliance

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	logger = newLogger(os.Stderr)
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(out)
	return l
}

// Configure points the compliance sink at path, appending, or falls
// back to stderr when path is empty.
func Configure(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if path == "" {
		logger = newLogger(os.Stderr)
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logger = newLogger(f)
	return nil
}

// DenyRBAC records one structured entry for an RBAC denial.
func DenyRBAC(kernel, role, operation, reason string) {
	mu.Lock()
	l := logger
	mu.Unlock()
	l.WithFields(logrus.Fields{
		"event":     "rbac_denied",
		"kernel":    kernel,
		"role":      role,
		"operation": operation,
		"reason":    reason,
	}).Warn("rbac denial")
}

// EvidenceRecord records one evidence-ready metadata line: who routed
// what, to where, and whether it succeeded. This is the line the edge
// request builder (C7) and the edge router daemon (C15) both emit per
// notification entry processed, regardless of outcome.
func EvidenceRecord(kernel, predicate, target, outcome string) {
	mu.Lock()
	l := logger
	mu.Unlock()
	l.WithFields(logrus.Fields{
		"event":     "evidence_record",
		"kernel":    kernel,
		"predicate": predicate,
		"target":    target,
		"outcome":   outcome,
	}).Info("evidence record")
}
