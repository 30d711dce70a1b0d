// Package cklog is the orchestrator's leveled logger, the Go
// equivalent of the teacher's sylog package: a thin, always-available
// wrapper so call sites read Debugf/Infof/Warningf/Errorf/Fatalf
// without passing a logger instance around. Backed by apex/log so
// watcher/daemon processes can attach structured fields (kernel, urn,
// phase) instead of formatting them into the message string.
package cklog

import (
	"os"

	"github.com/apex/log"
	apextext "github.com/apex/log/handlers/text"
)

func init() {
	log.SetHandler(apextext.New(os.Stderr))
	log.SetLevel(log.InfoLevel)
}

// SetOutput redirects the default handler, e.g. to a kernel's
// logs/governor-debug.log file for a watcher subprocess.
func SetOutput(f *os.File) {
	log.SetHandler(apextext.New(f))
}

// SetDebug toggles debug-level verbosity.
func SetDebug(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// WithFields returns a logger entry carrying structured context, e.g.
// cklog.WithFields(log.Fields{"kernel": name, "urn": urn}).Infof(...).
func WithFields(fields log.Fields) *log.Entry {
	return log.WithFields(fields)
}

func Debugf(format string, args ...interface{})   { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})    { log.Infof(format, args...) }
func Warningf(format string, args ...interface{}) { log.Warnf(format, args...) }
func Errorf(format string, args ...interface{})   { log.Errorf(format, args...) }
func Fatalf(format string, args ...interface{})   { log.Fatalf(format, args...) }
