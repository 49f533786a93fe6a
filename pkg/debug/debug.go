// Package debug is the logging sink of flowstate.
//
// Two streams exist. Error always writes: it reports what a refresh
// recovered from, such as a rejected style write or an unreadable metric
// value, so a broken rule never fails silently. Everything else is debug
// tracing, written only when FS_DEBUG is set:
//
//	FS_DEBUG=1 flowstate --rules rules.yaml --diagram diagram.yaml --data data/
//
// Both streams go to stderr with timestamps unless redirected.
package debug

import (
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

var enabled atomic.Bool

var (
	traceLog = log.New(os.Stderr, "[FS_DEBUG] ", log.Ltime|log.Lmicroseconds)
	errorLog = log.New(os.Stderr, "[flowstate] ", log.Ltime)
)

func init() {
	enabled.Store(os.Getenv("FS_DEBUG") != "")
}

// Enabled reports whether debug tracing is on.
func Enabled() bool { return enabled.Load() }

// SetEnabled switches debug tracing on or off.
func SetEnabled(e bool) { enabled.Store(e) }

// SetOutput redirects debug tracing.
func SetOutput(w io.Writer) { traceLog.SetOutput(w) }

// SetErrorOutput redirects the error stream. Tests use it to capture or
// silence recovered errors.
func SetErrorOutput(w io.Writer) { errorLog.SetOutput(w) }

// Error reports a recovered error, debug mode or not.
func Error(format string, args ...any) {
	errorLog.Printf("error: "+format, args...)
}

// Log writes a trace line.
func Log(format string, args ...any) {
	if !Enabled() {
		return
	}
	traceLog.Printf(format, args...)
}

// LogTiming writes how long name took.
func LogTiming(name string, d time.Duration) {
	if !Enabled() {
		return
	}
	traceLog.Printf("%s took %v", name, d)
}

// LogEnterExit traces entry into name and, when the returned func runs,
// the exit with the elapsed time.
//
//	defer debug.LogEnterExit("refresh")()
func LogEnterExit(name string) func() {
	if !Enabled() {
		return func() {}
	}
	traceLog.Printf("-> %s", name)
	start := time.Now()
	return func() {
		traceLog.Printf("<- %s (%v)", name, time.Since(start))
	}
}

// Section writes a header line separating the trace of one cycle from the
// next.
func Section(name string) {
	if !Enabled() {
		return
	}
	traceLog.Printf("=== %s ===", name)
}
