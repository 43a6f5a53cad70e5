// Package obslog wires up structured logging with go.uber.org/zap, the
// ambient-stack logging library named in SPEC_FULL.md (the rest of the
// retrieval pack reaches for zap wherever it needs structured logs, e.g.
// other_examples' processmgr package). It also installs the crash-log
// hook spec.md 4.F's exec/Internal-class errors need: an Internal error
// is unrecoverable by definition, so it is appended to a file under
// $TMPDIR rather than only printed, before the process exits 70.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Logger wraps a *zap.Logger plus the crash-log file path resolved at
// construction time.
type Logger struct {
	z         *zap.Logger
	crashPath string
	debug     bool
}

// New builds a Logger. debug gates Debug-level output the way
// GOSH_DEBUG=1 does for the interactive shell; the crash log always
// lands under tmpDir regardless of debug, since Internal errors are
// meant to be reported even in a quiet shell.
func New(tmpDir string, debug bool) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = !debug
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("obslog: %w", err)
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Logger{z: z, crashPath: filepath.Join(tmpDir, "gosh-crash.log"), debug: debug}, nil
}

// Debug logs at debug level; a no-op build when debug logging is off,
// matching zap's own level-gated cost model.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	if l == nil || !l.debug {
		return
	}
	l.z.Debug(msg, fields...)
}

// Warn logs a recoverable shell error (reported to the user on stderr
// already by the engine; this is the structured-log side channel).
func (l *Logger) Warn(err error) {
	if l == nil {
		return
	}
	l.z.Warn("shell error", zap.Error(err))
}

// Crash appends an Internal-class error to the crash log before the
// process exits 70, matching spec.md 4.F's Internal exit-code contract.
func (l *Logger) Crash(err error) {
	if l == nil {
		return
	}
	l.z.Error("internal error", zap.Error(err))
	f, ferr := os.OpenFile(l.crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if ferr != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s gosh: internal error: %v\n", time.Now().UTC().Format(time.RFC3339), err)
}

// Sync flushes the underlying zap core, best called via defer from main.
func (l *Logger) Sync() {
	if l == nil {
		return
	}
	_ = l.z.Sync()
}
