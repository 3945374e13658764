// Package obs holds the process-wide structured logger shared by every
// engine subsystem (heap, interp, bytecode). It defaults to a no-op
// logger so the hot path never pays for disabled diagnostics.
package obs

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
	mu         sync.Mutex
)

// Logger returns the shared logger instance, initializing it to a no-op
// logger on first use if SetLogger was never called.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// SetLogger installs l as the shared logger. Used by runtime.New when
// Options.VerboseGC or Options.DumpBytecode request diagnostics.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

var debug = false

// SetDebug toggles the package-level debugf gate.
func SetDebug(v bool) { debug = v }

// Debugf is a gated debug helper; it is a no-op unless SetDebug(true)
// was called, so call sites can remain in hot loops.
func Debugf(format string, args ...any) {
	if debug {
		Logger().Sugar().Debugf(format, args...)
	}
}
