//go:build !nogpu

package gpu

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/evolve/internal/logx"
)

// loggerPtr stores the accelerator's logger. Accessed atomically for thread
// safety.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(logx.NewNop())
}

// slogger returns the current package logger.
func slogger() *slog.Logger { return loggerPtr.Load() }

// setLogger updates the package-level logger.
// Called from ShrinkAccelerator.SetLogger when evolve.SetLogger propagates.
func setLogger(l *slog.Logger) {
	if l == nil {
		l = logx.NewNop()
	}
	loggerPtr.Store(l)
}
