package evolve

import (
	"log/slog"

	"github.com/gogpu/evolve/internal/logx"
	"github.com/gogpu/evolve/rank"
)

// SetLogger configures the logger for evolve and all its sub-packages.
// By default evolve produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore silence.
//
// Log levels used by evolve:
//   - [slog.LevelDebug]: per-tick diagnostics (skipped proposals, compaction)
//   - [slog.LevelInfo]: lifecycle events (session created, pruning finished,
//     accelerator selected)
//   - [slog.LevelWarn]: anomalies and CPU fallbacks
//
// Example:
//
//	evolve.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logx.Set(l)
	if a := rank.Registered(); a != nil {
		if ls, ok := a.(interface{ SetLogger(*slog.Logger) }); ok {
			ls.SetLogger(Logger())
		}
	}
}

// Logger returns the current logger. Safe for concurrent use.
func Logger() *slog.Logger {
	return logx.Logger()
}
