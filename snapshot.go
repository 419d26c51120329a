package evolve

import (
	"image"
	"log/slog"
	"time"
)

// Snapshot is a copy of the painting taken when similarity has improved by at
// least 1/Config.MaxSnapshots since the previous one.
type Snapshot struct {
	Seq        int
	Image      *image.RGBA
	Similarity float64
	Strokes    int
}

// Notice is a user-facing message, such as the reason for an automatic stop.
type Notice struct {
	Level   slog.Level
	Message string
	Time    time.Time
}
