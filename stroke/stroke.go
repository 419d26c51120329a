// Package stroke holds the painting's data model: brush strokes, the
// z-ordered store that owns them, and the reversible operations that edit it.
package stroke

import (
	"errors"
	"math"
)

// Errors returned by Store and Operation.
var (
	ErrIndexOutOfRange = errors.New("stroke: index out of range")
	ErrAlreadyDeleted  = errors.New("stroke: stroke already deleted")
	ErrNotDeleted      = errors.New("stroke: stroke is not deleted")
	ErrNotApplied      = errors.New("stroke: operation not applied")
	ErrAlreadyApplied  = errors.New("stroke: operation already applied")
	ErrNotLastSlot     = errors.New("stroke: appended stroke is no longer the last slot")
)

// Color is a normalized color. Every channel is in [0, 1].
type Color struct {
	R, G, B, A float64
}

// Opaque returns an opaque color with the given channels.
func Opaque(r, g, b float64) Color {
	return Color{R: r, G: g, B: b, A: 1}
}

// Clamp returns c with every channel clamped to [0, 1].
func (c Color) Clamp() Color {
	return Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B), A: clamp01(c.A)}
}

// RGBA8 converts the color to 8-bit channels, rounding to nearest.
func (c Color) RGBA8() (r, g, b, a uint8) {
	return to8(c.R), to8(c.G), to8(c.B), to8(c.A)
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255)) //nolint:gosec // clamped to [0,255]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Stroke is one textured brush stamp placed on the canvas.
//
// X and Y are the center in canvas pixels, Rotation is in radians, and Scale
// multiplies the template's pixel size. Brush indexes a template of the brush
// atlas; the template itself is never copied into the stroke.
type Stroke struct {
	X, Y     float64
	Rotation float64
	Scale    float64
	Color    Color
	Brush    int
	Deleted  bool
}

// Visible reports whether the stroke contributes to the rendered image.
func (s Stroke) Visible() bool {
	return !s.Deleted && s.Scale > 0
}
