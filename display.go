package evolve

import (
	"fmt"
	"image"

	"github.com/gogpu/evolve/focus"
)

// DisplayMode selects what display frames show.
type DisplayMode uint8

const (
	// DisplayPainting shows the current painting.
	DisplayPainting DisplayMode = iota
	// DisplayTarget shows the target image.
	DisplayTarget
	// DisplayDifference shows the per-pixel absolute difference.
	DisplayDifference
	// DisplayFocus shows the focus map as a heatmap.
	DisplayFocus
)

var displayNames = [...]string{"painting", "target", "difference", "focus"}

// String returns the mode name.
func (m DisplayMode) String() string {
	if int(m) < len(displayNames) {
		return displayNames[m]
	}
	return fmt.Sprintf("DisplayMode(%d)", m)
}

// ParseDisplayMode parses a mode name.
func ParseDisplayMode(s string) (DisplayMode, error) {
	for i, n := range displayNames {
		if n == s {
			return DisplayMode(i), nil
		}
	}
	return 0, fmt.Errorf("evolve: unknown display mode %q", s)
}

// Frame is one display update. Image is owned by the receiver.
type Frame struct {
	Mode       DisplayMode
	Image      *image.RGBA
	Similarity float64
	Strokes    int
	Editing    bool
}

// Display receives frames on every display tick.
type Display interface {
	Present(Frame)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(Frame)

// Present calls f(fr).
func (f DisplayFunc) Present(fr Frame) { f(fr) }

// SetDisplayMode sets the mode of subsequent frames.
func (e *Evolver) SetDisplayMode(m DisplayMode) { e.displayMode = m }

// DisplayMode returns the current display mode.
func (e *Evolver) DisplayMode() DisplayMode { return e.displayMode }

// Frame renders a display frame for the current mode. While the focus map is
// being edited the frame always shows the edit buffer.
func (e *Evolver) Frame() (Frame, error) {
	if e.sess == nil {
		return Frame{}, ErrNoImage
	}
	s := e.sess
	fr := Frame{
		Mode:       e.displayMode,
		Similarity: e.similarity,
		Strokes:    s.store.LiveCount(),
		Editing:    e.editor != nil,
	}
	cols, rows := s.focus.Dims()
	switch {
	case e.editor != nil:
		fr.Mode = DisplayFocus
		fr.Image = focus.Heatmap(e.editor.Weights(), cols, rows, s.width, s.height)
	case e.displayMode == DisplayTarget:
		fr.Image, _ = e.Target()
	case e.displayMode == DisplayDifference:
		fr.Image = difference(s.renderer.Composite(), s.ranker.Target())
	case e.displayMode == DisplayFocus:
		fr.Image = s.focus.Heatmap(s.width, s.height)
	default:
		fr.Image = s.renderer.RenderedImage()
	}
	return fr, nil
}

func (e *Evolver) refreshDisplay() {
	if e.display == nil || e.sess == nil {
		return
	}
	fr, err := e.Frame()
	if err != nil {
		return
	}
	e.display.Present(fr)
}

// difference returns |a-b| per color channel with opaque alpha.
func difference(a, b *image.RGBA) *image.RGBA {
	out := image.NewRGBA(a.Rect)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		for c := range 3 {
			x, y := a.Pix[i+c], b.Pix[i+c]
			if x > y {
				out.Pix[i+c] = x - y
			} else {
				out.Pix[i+c] = y - x
			}
		}
		out.Pix[i+3] = 0xff
	}
	return out
}
