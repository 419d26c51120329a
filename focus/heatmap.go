package focus

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/transform"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Heatmap renders weights (cols×rows, row-major, any scale) as a w×h image
// running from blue for the lightest cell to red for the heaviest.
func Heatmap(weights []float64, cols, rows, w, h int) *image.RGBA {
	grid := image.NewRGBA(image.Rect(0, 0, cols, rows))
	peak := 0.0
	for _, v := range weights {
		peak = max(peak, v)
	}
	for i, v := range weights {
		t := 0.0
		if peak > 0 {
			t = v / peak
		}
		c := colorful.Hsv(240*(1-t), 0.85, 0.35+0.65*t)
		r, g, b := c.RGB255()
		grid.SetRGBA(i%cols, i/cols, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	if cols == w && rows == h {
		return grid
	}
	return transform.Resize(grid, w, h, transform.Linear)
}

// Heatmap renders the map's effective weights at canvas size w×h.
func (m *Map) Heatmap(w, h int) *image.RGBA {
	return Heatmap(m.weights, m.cols, m.rows, w, h)
}
