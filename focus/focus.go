// Package focus implements the focus map: a coarse grid of weights that
// biases where new strokes are placed toward regions of high error.
package focus

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

// MaxExponent bounds the sharpening exponent.
const MaxExponent = 8.0

// ErrSize is returned when override weights do not match the grid.
var ErrSize = errors.New("focus: weight count does not match grid")

// ErrorGrid is a coarse map of per-region error at any resolution.
type ErrorGrid interface {
	Dims() (cols, rows int)
	At(col, row int) float64
}

// Map is a grid of non-negative weights over the canvas.
//
// Raw weights come either from the latest error map or from a user override;
// effective weights are raw^exponent. When all effective weights are zero
// the map behaves as uniform.
//
// Map is not safe for concurrent use.
type Map struct {
	cols, rows int
	canvasW    float64
	canvasH    float64
	exponent   float64

	raw      []float64
	weights  []float64
	cdf      []float64
	total    float64
	override bool
}

// New creates a uniform cols×rows map over a canvasW×canvasH canvas.
func New(cols, rows, canvasW, canvasH int) *Map {
	cols, rows = max(cols, 1), max(rows, 1)
	m := &Map{
		cols:     cols,
		rows:     rows,
		canvasW:  float64(canvasW),
		canvasH:  float64(canvasH),
		exponent: 1,
		raw:      make([]float64, cols*rows),
		weights:  make([]float64, cols*rows),
		cdf:      make([]float64, cols*rows),
	}
	for i := range m.raw {
		m.raw[i] = 1
	}
	m.rebuild()
	return m
}

// Dims returns the grid size.
func (m *Map) Dims() (cols, rows int) { return m.cols, m.rows }

// Exponent returns the sharpening exponent.
func (m *Map) Exponent() float64 { return m.exponent }

// SetExponent sets the sharpening exponent, clamped to [0, MaxExponent].
// 0 makes the map uniform, 1 keeps raw proportions, larger values
// concentrate samples on the heaviest cells.
func (m *Map) SetExponent(e float64) {
	if math.IsNaN(e) {
		e = 1
	}
	e = math.Max(0, math.Min(e, MaxExponent))
	if e == m.exponent {
		return
	}
	m.exponent = e
	m.rebuild()
}

// Overridden reports whether user-supplied weights are active.
func (m *Map) Overridden() bool { return m.override }

// UpdateFromErrorMap resamples g into the grid and makes it the raw weights.
// It does nothing and returns false while an override is active.
func (m *Map) UpdateFromErrorMap(g ErrorGrid) bool {
	if m.override {
		return false
	}
	resample(m.raw, m.cols, m.rows, g)
	m.rebuild()
	return true
}

// SetOverride installs user-edited raw weights and suspends automatic
// updates until ClearOverride.
func (m *Map) SetOverride(weights []float64) error {
	if len(weights) != len(m.raw) {
		return ErrSize
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) {
			w = 0
		}
		m.raw[i] = w
	}
	m.override = true
	m.rebuild()
	return nil
}

// ClearOverride returns the map to automatic mode with uniform weights
// until the next UpdateFromErrorMap.
func (m *Map) ClearOverride() {
	m.override = false
	for i := range m.raw {
		m.raw[i] = 1
	}
	m.rebuild()
}

// Raw returns a copy of the raw weights in row-major order.
func (m *Map) Raw() []float64 {
	return append([]float64(nil), m.raw...)
}

// Weight returns the normalized effective weight of a cell. Weights sum to 1.
func (m *Map) Weight(col, row int) float64 {
	i := row*m.cols + col
	if m.total == 0 {
		return 1 / float64(len(m.weights))
	}
	return m.weights[i] / m.total
}

// Sample draws a canvas position: a cell with probability proportional to
// its effective weight, then a uniform point inside that cell.
func (m *Map) Sample(rng *rand.Rand) (x, y float64) {
	var i int
	if m.total == 0 {
		i = rng.IntN(len(m.weights))
	} else {
		u := rng.Float64() * m.total
		i = sort.Search(len(m.cdf), func(k int) bool { return m.cdf[k] > u })
		if i == len(m.cdf) {
			i = m.last()
		}
	}
	col, row := i%m.cols, i/m.cols
	x0, y0, x1, y1 := m.CellBounds(col, row)
	return x0 + rng.Float64()*(x1-x0), y0 + rng.Float64()*(y1-y0)
}

// last returns the final cell with non-zero weight; it guards against u
// rounding up to the total.
func (m *Map) last() int {
	for i := len(m.weights) - 1; i > 0; i-- {
		if m.weights[i] > 0 {
			return i
		}
	}
	return 0
}

// CellBounds returns the canvas footprint of a cell.
func (m *Map) CellBounds(col, row int) (x0, y0, x1, y1 float64) {
	cw, ch := m.canvasW/float64(m.cols), m.canvasH/float64(m.rows)
	return float64(col) * cw, float64(row) * ch, float64(col+1) * cw, float64(row+1) * ch
}

// CellAt returns the cell containing canvas point (x, y), clamped to the grid.
func (m *Map) CellAt(x, y float64) (col, row int) {
	col = int(x * float64(m.cols) / m.canvasW)
	row = int(y * float64(m.rows) / m.canvasH)
	return min(max(col, 0), m.cols-1), min(max(row, 0), m.rows-1)
}

func (m *Map) rebuild() {
	sum := 0.0
	for i, r := range m.raw {
		w := 0.0
		if r > 0 || m.exponent == 0 {
			w = math.Pow(r, m.exponent)
		}
		m.weights[i] = w
		sum += w
		m.cdf[i] = sum
	}
	m.total = sum
}

// resample fills dst (cols×rows) from g by averaging the source cells each
// destination cell covers; when g is coarser this picks the nearest cell.
func resample(dst []float64, cols, rows int, g ErrorGrid) {
	sc, sr := g.Dims()
	if sc <= 0 || sr <= 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	for r := range rows {
		r0 := r * sr / rows
		r1 := max((r+1)*sr/rows, r0+1)
		for c := range cols {
			c0 := c * sc / cols
			c1 := max((c+1)*sc/cols, c0+1)
			sum := 0.0
			for y := r0; y < r1; y++ {
				for x := c0; x < c1; x++ {
					sum += g.At(x, y)
				}
			}
			dst[r*cols+c] = sum / float64((r1-r0)*(c1-c0))
		}
	}
}
