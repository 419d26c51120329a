package focus

import "math"

// Editor is a scratch copy of a map's raw weights that a user paints on.
// Nothing reaches the map until Commit.
type Editor struct {
	m   *Map
	buf []float64
}

// NewEditor starts an edit seeded with the map's current weights, scaled
// so the heaviest cell is 1.
func NewEditor(m *Map) *Editor {
	buf := m.Raw()
	peak := 0.0
	for _, v := range buf {
		peak = math.Max(peak, v)
	}
	if peak > 0 {
		for i := range buf {
			buf[i] /= peak
		}
	}
	return &Editor{m: m, buf: buf}
}

// Paint sets every cell whose center lies within radius canvas pixels of
// (x, y) to value, clamped to [0, 1]. The cell under (x, y) is always
// painted.
func (e *Editor) Paint(x, y, radius, value float64) {
	value = math.Max(0, math.Min(value, 1))
	cols, rows := e.m.Dims()
	cc, cr := e.m.CellAt(x, y)
	e.buf[cr*cols+cc] = value
	r2 := radius * radius
	for row := range rows {
		for col := range cols {
			x0, y0, x1, y1 := e.m.CellBounds(col, row)
			dx, dy := (x0+x1)/2-x, (y0+y1)/2-y
			if dx*dx+dy*dy <= r2 {
				e.buf[row*cols+col] = value
			}
		}
	}
}

// Fill sets every cell to value.
func (e *Editor) Fill(value float64) {
	value = math.Max(0, math.Min(value, 1))
	for i := range e.buf {
		e.buf[i] = value
	}
}

// Weights returns a copy of the edit buffer.
func (e *Editor) Weights() []float64 {
	return append([]float64(nil), e.buf...)
}

// Commit installs the edit buffer as the map's override.
func (e *Editor) Commit() error {
	return e.m.SetOverride(e.buf)
}
