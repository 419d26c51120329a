// Package rank scores a rendered canvas against the target image.
//
// The score is the sum over all pixels of |ΔR|+|ΔG|+|ΔB|, kept as an exact
// integer so equal scores compare equal. It is computed as a difference pass
// fused with a 2×2 summing pass, followed by further halving passes until the
// grid fits a small size; the grid doubles as a coarse spatial error map.
package rank

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/gogpu/evolve/internal/logx"
	"github.com/gogpu/evolve/internal/parallel"
)

// DefaultMaxGrid is the default upper bound for either grid dimension.
const DefaultMaxGrid = 64

// ErrSizeMismatch is returned when the composite and target sizes differ.
var ErrSizeMismatch = errors.New("rank: composite size differs from target")

var logger = logx.Logger

// AccelMode selects whether a ranker uses the registered accelerator.
type AccelMode uint8

const (
	// AccelAuto uses the accelerator when one is registered and free.
	AccelAuto AccelMode = iota
	// AccelOff always uses the CPU passes.
	AccelOff
	// AccelRequired fails construction without an accelerator.
	AccelRequired
)

// String returns the mode name as used in configuration.
func (m AccelMode) String() string {
	switch m {
	case AccelOff:
		return "cpu"
	case AccelRequired:
		return "gpu"
	default:
		return "auto"
	}
}

// ParseAccelMode parses "auto", "cpu" or "gpu".
func ParseAccelMode(s string) (AccelMode, error) {
	switch s {
	case "", "auto":
		return AccelAuto, nil
	case "cpu":
		return AccelOff, nil
	case "gpu":
		return AccelRequired, nil
	default:
		return AccelAuto, fmt.Errorf("rank: unknown device %q", s)
	}
}

// Option configures a Ranker.
type Option func(*options)

type options struct {
	maxGrid int
	pool    *parallel.WorkerPool
	mode    AccelMode
}

// WithMaxGrid bounds the grid size in cells per side. Values below 1 are
// ignored.
func WithMaxGrid(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxGrid = n
		}
	}
}

// WithPool runs the CPU passes on pool. The ranker does not close it.
func WithPool(pool *parallel.WorkerPool) Option {
	return func(o *options) { o.pool = pool }
}

// WithAcceleration selects the accelerator policy.
func WithAcceleration(mode AccelMode) Option {
	return func(o *options) { o.mode = mode }
}

type cellValue struct {
	index int
	value uint64
}

// Ranker scores composites against one target image. It is not safe for
// concurrent use.
type Ranker struct {
	width, height int
	target        *image.RGBA
	passes        int
	cell          int
	cols, rows    int
	levels        [][]uint64 // levels[k] holds the result of pass k+1
	grid          []uint64
	total         uint64

	prevTotal uint64
	prevCells []cellValue
	prevGrid  []uint64
	undoFull  bool
	canUndo   bool

	pool     *parallel.WorkerPool
	ownsPool bool
	accel    Accelerator
	mode     AccelMode
	scratch  []uint64
}

// New creates a ranker for target.
func New(target image.Image, opts ...Option) (*Ranker, error) {
	if target == nil || target.Bounds().Empty() {
		return nil, errors.New("rank: empty target")
	}
	o := options{maxGrid: DefaultMaxGrid}
	for _, opt := range opts {
		opt(&o)
	}

	b := target.Bounds()
	r := &Ranker{
		width:  b.Dx(),
		height: b.Dy(),
		target: image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy())),
		mode:   o.mode,
		pool:   o.pool,
	}
	draw.Draw(r.target, r.target.Rect, target, b.Min, draw.Src)

	r.passes = passesFor(r.width, r.height, o.maxGrid)
	r.cell = 1 << r.passes
	r.cols, r.rows = ceilDiv(r.width, r.cell), ceilDiv(r.height, r.cell)
	w, h := r.width, r.height
	for range r.passes {
		w, h = ceilDiv(w, 2), ceilDiv(h, 2)
		r.levels = append(r.levels, make([]uint64, w*h))
	}
	if r.passes == 0 {
		r.grid = make([]uint64, r.cols*r.rows)
	} else {
		r.grid = r.levels[r.passes-1]
	}
	r.prevGrid = make([]uint64, len(r.grid))

	if r.pool == nil {
		r.pool = parallel.NewWorkerPool(0)
		r.ownsPool = true
	}
	if err := r.attachAccelerator(); err != nil {
		r.Dispose()
		return nil, err
	}
	return r, nil
}

func (r *Ranker) attachAccelerator() error {
	if r.mode == AccelOff {
		return nil
	}
	a := claimAccelerator()
	if a == nil {
		if r.mode == AccelRequired {
			return ErrAcceleratorUnavailable
		}
		return nil
	}
	if err := a.Prepare(r.target.Pix, r.width, r.height, r.passes); err != nil {
		releaseAccelerator(a)
		if r.mode == AccelRequired {
			return fmt.Errorf("%w: %s: %w", ErrAcceleratorUnavailable, a.Name(), err)
		}
		logger().Warn("rank: accelerator declined session, using CPU", "accelerator", a.Name(), "err", err)
		return nil
	}
	r.accel = a
	r.scratch = make([]uint64, len(r.grid))
	logger().Info("rank: using accelerator", "accelerator", a.Name(), "passes", r.passes)
	return nil
}

// passesFor returns the number of halvings needed for a w×h image to fit
// maxGrid cells per side.
func passesFor(w, h, maxGrid int) int {
	p := 0
	for ceilDiv(w, 1<<p) > maxGrid || ceilDiv(h, 1<<p) > maxGrid {
		p++
	}
	return p
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Accelerated reports whether the ranker runs on an accelerator.
func (r *Ranker) Accelerated() bool { return r.accel != nil }

// Passes returns the number of 2×2 halving passes.
func (r *Ranker) Passes() int { return r.passes }

// GridSize returns the size of the final grid.
func (r *Ranker) GridSize() (cols, rows int) { return r.cols, r.rows }

// Score returns the total of the last ranking.
func (r *Ranker) Score() uint64 { return r.total }

// MaxScore returns the largest possible score for the target size.
func (r *Ranker) MaxScore() uint64 {
	return uint64(r.width) * uint64(r.height) * 3 * 255 //nolint:gosec // sizes are positive
}

// ToPercentage maps a score to a similarity in [0, 1], 1 being identical.
func (r *Ranker) ToPercentage(score uint64) float64 {
	return 1 - float64(score)/float64(r.MaxScore())
}

// Target returns the ranker's copy of the target image. It must not be
// modified.
func (r *Ranker) Target() *image.RGBA { return r.target }

func (r *Ranker) checkSize(comp *image.RGBA) error {
	if comp.Rect.Dx() != r.width || comp.Rect.Dy() != r.height || comp.Stride != r.width*4 {
		return ErrSizeMismatch
	}
	return nil
}

// Rank scores comp over the whole canvas.
func (r *Ranker) Rank(comp *image.RGBA) (uint64, error) {
	if err := r.checkSize(comp); err != nil {
		return 0, err
	}
	copy(r.prevGrid, r.grid)
	r.prevTotal = r.total
	r.undoFull, r.canUndo = true, true

	if r.accel != nil {
		err := r.accel.Reduce(comp.Pix, r.scratch)
		if err == nil {
			copy(r.grid, r.scratch)
			r.total = sum(r.grid)
			return r.total, nil
		}
		if r.mode == AccelRequired {
			return 0, fmt.Errorf("rank: %s: %w", r.accel.Name(), err)
		}
		logger().Warn("rank: accelerator failed, falling back to CPU", "accelerator", r.accel.Name(), "err", err)
		releaseAccelerator(r.accel)
		r.accel = nil
	}
	r.reduceCPU(comp)
	r.total = sum(r.grid)
	return r.total, nil
}

// RankDirty rescores comp assuming only pixels inside dirty changed since
// the previous Rank or RankDirty call. The result equals Rank(comp).
func (r *Ranker) RankDirty(comp *image.RGBA, dirty image.Rectangle) (uint64, error) {
	if r.accel != nil {
		return r.Rank(comp)
	}
	if err := r.checkSize(comp); err != nil {
		return 0, err
	}
	r.prevTotal = r.total
	r.prevCells = r.prevCells[:0]
	r.undoFull, r.canUndo = false, true

	dirty = dirty.Intersect(image.Rect(0, 0, r.width, r.height))
	if dirty.Empty() {
		return r.total, nil
	}
	gx0, gy0 := dirty.Min.X/r.cell, dirty.Min.Y/r.cell
	gx1, gy1 := ceilDiv(dirty.Max.X, r.cell), ceilDiv(dirty.Max.Y, r.cell)
	nx := gx1 - gx0

	fresh := make([]uint64, nx*(gy1-gy0))
	r.pool.Bands(gy1-gy0, 2, func(lo, hi int) {
		for gy := lo; gy < hi; gy++ {
			for gx := range nx {
				fresh[gy*nx+gx] = r.cellSum(comp, gx0+gx, gy0+gy)
			}
		}
	})

	for gy := gy0; gy < gy1; gy++ {
		for gx := gx0; gx < gx1; gx++ {
			i := gy*r.cols + gx
			v := fresh[(gy-gy0)*nx+gx-gx0]
			r.prevCells = append(r.prevCells, cellValue{index: i, value: r.grid[i]})
			r.total = r.total - r.grid[i] + v
			r.grid[i] = v
		}
	}
	return r.total, nil
}

// Revert restores the grid and score from before the last Rank or
// RankDirty call. A second Revert does nothing.
func (r *Ranker) Revert() {
	if !r.canUndo {
		return
	}
	if r.undoFull {
		copy(r.grid, r.prevGrid)
	} else {
		for _, c := range r.prevCells {
			r.grid[c.index] = c.value
		}
	}
	r.total = r.prevTotal
	r.canUndo = false
}

// ErrorMap returns a copy of the coarse error grid.
func (r *Ranker) ErrorMap() ErrorMap {
	return ErrorMap{cols: r.cols, rows: r.rows, cell: r.cell, values: append([]uint64(nil), r.grid...)}
}

// Dispose releases the accelerator session and the worker pool.
func (r *Ranker) Dispose() {
	if r.accel != nil {
		releaseAccelerator(r.accel)
		r.accel = nil
	}
	if r.ownsPool && r.pool != nil {
		r.pool.Close()
	}
	r.pool = nil
}

func sum(v []uint64) uint64 {
	var t uint64
	for _, x := range v {
		t += x
	}
	return t
}

// ErrorMap is a coarse grid of summed absolute channel differences.
type ErrorMap struct {
	cols, rows int
	cell       int
	values     []uint64
}

// Dims returns the grid size.
func (m ErrorMap) Dims() (cols, rows int) { return m.cols, m.rows }

// At returns the error of one cell.
func (m ErrorMap) At(col, row int) float64 { return float64(m.values[row*m.cols+col]) }

// Cell returns the cell size in canvas pixels.
func (m ErrorMap) Cell() int { return m.cell }

// Total returns the sum over all cells.
func (m ErrorMap) Total() uint64 { return sum(m.values) }
