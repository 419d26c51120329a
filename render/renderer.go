// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"image"
	"image/color"

	"github.com/gogpu/evolve/brush"
	"github.com/gogpu/evolve/internal/raster"
	"github.com/gogpu/evolve/stroke"
)

// DefaultCheckpointInterval is the number of strokes between checkpoints.
const DefaultCheckpointInterval = 64

// ErrInvalidSize is returned for a non-positive canvas size.
var ErrInvalidSize = errors.New("render: invalid canvas size")

// Option configures a Renderer.
type Option func(*options)

type options struct {
	background color.RGBA
	interval   int
	pool       *raster.Pool
}

// WithBackground sets the canvas color under all strokes. The default is
// opaque black.
func WithBackground(c color.RGBA) Option {
	return func(o *options) {
		c.A = 255
		o.background = c
	}
}

// WithCheckpointInterval sets the number of strokes between cached
// checkpoints. Values below 1 are ignored.
func WithCheckpointInterval(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.interval = n
		}
	}
}

// WithPool makes the renderer take checkpoint images from pool.
func WithPool(pool *raster.Pool) Option {
	return func(o *options) {
		if pool != nil {
			o.pool = pool
		}
	}
}

// slot is the state a stroke was last painted with.
type slot struct {
	stroke stroke.Stroke
	bounds image.Rectangle
}

// Renderer paints a stroke.Store. It is not safe for concurrent use.
type Renderer struct {
	width, height int
	canvas        image.Rectangle
	atlas         *brush.Atlas
	background    color.RGBA
	interval      int
	pool          *raster.Pool

	composite   *image.RGBA
	checkpoints []*image.RGBA
	slots       []slot
}

// New creates a renderer for a width×height canvas.
func New(width, height int, atlas *brush.Atlas, opts ...Option) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidSize
	}
	if atlas == nil {
		return nil, errors.New("render: nil atlas")
	}
	o := options{
		background: color.RGBA{A: 255},
		interval:   DefaultCheckpointInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pool == nil {
		o.pool = raster.NewPool(4)
	}
	r := &Renderer{
		width:      width,
		height:     height,
		canvas:     image.Rect(0, 0, width, height),
		atlas:      atlas,
		background: o.background,
		interval:   o.interval,
		pool:       o.pool,
		composite:  image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	bg := r.pool.Get(width, height)
	raster.Fill(bg, r.canvas, r.background.R, r.background.G, r.background.B)
	r.checkpoints = []*image.RGBA{bg}
	raster.CopyRect(r.composite, bg, r.canvas)
	return r, nil
}

// Size returns the canvas size.
func (r *Renderer) Size() (width, height int) { return r.width, r.height }

// Background returns the canvas background color.
func (r *Renderer) Background() color.RGBA { return r.background }

// Composite returns the live composite image. It changes on every render
// call and must not be modified.
func (r *Renderer) Composite() *image.RGBA { return r.composite }

// RenderedImage returns a copy of the composite.
func (r *Renderer) RenderedImage() *image.RGBA {
	out := image.NewRGBA(r.canvas)
	copy(out.Pix, r.composite.Pix)
	return out
}

// Pixels returns a copy of the composite as row-major RGBA bytes.
func (r *Renderer) Pixels() []byte {
	return append([]byte(nil), r.composite.Pix...)
}

// Checkpoints returns the number of cached checkpoints, the background
// included.
func (r *Renderer) Checkpoints() int { return len(r.checkpoints) }

// StrokeBounds returns the canvas pixels st can touch. Invisible strokes
// have empty bounds.
func (r *Renderer) StrokeBounds(st stroke.Stroke) image.Rectangle {
	if !st.Visible() || st.Brush < 0 || st.Brush >= r.atlas.Len() {
		return image.Rectangle{}
	}
	w, h := r.atlas.Size(st.Brush)
	m := raster.Placement(st.X, st.Y, st.Rotation, st.Scale, w, h)
	// Bilinear sampling reaches half a texel past the template edge.
	fw, fh := float64(w), float64(h)
	return m.Bounds(-0.5, -0.5, fw+0.5, fh+0.5).Inset(-1).Intersect(r.canvas)
}

// RenderFull repaints every stroke from the background and rebuilds all
// checkpoints. Use it after Compact or Replace, which renumber slots.
func (r *Renderer) RenderFull(s *stroke.Store) {
	r.dropCheckpoints(1)
	raster.CopyRect(r.composite, r.checkpoints[0], r.canvas)

	n := s.Len()
	r.slots = r.slots[:0]
	for i := range n {
		if i > 0 && i%r.interval == 0 {
			r.pushCheckpoint(r.composite)
		}
		st, _ := s.At(i)
		b := r.StrokeBounds(st)
		r.slots = append(r.slots, slot{stroke: st, bounds: b})
		r.paint(r.composite, st, b)
	}
}

// RenderFrom brings the composite up to date with s, assuming no slot below
// from changed since the last render. It returns the canvas rectangle that
// was repainted; the rectangle is empty when no pixel could have changed.
func (r *Renderer) RenderFrom(s *stroke.Store, from int) image.Rectangle {
	from = max(from, 0)
	n := s.Len()
	first := -1
	var dirty image.Rectangle

	mark := func(i int, b image.Rectangle) {
		dirty = dirty.Union(b)
		if first < 0 || i < first {
			first = i
		}
	}

	limit := min(n, len(r.slots))
	for i := from; i < limit; i++ {
		st, _ := s.At(i)
		if st == r.slots[i].stroke {
			continue
		}
		b := r.StrokeBounds(st)
		mark(i, r.slots[i].bounds.Union(b))
		r.slots[i] = slot{stroke: st, bounds: b}
	}
	for i := limit; i < len(r.slots); i++ {
		mark(i, r.slots[i].bounds)
	}
	r.slots = r.slots[:limit]
	for i := limit; i < n; i++ {
		st, _ := s.At(i)
		b := r.StrokeBounds(st)
		r.slots = append(r.slots, slot{stroke: st, bounds: b})
		mark(i, b)
	}
	if first < 0 {
		return image.Rectangle{}
	}

	// Only checkpoints strictly below the store end are refreshed by repaint;
	// any others may describe strokes that are gone or have changed.
	r.dropCheckpoints(r.checkpointsFor(n))

	dirty = dirty.Intersect(r.canvas)
	if !dirty.Empty() {
		r.repaint(first, dirty)
	}
	r.extendCheckpoints()
	return dirty
}

// repaint rebuilds rect from the nearest checkpoint at or below first,
// refreshing every later checkpoint inside rect on the way.
func (r *Renderer) repaint(first int, rect image.Rectangle) {
	base := min(first/r.interval, len(r.checkpoints)-1)
	raster.CopyRect(r.composite, r.checkpoints[base], rect)

	start := base * r.interval
	for i := start; i < len(r.slots); i++ {
		if i > start && i%r.interval == 0 {
			if k := i / r.interval; k < len(r.checkpoints) {
				raster.CopyRect(r.checkpoints[k], r.composite, rect)
			}
		}
		sl := &r.slots[i]
		if sl.bounds.Overlaps(rect) {
			r.paint(r.composite, sl.stroke, sl.bounds.Intersect(rect))
		}
	}
}

// extendCheckpoints adds checkpoints until fewer than two intervals of
// strokes lie above the last one.
func (r *Renderer) extendCheckpoints() {
	for (len(r.checkpoints)+1)*r.interval <= len(r.slots) {
		last := len(r.checkpoints) - 1
		img := r.pool.Get(r.width, r.height)
		copy(img.Pix, r.checkpoints[last].Pix)
		for i := last * r.interval; i < (last+1)*r.interval; i++ {
			sl := &r.slots[i]
			r.paint(img, sl.stroke, sl.bounds)
		}
		r.checkpoints = append(r.checkpoints, img)
	}
}

func (r *Renderer) pushCheckpoint(src *image.RGBA) {
	img := r.pool.Get(r.width, r.height)
	copy(img.Pix, src.Pix)
	r.checkpoints = append(r.checkpoints, img)
}

// checkpointsFor returns how many checkpoints a store of n slots keeps:
// checkpoint k covers slots [0, k*interval) and exists only while
// k*interval < n, plus the background.
func (r *Renderer) checkpointsFor(n int) int {
	if n <= 0 {
		return 1
	}
	return (n-1)/r.interval + 1
}

// dropCheckpoints keeps at most the first keep checkpoints.
func (r *Renderer) dropCheckpoints(keep int) {
	keep = max(keep, 1)
	for i := keep; i < len(r.checkpoints); i++ {
		r.pool.Put(r.checkpoints[i])
		r.checkpoints[i] = nil
	}
	if keep < len(r.checkpoints) {
		r.checkpoints = r.checkpoints[:keep]
	}
}

// Dispose releases the checkpoint images. The renderer must not be used
// afterwards.
func (r *Renderer) Dispose() {
	for i, cp := range r.checkpoints {
		r.pool.Put(cp)
		r.checkpoints[i] = nil
	}
	r.checkpoints = nil
	r.slots = nil
}
