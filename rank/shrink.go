package rank

import "image"

// pixelDiff returns |ΔR|+|ΔG|+|ΔB| of two RGBA pixels.
func pixelDiff(a, b []uint8) uint64 {
	return absDiff(a[0], b[0]) + absDiff(a[1], b[1]) + absDiff(a[2], b[2])
}

func absDiff(a, b uint8) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}

// reduceCPU runs the full pass chain on the worker pool: the difference
// pass fused with the first halving, then one halving per remaining pass.
func (r *Ranker) reduceCPU(comp *image.RGBA) {
	if r.passes == 0 {
		r.pool.Bands(r.height, 8, func(lo, hi int) {
			for y := lo; y < hi; y++ {
				off := y * comp.Stride
				for x := range r.width {
					i := off + x*4
					r.grid[y*r.width+x] = pixelDiff(comp.Pix[i:i+4], r.target.Pix[i:i+4])
				}
			}
		})
		return
	}

	w1, h1 := ceilDiv(r.width, 2), ceilDiv(r.height, 2)
	first := r.levels[0]
	r.pool.Bands(h1, 8, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := range w1 {
				first[y*w1+x] = r.diffBlock(comp, x*2, y*2, 2)
			}
		}
	})

	sw, sh := w1, h1
	for k := 1; k < r.passes; k++ {
		src, dst := r.levels[k-1], r.levels[k]
		dw, dh := ceilDiv(sw, 2), ceilDiv(sh, 2)
		r.pool.Bands(dh, 8, func(lo, hi int) {
			halve(dst, src, sw, sh, dw, lo, hi)
		})
		sw, sh = dw, dh
	}
}

// halve sums 2×2 blocks of src (sw×sh) into rows [lo, hi) of dst (dw wide).
// Blocks hanging off the right or bottom edge sum only their existing cells.
func halve(dst, src []uint64, sw, sh, dw, lo, hi int) {
	for y := lo; y < hi; y++ {
		sy := y * 2
		for x := range dw {
			sx := x * 2
			v := src[sy*sw+sx]
			if sx+1 < sw {
				v += src[sy*sw+sx+1]
			}
			if sy+1 < sh {
				v += src[(sy+1)*sw+sx]
				if sx+1 < sw {
					v += src[(sy+1)*sw+sx+1]
				}
			}
			dst[y*dw+x] = v
		}
	}
}

// diffBlock sums the pixel differences of the size×size block at (x0, y0),
// clipped to the canvas.
func (r *Ranker) diffBlock(comp *image.RGBA, x0, y0, size int) uint64 {
	x1, y1 := min(x0+size, r.width), min(y0+size, r.height)
	var s uint64
	for y := y0; y < y1; y++ {
		off := y * comp.Stride
		for x := x0; x < x1; x++ {
			i := off + x*4
			s += pixelDiff(comp.Pix[i:i+4], r.target.Pix[i:i+4])
		}
	}
	return s
}

// cellSum returns the value grid cell (gx, gy) has after the full pass
// chain, computed directly from the cell's pixel footprint.
func (r *Ranker) cellSum(comp *image.RGBA, gx, gy int) uint64 {
	return r.diffBlock(comp, gx*r.cell, gy*r.cell, r.cell)
}
