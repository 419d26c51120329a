// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"image"

	"github.com/gogpu/evolve/internal/raster"
	"github.com/gogpu/evolve/stroke"
)

// paint stamps st onto dst inside clip. Every destination pixel center is
// mapped back into template space and the template coverage, scaled by the
// stroke alpha, blends the stroke color over the pixel.
func (r *Renderer) paint(dst *image.RGBA, st stroke.Stroke, clip image.Rectangle) {
	if clip.Empty() || !st.Visible() {
		return
	}
	tpl := r.atlas.Template(st.Brush)
	w, h := r.atlas.Size(st.Brush)
	inv, ok := raster.Placement(st.X, st.Y, st.Rotation, st.Scale, w, h).Invert()
	if !ok {
		return
	}
	cr, cg, cb, ca := st.Color.RGBA8()
	alpha := uint32(ca)

	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		off := dst.PixOffset(clip.Min.X, y)
		fy := float64(y) + 0.5
		for x := clip.Min.X; x < clip.Max.X; x, off = x+1, off+4 {
			u, v := inv.TransformPoint(float64(x)+0.5, fy)
			cov := raster.SampleAlpha(tpl, u, v)
			if cov == 0 {
				continue
			}
			if alpha < 255 {
				cov = (cov*alpha + 127) / 255
			}
			raster.BlendOver(dst.Pix[off:off+4], cr, cg, cb, cov)
		}
	}
}
