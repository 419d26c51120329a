// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package raster

import (
	"image"
	"math"
)

// SampleAlpha returns the bilinearly interpolated coverage of mask at the
// continuous pixel coordinate (x, y), where pixel centers sit at +0.5.
// Samples outside the mask read as zero so that templates fade out at their
// edges instead of smearing.
func SampleAlpha(mask *image.Alpha, x, y float64) uint32 {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	fx, fy := x-0.5, y-0.5
	if fx <= -1 || fy <= -1 || fx >= float64(w) || fy >= float64(h) {
		return 0
	}
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(x0), fy-float64(y0)

	p00 := alphaAt(mask, x0, y0, w, h)
	p10 := alphaAt(mask, x0+1, y0, w, h)
	p01 := alphaAt(mask, x0, y0+1, w, h)
	p11 := alphaAt(mask, x0+1, y0+1, w, h)

	top := p00 + (p10-p00)*tx
	bot := p01 + (p11-p01)*tx
	return uint32(top + (bot-top)*ty + 0.5) //nolint:gosec // in [0,255]
}

func alphaAt(mask *image.Alpha, x, y, w, h int) float64 {
	if x < 0 || y < 0 || x >= w || y >= h {
		return 0
	}
	return float64(mask.Pix[y*mask.Stride+x])
}

// BlendOver composites the opaque color (r, g, b) with coverage cov (0-255)
// over the 4-byte RGBA pixel pix. The result stays opaque.
func BlendOver(pix []uint8, r, g, b uint8, cov uint32) {
	if cov == 0 {
		return
	}
	if cov >= 255 {
		pix[0], pix[1], pix[2], pix[3] = r, g, b, 255
		return
	}
	inv := 255 - cov
	pix[0] = uint8((uint32(r)*cov + uint32(pix[0])*inv + 127) / 255) //nolint:gosec // <= 255
	pix[1] = uint8((uint32(g)*cov + uint32(pix[1])*inv + 127) / 255) //nolint:gosec // <= 255
	pix[2] = uint8((uint32(b)*cov + uint32(pix[2])*inv + 127) / 255) //nolint:gosec // <= 255
	pix[3] = 255
}

// CopyRect copies rect r from src to dst. Both images must share bounds.
func CopyRect(dst, src *image.RGBA, r image.Rectangle) {
	r = r.Intersect(dst.Rect).Intersect(src.Rect)
	if r.Empty() {
		return
	}
	n := r.Dx() * 4
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := dst.PixOffset(r.Min.X, y)
		j := src.PixOffset(r.Min.X, y)
		copy(dst.Pix[i:i+n], src.Pix[j:j+n])
	}
}

// Fill sets every pixel of r in dst to (r, g, b, 255).
func Fill(dst *image.RGBA, rect image.Rectangle, r, g, b uint8) {
	rect = rect.Intersect(dst.Rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		i := dst.PixOffset(rect.Min.X, y)
		row := dst.Pix[i : i+rect.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			row[x], row[x+1], row[x+2], row[x+3] = r, g, b, 255
		}
	}
}
