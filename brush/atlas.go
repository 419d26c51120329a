// Package brush provides the brush atlas: a set of stroke templates cut out
// of a single coverage texture.
package brush

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/clone"
)

// ErrInvalidRegion is returned when a region is empty or leaves the texture.
var ErrInvalidRegion = errors.New("brush: invalid region")

// Region is a template rectangle in texture pixels. Right and Bottom are
// exclusive.
type Region struct {
	Left   int `yaml:"left" json:"left"`
	Top    int `yaml:"top" json:"top"`
	Right  int `yaml:"right" json:"right"`
	Bottom int `yaml:"bottom" json:"bottom"`
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// Atlas holds the brush templates. Each template is a coverage mask with
// its origin at (0, 0). An Atlas is immutable after construction.
type Atlas struct {
	texture   *image.Alpha
	regions   []Region
	templates []*image.Alpha
	maxDim    int
}

// New builds an atlas from a coverage texture and its template regions.
func New(texture *image.Alpha, regions []Region) (*Atlas, error) {
	if texture == nil {
		return nil, errors.New("brush: nil texture")
	}
	if len(regions) == 0 {
		return nil, errors.New("brush: atlas needs at least one region")
	}
	a := &Atlas{
		texture:   texture,
		regions:   append([]Region(nil), regions...),
		templates: make([]*image.Alpha, len(regions)),
	}
	for i, r := range regions {
		rect := r.Rect().Add(texture.Rect.Min)
		if rect.Empty() || !rect.In(texture.Rect) {
			return nil, fmt.Errorf("%w: %d %v outside %v", ErrInvalidRegion, i, r.Rect(), texture.Rect)
		}
		tpl := image.NewAlpha(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		draw.Draw(tpl, tpl.Rect, texture, rect.Min, draw.Src)
		a.templates[i] = tpl
		a.maxDim = max(a.maxDim, rect.Dx(), rect.Dy())
	}
	return a, nil
}

// FromImage builds an atlas from a brush sheet image.
//
// If any pixel of the sheet has alpha at or below 10 the sheet is treated as
// transparent and its alpha channel is the coverage. Otherwise the sheet is
// taken to be dark strokes on a light background: the red channel is
// stretched over its observed range and inverted, so the darkest pixel
// becomes fully opaque and the lightest fully transparent.
func FromImage(img image.Image, regions []Region) (*Atlas, error) {
	if img == nil {
		return nil, errors.New("brush: nil image")
	}
	return New(coverage(clone.AsRGBA(img)), regions)
}

func coverage(src *image.RGBA) *image.Alpha {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := image.NewAlpha(image.Rect(0, 0, w, h))

	transparent := false
	lo, hi := uint8(255), uint8(0)
	for y := range h {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			if row[x+3] <= 10 {
				transparent = true
			}
			lo = min(lo, row[x])
			hi = max(hi, row[x])
		}
	}

	for y := range h {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		out := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		for x := range w {
			if transparent {
				out[x] = row[x*4+3]
				continue
			}
			if hi == lo {
				out[x] = 255
				continue
			}
			span := int(hi) - int(lo)
			out[x] = uint8(255 - (int(row[x*4])-int(lo))*255/span) //nolint:gosec // in [0,255]
		}
	}
	return mask
}

// Len returns the number of templates.
func (a *Atlas) Len() int { return len(a.templates) }

// Template returns the coverage mask of template i. The mask must not be
// modified.
func (a *Atlas) Template(i int) *image.Alpha { return a.templates[i] }

// Size returns the pixel size of template i.
func (a *Atlas) Size(i int) (w, h int) {
	r := a.templates[i].Rect
	return r.Dx(), r.Dy()
}

// MaxDim returns the largest width or height over all templates.
func (a *Atlas) MaxDim() int { return a.maxDim }

// Region returns the region of template i.
func (a *Atlas) Region(i int) Region { return a.regions[i] }

// Texture returns the backing coverage texture.
func (a *Atlas) Texture() *image.Alpha { return a.texture }
