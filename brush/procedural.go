package brush

import (
	"image"
	"math"
	"math/rand/v2"
)

// Procedural generates an atlas of n bristle brush templates, each at most
// size pixels on its longer side, packed in one row. The same seed always
// yields the same atlas.
//
// Templates are elongated ellipses with a soft rim and streaks along their
// long axis, which is enough for the evolver when no brush sheet is given.
func Procedural(n, size int, seed uint64) *Atlas {
	n = max(n, 1)
	size = max(size, 4)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	texture := image.NewAlpha(image.Rect(0, 0, n*size, size))
	regions := make([]Region, n)
	for i := range n {
		// Aspect ratio from round dabs to long thin strokes.
		aspect := 0.25 + 0.75*rng.Float64()
		w := size
		h := max(int(math.Round(float64(size)*aspect)), 2)
		left, top := i*size, (size-h)/2
		regions[i] = Region{Left: left, Top: top, Right: left + w, Bottom: top + h}
		paintBristles(texture, regions[i], rng)
	}

	a, err := New(texture, regions)
	if err != nil {
		// Regions are built inside the texture above.
		panic(err)
	}
	return a
}

func paintBristles(dst *image.Alpha, r Region, rng *rand.Rand) {
	w, h := r.Right-r.Left, r.Bottom-r.Top
	const bristles = 16
	var streak [bristles]float64
	for i := range streak {
		streak[i] = 0.55 + 0.45*rng.Float64()
	}
	rx, ry := float64(w)/2, float64(h)/2
	for y := range h {
		ny := (float64(y) + 0.5 - ry) / ry
		b := streak[min(int((ny+1)/2*bristles), bristles-1)]
		for x := range w {
			nx := (float64(x) + 0.5 - rx) / rx
			d := nx*nx + ny*ny
			if d >= 1 {
				continue
			}
			// Soft rim over the outer fifth of the radius.
			edge := min((1-math.Sqrt(d))*5, 1)
			dst.Pix[(r.Top+y)*dst.Stride+r.Left+x] = uint8(255 * edge * b) //nolint:gosec // in [0,255]
		}
	}
}
