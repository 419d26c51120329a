// Package mutate proposes random edits to a painting.
package mutate

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/gogpu/evolve/focus"
	"github.com/gogpu/evolve/stroke"
)

// ErrNoMutation is returned when no enabled mutation applies to the store.
var ErrNoMutation = errors.New("mutate: no applicable mutation")

// Sizer reports brush template sizes.
type Sizer interface {
	Len() int
	Size(i int) (w, h int)
}

// Config holds the mutation parameters.
type Config struct {
	Enabled Enabled

	// Color mutations move each RGB channel by a random amount in
	// [MinColorDelta, MaxColorDelta] in a random direction.
	MinColorDelta float64
	MaxColorDelta float64

	// MaxRotationDelta bounds rotation mutations, in radians.
	MaxRotationDelta float64

	// New strokes span between MinSize and MaxSize of the canvas's longer
	// side, with small sizes more likely.
	MinSize float64
	MaxSize float64

	// MaxStrokes stops appends once the store has this many slots; 0 means
	// no limit.
	MaxStrokes int
}

// Mutator draws random operations. It only reads the store; the caller
// applies the operation.
type Mutator struct {
	width, height float64
	brushes       Sizer
	cfg           Config
	rng           *rand.Rand
	kinds         []stroke.MutationType
}

// New creates a mutator for a width×height canvas.
func New(width, height int, brushes Sizer, cfg Config, rng *rand.Rand) *Mutator {
	return &Mutator{
		width:   float64(width),
		height:  float64(height),
		brushes: brushes,
		cfg:     cfg,
		rng:     rng,
		kinds:   make([]stroke.MutationType, 0, 5),
	}
}

// SetConfig replaces the mutation parameters.
func (m *Mutator) SetConfig(cfg Config) { m.cfg = cfg }

// Config returns the mutation parameters.
func (m *Mutator) Config() Config { return m.cfg }

// candidates lists the enabled kinds that can act on s.
func (m *Mutator) candidates(s *stroke.Store) []stroke.MutationType {
	e := m.cfg.Enabled
	k := m.kinds[:0]
	if e.Append && (m.cfg.MaxStrokes <= 0 || s.Len() < m.cfg.MaxStrokes) {
		k = append(k, stroke.MutationAppend)
	}
	if s.LiveCount() > 0 {
		if e.Position {
			k = append(k, stroke.MutationPosition)
		}
		if e.Color {
			k = append(k, stroke.MutationColor)
		}
		if e.Rotation {
			k = append(k, stroke.MutationRotation)
		}
		if e.Delete {
			k = append(k, stroke.MutationDelete)
		}
	}
	m.kinds = k
	return k
}

// Mutate proposes one operation for s. Kinds that need an existing stroke
// are skipped while the store has no live strokes, so an empty store always
// gets an append.
func (m *Mutator) Mutate(s *stroke.Store, fm *focus.Map) (*stroke.Operation, error) {
	kinds := m.candidates(s)
	if len(kinds) == 0 {
		return nil, ErrNoMutation
	}
	switch kinds[m.rng.IntN(len(kinds))] {
	case stroke.MutationAppend:
		return stroke.NewAppend(m.randomStroke(fm)), nil
	case stroke.MutationPosition:
		x, y := fm.Sample(m.rng)
		return stroke.NewPosition(m.randomLive(s), x, y), nil
	case stroke.MutationColor:
		i := m.randomLive(s)
		st, _ := s.At(i)
		return stroke.NewColor(i, m.shiftColor(st.Color)), nil
	case stroke.MutationRotation:
		i := m.randomLive(s)
		st, _ := s.At(i)
		return stroke.NewRotation(i, m.turn(st.Rotation)), nil
	default:
		return stroke.NewDelete(m.randomLive(s)), nil
	}
}

func (m *Mutator) randomLive(s *stroke.Store) int {
	return s.NthLive(m.rng.IntN(s.LiveCount()))
}

func (m *Mutator) randomStroke(fm *focus.Map) stroke.Stroke {
	x, y := fm.Sample(m.rng)
	brush := m.rng.IntN(m.brushes.Len())
	w, h := m.brushes.Size(brush)

	u := m.rng.Float64()
	frac := m.cfg.MinSize + (m.cfg.MaxSize-m.cfg.MinSize)*u*u
	target := frac * math.Max(m.width, m.height)
	scale := math.Max(target, 1) / float64(max(w, h))

	return stroke.Stroke{
		X:        x,
		Y:        y,
		Rotation: m.rng.Float64() * 2 * math.Pi,
		Scale:    scale,
		Color:    stroke.Opaque(m.rng.Float64(), m.rng.Float64(), m.rng.Float64()),
		Brush:    brush,
	}
}

func (m *Mutator) shiftColor(c stroke.Color) stroke.Color {
	shift := func(v float64) float64 {
		d := m.cfg.MinColorDelta + m.rng.Float64()*(m.cfg.MaxColorDelta-m.cfg.MinColorDelta)
		if m.rng.IntN(2) == 0 {
			d = -d
		}
		return v + d
	}
	return stroke.Color{R: shift(c.R), G: shift(c.G), B: shift(c.B), A: c.A}.Clamp()
}

func (m *Mutator) turn(rotation float64) float64 {
	r := rotation + (m.rng.Float64()*2-1)*m.cfg.MaxRotationDelta
	r = math.Mod(r, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return r
}
