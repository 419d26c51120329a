package stroke

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// FormatVersion is the version written by Encode.
const FormatVersion = 1

// ErrInvalidDocument is wrapped by every Decode validation failure.
var ErrInvalidDocument = errors.New("stroke: invalid stroke document")

type document struct {
	Version int          `json:"version"`
	Strokes []jsonStroke `json:"strokes"`
}

type jsonStroke struct {
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	Rotation float64    `json:"rotation"`
	Scale    float64    `json:"scale"`
	Color    [4]float64 `json:"color"`
	Brush    int        `json:"brush"`
}

// Encode writes the live strokes of s in paint order.
func Encode(w io.Writer, s *Store) error {
	doc := document{Version: FormatVersion, Strokes: make([]jsonStroke, 0, s.LiveCount())}
	for _, st := range s.Strokes() {
		doc.Strokes = append(doc.Strokes, jsonStroke{
			X: st.X, Y: st.Y, Rotation: st.Rotation, Scale: st.Scale,
			Color: [4]float64{st.Color.R, st.Color.G, st.Color.B, st.Color.A},
			Brush: st.Brush,
		})
	}
	enc := json.NewEncoder(w)
	return enc.Encode(doc)
}

// Decode reads a stroke list written by Encode. Every stroke is validated
// before anything is returned; brushes bounds the accepted brush index
// (brushes <= 0 disables that check).
func Decode(r io.Reader, brushes int) ([]Stroke, error) {
	var doc document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidDocument, doc.Version)
	}
	out := make([]Stroke, len(doc.Strokes))
	for i, js := range doc.Strokes {
		st := Stroke{
			X: js.X, Y: js.Y, Rotation: js.Rotation, Scale: js.Scale,
			Color: Color{R: js.Color[0], G: js.Color[1], B: js.Color[2], A: js.Color[3]},
			Brush: js.Brush,
		}
		if err := validate(st, brushes); err != nil {
			return nil, fmt.Errorf("%w: stroke %d: %w", ErrInvalidDocument, i, err)
		}
		out[i] = st
	}
	return out, nil
}

func validate(st Stroke, brushes int) error {
	for _, v := range []float64{st.X, st.Y, st.Rotation, st.Scale} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite value")
		}
	}
	if st.Scale <= 0 {
		return fmt.Errorf("scale %g must be positive", st.Scale)
	}
	for _, c := range []float64{st.Color.R, st.Color.G, st.Color.B, st.Color.A} {
		if !(c >= 0 && c <= 1) {
			return fmt.Errorf("color channel %g outside [0,1]", c)
		}
	}
	if st.Brush < 0 || (brushes > 0 && st.Brush >= brushes) {
		return fmt.Errorf("brush %d out of range", st.Brush)
	}
	return nil
}
