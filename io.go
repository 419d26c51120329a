package evolve

import (
	"bytes"
	"image"

	"github.com/gogpu/evolve/stroke"
)

// ExportImage returns a copy of the current painting.
func (e *Evolver) ExportImage() (*image.RGBA, error) {
	if e.sess == nil {
		return nil, ErrNoImage
	}
	return e.sess.renderer.RenderedImage(), nil
}

// Target returns a copy of the target image as scored.
func (e *Evolver) Target() (*image.RGBA, error) {
	if e.sess == nil {
		return nil, ErrNoImage
	}
	t := e.sess.ranker.Target()
	out := image.NewRGBA(t.Rect)
	copy(out.Pix, t.Pix)
	return out, nil
}

// ExportStrokes encodes the live strokes as a JSON document.
func (e *Evolver) ExportStrokes() ([]byte, error) {
	if e.sess == nil {
		return nil, ErrNoImage
	}
	var buf bytes.Buffer
	if err := stroke.Encode(&buf, e.sess.store); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImportStrokes replaces the painting with the strokes in data, as produced
// by ExportStrokes. On error the painting is unchanged. Any pruning sweep is
// abandoned and the imported painting becomes the best.
func (e *Evolver) ImportStrokes(data []byte) error {
	if e.sess == nil {
		return ErrNoImage
	}
	strokes, err := stroke.Decode(bytes.NewReader(data), e.atlas.Len())
	if err != nil {
		return err
	}
	e.sess.store.Replace(strokes)
	e.pruning = false
	e.pruneCursor = 0
	if err := e.rescore(); err != nil {
		return err
	}
	e.lastSnapshot = e.similarity
	Logger().Info("evolve: strokes imported", "strokes", len(strokes), "similarity", e.similarity)
	return nil
}
