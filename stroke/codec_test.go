package stroke

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	s := NewStore()
	s.Append(Stroke{X: 1.0 / 3, Y: 2.75, Rotation: 6.1, Scale: 0.123456789, Color: Opaque(0.1, 0.2, 0.3), Brush: 4})
	s.Append(Stroke{X: 10, Y: 20, Rotation: 0, Scale: 2, Color: Opaque(1, 1, 0), Brush: 1})
	s.Append(Stroke{X: 5, Y: 5, Scale: 1, Color: Opaque(0, 0, 0)})
	if err := NewDelete(2).Apply(s); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(&buf, 5)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := s.Strokes()
	if len(got) != len(want) {
		t.Fatalf("Decode() returned %d strokes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stroke %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"garbage", `not json`},
		{"version", `{"version":2,"strokes":[]}`},
		{"unknown field", `{"version":1,"strokes":[],"extra":1}`},
		{"scale", `{"version":1,"strokes":[{"x":1,"y":1,"rotation":0,"scale":0,"color":[0,0,0,1],"brush":0}]}`},
		{"color", `{"version":1,"strokes":[{"x":1,"y":1,"rotation":0,"scale":1,"color":[2,0,0,1],"brush":0}]}`},
		{"brush", `{"version":1,"strokes":[{"x":1,"y":1,"rotation":0,"scale":1,"color":[0,0,0,1],"brush":9}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc), 3)
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("Decode() error = %v, want ErrInvalidDocument", err)
			}
		})
	}
}
