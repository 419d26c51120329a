// Package evolve approximates a target image with a painting made of brush
// strokes, improved one random edit at a time.
//
// # Overview
//
// An Evolver keeps an ordered list of strokes. Each cycle it proposes a small
// edit (append a stroke, move one, recolor one, rotate one or delete one),
// re-renders only the part of the canvas the edit touches, and scores the
// result against the target. The edit is kept if the score improves, or if it
// is a deletion that leaves the score unchanged; otherwise it is undone.
//
// # Quick Start
//
//	atlas := brush.Procedural(16, 64, 1)
//	ev, err := evolve.New(atlas, evolve.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ev.Close()
//
//	if err := ev.SetTargetImage(img); err != nil {
//	    log.Fatal(err)
//	}
//	for range 1000 {
//	    ev.Iterate()
//	}
//	out, _ := ev.ExportImage()
//
// # Scheduling
//
// Iterate can be called directly, or Run can drive the evolver from tickers
// after Start. Run owns the evolver while it executes; use Do to call into it
// from other goroutines.
//
// # Scoring
//
// Scores are exact integer sums of per-channel absolute differences, so equal
// paintings always score equal. Scoring runs on the CPU worker pool unless a
// GPU accelerator is registered by importing package
// github.com/gogpu/evolve/gpu.
//
// # Focus
//
// New strokes are placed by sampling a coarse focus map derived from where the
// painting differs most from the target. The map can be hand-edited and saved
// as an override.
package evolve
