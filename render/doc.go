// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render composites brush strokes onto a canvas.
//
// The Renderer keeps the composite image between calls and repaints only the
// part of it that an edit touched. It caches prefix checkpoints (the canvas
// after the first k·interval strokes) so a repaint starts from the nearest
// checkpoint below the edited stroke instead of from the background.
//
// # Painting a stroke
//
// A stroke is its brush template scaled, rotated about its center and tinted
// with an opaque color. Each canvas pixel inside the stroke's bounding box is
// mapped back into template space and the template coverage is sampled
// bilinearly, then blended source-over onto the canvas.
//
// # Thread Safety
//
// A Renderer is not safe for concurrent use.
package render
