package evolve

import "errors"

var (
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("evolve: invalid config")

	// ErrNoImage is returned by operations that need a target image before
	// one is set.
	ErrNoImage = errors.New("evolve: no target image")

	// ErrNotEditing is returned by focus edit operations outside an edit.
	ErrNotEditing = errors.New("evolve: focus map is not being edited")

	// ErrEditing is returned when an edit is already in progress.
	ErrEditing = errors.New("evolve: focus map is already being edited")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("evolve: evolver is closed")
)
