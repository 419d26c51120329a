package evolve

import "github.com/gogpu/evolve/focus"

// RefreshFocus rebuilds the focus map from the current error grid. It does
// nothing while an override is installed or an edit is in progress.
func (e *Evolver) RefreshFocus() {
	if e.sess == nil || e.editor != nil {
		return
	}
	e.sess.focus.UpdateFromErrorMap(e.sess.ranker.ErrorMap())
}

// FocusMap returns the live focus map, or nil without a target.
func (e *Evolver) FocusMap() *focus.Map {
	if e.sess == nil {
		return nil
	}
	return e.sess.focus
}

// EditFocusMap starts editing a copy of the focus weights. Iteration is
// suspended until the edit is saved or cancelled.
func (e *Evolver) EditFocusMap() error {
	switch {
	case e.sess == nil:
		return ErrNoImage
	case e.editor != nil:
		return ErrEditing
	}
	e.editor = focus.NewEditor(e.sess.focus)
	return nil
}

// EditingFocusMap reports whether a focus edit is in progress.
func (e *Evolver) EditingFocusMap() bool { return e.editor != nil }

// PaintFocus paints value in [0, 1] into a disc of radius canvas pixels
// centered on (x, y).
func (e *Evolver) PaintFocus(x, y, radius, value float64) error {
	if e.editor == nil {
		return ErrNotEditing
	}
	e.editor.Paint(x, y, radius, value)
	return nil
}

// FillFocus sets every edit weight to value.
func (e *Evolver) FillFocus(value float64) error {
	if e.editor == nil {
		return ErrNotEditing
	}
	e.editor.Fill(value)
	return nil
}

// SaveFocusMap installs the edited weights as an override that automatic
// refreshes leave alone, and ends the edit.
func (e *Evolver) SaveFocusMap() error {
	if e.editor == nil {
		return ErrNotEditing
	}
	if err := e.editor.Commit(); err != nil {
		return err
	}
	e.editor = nil
	Logger().Info("evolve: focus override saved")
	return nil
}

// CancelFocusMap discards the edit.
func (e *Evolver) CancelFocusMap() {
	e.editor = nil
}

// ClearFocusMap removes any override and ends any edit, returning the focus
// map to automatic updates.
func (e *Evolver) ClearFocusMap() {
	if e.sess == nil {
		return
	}
	e.editor = nil
	e.sess.focus.ClearOverride()
	e.RefreshFocus()
}
