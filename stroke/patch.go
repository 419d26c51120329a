package stroke

import "fmt"

// OpType identifies what an Operation changes.
type OpType uint8

const (
	OpAppend OpType = iota
	OpDelete
	OpPosition
	OpColor
	OpRotation
)

// String returns the operation name.
func (t OpType) String() string {
	switch t {
	case OpAppend:
		return "append"
	case OpDelete:
		return "delete"
	case OpPosition:
		return "position"
	case OpColor:
		return "color"
	case OpRotation:
		return "rotation"
	default:
		return fmt.Sprintf("OpType(%d)", t)
	}
}

// MutationType is the statistics bucket an accepted operation is counted in.
type MutationType uint8

const (
	MutationAppend MutationType = iota
	MutationPosition
	MutationColor
	MutationRotation
	MutationDelete
	// MutationPrune marks deletes issued by the pruning sweep.
	MutationPrune

	// NumMutationTypes is the number of mutation types.
	NumMutationTypes = int(MutationPrune) + 1
)

var mutationNames = [NumMutationTypes]string{"append", "position", "color", "rotation", "delete", "prune"}

// String returns the mutation name used in statistics and configuration.
func (m MutationType) String() string {
	if int(m) < len(mutationNames) {
		return mutationNames[m]
	}
	return fmt.Sprintf("MutationType(%d)", m)
}

// ParseMutationType parses a name produced by MutationType.String.
func ParseMutationType(s string) (MutationType, bool) {
	for i, n := range mutationNames {
		if n == s {
			return MutationType(i), true
		}
	}
	return 0, false
}

// Operation is a reversible edit of a single stroke.
//
// Apply records exactly what Undo needs: an append remembers the slot it
// created, a delete toggles the tombstone, and a modification keeps the one
// field it overwrote. Apply and Undo must be paired on the same Store with no
// other edits in between.
type Operation struct {
	Type     OpType
	Index    int
	Mutation MutationType

	// New values; which one is used depends on Type.
	Stroke   Stroke
	X, Y     float64
	Color    Color
	Rotation float64

	applied bool
	prevX   float64
	prevY   float64
	prevCol Color
	prevRot float64
}

// NewAppend returns an operation that appends st.
func NewAppend(st Stroke) *Operation {
	return &Operation{Type: OpAppend, Index: -1, Mutation: MutationAppend, Stroke: st}
}

// NewDelete returns an operation that tombstones slot i.
func NewDelete(i int) *Operation {
	return &Operation{Type: OpDelete, Index: i, Mutation: MutationDelete}
}

// NewPosition returns an operation that moves slot i to (x, y).
func NewPosition(i int, x, y float64) *Operation {
	return &Operation{Type: OpPosition, Index: i, Mutation: MutationPosition, X: x, Y: y}
}

// NewColor returns an operation that recolors slot i.
func NewColor(i int, c Color) *Operation {
	return &Operation{Type: OpColor, Index: i, Mutation: MutationColor, Color: c}
}

// NewRotation returns an operation that sets the rotation of slot i.
func NewRotation(i int, rotation float64) *Operation {
	return &Operation{Type: OpRotation, Index: i, Mutation: MutationRotation, Rotation: rotation}
}

// Applied reports whether the operation is currently applied.
func (op *Operation) Applied() bool { return op.applied }

// Apply performs the edit on s.
func (op *Operation) Apply(s *Store) error {
	if op.applied {
		return ErrAlreadyApplied
	}
	if op.Type == OpAppend {
		op.Index = s.Append(op.Stroke)
		op.applied = true
		return nil
	}
	if op.Index < 0 || op.Index >= s.Len() {
		return fmt.Errorf("%w: %s at %d (len %d)", ErrIndexOutOfRange, op.Type, op.Index, s.Len())
	}
	st := &s.slots[op.Index]
	switch op.Type {
	case OpDelete:
		if st.Deleted {
			return ErrAlreadyDeleted
		}
		s.setDeleted(op.Index, true)
	case OpPosition:
		op.prevX, op.prevY = st.X, st.Y
		st.X, st.Y = op.X, op.Y
	case OpColor:
		op.prevCol = st.Color
		st.Color = op.Color
	case OpRotation:
		op.prevRot = st.Rotation
		st.Rotation = op.Rotation
	default:
		return fmt.Errorf("stroke: unknown operation %s", op.Type)
	}
	op.applied = true
	return nil
}

// Undo reverts a previously applied operation.
func (op *Operation) Undo(s *Store) error {
	if !op.applied {
		return ErrNotApplied
	}
	if op.Index < 0 || op.Index >= s.Len() {
		return fmt.Errorf("%w: undo %s at %d (len %d)", ErrIndexOutOfRange, op.Type, op.Index, s.Len())
	}
	st := &s.slots[op.Index]
	switch op.Type {
	case OpAppend:
		if op.Index != s.Len()-1 {
			return ErrNotLastSlot
		}
		s.truncate(op.Index)
	case OpDelete:
		if !st.Deleted {
			return ErrNotDeleted
		}
		s.setDeleted(op.Index, false)
	case OpPosition:
		st.X, st.Y = op.prevX, op.prevY
	case OpColor:
		st.Color = op.prevCol
	case OpRotation:
		st.Rotation = op.prevRot
	}
	op.applied = false
	return nil
}

// String describes the operation for logs.
func (op *Operation) String() string {
	return fmt.Sprintf("%s[%d]", op.Type, op.Index)
}
