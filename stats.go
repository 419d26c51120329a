package evolve

import "github.com/gogpu/evolve/stroke"

type counters struct {
	frames   uint64
	rejected uint64
	skipped  uint64
	pruned   uint64
	accepted [stroke.NumMutationTypes]uint64
}

// Stats is a point-in-time summary of an Evolver.
type Stats struct {
	Session     string            `json:"session,omitempty"`
	State       State             `json:"state"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Similarity  float64           `json:"similarity"`
	Score       uint64            `json:"score"`
	Revision    uint64            `json:"revision"`
	Strokes     int               `json:"strokes"`
	Slots       int               `json:"slots"`
	Frames      uint64            `json:"frames"`
	Rejected    uint64            `json:"rejected"`
	Skipped     uint64            `json:"skipped"`
	Pruned      uint64            `json:"pruned"`
	Accepted    map[string]uint64 `json:"accepted"`
	Snapshots   int               `json:"snapshots"`
	Editing     bool              `json:"editing"`
	Accelerated bool              `json:"accelerated"`
}

// Stats returns the current statistics.
func (e *Evolver) Stats() Stats {
	st := Stats{
		State:     e.State(),
		Frames:    e.counters.frames,
		Rejected:  e.counters.rejected,
		Skipped:   e.counters.skipped,
		Pruned:    e.counters.pruned,
		Accepted:  make(map[string]uint64, stroke.NumMutationTypes),
		Snapshots: e.snapshotSeq,
		Editing:   e.editor != nil,
	}
	for m, n := range e.counters.accepted {
		st.Accepted[stroke.MutationType(m).String()] = n
	}
	if s := e.sess; s != nil {
		st.Session = s.id.String()
		st.Width, st.Height = s.width, s.height
		st.Similarity = e.similarity
		st.Score = e.best
		st.Revision = e.revision
		st.Strokes = s.store.LiveCount()
		st.Slots = s.store.Len()
		st.Accelerated = s.ranker.Accelerated()
	}
	return st
}

// Accepted returns the number of accepted operations of mutation type m.
func (e *Evolver) Accepted(m stroke.MutationType) uint64 {
	if int(m) >= len(e.counters.accepted) {
		return 0
	}
	return e.counters.accepted[m]
}
