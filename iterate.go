package evolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/evolve/stroke"
)

// Iterate runs one tick: Config.FrameSkip mutation cycles followed by
// compaction and snapshot checks. It does nothing without a target image or
// while the focus map is being edited. Iterate runs whether or not the
// scheduler is started; Run calls it on every iterate tick.
func (e *Evolver) Iterate() {
	if e.closed || e.sess == nil || e.editor != nil {
		return
	}
	start := time.Now()
	for range e.cfg.FrameSkip {
		if !e.cycle() {
			break
		}
	}
	if e.sess == nil {
		return
	}
	e.maybeCompact()
	e.maybeSnapshot()
	if e.observer != nil {
		e.observer.ObserveTick(time.Since(start), e.similarity, e.sess.store.LiveCount())
	}
}

// cycle proposes, applies, renders, scores and accepts or reverts one
// operation. It reports false when iteration must not continue this tick.
func (e *Evolver) cycle() bool {
	s := e.sess
	var op *stroke.Operation
	if e.pruning {
		i := s.store.NextLive(e.pruneCursor)
		if i < 0 {
			return e.finishPrune()
		}
		e.pruneCursor = i + 1
		op = stroke.NewDelete(i)
		op.Mutation = stroke.MutationPrune
	} else {
		var err error
		op, err = s.mutator.Mutate(s.store, s.focus)
		if err != nil {
			e.counters.skipped++
			return true
		}
	}
	if err := op.Apply(s.store); err != nil {
		e.counters.skipped++
		Logger().Debug("evolve: proposal skipped", "op", op, "err", err)
		return true
	}

	dirty := s.renderer.RenderFrom(s.store, op.Index)
	score, err := s.ranker.RankDirty(s.renderer.Composite(), dirty)
	if err != nil {
		e.revert(op)
		e.halt(slog.LevelError, fmt.Sprintf("scoring failed: %v", err))
		return false
	}
	e.counters.frames++

	if score == 0 {
		// An exact zero only comes from a broken scoring pass.
		e.revert(op)
		e.halt(slog.LevelWarn, "difference reached zero; evolution stopped")
		return false
	}

	accepted := score < e.best || (score == e.best && op.Type == stroke.OpDelete)
	if accepted {
		e.best = score
		e.similarity = s.ranker.ToPercentage(score)
		e.revision++
		e.counters.accepted[op.Mutation]++
	} else {
		e.revert(op)
		e.counters.rejected++
	}
	if e.observer != nil {
		e.observer.ObserveCycle(op.Mutation, accepted)
	}
	return true
}

// revert undoes an applied operation and restores the canvas and score grid.
func (e *Evolver) revert(op *stroke.Operation) {
	s := e.sess
	if err := op.Undo(s.store); err != nil {
		// Undo only fails on a bookkeeping bug; resync from scratch.
		Logger().Error("evolve: undo failed, rescoring", "op", op, "err", err)
		if err := e.rescore(); err != nil {
			Logger().Error("evolve: rescore failed", "err", err)
		}
		return
	}
	s.renderer.RenderFrom(s.store, op.Index)
	s.ranker.Revert()
}

// halt stops the scheduler and reports why.
func (e *Evolver) halt(level slog.Level, msg string) {
	e.pruning = false
	e.Stop()
	e.notify(level, msg)
}

func (e *Evolver) finishPrune() bool {
	s := e.sess
	before := s.store.Len()
	removed := s.store.Compact()
	e.pruning = false
	e.pruneCursor = 0
	prev := e.best
	if err := e.rescore(); err != nil {
		e.halt(slog.LevelError, fmt.Sprintf("scoring failed: %v", err))
		return false
	}
	if e.best != prev {
		Logger().Warn("evolve: score drifted across compaction", "before", prev, "after", e.best)
	}
	e.counters.pruned += uint64(removed)
	Logger().Info("evolve: pruning finished",
		"removed", removed, "slots", before, "strokes", s.store.LiveCount(),
		"similarity", e.similarity)
	e.notify(slog.LevelInfo, fmt.Sprintf("pruned %d strokes", removed))
	return true
}

// maybeCompact drops tombstones once they make up Config.CompactRatio of the
// store. Compaction is deferred while pruning since it renumbers slots.
func (e *Evolver) maybeCompact() {
	s := e.sess
	if e.pruning || e.cfg.CompactRatio <= 0 {
		return
	}
	n, dead := s.store.Len(), s.store.Tombstones()
	if dead == 0 || float64(dead) < e.cfg.CompactRatio*float64(n) {
		return
	}
	removed := s.store.Compact()
	prev := e.best
	if err := e.rescore(); err != nil {
		e.halt(slog.LevelError, fmt.Sprintf("scoring failed: %v", err))
		return
	}
	Logger().Debug("evolve: compacted", "removed", removed, "strokes", s.store.Len(),
		"score", e.best, "previous", prev)
}

func (e *Evolver) maybeSnapshot() {
	if !e.cfg.SaveSnapshots || e.onSnapshot == nil {
		return
	}
	if e.similarity-e.lastSnapshot < 1/float64(e.cfg.MaxSnapshots) {
		return
	}
	e.snapshotSeq++
	e.lastSnapshot = e.similarity
	e.onSnapshot(Snapshot{
		Seq:        e.snapshotSeq,
		Image:      e.sess.renderer.RenderedImage(),
		Similarity: e.similarity,
		Strokes:    e.sess.store.LiveCount(),
	})
}

func (e *Evolver) notify(level slog.Level, msg string) {
	Logger().Log(context.Background(), level, "evolve: "+msg)
	if e.onNotice != nil {
		e.onNotice(Notice{Level: level, Message: msg, Time: time.Now()})
	}
}
