package evolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/gogpu/evolve/brush"
	"github.com/gogpu/evolve/mutate"
	"github.com/gogpu/evolve/rank"
	"github.com/gogpu/evolve/render"
	"github.com/gogpu/evolve/stroke"
)

const offCanvasStroke = `{"version":1,"strokes":[{"x":-1000,"y":-1000,"rotation":0,"scale":1,"color":[1,0,0,1],"brush":0}]}`

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Device = "cpu"
	cfg.FrameSkip = 20
	cfg.MinStrokeSize = 0.1
	cfg.MaxStrokeSize = 0.5
	cfg.MaxGrid = 8
	cfg.CheckpointInterval = 8
	return cfg
}

func newTestEvolver(t *testing.T, cfg Config, opts ...Option) *Evolver {
	t.Helper()
	atlas := brush.Procedural(4, 16, 1)
	ev, err := New(atlas, cfg, append([]Option{WithSeed(7), WithWorkers(2)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(ev.Close)
	return ev
}

// recompute scores the evolver's store from scratch with fresh components.
func recompute(t *testing.T, ev *Evolver) uint64 {
	t.Helper()
	s := ev.sess
	r, err := render.New(s.width, s.height, ev.atlas, render.WithBackground(s.renderer.Background()))
	if err != nil {
		t.Fatalf("render.New() error = %v", err)
	}
	defer r.Dispose()
	r.RenderFull(s.store)
	rk, err := rank.New(s.ranker.Target(), rank.WithAcceleration(rank.AccelOff))
	if err != nil {
		t.Fatalf("rank.New() error = %v", err)
	}
	defer rk.Dispose()
	score, err := rk.Rank(r.Composite())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	return score
}

func TestNewRejectsInvalidInput(t *testing.T) {
	atlas := brush.Procedural(2, 8, 1)
	cfg := DefaultConfig()
	cfg.FrameSkip = 0
	if _, err := New(atlas, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(FrameSkip=0) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(nil, DefaultConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(nil atlas) error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewRequiresAccelerator(t *testing.T) {
	if rank.Registered() != nil {
		t.Skip("an accelerator is registered")
	}
	cfg := DefaultConfig()
	cfg.Device = "gpu"
	if _, err := New(brush.Procedural(2, 8, 1), cfg); !errors.Is(err, rank.ErrAcceleratorUnavailable) {
		t.Errorf("New(gpu) error = %v, want ErrAcceleratorUnavailable", err)
	}
}

func TestLifecycle(t *testing.T) {
	ev := newTestEvolver(t, testConfig())
	if ev.State() != StateIdle {
		t.Errorf("State() = %v, want idle", ev.State())
	}
	if ev.Start() {
		t.Error("Start() without target = true, want false")
	}
	if ev.Optimize() {
		t.Error("Optimize() without target = true, want false")
	}
	if _, err := ev.ExportImage(); !errors.Is(err, ErrNoImage) {
		t.Errorf("ExportImage() error = %v, want ErrNoImage", err)
	}

	if err := ev.SetTargetImage(gradient(40, 30)); err != nil {
		t.Fatalf("SetTargetImage() error = %v", err)
	}
	if ev.State() != StateReady {
		t.Errorf("State() = %v, want ready", ev.State())
	}
	if !ev.Start() {
		t.Fatal("Start() = false, want true")
	}
	if ev.Start() {
		t.Error("second Start() = true, want false")
	}
	if ev.State() != StateRunning {
		t.Errorf("State() = %v, want running", ev.State())
	}
	if !ev.Stop() {
		t.Error("Stop() = false, want true")
	}
	if ev.Stop() {
		t.Error("second Stop() = true, want false")
	}

	ev.Start()
	if err := ev.SetTargetImage(gradient(20, 20)); err != nil {
		t.Fatalf("SetTargetImage() error = %v", err)
	}
	if ev.Running() {
		t.Error("SetTargetImage() left the evolver running")
	}
	if st := ev.Stats(); st.Width != 20 || st.Height != 20 || st.Strokes != 0 {
		t.Errorf("Stats() = %+v, want empty 20x20 session", st)
	}
}

func TestEmptyCanvasIsInitialBest(t *testing.T) {
	ev := newTestEvolver(t, testConfig())
	if err := ev.SetTargetImage(gradient(40, 30)); err != nil {
		t.Fatal(err)
	}
	if got, want := ev.Score(), recompute(t, ev); got != want {
		t.Errorf("initial Score() = %d, want %d", got, want)
	}
}

func TestIterateNeverWorsens(t *testing.T) {
	cfg := testConfig()
	ev := newTestEvolver(t, cfg)
	if err := ev.SetTargetImage(gradient(48, 32)); err != nil {
		t.Fatal(err)
	}
	prev := ev.Score()
	const ticks = 40
	for i := range ticks {
		ev.Iterate()
		if ev.Score() > prev {
			t.Fatalf("tick %d: Score() = %d, previous %d", i, ev.Score(), prev)
		}
		prev = ev.Score()
	}
	if got := recompute(t, ev); got != ev.Score() {
		t.Errorf("Score() = %d, full recompute = %d", ev.Score(), got)
	}
	st := ev.Stats()
	if st.Frames+st.Skipped != ticks*uint64(cfg.FrameSkip) {
		t.Errorf("Frames+Skipped = %d, want %d", st.Frames+st.Skipped, ticks*cfg.FrameSkip)
	}
	if st.Strokes == 0 {
		t.Error("no strokes accepted after 800 cycles")
	}
	if ev.Similarity() <= 0 || ev.Similarity() > 1 {
		t.Errorf("Similarity() = %v, want (0, 1]", ev.Similarity())
	}
}

func TestTiedDeleteAccepted(t *testing.T) {
	cfg := testConfig()
	cfg.FrameSkip = 1
	cfg.CompactRatio = 0.5
	cfg.EnabledMutations = mutate.Enabled{Delete: true}
	ev := newTestEvolver(t, cfg)
	if err := ev.SetTargetImage(gradient(32, 32)); err != nil {
		t.Fatal(err)
	}
	if err := ev.ImportStrokes([]byte(offCanvasStroke)); err != nil {
		t.Fatalf("ImportStrokes() error = %v", err)
	}
	before := ev.Similarity()

	ev.Iterate()

	st := ev.Stats()
	if st.Strokes != 0 || st.Slots != 0 {
		t.Errorf("after tied delete: strokes=%d slots=%d, want 0 0", st.Strokes, st.Slots)
	}
	if ev.Similarity() != before {
		t.Errorf("Similarity() = %v, want %v", ev.Similarity(), before)
	}
	if n := ev.Accepted(stroke.MutationDelete); n != 1 {
		t.Errorf("Accepted(delete) = %d, want 1", n)
	}
}

func TestOptimizeRemovesIdleStrokes(t *testing.T) {
	cfg := testConfig()
	cfg.EnabledMutations = mutate.Enabled{}
	ev := newTestEvolver(t, cfg)
	if err := ev.SetTargetImage(gradient(32, 32)); err != nil {
		t.Fatal(err)
	}
	doc := `{"version":1,"strokes":[
		{"x":-1000,"y":-1000,"rotation":0,"scale":1,"color":[1,0,0,1],"brush":0},
		{"x":16,"y":16,"rotation":0,"scale":1,"color":[0.5,0.5,0.5,1],"brush":1},
		{"x":5000,"y":5000,"rotation":1,"scale":2,"color":[0,1,0,1],"brush":2}]}`
	if err := ev.ImportStrokes([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	before := ev.Score()

	if ev.Optimize() {
		t.Error("Optimize() while stopped = true, want false")
	}
	ev.Start()
	if !ev.Optimize() {
		t.Fatalf("Optimize() = false at similarity %v", ev.Similarity())
	}
	if ev.Optimize() {
		t.Error("Optimize() during a sweep = true, want false")
	}
	if ev.State() != StatePruning {
		t.Errorf("State() = %v, want pruning", ev.State())
	}
	for i := 0; ev.Pruning() && i < 10; i++ {
		ev.Iterate()
	}
	if ev.Pruning() {
		t.Fatal("pruning sweep did not finish")
	}
	if ev.Score() > before {
		t.Errorf("Score() after pruning = %d, before %d", ev.Score(), before)
	}
	st := ev.Stats()
	if st.Strokes > 1 || st.Slots != st.Strokes {
		t.Errorf("after pruning: strokes=%d slots=%d, want at most 1 and compacted", st.Strokes, st.Slots)
	}
	if st.Pruned < 2 {
		t.Errorf("Pruned = %d, want >= 2", st.Pruned)
	}
	if got := recompute(t, ev); got != ev.Score() {
		t.Errorf("Score() = %d, full recompute = %d", ev.Score(), got)
	}
	if ev.State() != StateRunning {
		t.Errorf("State() after sweep = %v, want running", ev.State())
	}
}

func TestStopEndsSweep(t *testing.T) {
	cfg := testConfig()
	cfg.FrameSkip = 1
	cfg.EnabledMutations = mutate.Enabled{}
	ev := newTestEvolver(t, cfg)
	if err := ev.SetTargetImage(gradient(32, 32)); err != nil {
		t.Fatal(err)
	}
	doc := `{"version":1,"strokes":[
		{"x":-1000,"y":-1000,"rotation":0,"scale":1,"color":[1,0,0,1],"brush":0},
		{"x":16,"y":16,"rotation":0,"scale":1,"color":[0.5,0.5,0.5,1],"brush":1},
		{"x":5000,"y":5000,"rotation":1,"scale":2,"color":[0,1,0,1],"brush":2}]}`
	if err := ev.ImportStrokes([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	ev.Start()
	if !ev.Optimize() {
		t.Fatal("Optimize() = false")
	}
	ev.Iterate()
	if !ev.Stop() {
		t.Fatal("Stop() = false during a sweep")
	}

	if ev.Pruning() || ev.State() != StateReady {
		t.Errorf("after Stop: Pruning() = %v, State() = %v, want false, ready", ev.Pruning(), ev.State())
	}
	st := ev.Stats()
	if st.Strokes != 2 || st.Slots != 2 || st.Pruned != 1 {
		t.Errorf("after Stop: strokes=%d slots=%d pruned=%d, want 2 2 1", st.Strokes, st.Slots, st.Pruned)
	}
	if got := recompute(t, ev); got != ev.Score() {
		t.Errorf("Score() = %d, full recompute = %d", ev.Score(), got)
	}
}

// After a sweep every survivor is load-bearing: removing any one of them
// makes the painting strictly worse.
func TestSweepSurvivorsAreNeeded(t *testing.T) {
	cfg := testConfig()
	cfg.PruneThreshold = 1
	ev := newTestEvolver(t, cfg)
	if err := ev.SetTargetImage(gradient(48, 40)); err != nil {
		t.Fatal(err)
	}
	for range 200 {
		ev.Iterate()
	}
	quiet := ev.Config()
	quiet.EnabledMutations = mutate.Enabled{}
	if err := ev.SetConfig(quiet); err != nil {
		t.Fatal(err)
	}

	ev.Start()
	if !ev.Optimize() {
		t.Fatalf("Optimize() = false at similarity %v", ev.Similarity())
	}
	for i := 0; ev.Pruning() && i < 1000; i++ {
		ev.Iterate()
	}
	if ev.Pruning() {
		t.Fatal("pruning sweep did not finish")
	}

	store := ev.sess.store
	if store.LiveCount() == 0 {
		t.Fatal("sweep removed every stroke")
	}
	best := ev.Score()
	for i := range store.Len() {
		op := stroke.NewDelete(i)
		if err := op.Apply(store); err != nil {
			t.Fatalf("Delete(%d) error = %v", i, err)
		}
		score := recompute(t, ev)
		if err := op.Undo(store); err != nil {
			t.Fatal(err)
		}
		if score <= best {
			t.Errorf("deleting survivor %d scores %d, best %d: stroke was removable", i, score, best)
		}
	}
}

func TestOptimizeNoopWhenSimilar(t *testing.T) {
	ev := newTestEvolver(t, testConfig())
	if err := ev.SetTargetImage(solid(16, 16, color.RGBA{A: 255})); err != nil {
		t.Fatal(err)
	}
	if ev.Similarity() != 1 {
		t.Fatalf("Similarity() = %v, want 1", ev.Similarity())
	}
	ev.Start()
	if ev.Optimize() {
		t.Error("Optimize() = true at similarity 1, want false")
	}
}

func TestZeroScoreStops(t *testing.T) {
	cfg := testConfig()
	cfg.EnabledMutations = mutate.Enabled{Delete: true}
	var notices []Notice
	ev := newTestEvolver(t, cfg, WithNoticeHandler(func(n Notice) { notices = append(notices, n) }))
	if err := ev.SetTargetImage(solid(16, 16, color.RGBA{A: 255})); err != nil {
		t.Fatal(err)
	}
	if err := ev.ImportStrokes([]byte(offCanvasStroke)); err != nil {
		t.Fatal(err)
	}
	ev.Start()
	ev.Iterate()

	if ev.Running() {
		t.Error("Running() = true after a zero score")
	}
	if len(notices) != 1 {
		t.Fatalf("got %d notices, want 1", len(notices))
	}
	if st := ev.Stats(); st.Strokes != 1 {
		t.Errorf("Strokes = %d, want 1 (deletion reverted)", st.Strokes)
	}
}

func TestFocusEditing(t *testing.T) {
	ev := newTestEvolver(t, testConfig())
	if err := ev.EditFocusMap(); !errors.Is(err, ErrNoImage) {
		t.Errorf("EditFocusMap() without target = %v, want ErrNoImage", err)
	}
	if err := ev.SetTargetImage(gradient(32, 32)); err != nil {
		t.Fatal(err)
	}
	if err := ev.PaintFocus(1, 1, 4, 1); !errors.Is(err, ErrNotEditing) {
		t.Errorf("PaintFocus() outside edit = %v, want ErrNotEditing", err)
	}
	if err := ev.EditFocusMap(); err != nil {
		t.Fatal(err)
	}
	if err := ev.EditFocusMap(); !errors.Is(err, ErrEditing) {
		t.Errorf("second EditFocusMap() = %v, want ErrEditing", err)
	}

	ev.Iterate()
	if st := ev.Stats(); st.Frames != 0 {
		t.Errorf("Frames = %d while editing, want 0", st.Frames)
	}

	if err := ev.FillFocus(0); err != nil {
		t.Fatal(err)
	}
	if err := ev.PaintFocus(4, 4, 6, 1); err != nil {
		t.Fatal(err)
	}
	if err := ev.SaveFocusMap(); err != nil {
		t.Fatal(err)
	}
	fm := ev.FocusMap()
	if !fm.Overridden() {
		t.Fatal("Overridden() = false after save")
	}
	saved := fm.Raw()
	for range 5 {
		ev.Iterate()
	}
	ev.RefreshFocus()
	for i, w := range fm.Raw() {
		if w != saved[i] {
			t.Fatalf("override weight %d changed from %v to %v", i, saved[i], w)
		}
	}
	if st := ev.Stats(); st.Frames == 0 {
		t.Error("Frames = 0 after the edit ended")
	}

	ev.ClearFocusMap()
	if fm.Overridden() {
		t.Error("Overridden() = true after ClearFocusMap")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	target := gradient(40, 24)
	a := newTestEvolver(t, testConfig())
	if err := a.SetTargetImage(target); err != nil {
		t.Fatal(err)
	}
	for range 30 {
		a.Iterate()
	}
	data, err := a.ExportStrokes()
	if err != nil {
		t.Fatal(err)
	}
	want, _ := a.ExportImage()

	b := newTestEvolver(t, testConfig())
	if err := b.SetTargetImage(target); err != nil {
		t.Fatal(err)
	}
	if err := b.ImportStrokes(data); err != nil {
		t.Fatalf("ImportStrokes() error = %v", err)
	}
	got, _ := b.ExportImage()
	if !bytes.Equal(got.Pix, want.Pix) {
		t.Error("imported painting differs from the exported one")
	}
	if a.Score() != b.Score() {
		t.Errorf("Score() = %d, want %d", b.Score(), a.Score())
	}
	if b.Stats().Strokes != a.Stats().Strokes {
		t.Errorf("Strokes = %d, want %d", b.Stats().Strokes, a.Stats().Strokes)
	}
}

func TestImportInvalidLeavesPainting(t *testing.T) {
	ev := newTestEvolver(t, testConfig())
	if err := ev.SetTargetImage(gradient(24, 24)); err != nil {
		t.Fatal(err)
	}
	for range 10 {
		ev.Iterate()
	}
	before, _ := ev.ExportStrokes()
	score := ev.Score()

	bad := []string{
		`not json`,
		`{"version":1,"strokes":[{"x":1,"y":1,"rotation":0,"scale":1,"color":[1,0,0,1],"brush":99}]}`,
		`{"version":1,"strokes":[{"x":1,"y":1,"rotation":0,"scale":-1,"color":[1,0,0,1],"brush":0}]}`,
	}
	for _, doc := range bad {
		if err := ev.ImportStrokes([]byte(doc)); err == nil {
			t.Errorf("ImportStrokes(%q) = nil, want error", doc)
		}
	}
	after, _ := ev.ExportStrokes()
	if !bytes.Equal(before, after) || ev.Score() != score {
		t.Error("failed import changed the painting")
	}
}

func TestSnapshots(t *testing.T) {
	cfg := testConfig()
	cfg.SaveSnapshots = true
	cfg.MaxSnapshots = 1_000_000
	var snaps []Snapshot
	ev := newTestEvolver(t, cfg, WithSnapshotHandler(func(s Snapshot) { snaps = append(snaps, s) }))
	if err := ev.SetTargetImage(gradient(32, 32)); err != nil {
		t.Fatal(err)
	}
	for range 30 {
		ev.Iterate()
	}
	if len(snaps) == 0 {
		t.Fatal("no snapshots taken")
	}
	for i, s := range snaps {
		if s.Seq != i+1 {
			t.Errorf("snapshot %d Seq = %d", i, s.Seq)
		}
		if i > 0 && s.Similarity <= snaps[i-1].Similarity {
			t.Errorf("snapshot %d similarity %v not above %v", i, s.Similarity, snaps[i-1].Similarity)
		}
		if s.Image.Bounds() != image.Rect(0, 0, 32, 32) {
			t.Errorf("snapshot %d bounds = %v", i, s.Image.Bounds())
		}
	}
	if got := ev.Stats().Snapshots; got != len(snaps) {
		t.Errorf("Stats().Snapshots = %d, want %d", got, len(snaps))
	}
}

func TestSnapshotsDisabled(t *testing.T) {
	called := false
	ev := newTestEvolver(t, testConfig(), WithSnapshotHandler(func(Snapshot) { called = true }))
	if err := ev.SetTargetImage(gradient(16, 16)); err != nil {
		t.Fatal(err)
	}
	for range 10 {
		ev.Iterate()
	}
	if called {
		t.Error("snapshot taken with SaveSnapshots off")
	}
}

func TestFrameModes(t *testing.T) {
	ev := newTestEvolver(t, testConfig())
	if _, err := ev.Frame(); !errors.Is(err, ErrNoImage) {
		t.Errorf("Frame() without target = %v, want ErrNoImage", err)
	}
	if err := ev.SetTargetImage(gradient(20, 10)); err != nil {
		t.Fatal(err)
	}
	for _, m := range []DisplayMode{DisplayPainting, DisplayTarget, DisplayDifference, DisplayFocus} {
		ev.SetDisplayMode(m)
		fr, err := ev.Frame()
		if err != nil {
			t.Fatalf("Frame(%v) error = %v", m, err)
		}
		if fr.Mode != m || fr.Image.Bounds() != image.Rect(0, 0, 20, 10) {
			t.Errorf("Frame(%v) = mode %v bounds %v", m, fr.Mode, fr.Image.Bounds())
		}
	}

	// The empty canvas is black, so the difference equals the target.
	ev.SetDisplayMode(DisplayDifference)
	fr, _ := ev.Frame()
	target, _ := ev.Target()
	if !bytes.Equal(fr.Image.Pix, target.Pix) {
		t.Error("difference against a black canvas differs from the target")
	}

	ev.SetDisplayMode(DisplayPainting)
	if err := ev.EditFocusMap(); err != nil {
		t.Fatal(err)
	}
	fr, _ = ev.Frame()
	if fr.Mode != DisplayFocus || !fr.Editing {
		t.Errorf("Frame() while editing = mode %v editing %v", fr.Mode, fr.Editing)
	}
}

func TestParseDisplayMode(t *testing.T) {
	for _, m := range []DisplayMode{DisplayPainting, DisplayTarget, DisplayDifference, DisplayFocus} {
		got, err := ParseDisplayMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseDisplayMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseDisplayMode("x-ray"); err == nil {
		t.Error("ParseDisplayMode(x-ray) = nil error")
	}
}

func TestSetConfig(t *testing.T) {
	ev := newTestEvolver(t, testConfig())
	if err := ev.SetTargetImage(gradient(16, 16)); err != nil {
		t.Fatal(err)
	}
	bad := ev.Config()
	bad.FrameSkip = 0
	if err := ev.SetConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetConfig(bad) = %v, want ErrInvalidConfig", err)
	}
	if ev.Config().FrameSkip != testConfig().FrameSkip {
		t.Error("rejected config was applied")
	}

	good := ev.Config()
	good.FocusExponent = 3
	good.FrameSkip = 2
	if err := ev.SetConfig(good); err != nil {
		t.Fatal(err)
	}
	if got := ev.FocusMap().Exponent(); got != 3 {
		t.Errorf("focus Exponent() = %v, want 3", got)
	}
	ev.Iterate()
	if st := ev.Stats(); st.Frames+st.Skipped != 2 {
		t.Errorf("cycles after SetConfig = %d, want 2", st.Frames+st.Skipped)
	}
}

type displayRecorder chan Frame

func (d displayRecorder) Present(fr Frame) {
	select {
	case d <- fr:
	default:
	}
}

func TestRunAndDo(t *testing.T) {
	cfg := testConfig()
	cfg.DisplayInterval = time.Millisecond
	frames := make(displayRecorder, 1)
	ev := newTestEvolver(t, cfg, WithDisplay(frames))
	if err := ev.SetTargetImage(gradient(24, 24)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ev.Run(ctx) }()

	if err := ev.Do(ctx, func(e *Evolver) { e.Start() }); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	var got uint64
	for got == 0 && time.Now().Before(deadline) {
		if err := ev.Do(ctx, func(e *Evolver) { got = e.Stats().Frames }); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	if got == 0 {
		t.Fatal("no cycles ran under Run")
	}
	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("no display frame presented")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if ev.Running() {
		t.Error("Running() = true after Run returned")
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if err := ev.Do(short, func(*Evolver) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() without Run = %v, want DeadlineExceeded", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "idle"},
		{StateReady, "ready"},
		{StateRunning, "running"},
		{StatePruning, "pruning"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
		data, err := json.Marshal(Stats{State: tt.s})
		if err != nil {
			t.Fatal(err)
		}
		var back Stats
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if back.State != tt.s {
			t.Errorf("State round trip = %v, want %v", back.State, tt.s)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("sleeping")); err == nil {
		t.Error("UnmarshalText(sleeping) error = nil")
	}
}

func TestCloseIsFinal(t *testing.T) {
	ev, err := New(brush.Procedural(2, 8, 1), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := ev.SetTargetImage(gradient(8, 8)); err != nil {
		t.Fatal(err)
	}
	ev.Close()
	ev.Close()
	if err := ev.SetTargetImage(gradient(8, 8)); !errors.Is(err, ErrClosed) {
		t.Errorf("SetTargetImage() after Close = %v, want ErrClosed", err)
	}
	if ev.Start() {
		t.Error("Start() after Close = true")
	}
}
