package evolve

import (
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/gogpu/evolve/brush"
	"github.com/gogpu/evolve/focus"
	"github.com/gogpu/evolve/internal/parallel"
	"github.com/gogpu/evolve/mutate"
	"github.com/gogpu/evolve/rank"
	"github.com/gogpu/evolve/render"
	"github.com/gogpu/evolve/stroke"
)

// State is the scheduling state of an Evolver.
type State uint8

const (
	// StateIdle means no target image is set.
	StateIdle State = iota
	// StateReady means a target is set and the scheduler is stopped.
	StateReady
	// StateRunning means mutation cycles are scheduled.
	StateRunning
	// StatePruning means cycles sweep the store proposing deletions.
	StatePruning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePruning:
		return "pruning"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "ready":
		*s = StateReady
	case "running":
		*s = StateRunning
	case "pruning":
		*s = StatePruning
	default:
		return fmt.Errorf("evolve: unknown state %q", text)
	}
	return nil
}

// session holds everything bound to one target image.
type session struct {
	id       uuid.UUID
	width    int
	height   int
	store    *stroke.Store
	renderer *render.Renderer
	ranker   *rank.Ranker
	focus    *focus.Map
	mutator  *mutate.Mutator
}

func (s *session) dispose() {
	s.renderer.Dispose()
	s.ranker.Dispose()
}

// Evolver runs the accept-if-better loop over a stroke store.
//
// An Evolver is not safe for concurrent use. Drive it from one goroutine,
// either directly or through Run, and use Do to reach it from others.
type Evolver struct {
	cfg   Config
	atlas *brush.Atlas
	rng   *rand.Rand
	pool  *parallel.WorkerPool
	mode  rank.AccelMode

	sess *session

	running     bool
	pruning     bool
	pruneCursor int
	editor      *focus.Editor

	best         uint64
	similarity   float64
	revision     uint64
	counters     counters
	snapshotSeq  int
	lastSnapshot float64

	displayMode DisplayMode
	display     Display
	onSnapshot  func(Snapshot)
	onNotice    func(Notice)
	observer    Observer

	cmds   chan command
	timers timers
	closed bool
}

// New creates an evolver painting with atlas's brushes.
func New(atlas *brush.Atlas, cfg Config, opts ...Option) (*Evolver, error) {
	if atlas == nil || atlas.Len() == 0 {
		return nil, fmt.Errorf("%w: empty brush atlas", ErrInvalidConfig)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := deviceMode(cfg.Device)
	if err != nil {
		return nil, err
	}

	o := options{seed: cfg.Seed}
	for _, opt := range opts {
		opt(&o)
	}
	rng := o.rng
	if rng == nil {
		seed := o.seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}

	return &Evolver{
		cfg:        cfg,
		atlas:      atlas,
		rng:        rng,
		pool:       parallel.NewWorkerPool(o.workers),
		mode:       mode,
		display:    o.display,
		onSnapshot: o.onSnapshot,
		onNotice:   o.onNotice,
		observer:   o.observer,
		cmds:       make(chan command),
	}, nil
}

func deviceMode(device string) (rank.AccelMode, error) {
	mode, err := rank.ParseAccelMode(device)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if mode == rank.AccelRequired && rank.Registered() == nil {
		return 0, rank.ErrAcceleratorUnavailable
	}
	return mode, nil
}

// SetTargetImage discards the current painting and starts a new one for img.
// The scheduler is stopped.
func (e *Evolver) SetTargetImage(img image.Image) error {
	if e.closed {
		return ErrClosed
	}
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("%w: empty image", ErrNoImage)
	}
	e.pruning = false
	e.Stop()
	if e.sess != nil {
		e.sess.dispose()
		e.sess = nil
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	ranker, err := rank.New(img,
		rank.WithMaxGrid(e.cfg.MaxGrid),
		rank.WithPool(e.pool),
		rank.WithAcceleration(e.mode))
	if err != nil {
		return err
	}
	r, g, bl := e.cfg.background()
	renderer, err := render.New(w, h, e.atlas,
		render.WithBackground(color.RGBA{R: r, G: g, B: bl, A: 0xff}),
		render.WithCheckpointInterval(e.cfg.CheckpointInterval))
	if err != nil {
		ranker.Dispose()
		return err
	}
	cols, rows := ranker.GridSize()
	fm := focus.New(cols, rows, w, h)
	fm.SetExponent(e.cfg.FocusExponent)

	e.sess = &session{
		id:       uuid.New(),
		width:    w,
		height:   h,
		store:    stroke.NewStore(),
		renderer: renderer,
		ranker:   ranker,
		focus:    fm,
		mutator:  mutate.New(w, h, e.atlas, e.cfg.mutateConfig(), e.rng),
	}
	e.pruning = false
	e.pruneCursor = 0
	e.editor = nil
	e.counters = counters{}
	e.snapshotSeq = 0

	if err := e.rescore(); err != nil {
		e.sess.dispose()
		e.sess = nil
		return err
	}
	e.lastSnapshot = e.similarity
	Logger().Info("evolve: target set",
		"session", e.sess.id, "width", w, "height", h,
		"grid", fmt.Sprintf("%dx%d", cols, rows),
		"accelerated", ranker.Accelerated(),
		"similarity", e.similarity)
	return nil
}

// rescore renders the store from scratch and makes its score the best.
func (e *Evolver) rescore() error {
	s := e.sess
	s.renderer.RenderFull(s.store)
	score, err := s.ranker.Rank(s.renderer.Composite())
	if err != nil {
		return err
	}
	e.best = score
	e.similarity = s.ranker.ToPercentage(score)
	e.revision++
	s.focus.UpdateFromErrorMap(s.ranker.ErrorMap())
	return nil
}

// Revision returns a counter that changes whenever the best painting does.
func (e *Evolver) Revision() uint64 { return e.revision }

// State returns the scheduling state.
func (e *Evolver) State() State {
	switch {
	case e.sess == nil:
		return StateIdle
	case !e.running:
		return StateReady
	case e.pruning:
		return StatePruning
	default:
		return StateRunning
	}
}

// Running reports whether cycles are scheduled.
func (e *Evolver) Running() bool { return e.running }

// Pruning reports whether a pruning sweep is in progress.
func (e *Evolver) Pruning() bool { return e.pruning }

// Similarity returns the similarity of the best painting, in [0, 1].
func (e *Evolver) Similarity() float64 { return e.similarity }

// Score returns the difference score of the best painting.
func (e *Evolver) Score() uint64 { return e.best }

// Config returns the current configuration.
func (e *Evolver) Config() Config { return e.cfg }

// Start schedules mutation cycles. It reports false when no target is set or
// the evolver is already running.
func (e *Evolver) Start() bool {
	if e.closed || e.sess == nil || e.running {
		return false
	}
	e.running = true
	e.timers.start(e.cfg)
	Logger().Debug("evolve: started", "session", e.sess.id)
	return true
}

// Stop stops scheduling cycles. A pruning sweep in progress ends early: the
// deletions it accepted so far are kept and compacted. Stop reports false
// when not running.
func (e *Evolver) Stop() bool {
	if !e.running {
		return false
	}
	e.running = false
	e.timers.stop()
	if e.pruning {
		e.finishPrune()
	}
	Logger().Debug("evolve: stopped")
	return true
}

// Optimize begins a pruning sweep that proposes deleting every live stroke in
// index order, keeping each deletion that does not worsen the score. The
// sweep runs on the scheduler, so Optimize is a no-op unless the evolver is
// running; it is also a no-op when similarity is at or above
// Config.PruneThreshold. It reports whether a sweep started.
func (e *Evolver) Optimize() bool {
	if e.closed || e.sess == nil || !e.running || e.pruning {
		return false
	}
	if e.similarity >= e.cfg.PruneThreshold {
		return false
	}
	e.pruning = true
	e.pruneCursor = 0
	Logger().Info("evolve: pruning started", "strokes", e.sess.store.LiveCount())
	return true
}

// SetConfig applies cfg. Mutation settings, the focus exponent and timer
// intervals take effect immediately; canvas settings apply to the next target.
func (e *Evolver) SetConfig(cfg Config) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	mode, err := deviceMode(cfg.Device)
	if err != nil {
		return err
	}
	old := e.cfg
	e.cfg = cfg
	e.mode = mode
	if e.sess != nil {
		e.sess.mutator.SetConfig(cfg.mutateConfig())
		e.sess.focus.SetExponent(cfg.FocusExponent)
	}
	if e.running && old.intervals() != cfg.intervals() {
		e.timers.stop()
		e.timers.start(cfg)
	}
	return nil
}

// Close stops the evolver and releases its resources.
func (e *Evolver) Close() {
	if e.closed {
		return
	}
	e.Stop()
	if e.sess != nil {
		e.sess.dispose()
		e.sess = nil
	}
	e.pool.Close()
	e.closed = true
}
