package evolve

import (
	"math/rand/v2"
	"time"

	"github.com/gogpu/evolve/stroke"
)

// Option configures an Evolver during creation.
//
// Example:
//
//	ev, err := evolve.New(atlas, evolve.DefaultConfig(),
//	    evolve.WithSeed(42),
//	    evolve.WithSnapshotHandler(save))
type Option func(*options)

type options struct {
	rng        *rand.Rand
	seed       uint64
	display    Display
	onSnapshot func(Snapshot)
	onNotice   func(Notice)
	observer   Observer
	workers    int
}

// Observer receives per-cycle and per-tick measurements. Implementations must
// be cheap; they are called on the evolver goroutine.
type Observer interface {
	ObserveCycle(m stroke.MutationType, accepted bool)
	ObserveTick(elapsed time.Duration, similarity float64, strokes int)
}

// WithSeed seeds the mutation RNG, overriding Config.Seed.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithRand sets the mutation RNG. The evolver takes ownership of it.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// WithDisplay sets the sink that receives display frames.
func WithDisplay(d Display) Option {
	return func(o *options) {
		o.display = d
	}
}

// WithSnapshotHandler sets the function called with each snapshot. Snapshots
// are only taken when Config.SaveSnapshots is set.
func WithSnapshotHandler(fn func(Snapshot)) Option {
	return func(o *options) {
		o.onSnapshot = fn
	}
}

// WithNoticeHandler sets the function called with user-facing notices, such
// as an automatic stop.
func WithNoticeHandler(fn func(Notice)) Option {
	return func(o *options) {
		o.onNotice = fn
	}
}

// WithObserver sets a metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithWorkers sets the number of scoring workers. The default is
// runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}
