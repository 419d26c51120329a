package evolve

import (
	"context"
	"time"
)

type command struct {
	fn   func(*Evolver)
	done chan struct{}
}

type intervals struct {
	iterate, display, focus, optimize time.Duration
}

func (c Config) intervals() intervals {
	return intervals{c.IterateInterval, c.DisplayInterval, c.FocusInterval, c.OptimizeInterval}
}

// timers holds the tickers that exist while the evolver is running.
type timers struct {
	iterate  *time.Ticker
	focus    *time.Ticker
	optimize *time.Ticker
}

func (t *timers) start(cfg Config) {
	t.iterate = time.NewTicker(cfg.IterateInterval)
	t.focus = time.NewTicker(cfg.FocusInterval)
	if cfg.OptimizeInterval > 0 {
		t.optimize = time.NewTicker(cfg.OptimizeInterval)
	}
}

func (t *timers) stop() {
	for _, tk := range []*time.Ticker{t.iterate, t.focus, t.optimize} {
		if tk != nil {
			tk.Stop()
		}
	}
	*t = timers{}
}

func tick(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// Run drives the evolver until ctx is done: it runs Iterate, RefreshFocus and
// Optimize on their tickers while started, presents display frames, and
// executes functions passed to Do. All evolver calls made through Run happen
// on the calling goroutine.
//
// Run stops the evolver and returns ctx.Err() when ctx is done.
func (e *Evolver) Run(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	displayEvery := e.cfg.DisplayInterval
	display := time.NewTicker(displayEvery)
	defer display.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return ctx.Err()
		case c := <-e.cmds:
			c.fn(e)
			close(c.done)
		case <-tick(e.timers.iterate):
			e.Iterate()
		case <-tick(e.timers.focus):
			e.RefreshFocus()
		case <-tick(e.timers.optimize):
			if e.Optimize() {
				Logger().Debug("evolve: scheduled pruning")
			}
		case <-display.C:
			e.refreshDisplay()
		}
		if e.cfg.DisplayInterval != displayEvery {
			displayEvery = e.cfg.DisplayInterval
			display.Reset(displayEvery)
		}
	}
}

// Do runs fn on the goroutine executing Run and waits for it to return. It
// blocks until ctx is done if Run is not active.
func (e *Evolver) Do(ctx context.Context, fn func(*Evolver)) error {
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case e.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
