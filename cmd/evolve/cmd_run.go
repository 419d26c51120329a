package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/evolve"
	"github.com/gogpu/evolve/internal/configfile"
	"github.com/gogpu/evolve/internal/imageio"
	"github.com/gogpu/evolve/internal/metrics"
	"github.com/gogpu/evolve/internal/server"
	"github.com/gogpu/evolve/internal/store"
)

type runFlags struct {
	config          string
	brushes         string
	regions         string
	out             string
	snapshots       string
	serve           string
	db              string
	resume          bool
	duration        time.Duration
	checkpointEvery time.Duration
	seed            uint64
	device          string
	maxSize         int
}

var (
	runOpts runFlags

	runCmd = &cobra.Command{
		Use:   "run <target-image>",
		Short: "Evolve a painting of the target image",
		Long: `Run evolves a painting until interrupted or until --duration elapses, then
writes painting.png and painting.json to --out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runEvolve(ctx, args[0], runOpts)
		},
	}
)

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.config, "config", "c", "", "YAML settings file, reloaded on change")
	f.StringVar(&runOpts.brushes, "brushes", "", "brush sheet image (default: procedural brushes)")
	f.StringVar(&runOpts.regions, "regions", "", "YAML brush regions for --brushes (default: stock sheet layout)")
	f.StringVarP(&runOpts.out, "out", "o", ".", "output directory")
	f.StringVar(&runOpts.snapshots, "snapshots", "", "write progress snapshots to this directory")
	f.StringVar(&runOpts.serve, "serve", "", "serve the HTTP API on this address")
	f.StringVar(&runOpts.db, "db", "", "checkpoint database directory")
	f.BoolVar(&runOpts.resume, "resume", false, "resume from the latest checkpoint in --db")
	f.DurationVar(&runOpts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	f.DurationVar(&runOpts.checkpointEvery, "checkpoint-every", 30*time.Second, "checkpoint period when --db is set")
	f.Uint64Var(&runOpts.seed, "seed", 0, "random seed (0 picks one)")
	f.StringVar(&runOpts.device, "device", "", "scoring device: auto, cpu or gpu (overrides the settings file)")
	f.IntVar(&runOpts.maxSize, "max-size", 512, "downscale the target so its longer side is at most this")
}

func loadConfig(path string) (evolve.Config, error) {
	if path == "" {
		return evolve.DefaultConfig(), nil
	}
	return configfile.Load(path)
}

// overrides applies command-line settings on top of a loaded config.
func (o runFlags) overrides(cfg evolve.Config) evolve.Config {
	if o.device != "" {
		cfg.Device = o.device
	}
	if o.seed != 0 {
		cfg.Seed = o.seed
	}
	if o.snapshots != "" {
		cfg.SaveSnapshots = true
	}
	return cfg
}

func runEvolve(ctx context.Context, targetPath string, o runFlags) error {
	logger := evolve.Logger()

	cfg, err := loadConfig(o.config)
	if err != nil {
		return err
	}
	cfg = o.overrides(cfg)

	atlas, err := loadAtlas(o.brushes, o.regions, cfg.Seed)
	if err != nil {
		return err
	}
	src, err := imageio.Load(targetPath)
	if err != nil {
		return err
	}
	target := imageio.Fit(src, o.maxSize)

	for _, dir := range []string{o.out, o.snapshots} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var db *store.Store
	if o.db != "" {
		dbCfg := store.DefaultConfig(o.db)
		dbCfg.Logger = logger.With("component", "badger")
		if db, err = store.Open(dbCfg); err != nil {
			return err
		}
		defer db.Close()
	} else if o.resume {
		return errors.New("--resume requires --db")
	}

	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}
	g, gctx := errgroup.WithContext(ctx)

	var (
		m   = metrics.New()
		srv *server.Server
	)
	snaps := make(chan evolve.Snapshot, 64)
	opts := []evolve.Option{
		evolve.WithObserver(m),
		evolve.WithSnapshotHandler(func(s evolve.Snapshot) {
			m.ObserveSnapshot()
			if srv != nil {
				srv.PublishSnapshot(s)
			}
			select {
			case snaps <- s:
			default:
				logger.Warn("snapshot writer is behind, dropping snapshot", "seq", s.Seq)
			}
		}),
		evolve.WithNoticeHandler(func(n evolve.Notice) {
			m.ObserveNotice(n.Level)
			if srv != nil {
				srv.PublishNotice(n)
			}
		}),
	}
	ev, err := evolve.New(atlas, cfg, opts...)
	if err != nil {
		return err
	}
	defer ev.Close()

	if err := ev.SetTargetImage(target); err != nil {
		return err
	}
	scored, _ := ev.Target()
	key := store.TargetKey(scored)
	if o.resume {
		if err := resume(ctx, db, ev, key); err != nil {
			return err
		}
	}
	if o.serve != "" {
		srv = server.New(ev, server.Options{Metrics: m, MaxImageSize: o.maxSize})
	}
	ev.Start()
	logger.Info("evolving",
		"target", targetPath,
		"width", scored.Rect.Dx(), "height", scored.Rect.Dy(),
		"similarity", ev.Similarity(),
		"accelerated", ev.Stats().Accelerated)

	g.Go(func() error { return ignoreCancel(ev.Run(gctx)) })

	writeSnapshot := func(s evolve.Snapshot) {
		if o.snapshots == "" {
			return
		}
		path := filepath.Join(o.snapshots, fmt.Sprintf("%04d.png", s.Seq))
		if err := imageio.SavePNG(path, s.Image); err != nil {
			logger.Warn("snapshot write failed", "path", path, "err", err)
		}
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				for {
					select {
					case s := <-snaps:
						writeSnapshot(s)
					default:
						return nil
					}
				}
			case s := <-snaps:
				writeSnapshot(s)
			}
		}
	})

	if o.config != "" {
		g.Go(func() error {
			return ignoreCancel(configfile.Watch(gctx, o.config, configfile.DefaultDebounce, func(next evolve.Config) {
				next = o.overrides(next)
				err := ev.Do(gctx, func(ev *evolve.Evolver) {
					if err := ev.SetConfig(next); err != nil {
						logger.Warn("settings rejected", "err", err)
					}
				})
				if err != nil && gctx.Err() == nil {
					logger.Warn("settings not applied", "err", err)
				}
			}))
		})
	}

	if db != nil {
		g.Go(func() error {
			t := time.NewTicker(o.checkpointEvery)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					cp, err := capture(gctx, ev, key)
					if err != nil {
						return ignoreCancel(err)
					}
					if err := db.Save(gctx, cp); err != nil {
						logger.Warn("checkpoint failed", "err", err)
					}
				}
			}
		})
	}

	if o.serve != "" {
		hs := &http.Server{Addr: o.serve, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("serving", "addr", o.serve)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			srv.Hub().Close()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
		g.Go(func() error { return ignoreCancel(srv.RunStats(gctx)) })
	}

	err = g.Wait()
	// Run has returned; the evolver is ours again.
	if ferr := finish(ev, db, key, o.out); err == nil {
		err = ferr
	}
	return err
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func resume(ctx context.Context, db *store.Store, ev *evolve.Evolver, key string) error {
	cp, err := db.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		evolve.Logger().Info("no checkpoint for target, starting fresh")
		return nil
	}
	if err != nil {
		return err
	}
	if err := ev.ImportStrokes(cp.Strokes); err != nil {
		return fmt.Errorf("resume checkpoint from %s: %w", cp.Saved.Format(time.RFC3339), err)
	}
	evolve.Logger().Info("resumed", "saved", cp.Saved, "similarity", ev.Similarity())
	return nil
}

func checkpointOf(ev *evolve.Evolver, key string) (store.Checkpoint, error) {
	doc, err := ev.ExportStrokes()
	if err != nil {
		return store.Checkpoint{}, err
	}
	st := ev.Stats()
	return store.Checkpoint{
		Target:     key,
		Session:    st.Session,
		Width:      st.Width,
		Height:     st.Height,
		Strokes:    doc,
		Similarity: st.Similarity,
		Score:      st.Score,
		Saved:      time.Now(),
	}, nil
}

func capture(ctx context.Context, ev *evolve.Evolver, key string) (store.Checkpoint, error) {
	var (
		cp   store.Checkpoint
		cerr error
	)
	if err := ev.Do(ctx, func(ev *evolve.Evolver) { cp, cerr = checkpointOf(ev, key) }); err != nil {
		return cp, err
	}
	return cp, cerr
}

// finish writes the final painting and, with a database, a last checkpoint.
func finish(ev *evolve.Evolver, db *store.Store, key, out string) error {
	logger := evolve.Logger()
	img, err := ev.ExportImage()
	if err != nil {
		return err
	}
	if err := imageio.SavePNG(filepath.Join(out, "painting.png"), img); err != nil {
		return err
	}
	cp, err := checkpointOf(ev, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(out, "painting.json"), cp.Strokes, 0o644); err != nil {
		return err
	}
	if db != nil {
		if err := db.Save(context.Background(), cp); err != nil {
			return err
		}
	}
	st := ev.Stats()
	logger.Info("finished",
		"similarity", st.Similarity,
		"strokes", st.Strokes,
		"frames", st.Frames,
		"out", out)
	return nil
}
