// Package configfile loads evolver settings from YAML and reloads them when
// the file changes.
package configfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/evolve"
)

// DefaultDebounce is the quiet period Watch waits after the last change.
const DefaultDebounce = 200 * time.Millisecond

// Decode reads YAML settings over evolve.DefaultConfig. Unknown keys are
// rejected. The result is normalized and validated.
func Decode(r io.Reader) (evolve.Config, error) {
	cfg := evolve.DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return evolve.Config{}, fmt.Errorf("configfile: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return evolve.Config{}, err
	}
	return cfg, nil
}

// Load reads the settings file at path.
func Load(path string) (evolve.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return evolve.Config{}, fmt.Errorf("configfile: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return evolve.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg evolve.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("configfile: %w", err)
	}
	return enc.Close()
}

// Watch calls apply with the reloaded settings every time the file at path
// changes, until ctx is done. Changes are debounced; a file that fails to load
// is logged and skipped. The parent directory is watched so editors that
// replace the file by renaming are followed.
func Watch(ctx context.Context, path string, debounce time.Duration, apply func(evolve.Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("configfile: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configfile: create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("configfile: watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger := evolve.Logger()
	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("configfile: watcher error", "err", err)
		case <-timer.C:
			cfg, err := Load(abs)
			if err != nil {
				logger.Warn("configfile: reload failed, keeping current settings", "path", abs, "err", err)
				continue
			}
			logger.Info("configfile: reloaded", "path", abs)
			apply(cfg)
		}
	}
}
