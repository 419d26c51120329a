// Package store persists stroke-list checkpoints in BadgerDB so a painting
// can be resumed for the same target image.
//
// Keys:
//
//	checkpoint/<target>            latest checkpoint for a target
//	history/<target>/<unix nanos>  every saved checkpoint, oldest first
//
// where <target> is the hex SHA-256 of the target's size and pixels.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no checkpoint exists for a target.
var ErrNotFound = errors.New("store: checkpoint not found")

const (
	checkpointPrefix = "checkpoint/"
	historyPrefix    = "history/"
)

// Config holds configuration for a checkpoint store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool

	// SyncWrites makes every write durable before Save returns.
	SyncWrites bool

	// MaxHistory bounds the history entries kept per target; 0 keeps none.
	MaxHistory int

	// GCInterval is how often value log garbage collection runs; 0 disables.
	GCInterval time.Duration

	// Logger receives BadgerDB's own log output. Nil silences it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		MaxHistory: 20,
		GCInterval: 5 * time.Minute,
	}
}

// Checkpoint is a saved painting.
type Checkpoint struct {
	Target     string          `json:"target"`
	Session    string          `json:"session"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Strokes    json.RawMessage `json:"strokes"`
	Similarity float64         `json:"similarity"`
	Score      uint64          `json:"score"`
	Saved      time.Time       `json:"saved"`
}

// Store is a checkpoint store. It is safe for concurrent use.
type Store struct {
	db         *badger.DB
	maxHistory int
	stop       chan struct{}
	done       chan struct{}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the store described by cfg. The caller must Close it.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path is required for a persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("store: create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger database: %w", err)
	}
	s := &Store{db: db, maxHistory: cfg.MaxHistory}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stop, s.done = make(chan struct{}), make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.Logger)
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration, logger *slog.Logger) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing needed collecting.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("store: value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
	return s.db.Close()
}

// TargetKey identifies a target image by its size and pixels.
func TargetKey(img *image.RGBA) string {
	h := sha256.New()
	var dims [8]byte
	b := img.Bounds()
	binary.BigEndian.PutUint32(dims[0:], uint32(b.Dx())) //nolint:gosec // image sizes fit
	binary.BigEndian.PutUint32(dims[4:], uint32(b.Dy())) //nolint:gosec // image sizes fit
	h.Write(dims[:])
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		h.Write(img.Pix[off : off+b.Dx()*4])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func historyKey(target string, t time.Time) []byte {
	k := make([]byte, 0, len(historyPrefix)+len(target)+9)
	k = append(k, historyPrefix...)
	k = append(k, target...)
	k = append(k, '/')
	return binary.BigEndian.AppendUint64(k, uint64(t.UnixNano())) //nolint:gosec // post-1970 times
}

// Save stores cp as the latest checkpoint for cp.Target and appends it to
// the target's history.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.Target == "" {
		return errors.New("store: checkpoint has no target key")
	}
	if cp.Saved.IsZero() {
		cp.Saved = time.Now()
	}
	val, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("store: encode checkpoint: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(checkpointPrefix+cp.Target), val); err != nil {
			return err
		}
		if s.maxHistory <= 0 {
			return nil
		}
		if err := txn.Set(historyKey(cp.Target, cp.Saved), val); err != nil {
			return err
		}
		return s.trimHistory(txn, cp.Target)
	})
	if err != nil {
		return fmt.Errorf("store: save checkpoint: %w", err)
	}
	return nil
}

// trimHistory deletes the oldest history entries beyond maxHistory.
func (s *Store) trimHistory(txn *badger.Txn, target string) error {
	prefix := []byte(historyPrefix + target + "/")
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for len(keys) > s.maxHistory {
		if err := txn.Delete(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

// Load returns the latest checkpoint for target.
func (s *Store) Load(ctx context.Context, target string) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(checkpointPrefix + target))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("store: load checkpoint: %w", err)
	}
	return cp, nil
}

// History returns the saved checkpoints for target, oldest first.
func (s *Store) History(ctx context.Context, target string) ([]Checkpoint, error) {
	return s.scan(ctx, historyPrefix+target+"/")
}

// List returns the latest checkpoint of every target.
func (s *Store) List(ctx context.Context) ([]Checkpoint, error) {
	return s.scan(ctx, checkpointPrefix)
}

func (s *Store) scan(ctx context.Context, prefix string) ([]Checkpoint, error) {
	var out []Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var cp Checkpoint
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cp)
			}); err != nil {
				return err
			}
			out = append(out, cp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", prefix, err)
	}
	return out, nil
}

// Delete removes the checkpoint and history of target.
func (s *Store) Delete(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(checkpointPrefix + target)); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(historyPrefix + target + "/")
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: delete checkpoint: %w", err)
	}
	return nil
}
