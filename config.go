package evolve

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/gogpu/evolve/focus"
	"github.com/gogpu/evolve/mutate"
)

// Config holds the evolver settings. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// FrameSkip is the number of mutation cycles per iterate tick.
	FrameSkip int `yaml:"frame_skip" json:"frameSkip" validate:"gte=1,lte=100000"`

	// FocusExponent sharpens the focus map; values outside
	// [0, focus.MaxExponent] are clamped.
	FocusExponent float64 `yaml:"focus_exponent" json:"focusExponent" validate:"gte=0"`

	MinColorMutation    float64 `yaml:"min_color_mutation" json:"minColorMutation" validate:"gte=0,lte=1"`
	MaxColorMutation    float64 `yaml:"max_color_mutation" json:"maxColorMutation" validate:"gte=0,lte=1,gtfield=MinColorMutation"`
	MaxRotationMutation float64 `yaml:"max_rotation_mutation" json:"maxRotationMutation" validate:"gte=0,lte=7"`

	// Stroke sizes as a fraction of the canvas's longer side.
	MinStrokeSize float64 `yaml:"min_stroke_size" json:"minStrokeSize" validate:"gt=0,lte=1"`
	MaxStrokeSize float64 `yaml:"max_stroke_size" json:"maxStrokeSize" validate:"gtefield=MinStrokeSize,lte=1"`

	// MaxStrokes caps the store size; 0 means unlimited.
	MaxStrokes int `yaml:"max_strokes" json:"maxStrokes" validate:"gte=0"`

	EnabledMutations mutate.Enabled `yaml:"enabled_mutations" json:"enabledMutations"`

	SaveSnapshots bool `yaml:"save_snapshots" json:"saveSnapshots"`
	// MaxSnapshots sets the snapshot cadence: one snapshot per
	// 1/MaxSnapshots gain in similarity.
	MaxSnapshots int `yaml:"max_snapshots" json:"maxSnapshots" validate:"gte=1"`

	// PruneThreshold is the similarity at and above which Optimize does
	// nothing.
	PruneThreshold float64 `yaml:"prune_threshold" json:"pruneThreshold" validate:"gte=0,lte=1"`
	// CompactRatio triggers compaction once this fraction of slots are
	// tombstones; 0 compacts only after pruning.
	CompactRatio float64 `yaml:"compact_ratio" json:"compactRatio" validate:"gte=0,lte=1"`

	IterateInterval  time.Duration `yaml:"iterate_interval" json:"iterateInterval" validate:"gt=0"`
	DisplayInterval  time.Duration `yaml:"display_interval" json:"displayInterval" validate:"gt=0"`
	FocusInterval    time.Duration `yaml:"focus_interval" json:"focusInterval" validate:"gt=0"`
	OptimizeInterval time.Duration `yaml:"optimize_interval" json:"optimizeInterval" validate:"gte=0"`

	// Settings below apply when the next target image is set.
	CheckpointInterval int    `yaml:"checkpoint_interval" json:"checkpointInterval" validate:"gte=1"`
	MaxGrid            int    `yaml:"max_grid" json:"maxGrid" validate:"gte=1,lte=4096"`
	Background         string `yaml:"background" json:"background" validate:"hexcolor"`
	Device             string `yaml:"device" json:"device" validate:"oneof=auto cpu gpu"`

	// Seed seeds the mutation RNG; 0 picks a random seed.
	Seed uint64 `yaml:"seed" json:"seed"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		FrameSkip:           10,
		FocusExponent:       1,
		MinColorMutation:    0.001,
		MaxColorMutation:    0.01,
		MaxRotationMutation: 0.5,
		MinStrokeSize:       0.01,
		MaxStrokeSize:       0.2,
		MaxStrokes:          10000,
		EnabledMutations:    mutate.AllEnabled(),
		MaxSnapshots:        1800,
		PruneThreshold:      0.8,
		CompactRatio:        0.25,
		IterateInterval:     time.Millisecond,
		DisplayInterval:     10 * time.Millisecond,
		FocusInterval:       5 * time.Second,
		OptimizeInterval:    time.Minute,
		CheckpointInterval:  64,
		MaxGrid:             64,
		Background:          "#000000",
		Device:              "auto",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize clamps the fields that are clamped rather than rejected.
func (c *Config) Normalize() {
	if math.IsNaN(c.FocusExponent) {
		c.FocusExponent = 1
	}
	c.FocusExponent = math.Max(0, math.Min(c.FocusExponent, focus.MaxExponent))
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) mutateConfig() mutate.Config {
	return mutate.Config{
		Enabled:          c.EnabledMutations,
		MinColorDelta:    c.MinColorMutation,
		MaxColorDelta:    c.MaxColorMutation,
		MaxRotationDelta: c.MaxRotationMutation,
		MinSize:          c.MinStrokeSize,
		MaxSize:          c.MaxStrokeSize,
		MaxStrokes:       c.MaxStrokes,
	}
}

func (c Config) background() (r, g, b uint8) {
	col, err := colorful.Hex(c.Background)
	if err != nil {
		return 0, 0, 0
	}
	return col.RGB255()
}
