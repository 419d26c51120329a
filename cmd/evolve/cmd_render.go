package main

import (
	"fmt"
	"image/color"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"

	"github.com/gogpu/evolve/internal/imageio"
	"github.com/gogpu/evolve/render"
	"github.com/gogpu/evolve/stroke"
)

type renderFlags struct {
	size       string
	out        string
	brushes    string
	regions    string
	seed       uint64
	background string
}

var (
	renderOpts renderFlags

	renderCmd = &cobra.Command{
		Use:   "render <strokes.json>",
		Short: "Render a stroke document to PNG",
		Long: `Render paints a stroke document written by "evolve run" at any size. Use the
same --brushes, --regions and --seed the painting was evolved with.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderFile(args[0], renderOpts)
		},
	}
)

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderOpts.size, "size", "512x512", "output size as WIDTHxHEIGHT")
	f.StringVarP(&renderOpts.out, "output", "o", "painting.png", "output PNG")
	f.StringVar(&renderOpts.brushes, "brushes", "", "brush sheet image (default: procedural brushes)")
	f.StringVar(&renderOpts.regions, "regions", "", "YAML brush regions for --brushes")
	f.Uint64Var(&renderOpts.seed, "seed", 0, "seed of the procedural brushes")
	f.StringVar(&renderOpts.background, "background", "#000000", "canvas color")
}

func parseSize(s string) (w, h int, err error) {
	if _, err := fmt.Sscanf(s, "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: want WIDTHxHEIGHT", s)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return w, h, nil
}

func renderFile(path string, o renderFlags) error {
	w, h, err := parseSize(o.size)
	if err != nil {
		return err
	}
	bg, err := colorful.Hex(o.background)
	if err != nil {
		return fmt.Errorf("invalid --background: %w", err)
	}
	atlas, err := loadAtlas(o.brushes, o.regions, o.seed)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	strokes, err := stroke.Decode(f, atlas.Len())
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s := stroke.NewStore()
	s.Replace(strokes)

	cr, cg, cb := bg.RGB255()
	r, err := render.New(w, h, atlas, render.WithBackground(color.RGBA{R: cr, G: cg, B: cb, A: 255}))
	if err != nil {
		return err
	}
	defer r.Dispose()
	r.RenderFull(s)
	return imageio.SavePNG(o.out, r.Composite())
}
