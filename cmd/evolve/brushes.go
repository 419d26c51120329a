package main

import (
	"fmt"
	"os"

	"github.com/gogpu/evolve/brush"
	"github.com/gogpu/evolve/internal/imageio"
)

const (
	proceduralBrushes = 24
	proceduralSize    = 96
)

// loadAtlas reads a brush sheet and its regions. Without a sheet a procedural
// atlas is generated from seed.
func loadAtlas(sheet, regions string, seed uint64) (*brush.Atlas, error) {
	if sheet == "" {
		return brush.Procedural(proceduralBrushes, proceduralSize, seed), nil
	}
	img, err := imageio.Load(sheet)
	if err != nil {
		return nil, err
	}
	rs := brush.DefaultRegions()
	if regions != "" {
		f, err := os.Open(regions)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if rs, err = brush.LoadRegions(f); err != nil {
			return nil, fmt.Errorf("%s: %w", regions, err)
		}
	}
	atlas, err := brush.FromImage(img, rs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sheet, err)
	}
	return atlas, nil
}
