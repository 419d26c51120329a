package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/evolve/internal/imageio"
	"github.com/gogpu/evolve/rank"
)

var (
	compareResize bool

	compareCmd = &cobra.Command{
		Use:   "compare <a> <b>",
		Short: "Print the difference score and similarity of two images",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, similarity, err := compareFiles(args[0], args[1], compareResize)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "score %d\nsimilarity %.6f\n", score, similarity)
			return nil
		},
	}
)

func init() {
	compareCmd.Flags().BoolVar(&compareResize, "resize", false, "scale the second image to the size of the first")
}

func compareFiles(pathA, pathB string, resize bool) (uint64, float64, error) {
	a, err := imageio.Load(pathA)
	if err != nil {
		return 0, 0, err
	}
	b, err := imageio.Load(pathB)
	if err != nil {
		return 0, 0, err
	}
	ra := imageio.Fit(a, 0)
	rb := imageio.Fit(b, 0)
	if resize && rb.Rect.Size() != ra.Rect.Size() {
		rb = imageio.Resize(b, ra.Rect.Dx(), ra.Rect.Dy())
	}
	if rb.Rect.Size() != ra.Rect.Size() {
		return 0, 0, fmt.Errorf("size mismatch: %v vs %v (use --resize)", ra.Rect.Size(), rb.Rect.Size())
	}

	r, err := rank.New(ra, rank.WithAcceleration(rank.AccelOff))
	if err != nil {
		return 0, 0, err
	}
	defer r.Dispose()
	score, err := r.Rank(rb)
	if err != nil {
		return 0, 0, err
	}
	return score, r.ToPercentage(score), nil
}
