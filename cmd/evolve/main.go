// Command evolve paints an approximation of an image with brush strokes.
//
//	evolve run photo.jpg --out out/ --snapshots out/frames --serve :8080
//	evolve compare photo.jpg out/painting.png
//	evolve render out/painting.json --size 512x384 -o painting.png
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/evolve"
	_ "github.com/gogpu/evolve/gpu"
)

var (
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "evolve",
		Short: "Approximate an image with evolving brush strokes",
		Long: `evolve repeatedly proposes small edits to a painting made of brush strokes
and keeps the ones that bring it closer to a target image.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(logLevel, logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(l)
			evolve.SetLogger(l)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.AddCommand(runCmd, compareCmd, renderCmd)
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
