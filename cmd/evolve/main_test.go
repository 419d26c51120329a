package main

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/evolve"
	"github.com/gogpu/evolve/internal/imageio"
)

func writeGradient(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: 80, B: uint8(y * 255 / h), A: 255})
		}
	}
	require.NoError(t, imageio.SavePNG(path, img))
}

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("320x200")
	require.NoError(t, err)
	assert.Equal(t, 320, w)
	assert.Equal(t, 200, h)

	for _, bad := range []string{"", "320", "0x10", "-5x5", "axb"} {
		_, _, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug", "json")
	assert.NoError(t, err)
	_, err = newLogger("loud", "text")
	assert.Error(t, err)
	_, err = newLogger("info", "xml")
	assert.Error(t, err)
}

func TestOverrides(t *testing.T) {
	cfg := runFlags{device: "cpu", seed: 9, snapshots: "frames"}.overrides(evolve.DefaultConfig())
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.True(t, cfg.SaveSnapshots)

	cfg = runFlags{}.overrides(evolve.DefaultConfig())
	assert.Equal(t, evolve.DefaultConfig(), cfg)
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	small := filepath.Join(dir, "small.png")
	writeGradient(t, a, 32, 16)
	writeGradient(t, small, 16, 8)

	score, similarity, err := compareFiles(a, a, false)
	require.NoError(t, err)
	assert.Zero(t, score)
	assert.Equal(t, 1.0, similarity)

	_, _, err = compareFiles(a, small, false)
	assert.ErrorContains(t, err, "size mismatch")

	_, similarity, err = compareFiles(a, small, true)
	require.NoError(t, err)
	assert.Greater(t, similarity, 0.9)
}

func TestRunResumeAndRender(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.png")
	writeGradient(t, target, 40, 30)

	o := runFlags{
		out:             filepath.Join(dir, "out"),
		snapshots:       filepath.Join(dir, "frames"),
		db:              filepath.Join(dir, "db"),
		duration:        300 * time.Millisecond,
		checkpointEvery: 50 * time.Millisecond,
		seed:            5,
		device:          "cpu",
		maxSize:         32,
	}
	require.NoError(t, runEvolve(context.Background(), target, o))

	painting, err := imageio.Load(filepath.Join(o.out, "painting.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), painting.Bounds())
	doc, err := os.ReadFile(filepath.Join(o.out, "painting.json"))
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"strokes"`)

	frames, err := os.ReadDir(o.snapshots)
	require.NoError(t, err)
	assert.NotEmpty(t, frames)

	o.resume = true
	o.snapshots = ""
	require.NoError(t, runEvolve(context.Background(), target, o))

	out := filepath.Join(dir, "render.png")
	require.NoError(t, renderFile(filepath.Join(o.out, "painting.json"), renderFlags{
		size:       "64x48",
		out:        out,
		seed:       5,
		background: "#000000",
	}))
	img, err := imageio.Load(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
}

func TestResumeRequiresDB(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.png")
	writeGradient(t, target, 8, 8)

	err := runEvolve(context.Background(), target, runFlags{out: dir, resume: true, device: "cpu"})
	assert.ErrorContains(t, err, "--db")
}
