//go:build !nogpu

// Package gpu provides the GPU scoring accelerator.
//
// It runs the ranker's difference and shrinker passes as compute shaders via
// the gogpu/wgpu Pure Go WebGPU HAL (zero CGO), currently on the Vulkan
// backend. WGSL sources are compiled to SPIR-V with naga.
//
// # Pipeline
//
//	target, composite -> diff (|dR|+|dG|+|dB|, 2x2 sum) -> halve -> ... -> grid
//
// The target is uploaded once per session. Each Reduce uploads the composite,
// encodes one compute pass per level into a single command buffer, waits on
// one fence and reads back only the final grid.
//
// Register the accelerator with:
//
//	import _ "github.com/gogpu/evolve/gpu"
package gpu
