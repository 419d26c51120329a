//go:build !nogpu

// Package gpu registers the GPU scoring accelerator.
//
// Import this package to run the ranker's difference and shrinker passes as
// wgpu/hal compute shaders. Every ranker created with acceleration enabled
// claims the accelerator if it is free; others score on the CPU.
//
// If GPU initialization fails (no Vulkan device available), the registration
// is skipped with a warning and scoring stays on the CPU. A configuration that
// requires the GPU then fails when the evolver is created.
//
// Usage:
//
//	import _ "github.com/gogpu/evolve/gpu" // enable GPU scoring
package gpu

import (
	"github.com/gogpu/gpucontext"

	evolve "github.com/gogpu/evolve"
	gpuimpl "github.com/gogpu/evolve/internal/gpu"
	"github.com/gogpu/evolve/rank"
)

func init() {
	accel := &gpuimpl.ShrinkAccelerator{}
	if err := rank.RegisterAccelerator(accel); err != nil {
		evolve.Logger().Warn("GPU accelerator not available", "err", err)
	}
}

// SetDeviceProvider makes the accelerator run on a GPU device shared by the
// host application instead of its own. The provider must also expose its HAL
// device and queue (HalDevice() any, HalQueue() any).
//
// Call it before setting a target image.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return rank.SetDeviceProvider(provider)
}
