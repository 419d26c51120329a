package rank

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
)

// ErrFallbackToCPU indicates the accelerator cannot run this reduction.
// The ranker falls back to the CPU passes.
var ErrFallbackToCPU = errors.New("rank: falling back to CPU reduction")

// ErrAcceleratorUnavailable is returned when acceleration is required but no
// accelerator is registered or it cannot serve the session.
var ErrAcceleratorUnavailable = errors.New("rank: accelerator unavailable")

// Accelerator runs the difference and shrinker passes on a GPU.
//
// Implementations are provided by backend packages and registered via blank
// import:
//
//	import _ "github.com/gogpu/evolve/gpu"
//
// An accelerator serves one session at a time: Prepare binds it to a target
// image, Reduce may then be called any number of times, and Release frees the
// session resources.
type Accelerator interface {
	// Name returns the accelerator name (e.g. "wgpu-shrink").
	Name() string

	// Init acquires the device. Called once during registration.
	Init() error

	// Close releases every GPU resource.
	Close()

	// Prepare uploads the RGBA target (4 bytes per pixel, no row padding)
	// and allocates the buffers for passes 2×2 halvings.
	// Returns ErrFallbackToCPU if the session cannot be accelerated.
	Prepare(target []byte, width, height, passes int) error

	// Reduce uploads the composite, runs all passes and writes the final
	// grid in row-major order to dst.
	Reduce(composite []byte, dst []uint64) error

	// Release frees the resources allocated by Prepare.
	Release()
}

// DeviceProviderAware is implemented by accelerators that can run on a GPU
// device owned by the host application instead of opening their own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider gpucontext.DeviceProvider) error
}

var (
	accelMu   sync.RWMutex
	accel     Accelerator
	accelBusy atomic.Bool
)

// RegisterAccelerator registers the accelerator used by new rankers.
//
// Only one accelerator can be registered; a later call replaces and closes
// the previous one. Init is called during registration and the accelerator is
// not registered if it fails.
func RegisterAccelerator(a Accelerator) error {
	if a == nil {
		return errors.New("rank: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	propagateLogger(a, logger())
	accelMu.Lock()
	old := accel
	accel = a
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Registered returns the registered accelerator, or nil.
func Registered() Accelerator {
	accelMu.RLock()
	defer accelMu.RUnlock()
	return accel
}

// SetDeviceProvider hands a shared GPU device to the registered accelerator.
// It is a no-op when no accelerator is registered or it cannot share devices.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	a := Registered()
	if a == nil {
		return nil
	}
	if dpa, ok := a.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}

// claimAccelerator reserves the registered accelerator for one session.
func claimAccelerator() Accelerator {
	a := Registered()
	if a == nil || !accelBusy.CompareAndSwap(false, true) {
		return nil
	}
	return a
}

func releaseAccelerator(a Accelerator) {
	a.Release()
	accelBusy.Store(false)
}

type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(a Accelerator, l *slog.Logger) {
	if ls, ok := a.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
