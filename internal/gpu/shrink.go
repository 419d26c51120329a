//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/evolve/rank"
)

// maxPasses bounds the number of halvings so a cell sum fits in u32:
// 4^11 * 765 < 2^32.
const maxPasses = 11

const paramsSize = 16

// ShrinkAccelerator runs the difference and shrinker passes as wgpu/hal
// compute shaders. It implements rank.Accelerator.
//
// All passes of one Reduce are encoded as successive compute passes in a
// single command buffer; storage buffer barriers between passes order them.
// Only the final grid is read back.
type ShrinkAccelerator struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	diffShader     hal.ShaderModule
	diffBindLayout hal.BindGroupLayout
	diffPipeLayout hal.PipelineLayout
	diffPipeline   hal.ComputePipeline

	shrinkShader     hal.ShaderModule
	shrinkBindLayout hal.BindGroupLayout
	shrinkPipeLayout hal.PipelineLayout
	shrinkPipeline   hal.ComputePipeline

	sess *shrinkSession

	gpuReady       bool
	externalDevice bool // true when using a shared device (not destroyed on Close)
}

var (
	_ rank.Accelerator         = (*ShrinkAccelerator)(nil)
	_ rank.DeviceProviderAware = (*ShrinkAccelerator)(nil)
)

// fenceTimeout bounds the wait for one Reduce submission.
const fenceTimeout = 5 * time.Second

// ErrTimeout is returned when the GPU does not finish a Reduce in time.
var ErrTimeout = errors.New("wgpu-shrink: GPU wait timed out")

// waitError turns the result of a fence wait into an error.
func waitError(ok bool, err error) error {
	switch {
	case err != nil:
		return fmt.Errorf("wait for GPU: %w", err)
	case !ok:
		return fmt.Errorf("%w after %v", ErrTimeout, fenceTimeout)
	default:
		return nil
	}
}

// level is one pass output and the bindings that produce it.
type level struct {
	width, height uint32
	cells         hal.Buffer
	params        hal.Buffer
	bind          hal.BindGroup
}

type shrinkSession struct {
	width, height uint32
	target        hal.Buffer
	composite     hal.Buffer
	levels        []level
	staging       hal.Buffer
	readback      []byte
}

func (a *ShrinkAccelerator) Name() string { return "wgpu-shrink" }

// Init opens a device and builds the pipelines. An error leaves the
// accelerator unregistered.
func (a *ShrinkAccelerator) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initGPU()
}

// SetLogger sets the logger used by the accelerator.
func (a *ShrinkAccelerator) SetLogger(l *slog.Logger) { setLogger(l) }

func (a *ShrinkAccelerator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
	a.destroyPipelines()
	if !a.externalDevice {
		if a.device != nil {
			a.device.Destroy()
		}
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device = nil
	a.instance = nil
	a.queue = nil
	a.gpuReady = false
	a.externalDevice = false
}

// SetDeviceProvider switches the accelerator to a GPU device owned by the
// host application. The provider must also expose its HAL device and queue
// through HalDevice() any and HalQueue() any.
func (a *ShrinkAccelerator) SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return errors.New("wgpu-shrink: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return errors.New("wgpu-shrink: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return errors.New("wgpu-shrink: provider HalQueue is not hal.Queue")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess != nil {
		return errors.New("wgpu-shrink: cannot switch devices during a session")
	}

	a.destroyPipelines()
	if !a.externalDevice && a.device != nil {
		a.device.Destroy()
	}
	if a.instance != nil {
		a.instance.Destroy()
		a.instance = nil
	}
	a.device = device
	a.queue = queue
	a.externalDevice = true

	if err := a.createPipelines(); err != nil {
		a.gpuReady = false
		return fmt.Errorf("wgpu-shrink: create pipelines with shared device: %w", err)
	}
	a.gpuReady = true
	slogger().Info("wgpu-shrink: switched to shared GPU device")
	return nil
}

// levelDims returns the grid size after each of passes halvings.
func levelDims(width, height, passes int) [][2]uint32 {
	dims := make([][2]uint32, passes)
	w, h := width, height
	for k := range passes {
		w, h = (w+1)/2, (h+1)/2
		dims[k] = [2]uint32{uint32(w), uint32(h)} //nolint:gosec // sizes are positive
	}
	return dims
}

func encodeParams(srcW, srcH, dstW, dstH uint32) []byte {
	b := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(b[0:], srcW)
	binary.LittleEndian.PutUint32(b[4:], srcH)
	binary.LittleEndian.PutUint32(b[8:], dstW)
	binary.LittleEndian.PutUint32(b[12:], dstH)
	return b
}

// Prepare uploads the target and allocates one buffer per pass.
func (a *ShrinkAccelerator) Prepare(target []byte, width, height, passes int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.gpuReady {
		return rank.ErrFallbackToCPU
	}
	if passes < 1 || passes > maxPasses {
		return fmt.Errorf("%w: %d passes", rank.ErrFallbackToCPU, passes)
	}
	if len(target) != width*height*4 {
		return fmt.Errorf("wgpu-shrink: target is %d bytes, want %d", len(target), width*height*4)
	}
	a.releaseLocked()

	s := &shrinkSession{width: uint32(width), height: uint32(height)} //nolint:gosec // sizes are positive
	a.sess = s
	if err := a.allocSession(s, target, passes); err != nil {
		a.releaseLocked()
		return err
	}
	slogger().Debug("wgpu-shrink: session prepared",
		"width", width, "height", height, "passes", passes)
	return nil
}

func (a *ShrinkAccelerator) allocSession(s *shrinkSession, target []byte, passes int) error {
	pixelBytes := uint64(len(target))
	var err error
	if s.target, err = a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "shrink_target", Size: pixelBytes,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("create target buffer: %w", err)
	}
	if s.composite, err = a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "shrink_composite", Size: pixelBytes,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("create composite buffer: %w", err)
	}
	a.queue.WriteBuffer(s.target, 0, target)

	srcW, srcH := s.width, s.height
	for k, d := range levelDims(int(s.width), int(s.height), passes) {
		lv := level{width: d[0], height: d[1]}
		size := uint64(d[0]) * uint64(d[1]) * 4
		if lv.cells, err = a.device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("shrink_level_%d", k), Size: size,
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
		}); err != nil {
			return fmt.Errorf("create level %d buffer: %w", k, err)
		}
		if lv.params, err = a.device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("shrink_params_%d", k), Size: paramsSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		}); err != nil {
			s.levels = append(s.levels, lv)
			return fmt.Errorf("create level %d params: %w", k, err)
		}
		a.queue.WriteBuffer(lv.params, 0, encodeParams(srcW, srcH, d[0], d[1]))

		params := gputypes.BindGroupEntry{Binding: 0, Resource: gputypes.BufferBinding{Buffer: lv.params.NativeHandle(), Size: paramsSize}}
		out := gputypes.BufferBinding{Buffer: lv.cells.NativeHandle(), Size: size}
		if k == 0 {
			lv.bind, err = a.device.CreateBindGroup(&hal.BindGroupDescriptor{
				Label: "shrink_diff_bind", Layout: a.diffBindLayout,
				Entries: []gputypes.BindGroupEntry{
					params,
					{Binding: 1, Resource: gputypes.BufferBinding{Buffer: s.target.NativeHandle(), Size: pixelBytes}},
					{Binding: 2, Resource: gputypes.BufferBinding{Buffer: s.composite.NativeHandle(), Size: pixelBytes}},
					{Binding: 3, Resource: out},
				},
			})
		} else {
			prev := s.levels[k-1]
			lv.bind, err = a.device.CreateBindGroup(&hal.BindGroupDescriptor{
				Label: "shrink_halve_bind", Layout: a.shrinkBindLayout,
				Entries: []gputypes.BindGroupEntry{
					params,
					{Binding: 1, Resource: gputypes.BufferBinding{Buffer: prev.cells.NativeHandle(), Size: uint64(prev.width) * uint64(prev.height) * 4}},
					{Binding: 2, Resource: out},
				},
			})
		}
		s.levels = append(s.levels, lv)
		if err != nil {
			return fmt.Errorf("create level %d bind group: %w", k, err)
		}
		srcW, srcH = d[0], d[1]
	}

	last := s.levels[len(s.levels)-1]
	n := uint64(last.width) * uint64(last.height) * 4
	if s.staging, err = a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "shrink_staging", Size: n,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	s.readback = make([]byte, n)
	return nil
}

// Reduce uploads composite, runs every pass and reads back the final grid.
func (a *ShrinkAccelerator) Reduce(composite []byte, dst []uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.sess
	if s == nil || !a.gpuReady {
		return rank.ErrFallbackToCPU
	}
	if uint64(len(composite)) != uint64(s.width)*uint64(s.height)*4 {
		return fmt.Errorf("wgpu-shrink: composite is %d bytes, want %d", len(composite), s.width*s.height*4)
	}
	if len(dst)*4 != len(s.readback) {
		return fmt.Errorf("wgpu-shrink: grid has %d cells, want %d", len(dst), len(s.readback)/4)
	}
	a.queue.WriteBuffer(s.composite, 0, composite)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "shrink_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("shrink"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	for k, lv := range s.levels {
		pipeline := a.shrinkPipeline
		if k == 0 {
			pipeline = a.diffPipeline
		}
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "shrink_pass"})
		pass.SetPipeline(pipeline)
		pass.SetBindGroup(0, lv.bind, nil)
		pass.Dispatch((lv.width+7)/8, (lv.height+7)/8, 1)
		pass.End()
	}
	encoder.CopyBufferToBuffer(s.levels[len(s.levels)-1].cells, s.staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: uint64(len(s.readback))},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	fence, err := a.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer a.device.DestroyFence(fence)
	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := waitError(a.device.Wait(fence, 1, fenceTimeout)); err != nil {
		return err
	}
	if err := a.queue.ReadBuffer(s.staging, 0, s.readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	for i := range dst {
		dst[i] = uint64(binary.LittleEndian.Uint32(s.readback[i*4:]))
	}
	return nil
}

// Release frees the session buffers.
func (a *ShrinkAccelerator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
}

func (a *ShrinkAccelerator) releaseLocked() {
	s := a.sess
	if s == nil || a.device == nil {
		a.sess = nil
		return
	}
	for _, lv := range s.levels {
		if lv.bind != nil {
			a.device.DestroyBindGroup(lv.bind)
		}
		if lv.params != nil {
			a.device.DestroyBuffer(lv.params)
		}
		if lv.cells != nil {
			a.device.DestroyBuffer(lv.cells)
		}
	}
	for _, b := range []hal.Buffer{s.staging, s.composite, s.target} {
		if b != nil {
			a.device.DestroyBuffer(b)
		}
	}
	a.sess = nil
}
