//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func (a *ShrinkAccelerator) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return errors.New("wgpu-shrink: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu-shrink: create instance: %w", err)
	}
	a.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		a.instance.Destroy()
		a.instance = nil
		return errors.New("wgpu-shrink: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		a.instance.Destroy()
		a.instance = nil
		return fmt.Errorf("wgpu-shrink: open device: %w", err)
	}
	a.device = openDev.Device
	a.queue = openDev.Queue
	if err := a.createPipelines(); err != nil {
		a.destroyPipelines()
		a.device.Destroy()
		a.instance.Destroy()
		a.device, a.queue, a.instance = nil, nil, nil
		return fmt.Errorf("wgpu-shrink: create pipelines: %w", err)
	}
	a.gpuReady = true
	slogger().Info("wgpu-shrink: GPU accelerator initialized", "adapter", selected.Info.Name)
	return nil
}

func storageEntry(binding uint32, readOnly bool) gputypes.BindGroupLayoutEntry {
	t := gputypes.BufferBindingTypeStorage
	if readOnly {
		t = gputypes.BufferBindingTypeReadOnlyStorage
	}
	return gputypes.BindGroupLayoutEntry{
		Binding: binding, Visibility: gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{Type: t},
	}
}

func uniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding: binding, Visibility: gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: paramsSize},
	}
}

func (a *ShrinkAccelerator) createPipelines() error {
	var err error
	if a.diffShader, err = createShaderModule(a.device, "shrink_diff", diffShaderSource); err != nil {
		return err
	}
	if a.shrinkShader, err = createShaderModule(a.device, "shrink_halve", shrinkShaderSource); err != nil {
		return err
	}

	if a.diffBindLayout, err = a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "shrink_diff_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformEntry(0), storageEntry(1, true), storageEntry(2, true), storageEntry(3, false),
		},
	}); err != nil {
		return fmt.Errorf("create diff bind group layout: %w", err)
	}
	if a.shrinkBindLayout, err = a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "shrink_halve_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformEntry(0), storageEntry(1, true), storageEntry(2, false),
		},
	}); err != nil {
		return fmt.Errorf("create halve bind group layout: %w", err)
	}

	if a.diffPipeLayout, err = a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "shrink_diff_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{a.diffBindLayout},
	}); err != nil {
		return fmt.Errorf("create diff pipeline layout: %w", err)
	}
	if a.shrinkPipeLayout, err = a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "shrink_halve_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{a.shrinkBindLayout},
	}); err != nil {
		return fmt.Errorf("create halve pipeline layout: %w", err)
	}

	if a.diffPipeline, err = a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "shrink_diff_pipeline", Layout: a.diffPipeLayout,
		Compute: hal.ComputeState{Module: a.diffShader, EntryPoint: "main"},
	}); err != nil {
		return fmt.Errorf("create diff compute pipeline: %w", err)
	}
	if a.shrinkPipeline, err = a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "shrink_halve_pipeline", Layout: a.shrinkPipeLayout,
		Compute: hal.ComputeState{Module: a.shrinkShader, EntryPoint: "main"},
	}); err != nil {
		return fmt.Errorf("create halve compute pipeline: %w", err)
	}
	return nil
}

func (a *ShrinkAccelerator) destroyPipelines() {
	if a.device == nil {
		return
	}
	for _, p := range []hal.ComputePipeline{a.diffPipeline, a.shrinkPipeline} {
		if p != nil {
			a.device.DestroyComputePipeline(p)
		}
	}
	for _, l := range []hal.PipelineLayout{a.diffPipeLayout, a.shrinkPipeLayout} {
		if l != nil {
			a.device.DestroyPipelineLayout(l)
		}
	}
	for _, l := range []hal.BindGroupLayout{a.diffBindLayout, a.shrinkBindLayout} {
		if l != nil {
			a.device.DestroyBindGroupLayout(l)
		}
	}
	for _, m := range []hal.ShaderModule{a.diffShader, a.shrinkShader} {
		if m != nil {
			a.device.DestroyShaderModule(m)
		}
	}
	a.diffPipeline, a.shrinkPipeline = nil, nil
	a.diffPipeLayout, a.shrinkPipeLayout = nil, nil
	a.diffBindLayout, a.shrinkBindLayout = nil, nil
	a.diffShader, a.shrinkShader = nil, nil
}
