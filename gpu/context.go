// Package gpu owns the WebGPU adapter/device/queue session shared by every GPU-facing
// component: the upscale algorithms, the frame interpolator, and the buffer pool they
// allocate through. The surface is compute-only: no swapchain, no render passes.
package gpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/gpu/bindgroup"
	"github.com/lumenscale/engine/gpu/pipeline"
)

// Feature identifies an optional GPU capability a caller may probe for before relying
// on it.
type Feature int

const (
	// FeatureTimestampQuery reports whether the device can time compute dispatches.
	FeatureTimestampQuery Feature = iota
	// FeatureSubgroups reports whether the device supports subgroup operations.
	FeatureSubgroups
	// FeatureFP16Storage reports whether storage buffers may hold fp16 data.
	FeatureFP16Storage
)

// AdapterInfo describes the selected GPU adapter, used for UI and autoconfiguration.
type AdapterInfo struct {
	Vendor     string
	Name       string
	Backend    string
	DeviceType string
	// VramBytes is the VRAM size reported by the platform, or 0 when the adapter
	// exposes none (wgpu-native has no portable memory-size query).
	VramBytes uint64
}

// VramStats is the VRAM accounting a Context composes from its BufferPool's tracked
// allocations and cap; no platform memory-heap query is made.
type VramStats struct {
	TotalMB        float64
	AppAllocatedMB float64
	UsedMB         float64
	FreeMB         float64
	UsagePercent   float64
}

// vramSource is satisfied by *bufferpool.Pool; declared here instead of importing the
// bufferpool package directly to avoid a import cycle (bufferpool needs the GPU device
// from Context, Context needs the pool's tracked-bytes total for vram_stats).
type vramSource interface {
	TrackedBytes() int64
	CapBytes() uint64
}

// Context is a platform-neutral GPU session: adapter, device, and default queue, plus
// the compute dispatch and buffer-readback primitives every GPU component shares.
type Context struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	info AdapterInfo

	pool vramSource

	computeFrameEncoder *wgpu.CommandEncoder
}

// ContextBuilderOption configures a Context during construction.
type ContextBuilderOption func(*contextOptions)

type contextOptions struct {
	forceFallbackAdapter bool
}

// WithFallbackAdapter forces wgpu to select a software/fallback adapter, used by tests
// that need a deterministic adapter on machines without a usable GPU.
func WithFallbackAdapter() ContextBuilderOption {
	return func(o *contextOptions) {
		o.forceFallbackAdapter = true
	}
}

// NewContext requests an adapter and a device with default limits and returns a
// ready-to-use Context. No optional adapter feature (storage textures, f32-filterable
// textures) is checked. Returns ErrNoSuitableAdapter, wrapped with the platform error,
// when the adapter or device request fails — this failure is fatal for the pipeline.
func NewContext(opts ...ContextBuilderOption) (*Context, error) {
	o := &contextOptions{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Context{
		mu:       &sync.Mutex{},
		instance: wgpu.CreateInstance(nil),
	}

	adapter, err := c.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: o.forceFallbackAdapter,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: %w: %v", frame.ErrNoSuitableAdapter, err)
	}
	c.adapter = adapter

	limits := wgpu.DefaultLimits()
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "lumenscale device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: %w: %v", frame.ErrNoSuitableAdapter, err)
	}
	c.device = device
	c.queue = device.GetQueue()

	ai := adapter.GetInfo()
	c.info = AdapterInfo{
		Vendor:     ai.VendorName,
		Name:       ai.Name,
		Backend:    ai.BackendType.String(),
		DeviceType: ai.AdapterType.String(),
	}

	return c, nil
}

// Device returns the underlying wgpu device, for use only by GPU-owning components.
func (c *Context) Device() *wgpu.Device {
	return c.device
}

// Queue returns the device's default queue.
func (c *Context) Queue() *wgpu.Queue {
	return c.queue
}

// SetPool attaches the BufferPool whose tracked-bytes total backs VramStats'
// app_allocated_mb field. Called once by the host during setup, after both the Context
// and the pool exist.
func (c *Context) SetPool(pool vramSource) {
	c.pool = pool
}

// Probe returns the selected adapter's description.
func (c *Context) Probe() AdapterInfo {
	return c.info
}

// Supports reports whether the adapter exposes the given optional feature. The device
// is requested without optional features, so this reflects adapter capability only.
func (c *Context) Supports(feat Feature) bool {
	features := c.adapter.Features()
	switch feat {
	case FeatureTimestampQuery:
		return features.Has(wgpu.FeatureNameTimestampQuery)
	case FeatureSubgroups:
		return features.Has(wgpu.FeatureNameSubgroups)
	case FeatureFP16Storage:
		return features.Has(wgpu.FeatureNameShaderF16)
	default:
		return false
	}
}

// VramStats composes the BufferPool's tracked allocation total and cap. No platform
// VRAM query is made: UsedMB is always AppAllocatedMB and TotalMB is the pool's cap.
func (c *Context) VramStats() VramStats {
	var appAllocatedMB, totalMB float64
	if c.pool != nil {
		appAllocatedMB = float64(c.pool.TrackedBytes()) / (1024 * 1024)
		totalMB = float64(c.pool.CapBytes()) / (1024 * 1024)
	}

	// wgpu-native has no portable VRAM query; the tracked total stands in for usage
	// and the pool's cap for the total, so the usage percent stays meaningful for
	// the Auto memory strategy's thresholds.
	usedMB := appAllocatedMB
	usagePercent := 0.0
	if totalMB > 0 {
		usagePercent = usedMB / totalMB * 100
	}

	return VramStats{
		TotalMB:        totalMB,
		AppAllocatedMB: appAllocatedMB,
		UsedMB:         usedMB,
		FreeMB:         totalMB - usedMB,
		UsagePercent:   usagePercent,
	}
}

// CreateBuffer creates an empty GPU buffer of the given size and usage.
func (c *Context) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	return c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}

// CreateBufferInit creates a GPU buffer pre-populated with data.
func (c *Context) CreateBufferInit(label string, data []byte, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	return c.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: data,
		Usage:    usage,
	})
}

// WriteBuffer uploads data to an existing GPU buffer at the given byte offset.
func (c *Context) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	c.queue.WriteBuffer(buf, offset, data)
}

// RegisterComputePipeline compiles p's shader module and creates the wgpu compute
// pipeline, storing it back on p.
func (c *Context) RegisterComputePipeline(p *pipeline.Pipeline) error {
	s := p.Shader()
	module, err := c.device.CreateShaderModule(s.Module())
	if err != nil {
		return fmt.Errorf("gpu: compiling shader %q: %w", s.Key(), err)
	}

	descriptors := s.BindGroupLayoutDescriptors()
	maxGroup := -1
	for g := range descriptors {
		if g > maxGroup {
			maxGroup = g
		}
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g, desc := range descriptors {
		bgl, err := c.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return fmt.Errorf("gpu: bind group layout for group %d: %w", g, err)
		}
		bindGroupLayouts[g] = bgl
	}

	layout, err := c.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.Key(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return fmt.Errorf("gpu: pipeline layout %q: %w", p.Key(), err)
	}

	created, err := c.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.Key() + " pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: s.EntryPoint(),
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: creating compute pipeline %q: %w", p.Key(), err)
	}

	p.SetComputePipeline(created)
	return nil
}

// InitBindGroup creates the GPU bind group for provider from its layout descriptor,
// binding the buffers already attached via Provider.SetBuffer.
func (c *Context) InitBindGroup(provider *bindgroup.Provider, descriptor wgpu.BindGroupLayoutDescriptor) error {
	if len(descriptor.Entries) == 0 {
		return nil
	}

	layout := provider.BindGroupLayout()
	if layout == nil {
		var err error
		layout, err = c.device.CreateBindGroupLayout(&descriptor)
		if err != nil {
			return fmt.Errorf("gpu: bind group layout for %q: %w", provider.Label(), err)
		}
		provider.SetBindGroupLayout(layout)
	}

	entries := make([]wgpu.BindGroupEntry, len(descriptor.Entries))
	for i, e := range descriptor.Entries {
		binding := int(e.Binding)
		buf := provider.Buffer(binding)
		if buf == nil {
			return fmt.Errorf("gpu: binding %d on %q has no buffer attached", binding, provider.Label())
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: e.Binding,
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}

	bg, err := c.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " bind group",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("gpu: bind group for %q: %w", provider.Label(), err)
	}
	provider.SetBindGroup(bg)
	return nil
}

// BeginComputeFrame opens a command encoder that batches every DispatchCompute call
// into a single submission at EndComputeFrame.
func (c *Context) BeginComputeFrame() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	encoder, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu: creating command encoder: %w", err)
	}
	c.computeFrameEncoder = encoder
	return nil
}

// DispatchCompute encodes one compute pass within the current batched frame.
// BeginComputeFrame must be called first.
func (c *Context) DispatchCompute(p *pipeline.Pipeline, provider *bindgroup.Provider, workgroups [3]uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.computeFrameEncoder == nil {
		return
	}

	pass := c.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(p.ComputePipeline())
	pass.SetBindGroup(0, provider.BindGroup(), nil)
	pass.DispatchWorkgroups(workgroups[0], workgroups[1], workgroups[2])
	pass.End()
}

// EndComputeFrame finishes and submits the batched compute command buffer.
func (c *Context) EndComputeFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.computeFrameEncoder == nil {
		return
	}

	commandBuffer, err := c.computeFrameEncoder.Finish(nil)
	if err != nil {
		c.computeFrameEncoder.Release()
		c.computeFrameEncoder = nil
		return
	}

	c.queue.Submit(commandBuffer)
	commandBuffer.Release()
	c.computeFrameEncoder.Release()
	c.computeFrameEncoder = nil
}

// ReadBuffer copies size bytes starting at offset from buf back to the CPU via a
// staging buffer. Blocks until the GPU readback completes.
func (c *Context) ReadBuffer(buf *wgpu.Buffer, offset, size uint64) ([]byte, error) {
	staging, err := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: staging buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: readback encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(buf, offset, staging, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: finishing readback encoder: %w", err)
	}
	c.queue.Submit(cmd)
	cmd.Release()

	done := make(chan error, 1)
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			done <- fmt.Errorf("gpu: %w: map status %v", frame.ErrGpuTimeout, status)
			return
		}
		done <- nil
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: requesting readback map: %w", err)
	}

	c.device.Poll(true, nil)
	if err := <-done; err != nil {
		return nil, err
	}

	mapped := staging.GetMappedRange(0, uint(size))
	result := make([]byte, len(mapped))
	copy(result, mapped)
	staging.Unmap()

	return result, nil
}

// Close releases the device and adapter. Called once on process shutdown.
func (c *Context) Close() {
	if c.device != nil {
		c.device.Release()
	}
	if c.adapter != nil {
		c.adapter.Release()
	}
	if c.instance != nil {
		c.instance.Release()
	}
}
