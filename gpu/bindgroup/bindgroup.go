// Package bindgroup manages the GPU storage/uniform buffers and bind group a compute
// pipeline needs at dispatch time. It is the compute-only counterpart of a renderer's
// bind group provider: no vertex/index buffers, no textures or samplers, since every
// compute kernel in this engine reads and writes flat pixel/parameter buffers.
package bindgroup

import "github.com/cogentcore/webgpu/wgpu"

// Provider holds the GPU buffers bound to a single compute bind group, plus the bind
// group and layout objects once created.
type Provider struct {
	label string

	bindGroup       *wgpu.BindGroup
	bindGroupLayout *wgpu.BindGroupLayout
	buffers         map[int]*wgpu.Buffer
}

// New creates a Provider with the given debug label. Buffers are attached afterward
// via SetBuffer, then resolved into a bind group by GpuContext.InitBindGroup.
func New(label string) *Provider {
	return &Provider{
		label:   label,
		buffers: make(map[int]*wgpu.Buffer),
	}
}

// Label returns the debug label for this provider.
func (p *Provider) Label() string {
	return p.label
}

// BindGroup returns the created bind group, or nil if not yet initialized.
func (p *Provider) BindGroup() *wgpu.BindGroup {
	return p.bindGroup
}

// BindGroupLayout returns the created bind group layout, or nil if not yet initialized.
func (p *Provider) BindGroupLayout() *wgpu.BindGroupLayout {
	return p.bindGroupLayout
}

// Buffer returns the GPU buffer bound at binding, or nil if not set.
func (p *Provider) Buffer(binding int) *wgpu.Buffer {
	return p.buffers[binding]
}

// SetBuffer attaches a pre-created buffer at binding, before bind group initialization.
func (p *Provider) SetBuffer(binding int, buf *wgpu.Buffer) {
	if p.buffers == nil {
		p.buffers = make(map[int]*wgpu.Buffer)
	}
	p.buffers[binding] = buf
}

// SetBindGroup records the bind group created by GpuContext.InitBindGroup.
func (p *Provider) SetBindGroup(bg *wgpu.BindGroup) {
	p.bindGroup = bg
}

// SetBindGroupLayout records the bind group layout created by GpuContext.InitBindGroup.
func (p *Provider) SetBindGroupLayout(bgl *wgpu.BindGroupLayout) {
	p.bindGroupLayout = bgl
}

// Release releases the bind group and layout and drops the buffer references. The
// buffers themselves belong to the buffer pool that handed them out; callers return
// them there separately. Safe to call more than once.
func (p *Provider) Release() {
	for i := range p.buffers {
		delete(p.buffers, i)
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
}
