// Package pipeline wraps a compiled WebGPU compute pipeline together with the shader
// metadata used to build it, mirroring the cached-pipeline pattern the rest of the
// engine's GPU-facing packages use.
package pipeline

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/lumenscale/engine/gpu/shader"
)

// Pipeline holds a compiled compute pipeline plus the shader it was built from. The
// shader is kept around after creation because it carries the workgroup size and bind
// group variable names a caller needs at dispatch time.
type Pipeline struct {
	key    string
	shader shader.Shader

	computePipeline *wgpu.ComputePipeline
}

// New creates an uninitialized Pipeline for the given key and shader. Call
// GpuContext.RegisterComputePipeline to compile it before dispatching.
func New(key string, s shader.Shader) *Pipeline {
	return &Pipeline{key: key, shader: s}
}

// Key returns the pipeline's unique identifier, used for caching and pipeline labels.
func (p *Pipeline) Key() string {
	return p.key
}

// Shader returns the compute shader this pipeline was built from.
func (p *Pipeline) Shader() shader.Shader {
	return p.shader
}

// ComputePipeline returns the compiled wgpu compute pipeline, or nil before
// RegisterComputePipeline has run.
func (p *Pipeline) ComputePipeline() *wgpu.ComputePipeline {
	return p.computePipeline
}

// SetComputePipeline records the compiled pipeline. Called by GpuContext.
func (p *Pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}

// Release releases the underlying compute pipeline GPU object.
func (p *Pipeline) Release() {
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
}
