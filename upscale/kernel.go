package upscale

import (
	"errors"
	"fmt"

	"github.com/lumenscale/engine/common"
	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bindgroup"
	"github.com/lumenscale/engine/gpu/bufferpool"
	"github.com/lumenscale/engine/gpu/pipeline"
	gpushader "github.com/lumenscale/engine/gpu/shader"
)

// dimsUniform mirrors the WGSL Dims struct every kernel shader binds at group 0,
// binding 0. Field order and widths must match shaders.go's dimsStruct exactly, since
// common.StructToBytes reinterprets this struct's raw memory as the uniform payload.
type dimsUniform struct {
	InW, InH, OutW, OutH uint32
}

// workgroups2D returns the [x, y, 1] dispatch count covering a w x h output on an 8x8
// workgroup, rounding up so every output pixel is covered.
func workgroups2D(w, h int) [3]uint32 {
	const tile = 8
	return [3]uint32{
		uint32((w + tile - 1) / tile),
		uint32((h + tile - 1) / tile),
		1,
	}
}

// kernel is a single-dispatch compute upscaler: one WGSL shader, one dims uniform, one
// input storage buffer, one output storage buffer. Nearest and Bilinear are both
// instances of this shape; Lanczos needs two passes and is implemented separately in
// lanczos.go.
type kernel struct {
	base

	wgsl        string
	pipelineKey string

	inW, inH, outW, outH int
	cfg                  Config
	initialized          bool

	pipeline *pipeline.Pipeline
	provider *bindgroup.Provider

	dimsBuf *bufferpool.Buffer
	inBuf   *bufferpool.Buffer
	outBuf  *bufferpool.Buffer
}

func newKernel(ctx *gpu.Context, pool *bufferpool.Pool, name, wgsl, pipelineKey string) *kernel {
	return &kernel{
		base:        newBase(ctx, pool, name),
		wgsl:        wgsl,
		pipelineKey: pipelineKey,
	}
}

func (k *kernel) Initialize(inW, inH, outW, outH int, cfg Config) error {
	if inW <= 0 || inH <= 0 || outW <= 0 || outH <= 0 {
		return fmt.Errorf("upscale: %w: in=%dx%d out=%dx%d", frame.ErrInvalidDimensions, inW, inH, outW, outH)
	}

	k.base.applyConfig(cfg)

	if k.initialized && k.inW == inW && k.inH == inH && k.outW == outW && k.outH == outH {
		return nil
	}
	if k.initialized {
		k.releaseBuffers()
	}

	k.inW, k.inH, k.outW, k.outH, k.cfg = inW, inH, outW, outH, cfg

	if k.pipeline == nil {
		s := gpushader.NewFromSource(k.pipelineKey, k.wgsl)
		p := pipeline.New(k.pipelineKey, s)
		if err := k.ctx.RegisterComputePipeline(p); err != nil {
			return fmt.Errorf("upscale: %s: %w", k.name, err)
		}
		k.pipeline = p
	}

	// An out-of-VRAM allocation is recoverable: evict pooled-but-unused buffers
	// and retry once before giving up.
	if err := k.allocate(); err != nil {
		if !errors.Is(err, frame.ErrOutOfVram) {
			return err
		}
		k.pool.Cleanup(bufferpool.Shrink)
		if err := k.allocate(); err != nil {
			return err
		}
	}

	k.initialized = true
	return nil
}

func (k *kernel) allocate() error {
	dims := dimsUniform{InW: uint32(k.inW), InH: uint32(k.inH), OutW: uint32(k.outW), OutH: uint32(k.outH)}

	dimsBuf, err := k.pool.Acquire(bufferpool.Uniform, uint64(len(common.StructToBytes(&dims))))
	if err != nil {
		return fmt.Errorf("upscale: %s: acquiring dims uniform: %w", k.name, err)
	}
	k.ctx.WriteBuffer(dimsBuf.GPU(), 0, common.StructToBytes(&dims))

	inBuf, err := k.pool.Acquire(bufferpool.Storage, uint64(4*k.inW*k.inH))
	if err != nil {
		k.pool.Release(dimsBuf)
		return fmt.Errorf("upscale: %s: acquiring input buffer: %w", k.name, err)
	}

	outBuf, err := k.pool.Acquire(bufferpool.Storage, uint64(4*k.outW*k.outH))
	if err != nil {
		k.pool.Release(dimsBuf)
		k.pool.Release(inBuf)
		return fmt.Errorf("upscale: %s: acquiring output buffer: %w", k.name, err)
	}

	provider := bindgroup.New(k.name)
	provider.SetBuffer(0, dimsBuf.GPU())
	provider.SetBuffer(1, inBuf.GPU())
	provider.SetBuffer(2, outBuf.GPU())
	descriptors := k.pipeline.Shader().BindGroupLayoutDescriptors()
	if err := k.ctx.InitBindGroup(provider, descriptors[0]); err != nil {
		k.pool.Release(dimsBuf)
		k.pool.Release(inBuf)
		k.pool.Release(outBuf)
		return fmt.Errorf("upscale: %s: %w", k.name, err)
	}

	k.dimsBuf, k.inBuf, k.outBuf, k.provider = dimsBuf, inBuf, outBuf, provider
	return nil
}

func (k *kernel) releaseBuffers() {
	if k.provider != nil {
		k.provider.Release()
		k.provider = nil
	}
	if k.dimsBuf != nil {
		k.pool.Release(k.dimsBuf)
		k.dimsBuf = nil
	}
	if k.inBuf != nil {
		k.pool.Release(k.inBuf)
		k.inBuf = nil
	}
	if k.outBuf != nil {
		k.pool.Release(k.outBuf)
		k.outBuf = nil
	}
}

func (k *kernel) Upscale(raw *frame.Raw) ([]byte, error) {
	if !k.initialized {
		return nil, fmt.Errorf("upscale: %s: Upscale called before Initialize", k.name)
	}
	if raw.Width != k.inW || raw.Height != k.inH {
		return nil, fmt.Errorf("upscale: %s: %w: raw is %dx%d, initialized for %dx%d",
			k.name, frame.ErrInvalidDimensions, raw.Width, raw.Height, k.inW, k.inH)
	}

	return k.dispatch(raw)
}

func (k *kernel) dispatch(raw *frame.Raw) ([]byte, error) {
	k.ctx.WriteBuffer(k.inBuf.GPU(), 0, raw.Pixels)

	if err := k.ctx.BeginComputeFrame(); err != nil {
		return nil, fmt.Errorf("upscale: %s: %w", k.name, err)
	}
	wg := workgroups2D(k.outW, k.outH)
	k.ctx.DispatchCompute(k.pipeline, k.provider, wg)
	k.ctx.EndComputeFrame()

	size := uint64(4 * k.outW * k.outH)
	return k.ctx.ReadBuffer(k.outBuf.GPU(), 0, size)
}

func (k *kernel) Close() {
	k.releaseBuffers()
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
	k.initialized = false
}
