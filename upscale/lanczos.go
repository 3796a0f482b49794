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

// lanczos implements a separable 6-tap Lanczos-3 resample as two compute passes: a
// horizontal pass producing an out_w x in_h intermediate, then a vertical pass
// producing the final out_w x out_h image. Boundary taps clamp to the source edge.
type lanczos struct {
	base

	inW, inH, outW, outH int
	initialized          bool

	hPipeline, vPipeline *pipeline.Pipeline
	hProvider, vProvider *bindgroup.Provider

	dimsBuf *bufferpool.Buffer
	inBuf   *bufferpool.Buffer
	midBuf  *bufferpool.Buffer
	outBuf  *bufferpool.Buffer
}

// NewLanczos returns the Lanczos upscaler.
func NewLanczos(ctx *gpu.Context, pool *bufferpool.Pool) Upscaler {
	return &lanczos{base: newBase(ctx, pool, "lanczos")}
}

func (l *lanczos) Initialize(inW, inH, outW, outH int, cfg Config) error {
	if inW <= 0 || inH <= 0 || outW <= 0 || outH <= 0 {
		return fmt.Errorf("upscale: %w: in=%dx%d out=%dx%d", frame.ErrInvalidDimensions, inW, inH, outW, outH)
	}

	l.base.applyConfig(cfg)

	if l.initialized && l.inW == inW && l.inH == inH && l.outW == outW && l.outH == outH {
		return nil
	}
	if l.initialized {
		l.releaseBuffers()
	}
	l.inW, l.inH, l.outW, l.outH = inW, inH, outW, outH

	if l.hPipeline == nil {
		hs := gpushader.NewFromSource("upscale-lanczos-h", lanczosHWGSL)
		hp := pipeline.New("upscale-lanczos-h", hs)
		if err := l.ctx.RegisterComputePipeline(hp); err != nil {
			return fmt.Errorf("upscale: lanczos: %w", err)
		}
		l.hPipeline = hp

		vs := gpushader.NewFromSource("upscale-lanczos-v", lanczosVWGSL)
		vp := pipeline.New("upscale-lanczos-v", vs)
		if err := l.ctx.RegisterComputePipeline(vp); err != nil {
			return fmt.Errorf("upscale: lanczos: %w", err)
		}
		l.vPipeline = vp
	}

	// An out-of-VRAM allocation is recoverable: evict pooled-but-unused buffers
	// and retry once before giving up.
	if err := l.allocate(); err != nil {
		if !errors.Is(err, frame.ErrOutOfVram) {
			return err
		}
		l.pool.Cleanup(bufferpool.Shrink)
		if err := l.allocate(); err != nil {
			return err
		}
	}
	l.initialized = true
	return nil
}

func (l *lanczos) allocate() error {
	dims := dimsUniform{InW: uint32(l.inW), InH: uint32(l.inH), OutW: uint32(l.outW), OutH: uint32(l.outH)}

	dimsBuf, err := l.pool.Acquire(bufferpool.Uniform, uint64(len(common.StructToBytes(&dims))))
	if err != nil {
		return fmt.Errorf("upscale: lanczos: acquiring dims uniform: %w", err)
	}
	l.ctx.WriteBuffer(dimsBuf.GPU(), 0, common.StructToBytes(&dims))

	inBuf, err := l.pool.Acquire(bufferpool.Storage, uint64(4*l.inW*l.inH))
	if err != nil {
		l.pool.Release(dimsBuf)
		return fmt.Errorf("upscale: lanczos: acquiring input buffer: %w", err)
	}

	midBuf, err := l.pool.Acquire(bufferpool.Storage, uint64(4*l.outW*l.inH))
	if err != nil {
		l.pool.Release(dimsBuf)
		l.pool.Release(inBuf)
		return fmt.Errorf("upscale: lanczos: acquiring intermediate buffer: %w", err)
	}

	outBuf, err := l.pool.Acquire(bufferpool.Storage, uint64(4*l.outW*l.outH))
	if err != nil {
		l.pool.Release(dimsBuf)
		l.pool.Release(inBuf)
		l.pool.Release(midBuf)
		return fmt.Errorf("upscale: lanczos: acquiring output buffer: %w", err)
	}

	hProvider := bindgroup.New("lanczos-h")
	hProvider.SetBuffer(0, dimsBuf.GPU())
	hProvider.SetBuffer(1, inBuf.GPU())
	hProvider.SetBuffer(2, midBuf.GPU())
	if err := l.ctx.InitBindGroup(hProvider, l.hPipeline.Shader().BindGroupLayoutDescriptors()[0]); err != nil {
		l.pool.Release(dimsBuf)
		l.pool.Release(inBuf)
		l.pool.Release(midBuf)
		l.pool.Release(outBuf)
		return fmt.Errorf("upscale: lanczos: %w", err)
	}

	vProvider := bindgroup.New("lanczos-v")
	vProvider.SetBuffer(0, dimsBuf.GPU())
	vProvider.SetBuffer(1, midBuf.GPU())
	vProvider.SetBuffer(2, outBuf.GPU())
	if err := l.ctx.InitBindGroup(vProvider, l.vPipeline.Shader().BindGroupLayoutDescriptors()[0]); err != nil {
		hProvider.Release()
		l.pool.Release(dimsBuf)
		l.pool.Release(inBuf)
		l.pool.Release(midBuf)
		l.pool.Release(outBuf)
		return fmt.Errorf("upscale: lanczos: %w", err)
	}

	l.dimsBuf, l.inBuf, l.midBuf, l.outBuf = dimsBuf, inBuf, midBuf, outBuf
	l.hProvider, l.vProvider = hProvider, vProvider
	return nil
}

func (l *lanczos) releaseBuffers() {
	if l.hProvider != nil {
		l.hProvider.Release()
		l.hProvider = nil
	}
	if l.vProvider != nil {
		l.vProvider.Release()
		l.vProvider = nil
	}
	for _, b := range []**bufferpool.Buffer{&l.dimsBuf, &l.inBuf, &l.midBuf, &l.outBuf} {
		if *b != nil {
			l.pool.Release(*b)
			*b = nil
		}
	}
}

func (l *lanczos) Upscale(raw *frame.Raw) ([]byte, error) {
	if !l.initialized {
		return nil, fmt.Errorf("upscale: lanczos: Upscale called before Initialize")
	}
	if raw.Width != l.inW || raw.Height != l.inH {
		return nil, fmt.Errorf("upscale: lanczos: %w: raw is %dx%d, initialized for %dx%d",
			frame.ErrInvalidDimensions, raw.Width, raw.Height, l.inW, l.inH)
	}

	return l.dispatch(raw)
}

func (l *lanczos) dispatch(raw *frame.Raw) ([]byte, error) {
	l.ctx.WriteBuffer(l.inBuf.GPU(), 0, raw.Pixels)

	if err := l.ctx.BeginComputeFrame(); err != nil {
		return nil, fmt.Errorf("upscale: lanczos: %w", err)
	}
	l.ctx.DispatchCompute(l.hPipeline, l.hProvider, workgroups2D(l.outW, l.inH))
	l.ctx.DispatchCompute(l.vPipeline, l.vProvider, workgroups2D(l.outW, l.outH))
	l.ctx.EndComputeFrame()

	size := uint64(4 * l.outW * l.outH)
	return l.ctx.ReadBuffer(l.outBuf.GPU(), 0, size)
}

func (l *lanczos) Close() {
	l.releaseBuffers()
	if l.hPipeline != nil {
		l.hPipeline.Release()
		l.hPipeline = nil
	}
	if l.vPipeline != nil {
		l.vPipeline.Release()
		l.vPipeline = nil
	}
	l.initialized = false
}

var _ Upscaler = &lanczos{}
