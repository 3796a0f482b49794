// Package interpolate implements the frame interpolator: given two upscaled frames of
// identical dimensions and a parameter t in (0,1), it synthesizes a frame approximating
// the scene at fractional time t between them via a small-window motion search and
// warp-then-blend compute pass.
package interpolate

import (
	"errors"
	"fmt"
	"time"

	"github.com/lumenscale/engine/common"
	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bindgroup"
	"github.com/lumenscale/engine/gpu/bufferpool"
	"github.com/lumenscale/engine/gpu/pipeline"
	gpushader "github.com/lumenscale/engine/gpu/shader"
)

// DefaultSearchRadius is the SAD motion-search half-width used when no explicit radius
// is configured: a 7x7 candidate window around each pixel.
const DefaultSearchRadius = 3

// dimsUniform mirrors the WGSL Dims struct in shader.go.
type dimsUniform struct {
	Width, Height uint32
	T             float32
	SearchRadius  uint32
}

// Interpolator synthesizes in-between frames. It is stateless across calls: the two
// frames to interpolate between are always passed explicitly. The pipeline coordinator
// owns the retained previous-frame slot, not the interpolator itself, so a dimension
// mismatch here never has any retained state to corrupt.
type Interpolator interface {
	// Interpolate produces a frame approximating the image at fractional time t between
	// a and b. Fails with frame.ErrDimensionMismatch if a and b differ in width/height.
	Interpolate(a, b *frame.Upscaled, t float32) (*frame.Interpolated, error)

	// Name returns a stable identifier for telemetry.
	Name() string

	// LastGPUMs returns the most recent dispatch's GPU-side duration, or nil when the
	// adapter doesn't support timestamp queries.
	LastGPUMs() *float64

	// Close releases every GPU resource this interpolator owns.
	Close()
}

// motionInterpolator is the only Interpolator implementation: a single compute pass
// doing per-pixel SAD motion search, warp, and blend.
type motionInterpolator struct {
	ctx  *gpu.Context
	pool *bufferpool.Pool

	searchRadius uint32

	pipeline *pipeline.Pipeline

	width, height int
	provider      *bindgroup.Provider
	dimsBuf       *bufferpool.Buffer
	aBuf, bBuf    *bufferpool.Buffer
	outBuf        *bufferpool.Buffer

	lastGPUMs *float64
}

// InterpolatorOption configures a motionInterpolator during construction.
type InterpolatorOption func(*motionInterpolator)

// WithSearchRadius overrides DefaultSearchRadius.
func WithSearchRadius(r int) InterpolatorOption {
	return func(m *motionInterpolator) {
		if r > 0 {
			m.searchRadius = uint32(r)
		}
	}
}

// New creates a FrameInterpolator backed by ctx/pool. The compute pipeline is compiled
// lazily on the first Interpolate call that reaches the GPU; its buffers are
// reallocated whenever the frame size changes.
func New(ctx *gpu.Context, pool *bufferpool.Pool, opts ...InterpolatorOption) Interpolator {
	m := &motionInterpolator{
		ctx:          ctx,
		pool:         pool,
		searchRadius: DefaultSearchRadius,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *motionInterpolator) Name() string { return "motion-interp" }

func (m *motionInterpolator) LastGPUMs() *float64 { return m.lastGPUMs }

func (m *motionInterpolator) Interpolate(a, b *frame.Upscaled, t float32) (*frame.Interpolated, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return nil, fmt.Errorf("interpolate: %w: a is %dx%d, b is %dx%d",
			frame.ErrDimensionMismatch, a.Width, a.Height, b.Width, b.Height)
	}

	if t <= 0 {
		return &frame.Interpolated{
			Pixels: append([]byte(nil), a.Pixels...),
			Width:  a.Width, Height: a.Height,
			Prev: a.SourceSequence, Next: b.SourceSequence, T: t,
		}, nil
	}
	if t >= 1 {
		return &frame.Interpolated{
			Pixels: append([]byte(nil), b.Pixels...),
			Width:  b.Width, Height: b.Height,
			Prev: a.SourceSequence, Next: b.SourceSequence, T: t,
		}, nil
	}

	// An out-of-VRAM allocation is recoverable: evict pooled-but-unused buffers
	// and retry once before giving up.
	if err := m.ensureAllocated(a.Width, a.Height); err != nil {
		if !errors.Is(err, frame.ErrOutOfVram) {
			return nil, err
		}
		m.pool.Cleanup(bufferpool.Shrink)
		if err := m.ensureAllocated(a.Width, a.Height); err != nil {
			return nil, err
		}
	}

	out, err := m.dispatch(a, b, t)
	if err != nil {
		return nil, err
	}

	return &frame.Interpolated{
		Pixels: out,
		Width:  a.Width, Height: a.Height,
		Prev: a.SourceSequence, Next: b.SourceSequence, T: t,
	}, nil
}

func (m *motionInterpolator) ensureAllocated(w, h int) error {
	if m.width == w && m.height == h && m.provider != nil {
		return nil
	}
	if m.provider != nil {
		m.releaseBuffers()
	}
	m.width, m.height = w, h

	if m.pipeline == nil {
		s := gpushader.NewFromSource("interpolate-motion", motionWGSL)
		p := pipeline.New("interpolate-motion", s)
		if err := m.ctx.RegisterComputePipeline(p); err != nil {
			return fmt.Errorf("interpolate: %w", err)
		}
		m.pipeline = p
	}

	dims := dimsUniform{Width: uint32(w), Height: uint32(h), T: 0, SearchRadius: m.searchRadius}
	dimsBuf, err := m.pool.Acquire(bufferpool.Uniform, uint64(len(common.StructToBytes(&dims))))
	if err != nil {
		return fmt.Errorf("interpolate: acquiring dims uniform: %w", err)
	}

	size := uint64(4 * w * h)
	aBuf, err := m.pool.Acquire(bufferpool.Storage, size)
	if err != nil {
		m.pool.Release(dimsBuf)
		return fmt.Errorf("interpolate: acquiring frame_a buffer: %w", err)
	}
	bBuf, err := m.pool.Acquire(bufferpool.Storage, size)
	if err != nil {
		m.pool.Release(dimsBuf)
		m.pool.Release(aBuf)
		return fmt.Errorf("interpolate: acquiring frame_b buffer: %w", err)
	}
	outBuf, err := m.pool.Acquire(bufferpool.Storage, size)
	if err != nil {
		m.pool.Release(dimsBuf)
		m.pool.Release(aBuf)
		m.pool.Release(bBuf)
		return fmt.Errorf("interpolate: acquiring frame_out buffer: %w", err)
	}

	provider := bindgroup.New("interpolate-motion")
	provider.SetBuffer(0, dimsBuf.GPU())
	provider.SetBuffer(1, aBuf.GPU())
	provider.SetBuffer(2, bBuf.GPU())
	provider.SetBuffer(3, outBuf.GPU())
	if err := m.ctx.InitBindGroup(provider, m.pipeline.Shader().BindGroupLayoutDescriptors()[0]); err != nil {
		m.pool.Release(dimsBuf)
		m.pool.Release(aBuf)
		m.pool.Release(bBuf)
		m.pool.Release(outBuf)
		return fmt.Errorf("interpolate: %w", err)
	}

	m.dimsBuf, m.aBuf, m.bBuf, m.outBuf, m.provider = dimsBuf, aBuf, bBuf, outBuf, provider
	return nil
}

func (m *motionInterpolator) releaseBuffers() {
	if m.provider != nil {
		m.provider.Release()
		m.provider = nil
	}
	for _, b := range []**bufferpool.Buffer{&m.dimsBuf, &m.aBuf, &m.bBuf, &m.outBuf} {
		if *b != nil {
			m.pool.Release(*b)
			*b = nil
		}
	}
}

func (m *motionInterpolator) dispatch(a, b *frame.Upscaled, t float32) ([]byte, error) {
	dims := dimsUniform{Width: uint32(m.width), Height: uint32(m.height), T: t, SearchRadius: m.searchRadius}
	m.ctx.WriteBuffer(m.dimsBuf.GPU(), 0, common.StructToBytes(&dims))
	m.ctx.WriteBuffer(m.aBuf.GPU(), 0, a.Pixels)
	m.ctx.WriteBuffer(m.bBuf.GPU(), 0, b.Pixels)

	timed := m.ctx.Supports(gpu.FeatureTimestampQuery)
	var start time.Time
	if timed {
		start = time.Now()
	}

	if err := m.ctx.BeginComputeFrame(); err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}
	const tile = 32
	const rows = 8
	wgX := uint32((m.width + tile - 1) / tile)
	wgY := uint32((m.height + rows - 1) / rows)
	m.ctx.DispatchCompute(m.pipeline, m.provider, [3]uint32{wgX, wgY, 1})
	m.ctx.EndComputeFrame()

	out, err := m.ctx.ReadBuffer(m.outBuf.GPU(), 0, uint64(4*m.width*m.height))
	if err != nil {
		return nil, err
	}

	if timed {
		// No portable cross-vendor GPU timestamp-query readout exists in this binding
		// (same gap noted for gpu.Context.VramStats); this measures the CPU-observed
		// dispatch+readback wall time as a best-effort stand-in rather than a true
		// GPU-side timestamp, and is only reported at all when the adapter claims
		// timestamp-query support.
		ms := float64(time.Since(start).Microseconds()) / 1000.0
		m.lastGPUMs = &ms
	} else {
		m.lastGPUMs = nil
	}

	return out, nil
}

func (m *motionInterpolator) Close() {
	m.releaseBuffers()
	if m.pipeline != nil {
		m.pipeline.Release()
		m.pipeline = nil
	}
}

var _ Interpolator = &motionInterpolator{}
