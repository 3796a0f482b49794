package pipeline

import (
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
	"github.com/lumenscale/engine/interpolate"
	"github.com/lumenscale/engine/upscale"
)

// CoordinatorBuilderOption configures a Coordinator during construction, applied
// directly to the coordinator struct via the option-builder pattern.
type CoordinatorBuilderOption func(*coordinator)

// WithGpuContext supplies the GPU session the coordinator builds its upscalers and
// interpolator against. Required unless both WithUpscalerFactory and (when
// interpolation is enabled) WithInterpolator are supplied.
func WithGpuContext(ctx *gpu.Context) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.ctx = ctx
	}
}

// WithBufferPool supplies the shared buffer pool every GPU component allocates
// through.
func WithBufferPool(pool *bufferpool.Pool) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.pool = pool
	}
}

// WithUpscalerFactory overrides how the coordinator constructs its per-worker
// Upscaler instances. The factory is called once per worker at Start with the
// session's effective algorithm (post vendor fallback).
func WithUpscalerFactory(f func(alg upscale.Algorithm) upscale.Upscaler) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.newUpscaler = f
		c.customFactory = true
	}
}

// WithInterpolator supplies a FrameInterpolator instead of letting the coordinator
// construct one from its GPU context when interpolation is enabled.
func WithInterpolator(i interpolate.Interpolator) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.interp = i
	}
}
