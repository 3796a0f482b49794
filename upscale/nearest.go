package upscale

import (
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
)

// NewNearest returns the Nearest upscaler: point sampling at
// floor((i+0.5)*in/out) per axis, pixel-perfect for integer scales.
func NewNearest(ctx *gpu.Context, pool *bufferpool.Pool) Upscaler {
	k := newKernel(ctx, pool, "nearest", nearestWGSL, "upscale-nearest")
	return k
}
