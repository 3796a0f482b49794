package upscale

import (
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
)

// NewBilinear returns the Bilinear upscaler: a 2x2 weighted average with weights equal
// to the fractional source coordinates.
func NewBilinear(ctx *gpu.Context, pool *bufferpool.Pool) Upscaler {
	k := newKernel(ctx, pool, "bilinear", bilinearWGSL, "upscale-bilinear")
	return k
}
