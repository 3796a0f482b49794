package upscale

import (
	"fmt"

	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
)

// vendorNeural stands in for the proprietary vendor-neural upscaler variant: this
// engine does not redefine a vendor SDK's internal algorithm, only how it plugs into
// the pipeline. It delegates its actual compute dispatch to the same kernel mechanics
// every other algorithm uses, gated behind a capability check against the adapter
// (fp16 storage, the feature a real neural inference pipeline needs for its weight
// buffers), so Initialize fails fast exactly like the adapter/device request path
// does for a missing required limit.
type vendorNeural struct {
	*kernel
}

// newVendorNeural constructs the VendorNeural upscaler. Use supported() before relying
// on it; construction itself never touches the GPU.
func newVendorNeural(ctx *gpu.Context, pool *bufferpool.Pool) *vendorNeural {
	return &vendorNeural{
		kernel: newKernel(ctx, pool, "vendor-neural", bilinearWGSL, "upscale-vendor-neural"),
	}
}

// NewVendorNeural constructs the VendorNeural upscaler for callers outside this
// package (the pipeline coordinator's explicit-algorithm selection path). Initialize
// fails with ErrVendorUnavailable when unsupported; the caller is expected to fall back
// to another Upscaler in that case.
func NewVendorNeural(ctx *gpu.Context, pool *bufferpool.Pool) Upscaler {
	return newVendorNeural(ctx, pool)
}

// supported reports whether the active adapter advertises the feature this engine
// requires of a vendor-neural backend.
func (v *vendorNeural) supported() bool {
	return v.ctx.Supports(gpu.FeatureFP16Storage)
}

// Initialize fails with ErrVendorUnavailable when the adapter lacks the required
// feature; the pipeline coordinator must then fall back to SelectBest's next choice.
func (v *vendorNeural) Initialize(inW, inH, outW, outH int, cfg Config) error {
	if !v.supported() {
		return fmt.Errorf("upscale: vendor-neural: %w", frame.ErrVendorUnavailable)
	}
	return v.kernel.Initialize(inW, inH, outW, outH, cfg)
}

var _ Upscaler = &vendorNeural{}
