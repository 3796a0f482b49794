// Package upscale implements the Upscaler capability: GPU algorithms that turn a
// captured RawFrame into RGBA8 output at a target resolution. Nearest, Bilinear, and
// Lanczos are WGSL compute kernels dispatched through gpu.Context; VendorNeural is a
// stand-in that runs the bilinear kernel and fails with ErrVendorUnavailable on
// adapters without fp16 storage support.
package upscale

import (
	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
)

// Tier is the internal quality tier an Upscaler may step between when adaptive
// quality is enabled.
type Tier int

const (
	Ultra Tier = iota
	Quality
	Balanced
	Performance
)

func (t Tier) String() string {
	switch t {
	case Ultra:
		return "Ultra"
	case Quality:
		return "Quality"
	case Balanced:
		return "Balanced"
	case Performance:
		return "Performance"
	default:
		return "Unknown"
	}
}

// stepDown returns the next lower tier, clamping at Performance.
func (t Tier) stepDown() Tier {
	if t >= Performance {
		return Performance
	}
	return t + 1
}

// stepUp returns the next higher tier, clamping at Ultra.
func (t Tier) stepUp() Tier {
	if t <= Ultra {
		return Ultra
	}
	return t - 1
}

// Algorithm selects which Upscaler implementation to use.
type Algorithm int

const (
	Nearest Algorithm = iota
	Bilinear
	Lanczos
	VendorNeural
)

func (a Algorithm) String() string {
	switch a {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case Lanczos:
		return "lanczos"
	case VendorNeural:
		return "vendor-neural"
	default:
		return "unknown"
	}
}

// Config mirrors UpscalerConfig: the tunables every Upscaler implementation is
// constructed and re-initialized with.
type Config struct {
	Quality          Tier
	Algorithm        Algorithm
	InputW, InputH   int
	OutputW, OutputH int
	MemoryStrategy   bufferpool.Strategy
	AdaptiveQuality  bool
	// TargetFPS sets the adaptive-quality frame budget (1000/TargetFPS ms). Defaults
	// to 60 when zero.
	TargetFPS float64
}

// Upscaler is the capability every algorithm implements.
type Upscaler interface {
	// Initialize creates or reuses GPU pipelines and buffers sized for these
	// dimensions. Idempotent when called with identical arguments; re-initializing
	// with different sizes releases the prior sizing's pooled buffers.
	Initialize(inW, inH, outW, outH int, cfg Config) error

	// Upscale produces RGBA8 bytes of size 4*outW*outH from raw.
	Upscale(raw *frame.Raw) ([]byte, error)

	// Name returns a stable identifier used in Telemetry.
	Name() string

	// Close releases every GPU resource this upscaler owns.
	Close()
}

// MemoryStrategySetter is the optional capability an Upscaler may implement to accept
// runtime memory-strategy changes. Checked via a type assertion against the concrete
// Upscaler value, the explicit-capability-interface idiom over duck typing.
type MemoryStrategySetter interface {
	SetMemoryStrategy(bufferpool.Strategy)
}

// AdaptiveQualitySetter is the optional capability to toggle adaptive quality stepping
// at runtime.
type AdaptiveQualitySetter interface {
	SetAdaptiveQuality(bool)
}

// ForceCleanuper is the optional capability to force an immediate pool cleanup,
// equivalent to BufferPool.cleanup(Shrink).
type ForceCleanuper interface {
	ForceCleanup()
}

// VramStatsGetter is the optional capability to report this upscaler's own buffer
// pool's VRAM accounting.
type VramStatsGetter interface {
	GetVramStats() gpu.VramStats
}

// GPUInfo is the adapter/pool summary get_gpu_info() exposes.
type GPUInfo struct {
	AdapterName      string
	Backend          string
	AllocatedBuffers int
	AllocatedBytes   int64
}

// GPUInfoGetter is the optional capability to report adapter and pool allocation
// summary information.
type GPUInfoGetter interface {
	GetGPUInfo() GPUInfo
}

// GPUStatsUpdater is the optional capability to refresh any internally cached GPU
// statistics before the next GetGPUInfo/GetVramStats call.
type GPUStatsUpdater interface {
	UpdateGPUStats()
}

// GPUActivationForcer is the optional capability to pre-warm a lazily-initialized GPU
// session (a no-op hint on upscalers that initialize eagerly).
type GPUActivationForcer interface {
	ForceGPUActivation()
}

// RecordFrameTime feeds one frame's end-to-end time to an Upscaler's adaptive-quality
// stepper, when it implements the capability. The coordinator calls this after every
// delivered frame; algorithms without adaptive quality (or with it disabled) ignore
// the call.
type FrameTimeRecorder interface {
	RecordFrameTime(ms float64)
}

// SelectBest returns the highest-quality implementation the adapter supports: prefer
// VendorNeural when available and cfg.Quality is Ultra or Quality, otherwise Lanczos.
// Every adapter gpu.NewContext returns supports the plain compute + storage buffer
// bindings Lanczos/Bilinear/Nearest all need (they are WebGPU baseline), so
// Lanczos (the highest quality of the three) is always a valid fallback; Bilinear and
// Nearest remain available for a caller to pick explicitly for their lower GPU cost.
func SelectBest(ctx *gpu.Context, pool *bufferpool.Pool, cfg Config) Upscaler {
	if cfg.Quality == Ultra || cfg.Quality == Quality {
		if vn := newVendorNeural(ctx, pool); vn.supported() {
			return vn
		}
	}
	return NewLanczos(ctx, pool)
}
