package upscale

import (
	"sync"

	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
)

// base holds the bookkeeping shared by every Upscaler implementation: the shared GPU
// session and buffer pool, the current memory strategy, and the adaptive-quality EWMA
// stepper. Embedded by every concrete algorithm so they all get the optional
// capabilities (MemoryStrategySetter, AdaptiveQualitySetter, ...) for free.
type base struct {
	mu *sync.Mutex

	ctx  *gpu.Context
	pool *bufferpool.Pool
	name string

	memStrategy     bufferpool.Strategy
	adaptiveQuality bool
	targetFPS       float64

	tier Tier

	haveEwma          bool
	ewmaMs            float64
	overBudgetStreak  int
	underBudgetStreak int
}

func newBase(ctx *gpu.Context, pool *bufferpool.Pool, name string) base {
	return base{
		mu:        &sync.Mutex{},
		ctx:       ctx,
		pool:      pool,
		name:      name,
		targetFPS: 60,
	}
}

func (b *base) Name() string { return b.name }

// applyConfig adopts cfg's quality/strategy/adaptive settings. Called from
// Initialize so a re-initialize with a new Config picks up its tuning knobs.
func (b *base) applyConfig(cfg Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tier = cfg.Quality
	b.memStrategy = cfg.MemoryStrategy
	b.adaptiveQuality = cfg.AdaptiveQuality
	if cfg.TargetFPS > 0 {
		b.targetFPS = cfg.TargetFPS
	} else if b.targetFPS == 0 {
		b.targetFPS = 60
	}
	b.pool.Reconfigure(cfg.MemoryStrategy)
}

// SetMemoryStrategy implements MemoryStrategySetter.
func (b *base) SetMemoryStrategy(s bufferpool.Strategy) {
	b.mu.Lock()
	b.memStrategy = s
	b.mu.Unlock()
	b.pool.Reconfigure(s)
}

// SetAdaptiveQuality implements AdaptiveQualitySetter.
func (b *base) SetAdaptiveQuality(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adaptiveQuality = v
	if !v {
		b.overBudgetStreak = 0
		b.underBudgetStreak = 0
	}
}

// ForceCleanup implements ForceCleanuper: an alias for BufferPool.cleanup(Shrink).
func (b *base) ForceCleanup() {
	b.pool.Cleanup(bufferpool.Shrink)
}

// GetVramStats implements VramStatsGetter.
func (b *base) GetVramStats() gpu.VramStats {
	return b.ctx.VramStats()
}

// GetGPUInfo implements GPUInfoGetter.
func (b *base) GetGPUInfo() GPUInfo {
	info := b.ctx.Probe()
	return GPUInfo{
		AdapterName:      info.Name,
		Backend:          info.Backend,
		AllocatedBuffers: 0, // bufferpool does not track a live-buffer count, only bytes
		AllocatedBytes:   b.pool.TrackedBytes(),
	}
}

// UpdateGPUStats implements GPUStatsUpdater. A no-op hint: this engine's VRAM/adapter
// accounting is always live (VramStats/GetGPUInfo read current state directly), there
// is nothing cached to refresh.
func (b *base) UpdateGPUStats() {}

// ForceGPUActivation implements GPUActivationForcer. A no-op hint: every Upscaler in
// this package initializes its GPU pipeline eagerly in Initialize, so there is no
// lazy session to pre-warm.
func (b *base) ForceGPUActivation() {}

// CurrentTier returns the quality tier adaptive stepping has settled on.
func (b *base) CurrentTier() Tier {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tier
}

// budgetMs returns the per-frame time budget in milliseconds: 1000/targetFPS.
func (b *base) budgetMs() float64 {
	fps := b.targetFPS
	if fps <= 0 {
		fps = 60
	}
	return 1000.0 / fps
}

// RecordFrameTime implements FrameTimeRecorder: feeds one frame's end-to-end time into
// the adaptive-quality EWMA. Four consecutive frames over budget steps the tier down
// once; sixteen consecutive frames under 70% of budget steps it back up once. Each step
// resets both streak counters so the cooldown restarts cleanly.
func (b *base) RecordFrameTime(ms float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.adaptiveQuality {
		return
	}

	const alpha = 0.2
	if !b.haveEwma {
		b.ewmaMs = ms
		b.haveEwma = true
	} else {
		b.ewmaMs = alpha*ms + (1-alpha)*b.ewmaMs
	}

	budget := b.budgetMs()
	switch {
	case b.ewmaMs > budget:
		b.overBudgetStreak++
		b.underBudgetStreak = 0
		if b.overBudgetStreak >= 4 {
			b.tier = b.tier.stepDown()
			b.overBudgetStreak = 0
		}
	case b.ewmaMs < 0.7*budget:
		b.underBudgetStreak++
		b.overBudgetStreak = 0
		if b.underBudgetStreak >= 16 {
			b.tier = b.tier.stepUp()
			b.underBudgetStreak = 0
		}
	default:
		b.overBudgetStreak = 0
		b.underBudgetStreak = 0
	}
}
