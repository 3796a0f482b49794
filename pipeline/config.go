package pipeline

import (
	"fmt"

	"github.com/lumenscale/engine/common"
	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/upscale"
)

// Config is the coordinator's public configuration surface.
type Config struct {
	Upscale upscale.Config
	// Scale is the output/input size ratio in [1.0, 4.0]. When set, output
	// dimensions are derived per-frame as round(in * Scale); when zero, the explicit
	// Upscale.OutputW/OutputH are used instead.
	Scale               float64
	EnableInterpolation bool
	// TargetFPS is the budget adaptive quality steps against. Defaults to 60 when zero.
	TargetFPS uint32
	// WorkerCount is the number of parallel upscale workers, 1..16. Defaults to 1.
	WorkerCount int
	// GracePeriodMs bounds how long Stop() waits for in-flight GPU work to finish
	// before discarding remaining buffers. Defaults to 2000ms.
	GracePeriodMs int
}

// Validate checks Config's bounds and fills in defaults. Configuration errors are
// reported synchronously from here so they never reach Start.
func (c *Config) Validate() error {
	c.WorkerCount = common.Coalesce(c.WorkerCount, 1)
	if c.WorkerCount < 1 || c.WorkerCount > 16 {
		return fmt.Errorf("pipeline: %w: worker_count %d outside [1,16]", frame.ErrInvalidDimensions, c.WorkerCount)
	}
	if c.Scale != 0 && (c.Scale < 1.0 || c.Scale > 4.0) {
		return fmt.Errorf("pipeline: %w: scale %v outside [1.0, 4.0]", frame.ErrInvalidDimensions, c.Scale)
	}
	if c.Scale == 0 && (c.Upscale.OutputW <= 0 || c.Upscale.OutputH <= 0) {
		return fmt.Errorf("pipeline: %w: either scale or explicit output dims required", frame.ErrInvalidDimensions)
	}
	c.TargetFPS = common.Coalesce(c.TargetFPS, 60)
	c.Upscale.TargetFPS = common.Coalesce(c.Upscale.TargetFPS, float64(c.TargetFPS))
	if c.GracePeriodMs <= 0 {
		c.GracePeriodMs = 2000
	}
	return nil
}

// Sink receives output frames on the coordinator's delivery thread. Implementations
// must not call Stop on the coordinator that invoked them, and must not block
// indefinitely: the delivery thread, and therefore the whole pipeline, stalls for as
// long as the callback runs.
type Sink func(frame.Output)
