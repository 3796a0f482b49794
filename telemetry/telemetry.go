// Package telemetry publishes pipeline performance statistics to observers via a
// lock-free swap of an immutable snapshot pointer, so a slow or stalled subscriber
// never blocks the pipeline. Two independent FPS counters track capture cadence and
// delivery cadence separately; a rolling window carries min/max/EWMA frame times.
package telemetry

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenscale/engine/gpu"
)

// DefaultWindow is the number of recent frame times kept for the rolling min/max/EWMA
// statistics.
const DefaultWindow = 120

// Snapshot is an immutable view of the pipeline's current performance state. A new
// Snapshot is allocated and swapped in on every sink emission; subscribers that already
// hold a pointer to an older Snapshot keep reading valid (if stale) data.
type Snapshot struct {
	BaseFPS     float64
	ScaledFPS   float64
	LastFrameMs float64
	LastGPUMs   *float64

	EwmaFrameMs float64
	MinFrameMs  float64
	MaxFrameMs  float64

	DroppedFramesCount uint64

	UpscalerName       string
	CurrentQualityTier string

	Vram       gpu.VramStats
	PeakVramMB float64

	// VendorUnavailableWarnings counts vendor-neural fallbacks, reported as
	// non-fatal warnings rather than errors.
	VendorUnavailableWarnings uint64
	// DimensionMismatchCount counts interpolator dimension mismatches; the frames
	// they occurred on were emitted non-interpolated.
	DimensionMismatchCount uint64
}

// Telemetry aggregates per-stage timing and publishes Snapshot updates. Safe for
// concurrent use: the Record* methods are serialized by a mutex (the capture and
// delivery threads both write), while any number of readers call Snapshot() without
// ever taking a lock.
type Telemetry struct {
	current atomic.Pointer[Snapshot]

	mu sync.Mutex

	window int

	captureCount int
	captureSince time.Time
	baseFPS      float64

	deliveredCount int
	deliveredSince time.Time
	scaledFPS      float64

	haveEwma    bool
	ewmaMs      float64
	frameTimes  []float64
	frameTimesI int

	droppedFrames             uint64
	vendorUnavailableWarnings uint64
	dimensionMismatchCount    uint64
	peakVramMB                float64
}

// New creates a Telemetry aggregator and publishes an initial empty Snapshot.
func New() *Telemetry {
	t := &Telemetry{
		window:         DefaultWindow,
		captureSince:   time.Now(),
		deliveredSince: time.Now(),
		frameTimes:     make([]float64, 0, DefaultWindow),
	}
	t.current.Store(&Snapshot{})
	return t
}

// RecordCaptureTick registers one CaptureSource poll that yielded a frame, updating the
// base (raw capture) FPS once per second.
func (t *Telemetry) RecordCaptureTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.captureCount++
	elapsed := time.Since(t.captureSince)
	if elapsed >= time.Second {
		t.baseFPS = float64(t.captureCount) / elapsed.Seconds()
		t.captureCount = 0
		t.captureSince = time.Now()
	}
}

// RecordDrop increments the dropped-frame counter used by the bounded input queue's
// drop-oldest backpressure policy.
func (t *Telemetry) RecordDrop() {
	t.mu.Lock()
	t.droppedFrames++
	t.mu.Unlock()
}

// RecordVendorUnavailableWarning records one vendor-neural fallback as a non-fatal
// warning.
func (t *Telemetry) RecordVendorUnavailableWarning() {
	t.mu.Lock()
	t.vendorUnavailableWarnings++
	t.mu.Unlock()
	log.Printf("telemetry: vendor-neural unavailable, falling back to next upscaler")
}

// RecordDimensionMismatch records one interpolator dimension mismatch; the frame it
// happened on is emitted as non-interpolated.
func (t *Telemetry) RecordDimensionMismatch() {
	t.mu.Lock()
	t.dimensionMismatchCount++
	t.mu.Unlock()
}

// RecordDelivery registers one OutputFrame delivered to the sink: updates scaled FPS,
// the frame-time EWMA/min/max window, and swaps in a new Snapshot reflecting the
// current state of every counter.
func (t *Telemetry) RecordDelivery(endToEndMs float64, gpuMs *float64, upscalerName, tier string, vram gpu.VramStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deliveredCount++
	elapsed := time.Since(t.deliveredSince)
	if elapsed >= time.Second {
		t.scaledFPS = float64(t.deliveredCount) / elapsed.Seconds()
		t.deliveredCount = 0
		t.deliveredSince = time.Now()
	}

	const alpha = 0.2
	if !t.haveEwma {
		t.ewmaMs = endToEndMs
		t.haveEwma = true
	} else {
		t.ewmaMs = alpha*endToEndMs + (1-alpha)*t.ewmaMs
	}

	if len(t.frameTimes) < t.window {
		t.frameTimes = append(t.frameTimes, endToEndMs)
	} else {
		t.frameTimes[t.frameTimesI%t.window] = endToEndMs
	}
	t.frameTimesI++

	minMs, maxMs := t.frameTimes[0], t.frameTimes[0]
	for _, v := range t.frameTimes {
		if v < minMs {
			minMs = v
		}
		if v > maxMs {
			maxMs = v
		}
	}

	if vram.AppAllocatedMB > t.peakVramMB {
		t.peakVramMB = vram.AppAllocatedMB
	}

	t.current.Store(&Snapshot{
		BaseFPS:                   t.baseFPS,
		ScaledFPS:                 t.scaledFPS,
		LastFrameMs:               endToEndMs,
		LastGPUMs:                 gpuMs,
		EwmaFrameMs:               t.ewmaMs,
		MinFrameMs:                minMs,
		MaxFrameMs:                maxMs,
		DroppedFramesCount:        t.droppedFrames,
		UpscalerName:              upscalerName,
		CurrentQualityTier:        tier,
		Vram:                      vram,
		PeakVramMB:                t.peakVramMB,
		VendorUnavailableWarnings: t.vendorUnavailableWarnings,
		DimensionMismatchCount:    t.dimensionMismatchCount,
	})
}

// Snapshot returns the most recently published Snapshot. Never blocks.
func (t *Telemetry) Snapshot() *Snapshot {
	return t.current.Load()
}
