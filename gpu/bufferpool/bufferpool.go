// Package bufferpool implements the size-classed GPU buffer free list shared by every
// component that needs scratch storage/uniform/staging buffers: the upscalers and the
// frame interpolator. A buffer has exactly one owner at a time: the
// pool's free list, or the single in-flight task that checked it out.
package bufferpool

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/lumenscale/engine/frame"
)

// Kind identifies what a pooled buffer is used for, which determines its wgpu usage
// flags.
type Kind int

const (
	// StagingUpload buffers are CPU-writable and copied into GPU-local storage.
	StagingUpload Kind = iota
	// StagingDownload buffers are GPU-writable and mapped for CPU readback.
	StagingDownload
	// Storage buffers back compute shader read_write/storage bindings.
	Storage
	// Uniform buffers back compute shader uniform bindings.
	Uniform
)

func (k Kind) String() string {
	switch k {
	case StagingUpload:
		return "StagingUpload"
	case StagingDownload:
		return "StagingDownload"
	case Storage:
		return "Storage"
	case Uniform:
		return "Uniform"
	default:
		return "Unknown"
	}
}

func (k Kind) usage() wgpu.BufferUsage {
	switch k {
	case StagingUpload:
		return wgpu.BufferUsageMapWrite | wgpu.BufferUsageCopySrc
	case StagingDownload:
		return wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	case Storage:
		return wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	case Uniform:
		return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	default:
		return wgpu.BufferUsageStorage
	}
}

// Strategy controls how aggressively the pool retains unused buffers between
// acquire/release cycles.
type Strategy int

const (
	// Auto derives the effective strategy from observed VRAM usage percent each time
	// cleanup(Strategy) runs.
	Auto Strategy = iota
	// Aggressive keeps the largest free list: fewest allocations, most VRAM retained.
	Aggressive
	// Balanced interpolates between Aggressive and Conservative.
	Balanced
	// Conservative keeps a small free list, trimming aggressively on cleanup.
	Conservative
	// Minimal frees every buffer immediately on release; no free list is kept.
	Minimal
)

func (s Strategy) String() string {
	switch s {
	case Auto:
		return "Auto"
	case Aggressive:
		return "Aggressive"
	case Balanced:
		return "Balanced"
	case Conservative:
		return "Conservative"
	case Minimal:
		return "Minimal"
	default:
		return "Unknown"
	}
}

// lowWaterMark returns how many free buffers per bucket a cleanup(Strategy) pass
// should retain under this strategy.
func (s Strategy) lowWaterMark() int {
	switch s {
	case Aggressive:
		return 8
	case Balanced:
		return 4
	case Conservative:
		return 1
	case Minimal:
		return 0
	default:
		return 4
	}
}

// CleanupPolicy selects what cleanup() evicts.
type CleanupPolicy int

const (
	// Shrink drops every free buffer above a fixed low-water mark, regardless of the
	// pool's configured strategy.
	Shrink CleanupPolicy = iota
	// StrategyPolicy applies the pool's current (possibly Auto-resolved) strategy.
	StrategyPolicy
)

// buffer wraps a wgpu.Buffer with the bookkeeping the pool needs to detect a
// double-release: exactly one of "free list" or "checked out" holds a given buffer at
// any time.
type buffer struct {
	kind       Kind
	sizeClass  uint64
	gpuBuffer  *wgpu.Buffer
	checkedOut bool
}

// Buffer is the handle callers acquire and release. It wraps the pooled GPU buffer so
// release() can find its bucket without the caller tracking kind/size separately.
type Buffer struct {
	buf *buffer
}

// GPU returns the underlying wgpu buffer for binding or writing.
func (b *Buffer) GPU() *wgpu.Buffer {
	return b.buf.gpuBuffer
}

// Size returns the buffer's size class in bytes (may exceed the originally requested
// size).
func (b *Buffer) Size() uint64 {
	return b.buf.sizeClass
}

type bucketKey struct {
	kind      Kind
	sizeClass uint64
}

// deviceBufferCreator is the subset of gpu.Context the pool needs, declared locally to
// avoid an import cycle (gpu.Context depends on bufferpool for vram_stats).
type deviceBufferCreator interface {
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)
}

// Pool is a size-classed GPU buffer free list. acquire/release/cleanup/reconfigure are
// the only mutating operations; a single mutex guards bookkeeping only, never GPU
// calls, so buffer creation never holds the lock during a device round-trip.
type Pool struct {
	mu sync.Mutex

	device deviceBufferCreator

	free     map[bucketKey][]*buffer
	strategy Strategy
	capBytes uint64

	trackedBytes int64

	vramStats func() float64 // returns vram_stats().usage_percent; nil until GpuContext wires it
}

// PoolOption configures a Pool during construction.
type PoolOption func(*Pool)

// WithCapBytes sets the hard ceiling on total tracked bytes; acquiring past it fails
// with ErrOutOfVram.
func WithCapBytes(capBytes uint64) PoolOption {
	return func(p *Pool) { p.capBytes = capBytes }
}

// WithStrategy sets the initial memory strategy.
func WithStrategy(s Strategy) PoolOption {
	return func(p *Pool) { p.strategy = s }
}

// WithUsagePercentSource wires the function the pool calls to resolve Auto into a
// concrete strategy. GpuContext supplies its own VramStats().UsagePercent here once
// both are constructed, breaking the natural cyclic dependency between the two.
func WithUsagePercentSource(f func() float64) PoolOption {
	return func(p *Pool) { p.vramStats = f }
}

// New creates an empty Pool backed by device for buffer creation.
func New(device deviceBufferCreator, opts ...PoolOption) *Pool {
	p := &Pool{
		device:   device,
		free:     make(map[bucketKey][]*buffer),
		strategy: Balanced,
		capBytes: 2 << 30, // 2 GiB default cap, overridden by SetCapBytes/WithCapBytes
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// nextPowerOfTwo returns the smallest power of two >= n, with a 4096-byte floor so
// small uniform buffers don't fragment the bucket space.
func nextPowerOfTwo(n uint64) uint64 {
	const floor = 4096
	if n <= floor {
		return floor
	}
	return 1 << bits.Len64(n-1)
}

// Acquire returns a buffer of at least size bytes for the given kind, reusing a pooled
// buffer from the smallest bucket >= size when one is free, otherwise allocating a new
// one. Fails with ErrOutOfVram when the allocation would push tracked bytes past the
// pool's cap.
func (p *Pool) Acquire(kind Kind, size uint64) (*Buffer, error) {
	sizeClass := nextPowerOfTwo(size)
	key := bucketKey{kind, sizeClass}

	p.mu.Lock()
	if bucket := p.free[key]; len(bucket) > 0 {
		b := bucket[len(bucket)-1]
		p.free[key] = bucket[:len(bucket)-1]
		b.checkedOut = true
		p.mu.Unlock()
		return &Buffer{buf: b}, nil
	}

	if uint64(p.trackedBytes)+sizeClass > p.capBytes {
		p.mu.Unlock()
		return nil, fmt.Errorf("bufferpool: acquiring %s %d bytes: %w", kind, sizeClass, frame.ErrOutOfVram)
	}
	p.trackedBytes += int64(sizeClass)
	p.mu.Unlock()

	gpuBuf, err := p.device.CreateBuffer(fmt.Sprintf("pool %s %d", kind, sizeClass), sizeClass, kind.usage())
	if err != nil {
		p.mu.Lock()
		p.trackedBytes -= int64(sizeClass)
		p.mu.Unlock()
		return nil, fmt.Errorf("bufferpool: allocating %s buffer: %w", kind, err)
	}

	b := &buffer{kind: kind, sizeClass: sizeClass, gpuBuffer: gpuBuf, checkedOut: true}
	return &Buffer{buf: b}, nil
}

// Release returns buf to its bucket so a future Acquire can reuse it. Releasing a
// buffer that is not currently checked out is a fatal invariant violation and panics,
// mirroring the pool's documented double-release contract.
func (p *Pool) Release(buf *Buffer) {
	b := buf.buf

	p.mu.Lock()
	if !b.checkedOut {
		p.mu.Unlock()
		panic(fmt.Sprintf("bufferpool: double release of %s buffer (size class %d)", b.kind, b.sizeClass))
	}
	b.checkedOut = false

	if p.strategy == Minimal {
		p.trackedBytes -= int64(b.sizeClass)
		p.mu.Unlock()
		if b.gpuBuffer != nil {
			b.gpuBuffer.Release()
		}
		return
	}

	key := bucketKey{b.kind, b.sizeClass}
	p.free[key] = append(p.free[key], b)
	p.mu.Unlock()
}

// effectiveStrategy resolves Auto into a concrete strategy using the wired VRAM usage
// source. Falls back to Balanced when no source is wired (e.g. in tests that exercise
// the pool without a GpuContext).
func (p *Pool) effectiveStrategy() Strategy {
	if p.strategy != Auto {
		return p.strategy
	}
	if p.vramStats == nil {
		return Balanced
	}
	usage := p.vramStats()
	switch {
	case usage >= 90:
		return Conservative
	case usage >= 75:
		return Balanced
	default:
		return Aggressive
	}
}

// Cleanup evicts pooled-but-unused buffers per policy. Shrink always trims to a fixed
// low-water mark regardless of strategy; StrategyPolicy applies the current
// (Auto-resolved) strategy's low-water mark.
func (p *Pool) Cleanup(policy CleanupPolicy) {
	var lowWater int
	switch policy {
	case Shrink:
		lowWater = Conservative.lowWaterMark()
	case StrategyPolicy:
		lowWater = p.effectiveStrategy().lowWaterMark()
	}

	p.mu.Lock()
	var toRelease []*buffer
	for key, bucket := range p.free {
		if len(bucket) <= lowWater {
			continue
		}
		toRelease = append(toRelease, bucket[lowWater:]...)
		p.free[key] = bucket[:lowWater]
	}
	for _, b := range toRelease {
		p.trackedBytes -= int64(b.sizeClass)
	}
	p.mu.Unlock()

	for _, b := range toRelease {
		if b.gpuBuffer != nil {
			b.gpuBuffer.Release()
		}
	}
}

// Reconfigure updates the pool's memory strategy. The tracked-bytes cap is left
// untouched; callers needing a new cap use WithCapBytes at construction or
// SetCapBytes.
func (p *Pool) Reconfigure(strategy Strategy) {
	p.mu.Lock()
	p.strategy = strategy
	p.mu.Unlock()
}

// SetCapBytes updates the hard ceiling on total tracked bytes.
func (p *Pool) SetCapBytes(capBytes uint64) {
	p.mu.Lock()
	p.capBytes = capBytes
	p.mu.Unlock()
}

// TrackedBytes returns the total bytes currently allocated by this pool, whether
// checked out or sitting free in a bucket. Consumed by gpu.Context.VramStats for its
// app_allocated_mb field.
func (p *Pool) TrackedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackedBytes
}

// CapBytes returns the pool's hard ceiling on tracked bytes. gpu.Context.VramStats
// uses it as the denominator for usage percent when no platform VRAM query exists.
func (p *Pool) CapBytes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capBytes
}
