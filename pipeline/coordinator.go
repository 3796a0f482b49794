// Package pipeline implements the PipelineCoordinator: the single owning component
// that wires capture -> upscale -> (interpolate) -> sink. It owns every worker thread;
// hosts are consumers through the Sink callback and the Telemetry snapshot, never
// drivers of threads.
package pipeline

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/lumenscale/engine/capture"
	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
	"github.com/lumenscale/engine/interpolate"
	"github.com/lumenscale/engine/telemetry"
	"github.com/lumenscale/engine/upscale"
)

// Coordinator orchestrates the whole pipeline. Operations are safe to call from any
// goroutine except the Sink callback itself, which must never call Stop (it runs on
// the delivery thread Stop waits for).
type Coordinator interface {
	// Configure validates and adopts cfg. Must be called before Start; may be called
	// again between sessions. Fails synchronously with a configuration error and
	// leaves the coordinator Idle, per the propagation policy for configuration
	// errors.
	Configure(cfg Config) error

	// Subscribe registers the single sink callback that receives OutputFrames on the
	// coordinator's delivery thread. A later call replaces the earlier sink.
	Subscribe(sink Sink)

	// Start validates target against src, spins up the capture, worker, and delivery
	// threads, and transitions Idle -> Starting -> Running. Idempotent: calling Start
	// while already Running is a no-op.
	Start(src capture.Source, target capture.Target) error

	// Stop signals every thread to wind down, waits up to the configured grace
	// period for in-flight GPU work, releases GPU resources, and returns once no
	// further sink callbacks can fire. Idempotent: Stop on an Idle coordinator is a
	// no-op.
	Stop() error

	// State returns the coordinator's current state machine position.
	State() State

	// Stats returns the most recent Telemetry snapshot. Never blocks.
	Stats() *telemetry.Snapshot

	// Err returns the fatal error that forced the last Running -> Stopping
	// transition, or nil if the last session ended via Stop.
	Err() error
}

// workItem is one unit moving from a worker to the delivery thread's serializer:
// either a completed upscale, a fatal worker error, or a drop marker the serializer
// skips past.
type workItem struct {
	seq        uint64
	upscaled   *frame.Upscaled
	capturedAt int64
	err        error
	dropped    bool
}

// coordinator implements Coordinator.
type coordinator struct {
	mu          sync.Mutex
	lifecycleMu sync.Mutex

	state      State
	cfg        Config
	configured bool
	sink       Sink
	lastErr    error

	ctx  *gpu.Context
	pool *bufferpool.Pool

	newUpscaler   func(alg upscale.Algorithm) upscale.Upscaler
	customFactory bool
	interp        interpolate.Interpolator
	ownsInterp    bool

	tel *telemetry.Telemetry

	// Per-session state, rebuilt on every Start.
	src       capture.Source
	instances chan upscale.Upscaler
	all       []upscale.Upscaler
	queue     *frameQueue
	results   chan workItem
	slots     chan struct{}

	// computePool manages a bounded set of reusable goroutines for the upscale
	// workers. Workers persist across frames, avoiding per-frame goroutine
	// spawn/teardown overhead.
	computePool worker.DynamicWorkerPool

	inFlight     sync.WaitGroup
	wg           sync.WaitGroup
	quitChannel  chan struct{}
	quitOnce     *sync.Once
	deliveryStop chan struct{}

	droppedMu  sync.Mutex
	droppedSet map[uint64]struct{}
}

// NewCoordinator creates a Coordinator with the provided options. A real deployment
// supplies WithGpuContext and WithBufferPool so the coordinator can build its own
// upscalers and interpolator; tests may instead inject both through
// WithUpscalerFactory and WithInterpolator and never touch a GPU.
//
// Parameters:
//   - options: functional options for coordinator configuration
//
// Returns:
//   - Coordinator: the newly created coordinator, in the Idle state
func NewCoordinator(options ...CoordinatorBuilderOption) Coordinator {
	c := &coordinator{
		state:      Idle,
		tel:        telemetry.New(),
		droppedSet: make(map[uint64]struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.newUpscaler == nil {
		c.newUpscaler = c.defaultUpscaler
	}
	return c
}

func (c *coordinator) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return fmt.Errorf("pipeline: cannot reconfigure while %s: %w", c.state, frame.ErrPipelineNotRunning)
	}
	c.cfg = cfg
	c.configured = true
	return nil
}

func (c *coordinator) Subscribe(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *coordinator) Stats() *telemetry.Snapshot {
	return c.tel.Snapshot()
}

func (c *coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *coordinator) Start(src capture.Source, target capture.Target) error {
	// lifecycleMu serializes Start against Stop, so a Stop issued mid-startup waits
	// for the session to finish coming up before tearing it down.
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case Running, Starting:
		c.mu.Unlock()
		return nil
	case Stopping:
		c.mu.Unlock()
		return fmt.Errorf("pipeline: still stopping: %w", frame.ErrPipelineNotRunning)
	}
	if !c.configured {
		c.mu.Unlock()
		return fmt.Errorf("pipeline: Configure before Start: %w", frame.ErrPipelineNotRunning)
	}
	cfg := c.cfg
	c.state = Starting
	c.lastErr = nil
	c.mu.Unlock()

	if err := src.Start(target); err != nil {
		c.setState(Idle)
		return err
	}

	alg := cfg.Upscale.Algorithm
	if alg == upscale.VendorNeural && !c.vendorAvailable() {
		c.tel.RecordVendorUnavailableWarning()
		alg = upscale.Lanczos
	}

	if c.ctx == nil && !c.customFactory {
		_ = src.Stop()
		c.setState(Idle)
		return fmt.Errorf("pipeline: no gpu context and no upscaler factory: %w", frame.ErrNoSuitableAdapter)
	}

	w := cfg.WorkerCount

	// Each worker owns its own Upscaler instance: one transient task per frame, no
	// shared dispatch buffers between concurrent upscales.
	c.instances = make(chan upscale.Upscaler, w)
	c.all = c.all[:0]
	for i := 0; i < w; i++ {
		u := c.newUpscaler(alg)
		c.instances <- u
		c.all = append(c.all, u)
	}

	if cfg.EnableInterpolation && c.interp == nil {
		if c.ctx == nil {
			for _, u := range c.all {
				u.Close()
			}
			_ = src.Stop()
			c.setState(Idle)
			return fmt.Errorf("pipeline: interpolation requires a gpu context: %w", frame.ErrNoSuitableAdapter)
		}
		c.interp = interpolate.New(c.ctx, c.pool)
		c.ownsInterp = true
	}

	c.src = src
	c.queue = newFrameQueue(w + 1)
	c.results = make(chan workItem, 4*w+8)
	c.slots = make(chan struct{}, w)
	c.quitChannel = make(chan struct{})
	c.quitOnce = &sync.Once{}
	c.deliveryStop = make(chan struct{})
	c.droppedMu.Lock()
	c.droppedSet = make(map[uint64]struct{})
	c.droppedMu.Unlock()
	c.computePool = worker.NewDynamicWorkerPool(w, 4*w+8, 1*time.Second)

	c.wg.Add(3)
	go c.handleCapture()
	go c.handleDispatch()
	go c.handleDelivery()

	c.setState(Running)
	return nil
}

func (c *coordinator) Stop() error {
	// A second concurrent caller blocks until the first teardown completes, so no
	// caller returns while sink callbacks can still fire.
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if c.state != Running && c.state != Starting {
		c.mu.Unlock()
		return nil
	}
	c.state = Stopping
	grace := time.Duration(c.cfg.GracePeriodMs) * time.Millisecond
	c.mu.Unlock()

	c.signalQuit()

	// Bounded wait for in-flight GPU work; whatever hasn't completed by then is
	// abandoned and its buffers reclaimed by the pool cleanup below.
	done := make(chan struct{})
	go func() {
		c.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Printf("pipeline: grace period elapsed with upscale work still in flight")
	}

	close(c.deliveryStop)
	c.wg.Wait()

	for _, u := range c.all {
		u.Close()
	}
	if c.ownsInterp && c.interp != nil {
		c.interp.Close()
		c.interp = nil
		c.ownsInterp = false
	} else if c.interp != nil {
		c.interp.Close()
	}
	if c.pool != nil {
		c.pool.Cleanup(bufferpool.Shrink)
	}

	c.setState(Idle)
	return nil
}

// signalQuit closes the quit channel to signal all goroutines to exit. Safe to call
// multiple times; subsequent calls are no-ops.
func (c *coordinator) signalQuit() {
	c.quitOnce.Do(func() {
		close(c.quitChannel)
	})
}

func (c *coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *coordinator) vendorAvailable() bool {
	return c.ctx != nil && c.ctx.Supports(gpu.FeatureFP16Storage)
}

func (c *coordinator) defaultUpscaler(alg upscale.Algorithm) upscale.Upscaler {
	switch alg {
	case upscale.Nearest:
		return upscale.NewNearest(c.ctx, c.pool)
	case upscale.Bilinear:
		return upscale.NewBilinear(c.ctx, c.pool)
	case upscale.VendorNeural:
		return upscale.NewVendorNeural(c.ctx, c.pool)
	default:
		return upscale.NewLanczos(c.ctx, c.pool)
	}
}

// outputDims resolves a raw frame's upscaled dimensions: round(in * scale) when a
// scale factor is configured, otherwise the explicit output dims from the upscaler
// config.
func (c *coordinator) outputDims(raw *frame.Raw) (int, int) {
	if c.cfg.Scale > 0 {
		return int(math.Round(float64(raw.Width) * c.cfg.Scale)),
			int(math.Round(float64(raw.Height) * c.cfg.Scale))
	}
	return c.cfg.Upscale.OutputW, c.cfg.Upscale.OutputH
}

func (c *coordinator) markDropped(seq uint64) {
	c.droppedMu.Lock()
	c.droppedSet[seq] = struct{}{}
	c.droppedMu.Unlock()
}

func (c *coordinator) takeDropped(seq uint64) bool {
	c.droppedMu.Lock()
	defer c.droppedMu.Unlock()
	if _, ok := c.droppedSet[seq]; ok {
		delete(c.droppedSet, seq)
		return true
	}
	return false
}

// handleCapture runs the capture polling loop in its own goroutine. Each tick either
// yields a RawFrame (pushed onto the bounded input queue, evicting and drop-marking
// the oldest frame when full) or sleeps briefly. The capture thread never blocks on
// downstream stages. Exits when the quit channel is closed, stopping the source and
// closing the queue behind it.
func (c *coordinator) handleCapture() {
	defer c.wg.Done()
	defer func() {
		_ = c.src.Stop()
		c.queue.close()
	}()

	for {
		select {
		case <-c.quitChannel:
			return
		default:
			raw, ok := c.src.Poll()
			if !ok {
				time.Sleep(time.Millisecond)
				continue
			}
			c.tel.RecordCaptureTick()
			if dropped := c.queue.push(raw); dropped != nil {
				c.tel.RecordDrop()
				c.markDropped(dropped.Sequence)
			}
		}
	}
}

// handleDispatch runs the dispatcher loop in its own goroutine: it holds admission to
// the worker pool to at most W concurrent tasks via the slots semaphore, so the input
// queue (capacity W+1) actually fills and exercises its drop-oldest policy under
// backpressure instead of spilling into the pool's internal queue.
func (c *coordinator) handleDispatch() {
	defer c.wg.Done()

	for {
		select {
		case <-c.quitChannel:
			return
		case c.slots <- struct{}{}:
		}

		raw, ok := c.queue.pop()
		if !ok {
			<-c.slots
			return
		}

		c.inFlight.Add(1)
		f := raw
		c.computePool.SubmitTask(worker.Task{
			ID: int(f.Sequence),
			Do: func() (any, error) {
				defer c.inFlight.Done()
				defer func() { <-c.slots }()
				c.sendResult(c.runUpscale(f))
				return nil, nil
			},
		})
	}
}

// runUpscale executes one worker task: checks for cancellation, initializes the
// worker's upscaler for the frame's dimensions (idempotent when unchanged), and runs
// the upscale. A cancelled task is reported as a drop so the serializer skips its
// sequence number.
func (c *coordinator) runUpscale(raw *frame.Raw) workItem {
	select {
	case <-c.quitChannel:
		return workItem{seq: raw.Sequence, dropped: true}
	default:
	}

	u := <-c.instances
	defer func() { c.instances <- u }()

	outW, outH := c.outputDims(raw)
	if err := u.Initialize(raw.Width, raw.Height, outW, outH, c.cfg.Upscale); err != nil {
		return workItem{seq: raw.Sequence, err: err}
	}

	select {
	case <-c.quitChannel:
		return workItem{seq: raw.Sequence, dropped: true}
	default:
	}

	pixels, err := u.Upscale(raw)
	if err != nil {
		return workItem{seq: raw.Sequence, err: err}
	}

	return workItem{
		seq: raw.Sequence,
		upscaled: &frame.Upscaled{
			Pixels:         pixels,
			Width:          outW,
			Height:         outH,
			SourceSequence: raw.Sequence,
			Upscaler:       u.Name(),
		},
		capturedAt: raw.CapturedAt,
	}
}

// sendResult hands a finished workItem to the delivery thread. Sends block until the
// serializer takes the item or the session is torn down, so a completed frame is
// never silently lost while the pipeline is running.
func (c *coordinator) sendResult(item workItem) {
	select {
	case c.results <- item:
	case <-c.deliveryStop:
	}
}

// handleDelivery runs the serializer and sink-delivery loop in its own goroutine.
// Completed frames arrive in any order from the worker pool; the serializer re-emits
// them in strictly increasing source sequence order, skipping past sequence numbers
// the capture thread dropped. Recovers from panics inside the sink callback to avoid
// crashing the process and signals quit on recovery.
func (c *coordinator) handleDelivery() {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("delivery goroutine recovered from panic: %v", r)
			go func() { _ = c.Stop() }()
		}
	}()

	pending := make(map[uint64]workItem)
	var next uint64 = 1
	var prev *frame.Upscaled
	fatal := false

	flush := func() {
		for {
			if item, ok := pending[next]; ok {
				delete(pending, next)
				next++
				if item.dropped {
					continue
				}
				if item.err != nil {
					if !fatal {
						fatal = true
						c.mu.Lock()
						c.lastErr = item.err
						c.mu.Unlock()
						// Out-of-VRAM reaching this point means the upscaler's
						// evict-and-retry was already exhausted: persistent, so the
						// pipeline stops and surfaces it, but it is not a device
						// fault like a timeout or lost device.
						if errors.Is(item.err, frame.ErrOutOfVram) {
							log.Printf("pipeline: out of vram after eviction retry: %v", item.err)
						} else {
							log.Printf("pipeline: fatal gpu error: %v", item.err)
						}
						go func() { _ = c.Stop() }()
					}
					continue
				}
				if !fatal {
					var ok bool
					prev, ok = c.deliver(item, prev)
					fatal = !ok
				}
				continue
			}
			if c.takeDropped(next) {
				next++
				continue
			}
			return
		}
	}

	for {
		select {
		case item := <-c.results:
			if item.dropped {
				c.markDropped(item.seq)
			} else {
				pending[item.seq] = item
			}
			flush()
		case <-c.deliveryStop:
			for {
				select {
				case item := <-c.results:
					if item.dropped {
						c.markDropped(item.seq)
					} else {
						pending[item.seq] = item
					}
					flush()
				default:
					return
				}
			}
		}
	}
}

// deliver emits one upscaled frame (preceded by a synthesized in-between frame when
// interpolation is enabled and a compatible previous frame is retained) and returns
// the new value for the retained previous-frame slot. The second return is false when
// a fatal interpolation error forced the stop path.
func (c *coordinator) deliver(item workItem, prev *frame.Upscaled) (*frame.Upscaled, bool) {
	cur := item.upscaled
	endToEnd := float64(time.Now().UnixNano()-item.capturedAt) / 1e6

	c.mu.Lock()
	sink := c.sink
	interpolating := c.cfg.EnableInterpolation
	c.mu.Unlock()

	if interpolating && prev != nil && c.interp != nil {
		mid, err := c.interp.Interpolate(prev, cur, 0.5)
		switch {
		case err == nil:
			c.emit(sink, frame.Output{
				Pixels:         mid.Pixels,
				Width:          mid.Width,
				Height:         mid.Height,
				SourceSequence: mid.Prev,
				Kind:           frame.KindInterpolated,
				Timings:        frame.Timings{EndToEndMs: endToEnd, GPUMs: c.interp.LastGPUMs()},
			}, endToEnd)
		case errors.Is(err, frame.ErrDimensionMismatch):
			// Per-frame: emit cur non-interpolated and clear the retained slot.
			c.tel.RecordDimensionMismatch()
			prev = nil
		default:
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			log.Printf("pipeline: fatal interpolation error: %v", err)
			go func() { _ = c.Stop() }()
			return nil, false
		}
	}

	c.emit(sink, frame.Output{
		Pixels:         cur.Pixels,
		Width:          cur.Width,
		Height:         cur.Height,
		SourceSequence: cur.SourceSequence,
		Kind:           frame.KindUpscaled,
		Timings:        frame.Timings{EndToEndMs: endToEnd},
	}, endToEnd)

	return cur, true
}

// emit invokes the sink and updates telemetry and the adaptive-quality steppers for
// one delivered frame.
func (c *coordinator) emit(sink Sink, out frame.Output, endToEnd float64) {
	if sink != nil {
		sink(out)
	}

	name, tier := "", ""
	if len(c.all) > 0 {
		name = c.all[0].Name()
		if ct, ok := c.all[0].(interface{ CurrentTier() upscale.Tier }); ok {
			tier = ct.CurrentTier().String()
		}
	}
	var vram gpu.VramStats
	if c.ctx != nil {
		vram = c.ctx.VramStats()
	}
	c.tel.RecordDelivery(endToEnd, out.Timings.GPUMs, name, tier, vram)

	if out.Kind == frame.KindUpscaled {
		for _, u := range c.all {
			if rec, ok := u.(upscale.FrameTimeRecorder); ok {
				rec.RecordFrameTime(endToEnd)
			}
		}
	}
}

var _ Coordinator = &coordinator{}
