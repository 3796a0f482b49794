package bufferpool

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/lumenscale/engine/frame"
)

// fakeDevice satisfies deviceBufferCreator without a GPU. The nil wgpu buffer is fine
// for bookkeeping tests: the pool only touches it to free real allocations.
type fakeDevice struct {
	creates int
}

func (d *fakeDevice) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	d.creates++
	return nil, nil
}

func TestNextPowerOfTwoSizeClasses(t *testing.T) {
	tests := []struct {
		in   uint64
		want uint64
	}{
		{1, 4096},
		{4096, 4096},
		{4097, 8192},
		{10000, 16384},
		{1 << 20, 1 << 20},
		{(1 << 20) + 1, 1 << 21},
	}
	for _, tt := range tests {
		if got := nextPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAcquireReusesReleasedBuffer(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev)

	a, err := p.Acquire(Storage, 5000)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	if a.Size() != 8192 {
		t.Errorf("size class = %d, want 8192", a.Size())
	}
	p.Release(a)

	b, err := p.Acquire(Storage, 6000)
	if err != nil {
		t.Fatalf("second Acquire() = %v", err)
	}
	if dev.creates != 1 {
		t.Errorf("device allocations = %d, want 1 (same size class must be reused)", dev.creates)
	}
	p.Release(b)
}

func TestAcquireDistinguishesKinds(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev)

	a, _ := p.Acquire(Storage, 4096)
	p.Release(a)

	if _, err := p.Acquire(Uniform, 4096); err != nil {
		t.Fatalf("Acquire(Uniform) = %v", err)
	}
	if dev.creates != 2 {
		t.Errorf("device allocations = %d, want 2 (kinds must not share buckets)", dev.creates)
	}
}

func TestAcquireFailsPastCap(t *testing.T) {
	p := New(&fakeDevice{}, WithCapBytes(16384))
	if got := p.CapBytes(); got != 16384 {
		t.Fatalf("CapBytes() = %d, want 16384", got)
	}

	a, err := p.Acquire(Storage, 8192)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	b, err := p.Acquire(Storage, 8192)
	if err != nil {
		t.Fatalf("second Acquire() = %v", err)
	}

	if _, err := p.Acquire(Storage, 4096); !errors.Is(err, frame.ErrOutOfVram) {
		t.Errorf("Acquire past cap = %v, want ErrOutOfVram", err)
	}

	p.Release(a)
	p.Release(b)
}

func TestDoubleReleasePanics(t *testing.T) {
	p := New(&fakeDevice{})
	a, err := p.Acquire(Storage, 4096)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	p.Release(a)

	defer func() {
		if recover() == nil {
			t.Error("second Release() did not panic")
		}
	}()
	p.Release(a)
}

func TestMinimalStrategyFreesOnRelease(t *testing.T) {
	p := New(&fakeDevice{}, WithStrategy(Minimal))

	a, err := p.Acquire(Storage, 4096)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	if got := p.TrackedBytes(); got != 4096 {
		t.Fatalf("TrackedBytes() = %d, want 4096", got)
	}
	p.Release(a)
	if got := p.TrackedBytes(); got != 0 {
		t.Errorf("TrackedBytes() after Minimal release = %d, want 0", got)
	}
}

func TestCleanupShrinkTrimsToLowWater(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev, WithStrategy(Aggressive))

	bufs := make([]*Buffer, 5)
	for i := range bufs {
		var err error
		bufs[i], err = p.Acquire(Storage, 4096)
		if err != nil {
			t.Fatalf("Acquire() = %v", err)
		}
	}
	for _, b := range bufs {
		p.Release(b)
	}
	if got := p.TrackedBytes(); got != 5*4096 {
		t.Fatalf("TrackedBytes() before cleanup = %d, want %d", got, 5*4096)
	}

	p.Cleanup(Shrink)
	// Shrink trims every bucket to the Conservative low-water mark of one buffer.
	if got := p.TrackedBytes(); got != 4096 {
		t.Errorf("TrackedBytes() after Shrink = %d, want 4096", got)
	}
}

func TestCleanupStrategyPolicyRespectsStrategy(t *testing.T) {
	p := New(&fakeDevice{}, WithStrategy(Balanced))

	bufs := make([]*Buffer, 6)
	for i := range bufs {
		bufs[i], _ = p.Acquire(Uniform, 4096)
	}
	for _, b := range bufs {
		p.Release(b)
	}

	p.Cleanup(StrategyPolicy)
	// Balanced keeps four free buffers per bucket.
	if got := p.TrackedBytes(); got != 4*4096 {
		t.Errorf("TrackedBytes() after Balanced cleanup = %d, want %d", got, 4*4096)
	}
}

func TestAutoStrategyResolvesFromUsage(t *testing.T) {
	tests := []struct {
		name  string
		usage float64
		want  Strategy
	}{
		{"low usage is aggressive", 10, Aggressive},
		{"mid usage is balanced", 80, Balanced},
		{"high usage is conservative", 95, Conservative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&fakeDevice{},
				WithStrategy(Auto),
				WithUsagePercentSource(func() float64 { return tt.usage }))
			if got := p.effectiveStrategy(); got != tt.want {
				t.Errorf("effectiveStrategy() at %.0f%% = %v, want %v", tt.usage, got, tt.want)
			}
		})
	}
}

func TestAutoWithoutSourceFallsBackToBalanced(t *testing.T) {
	p := New(&fakeDevice{}, WithStrategy(Auto))
	if got := p.effectiveStrategy(); got != Balanced {
		t.Errorf("effectiveStrategy() with no usage source = %v, want Balanced", got)
	}
}

func TestReconfigureChangesRetention(t *testing.T) {
	p := New(&fakeDevice{}, WithStrategy(Aggressive))

	a, _ := p.Acquire(Storage, 4096)
	p.Reconfigure(Minimal)
	p.Release(a)

	if got := p.TrackedBytes(); got != 0 {
		t.Errorf("TrackedBytes() after Reconfigure(Minimal)+Release = %d, want 0", got)
	}
}
