package gpu_test

import (
	"testing"

	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
)

func newTestContext(t *testing.T) *gpu.Context {
	t.Helper()
	ctx, err := gpu.NewContext()
	if err != nil {
		t.Skipf("no gpu adapter available: %v", err)
	}
	t.Cleanup(ctx.Close)
	return ctx
}

func TestProbeReportsAdapter(t *testing.T) {
	ctx := newTestContext(t)
	info := ctx.Probe()
	if info.Name == "" && info.Vendor == "" {
		t.Error("Probe() returned an empty adapter description")
	}
	if info.Backend == "" {
		t.Error("Probe() returned an empty backend")
	}
}

func TestVramStatsComposesPoolTracking(t *testing.T) {
	ctx := newTestContext(t)
	pool := bufferpool.New(ctx)
	ctx.SetPool(pool)

	before := ctx.VramStats()
	if before.AppAllocatedMB != 0 {
		t.Fatalf("AppAllocatedMB before any allocation = %v, want 0", before.AppAllocatedMB)
	}

	buf, err := pool.Acquire(bufferpool.Storage, 1<<20)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	defer pool.Release(buf)

	after := ctx.VramStats()
	if after.AppAllocatedMB < 1 {
		t.Errorf("AppAllocatedMB after a 1 MiB allocation = %v, want >= 1", after.AppAllocatedMB)
	}
	if after.TotalMB <= 0 {
		t.Errorf("TotalMB = %v, want the pool cap as a best-effort total", after.TotalMB)
	}
	if after.UsagePercent <= 0 {
		t.Errorf("UsagePercent = %v, want > 0 with bytes allocated", after.UsagePercent)
	}
}

func TestReadBufferRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	pool := bufferpool.New(ctx)
	ctx.SetPool(pool)

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 251)
	}

	buf, err := pool.Acquire(bufferpool.Storage, uint64(len(data)))
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	defer pool.Release(buf)

	ctx.WriteBuffer(buf.GPU(), 0, data)
	got, err := ctx.ReadBuffer(buf.GPU(), 0, uint64(len(data)))
	if err != nil {
		t.Fatalf("ReadBuffer() = %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}
