package telemetry

import (
	"testing"

	"github.com/lumenscale/engine/gpu"
)

func TestInitialSnapshotIsEmpty(t *testing.T) {
	tel := New()
	s := tel.Snapshot()
	if s == nil {
		t.Fatal("Snapshot() = nil before any recording")
	}
	if s.ScaledFPS != 0 || s.DroppedFramesCount != 0 || s.LastFrameMs != 0 {
		t.Errorf("initial snapshot not zeroed: %+v", s)
	}
}

func TestRecordDeliveryPublishesNewSnapshot(t *testing.T) {
	tel := New()
	before := tel.Snapshot()

	tel.RecordDelivery(12.5, nil, "lanczos", "Quality", gpu.VramStats{AppAllocatedMB: 64})

	after := tel.Snapshot()
	if after == before {
		t.Fatal("RecordDelivery did not swap in a new snapshot")
	}
	if after.LastFrameMs != 12.5 {
		t.Errorf("LastFrameMs = %v, want 12.5", after.LastFrameMs)
	}
	if after.EwmaFrameMs != 12.5 {
		t.Errorf("first EwmaFrameMs = %v, want 12.5 (seeded from first sample)", after.EwmaFrameMs)
	}
	if after.UpscalerName != "lanczos" || after.CurrentQualityTier != "Quality" {
		t.Errorf("identity fields = %q/%q", after.UpscalerName, after.CurrentQualityTier)
	}
	if after.PeakVramMB != 64 {
		t.Errorf("PeakVramMB = %v, want 64", after.PeakVramMB)
	}
}

func TestFrameTimeWindowMinMax(t *testing.T) {
	tel := New()
	for _, ms := range []float64{10, 30, 20} {
		tel.RecordDelivery(ms, nil, "stub", "", gpu.VramStats{})
	}
	s := tel.Snapshot()
	if s.MinFrameMs != 10 {
		t.Errorf("MinFrameMs = %v, want 10", s.MinFrameMs)
	}
	if s.MaxFrameMs != 30 {
		t.Errorf("MaxFrameMs = %v, want 30", s.MaxFrameMs)
	}
}

func TestEwmaSmoothing(t *testing.T) {
	tel := New()
	tel.RecordDelivery(10, nil, "stub", "", gpu.VramStats{})
	tel.RecordDelivery(20, nil, "stub", "", gpu.VramStats{})

	// alpha = 0.2: 0.2*20 + 0.8*10 = 12.
	if got := tel.Snapshot().EwmaFrameMs; got < 11.99 || got > 12.01 {
		t.Errorf("EwmaFrameMs = %v, want 12", got)
	}
}

func TestCountersAccumulate(t *testing.T) {
	tel := New()
	tel.RecordDrop()
	tel.RecordDrop()
	tel.RecordVendorUnavailableWarning()
	tel.RecordDimensionMismatch()
	tel.RecordDelivery(5, nil, "stub", "", gpu.VramStats{})

	s := tel.Snapshot()
	if s.DroppedFramesCount != 2 {
		t.Errorf("DroppedFramesCount = %d, want 2", s.DroppedFramesCount)
	}
	if s.VendorUnavailableWarnings != 1 {
		t.Errorf("VendorUnavailableWarnings = %d, want 1", s.VendorUnavailableWarnings)
	}
	if s.DimensionMismatchCount != 1 {
		t.Errorf("DimensionMismatchCount = %d, want 1", s.DimensionMismatchCount)
	}
}

func TestPeakVramTracksHighWater(t *testing.T) {
	tel := New()
	tel.RecordDelivery(5, nil, "stub", "", gpu.VramStats{AppAllocatedMB: 128})
	tel.RecordDelivery(5, nil, "stub", "", gpu.VramStats{AppAllocatedMB: 32})

	s := tel.Snapshot()
	if s.PeakVramMB != 128 {
		t.Errorf("PeakVramMB = %v, want high-water 128", s.PeakVramMB)
	}
	if s.Vram.AppAllocatedMB != 32 {
		t.Errorf("current AppAllocatedMB = %v, want 32", s.Vram.AppAllocatedMB)
	}
}

func TestGPUTimePassthrough(t *testing.T) {
	tel := New()
	ms := 3.5
	tel.RecordDelivery(5, &ms, "stub", "", gpu.VramStats{})
	s := tel.Snapshot()
	if s.LastGPUMs == nil || *s.LastGPUMs != 3.5 {
		t.Errorf("LastGPUMs = %v, want 3.5", s.LastGPUMs)
	}

	tel.RecordDelivery(5, nil, "stub", "", gpu.VramStats{})
	if got := tel.Snapshot().LastGPUMs; got != nil {
		t.Errorf("LastGPUMs = %v, want nil when the adapter reports none", got)
	}
}
