package frame

import (
	"errors"
	"testing"
)

func TestRawValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     Raw
		wantErr bool
	}{
		{"valid", Raw{Pixels: make([]byte, 4*2*3), Width: 2, Height: 3}, false},
		{"zero width", Raw{Pixels: make([]byte, 12), Width: 0, Height: 3}, true},
		{"negative height", Raw{Pixels: make([]byte, 12), Width: 2, Height: -1}, true},
		{"short buffer", Raw{Pixels: make([]byte, 23), Width: 2, Height: 3}, true},
		{"long buffer", Raw{Pixels: make([]byte, 25), Width: 2, Height: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.raw.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDimensions) {
					t.Errorf("Validate() = %v, want ErrInvalidDimensions", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if got := KindUpscaled.String(); got != "upscaled" {
		t.Errorf("KindUpscaled.String() = %q", got)
	}
	if got := KindInterpolated.String(); got != "interpolated" {
		t.Errorf("KindInterpolated.String() = %q", got)
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNoSuitableAdapter, ErrTargetNotFound, ErrInvalidRegion,
		ErrInvalidDimensions, ErrVendorUnavailable, ErrOutOfVram,
		ErrGpuTimeout, ErrDeviceLost, ErrDimensionMismatch,
		ErrPipelineNotRunning, ErrCancellationRequested,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %d matches sentinel %d", i, j)
			}
		}
	}
}
