package pipeline

import (
	"errors"
	"testing"

	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/upscale"
)

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{Scale: 2.0}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.WorkerCount != 1 {
		t.Errorf("WorkerCount default = %d, want 1", cfg.WorkerCount)
	}
	if cfg.TargetFPS != 60 {
		t.Errorf("TargetFPS default = %d, want 60", cfg.TargetFPS)
	}
	if cfg.GracePeriodMs != 2000 {
		t.Errorf("GracePeriodMs default = %d, want 2000", cfg.GracePeriodMs)
	}
	if cfg.Upscale.TargetFPS != 60 {
		t.Errorf("Upscale.TargetFPS not propagated: %v", cfg.Upscale.TargetFPS)
	}
}

func TestConfigValidate_Bounds(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"worker count too high", Config{Scale: 2.0, WorkerCount: 17}},
		{"worker count negative", Config{Scale: 2.0, WorkerCount: -1}},
		{"scale too small", Config{Scale: 0.5}},
		{"scale too large", Config{Scale: 4.5}},
		{"no scale and no output dims", Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("Validate() accepted invalid config")
			}
			if !errors.Is(err, frame.ErrInvalidDimensions) {
				t.Errorf("Validate() = %v, want ErrInvalidDimensions", err)
			}
		})
	}
}

func TestConfigValidate_ExplicitDims(t *testing.T) {
	cfg := Config{
		Upscale: upscale.Config{OutputW: 3840, OutputH: 2160},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() with explicit output dims = %v", err)
	}
}
