package shader

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

const testWGSL = `
struct Dims {
	in_w: u32,
	in_h: u32,
	out_w: u32,
	out_h: u32,
};

@group(0) @binding(0) var<uniform> dims: Dims;
@group(0) @binding(1) var<storage, read> input_pixels: array<u32>;
@group(0) @binding(2) var<storage, read_write> output_pixels: array<u32>;

// Comments must not confuse the parser: @group(7) @binding(9) var<uniform> fake: Dims;
@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	output_pixels[0] = input_pixels[0];
}
`

func TestNewFromSource_EntryPointAndWorkgroup(t *testing.T) {
	s := NewFromSource("test", testWGSL)

	if got := s.Key(); got != "test" {
		t.Errorf("Key() = %q, want %q", got, "test")
	}
	if got := s.EntryPoint(); got != "main" {
		t.Errorf("EntryPoint() = %q, want %q", got, "main")
	}
	if got := s.WorkgroupSize(); got != [3]uint32{8, 8, 1} {
		t.Errorf("WorkgroupSize() = %v, want [8 8 1]", got)
	}
}

func TestNewFromSource_BindGroupLayout(t *testing.T) {
	s := NewFromSource("test", testWGSL)

	descriptors := s.BindGroupLayoutDescriptors()
	if len(descriptors) != 1 {
		t.Fatalf("parsed %d bind groups, want 1 (commented declarations must be ignored)", len(descriptors))
	}

	entries := descriptors[0].Entries
	if len(entries) != 3 {
		t.Fatalf("group 0 has %d entries, want 3", len(entries))
	}

	wantTypes := map[uint32]wgpu.BufferBindingType{
		0: wgpu.BufferBindingTypeUniform,
		1: wgpu.BufferBindingTypeReadOnlyStorage,
		2: wgpu.BufferBindingTypeStorage,
	}
	for _, e := range entries {
		if want, ok := wantTypes[e.Binding]; !ok || e.Buffer.Type != want {
			t.Errorf("binding %d buffer type = %v, want %v", e.Binding, e.Buffer.Type, want)
		}
		if e.Visibility != wgpu.ShaderStageCompute {
			t.Errorf("binding %d visibility = %v, want compute", e.Binding, e.Visibility)
		}
	}
}

func TestNewFromSource_VarNames(t *testing.T) {
	s := NewFromSource("test", testWGSL)

	tests := []struct {
		binding int
		want    string
	}{
		{0, "dims"},
		{1, "input_pixels"},
		{2, "output_pixels"},
	}
	for _, tt := range tests {
		if got := s.BindGroupVarName(0, tt.binding); got != tt.want {
			t.Errorf("BindGroupVarName(0, %d) = %q, want %q", tt.binding, got, tt.want)
		}
	}
	if got := s.BindGroupVarName(3, 0); got != "" {
		t.Errorf("BindGroupVarName on missing group = %q, want empty", got)
	}
}

func TestNewFromSource_UniformMinBindingSize(t *testing.T) {
	s := NewFromSource("test", testWGSL)

	for _, e := range s.BindGroupLayoutDescriptors()[0].Entries {
		if e.Binding != 0 {
			continue
		}
		// Dims is four u32 fields: 16 bytes.
		if e.Buffer.MinBindingSize != 16 {
			t.Errorf("uniform MinBindingSize = %d, want 16", e.Buffer.MinBindingSize)
		}
	}
}

func TestNewFromSource_WorkgroupDefaults(t *testing.T) {
	s := NewFromSource("bare", `
@compute @workgroup_size(64)
fn run() {}
`)
	if got := s.EntryPoint(); got != "run" {
		t.Errorf("EntryPoint() = %q, want %q", got, "run")
	}
	if got := s.WorkgroupSize(); got != [3]uint32{64, 1, 1} {
		t.Errorf("WorkgroupSize() = %v, want [64 1 1]", got)
	}
}
