// Package shader loads and parses WGSL compute shader source into the metadata a
// GpuContext needs to build a compute pipeline: entry point name, workgroup size,
// and bind group layout descriptors inferred directly from @group/@binding
// declarations in the source.
package shader

import (
	"fmt"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
)

// shader is the implementation of the Shader interface.
type shader struct {
	key                        string
	source                     string
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	workGroupSize              [3]uint32
	entryPoint                 string
	module                     *wgpu.ShaderModuleDescriptor
}

// Shader defines the interface for a loaded and parsed WGSL compute shader. It exposes
// the shader's unique key, source code, entry point, bind group layout descriptors, and
// workgroup size needed for pipeline creation and bind group wiring.
type Shader interface {
	// Key returns the unique identifier for this shader, used for caching and lookups.
	Key() string

	// Source returns the WGSL shader source code.
	Source() string

	// BindGroupLayoutDescriptors returns all parsed bind group layout descriptors,
	// keyed by @group index.
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName returns the WGSL variable name bound at the given group and
	// binding index, or an empty string if not found.
	BindGroupVarName(group, binding int) string

	// EntryPoint returns the @compute entry point function name.
	EntryPoint() string

	// WorkgroupSize returns the [x, y, z] dimensions from @workgroup_size, defaulting
	// to [1, 1, 1] when absent.
	WorkgroupSize() [3]uint32

	// Module returns the wgpu.ShaderModuleDescriptor built from the loaded source.
	Module() *wgpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

// New loads a WGSL compute shader from sourcePath and parses its bind group layout,
// entry point, and workgroup size.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and pipeline labels
//   - sourcePath: the file path to read WGSL source from
//
// Returns:
//   - Shader: the loaded and parsed shader
//   - error: an error if the source file could not be read
func New(key, sourcePath string) (Shader, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to read source file %q: %w", sourcePath, err)
	}
	return NewFromSource(key, string(data)), nil
}

// NewFromSource builds a Shader directly from WGSL source text, without touching the
// filesystem. Used for shaders embedded as Go string constants.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - source: the raw WGSL source code
//
// Returns:
//   - Shader: the parsed shader
func NewFromSource(key, source string) Shader {
	s := &shader{
		key:    key,
		source: source,
		module: &wgpu.ShaderModuleDescriptor{
			Label: key,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: source,
			},
		},
	}
	s.entryPoint = parseEntryPoint(source)
	s.workGroupSize = parseWorkgroupSize(source)
	s.bindGroupLayoutDescriptors, s.bindingVarNames = parseBindGroupLayouts(source, wgpu.ShaderStageCompute)
	return s
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	if s.bindingVarNames[group] == nil {
		return ""
	}
	return s.bindingVarNames[group][binding]
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}
