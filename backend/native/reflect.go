package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadercache"
)

// resourceClass is the kind of a bindable global declared by a shader.
type resourceClass uint8

const (
	classUniform resourceClass = iota + 1
	classSampler
	classTexture
	classDepthTexture
	classStorageImage
)

func (c resourceClass) String() string {
	switch c {
	case classUniform:
		return "uniform"
	case classSampler:
		return "sampler"
	case classTexture:
		return "texture"
	case classDepthTexture:
		return "depth_texture"
	case classStorageImage:
		return "storage_image"
	default:
		return fmt.Sprintf("resourceClass(%d)", uint8(c))
	}
}

// resource is a reflected global with its declared @group/@binding.
type resource struct {
	name    string
	class   resourceClass
	group   uint32
	binding uint32
	size    uint32 // uniform blocks only
	cube    bool
}

// stageCode is one compiled stage. It is shared by the shader handle that
// produced it and every program linked from it, and destroyed with the last
// reference.
type stageCode struct {
	kind      shadercache.StageKind
	entry     string
	spirv     []uint32
	resources []resource

	module hal.ShaderModule
	refs   int
}

// compileStage parses WGSL, reflects its resources and emits SPIR-V.
func compileStage(kind shadercache.StageKind, source string) (*stageCode, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("native: parse %s shader: %w", kind, err)
	}
	module, err := naga.Lower(ast)
	if err != nil {
		return nil, fmt.Errorf("native: lower %s shader: %w", kind, err)
	}

	entry, err := entryPoint(module, kind)
	if err != nil {
		return nil, err
	}

	spv, err := spirv.NewBackend(spirv.DefaultOptions()).Compile(module)
	if err != nil {
		return nil, fmt.Errorf("native: emit SPIR-V for %s shader: %w", kind, err)
	}

	return &stageCode{
		kind:      kind,
		entry:     entry,
		spirv:     words(spv),
		resources: reflectResources(module),
	}, nil
}

// entryPoint returns the name of the entry point for kind.
func entryPoint(m *ir.Module, kind shadercache.StageKind) (string, error) {
	var want ir.ShaderStage
	switch kind {
	case shadercache.StageVertex:
		want = ir.StageVertex
	case shadercache.StageFragment:
		want = ir.StageFragment
	default:
		return "", fmt.Errorf("%w: %s", ErrStageUnsupported, kind)
	}
	for _, ep := range m.EntryPoints {
		if ep.Stage == want {
			return ep.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoEntryPoint, kind)
}

// reflectResources lists the uniform blocks, samplers and images declared
// with a binding.
func reflectResources(m *ir.Module) []resource {
	var out []resource
	for _, gv := range m.GlobalVariables {
		if gv.Binding == nil || int(gv.Type) >= len(m.Types) {
			continue
		}
		r := resource{name: gv.Name, group: gv.Binding.Group, binding: gv.Binding.Binding}

		switch inner := m.Types[gv.Type].Inner.(type) {
		case ir.StructType:
			if gv.Space != ir.SpaceUniform {
				continue
			}
			r.class = classUniform
			r.size = inner.Span
		case ir.SamplerType:
			r.class = classSampler
		case ir.ImageType:
			switch inner.Class {
			case ir.ImageClassDepth:
				r.class = classDepthTexture
			case ir.ImageClassStorage:
				r.class = classStorageImage
			default:
				r.class = classTexture
			}
			r.cube = inner.Dim == ir.DimCube
		default:
			continue
		}
		out = append(out, r)
	}
	return out
}

// words reinterprets little-endian SPIR-V bytes as 32-bit words.
func words(spv []byte) []uint32 {
	out := make([]uint32, len(spv)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(spv[i*4:])
	}
	return out
}
