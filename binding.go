package shadercache

// UniformBinding is a uniform block binding point shared with the code that
// uploads uniform data.
type UniformBinding uint32

// Uniform block binding points.
const (
	UniformBindingCommon UniformBinding = 0
	UniformBindingVS     UniformBinding = 1
)

// TextureUnit is a texture unit number a sampler is bound to.
type TextureUnit int32

// Texture units.
const (
	TextureUnitPica0 TextureUnit = iota
	TextureUnitPica1
	TextureUnitPica2
	TextureUnitCube
	TextureUnitLUTLF
	TextureUnitLUTRG
	TextureUnitLUTRGBA
)

// ImageUnit is an image unit number an image uniform is bound to.
type ImageUnit int32

// Image units.
const (
	ImageUnitShadowBuffer ImageUnit = iota
	ImageUnitShadowPX
	ImageUnitShadowNX
	ImageUnitShadowPY
	ImageUnitShadowNY
	ImageUnitShadowPZ
	ImageUnitShadowNZ
)

// Host layout sizes of the uniform blocks, in bytes.
const (
	// DefaultCommonBlockSize is the size of the shared "shader_data" block.
	DefaultCommonBlockSize = 0x4F0

	// DefaultVSBlockSize is the size of the "vs_config" block: 16 bools
	// padded to 16 bytes, 4 integer vectors and 96 float vectors.
	DefaultVSBlockSize = 16*16 + 4*16 + 96*16
)

// Layout is the host-side data layout the generated uniform blocks must
// match.
type Layout struct {
	CommonBlockSize int
	VSBlockSize     int
}

// DefaultLayout returns the layout used by the host renderer.
func DefaultLayout() Layout {
	return Layout{
		CommonBlockSize: DefaultCommonBlockSize,
		VSBlockSize:     DefaultVSBlockSize,
	}
}

type uniformBlockBinding struct {
	name    string
	binding UniformBinding
	size    func(Layout) int
}

var uniformBlockBindings = []uniformBlockBinding{
	{"shader_data", UniformBindingCommon, func(l Layout) int { return l.CommonBlockSize }},
	{"vs_config", UniformBindingVS, func(l Layout) int { return l.VSBlockSize }},
}

type unitBinding struct {
	name string
	unit int32
}

var samplerBindings = []unitBinding{
	{"tex0", int32(TextureUnitPica0)},
	{"tex1", int32(TextureUnitPica1)},
	{"tex2", int32(TextureUnitPica2)},
	{"tex_cube", int32(TextureUnitCube)},
	{"texture_buffer_lut_lf", int32(TextureUnitLUTLF)},
	{"texture_buffer_lut_rg", int32(TextureUnitLUTRG)},
	{"texture_buffer_lut_rgba", int32(TextureUnitLUTRGBA)},
}

var imageBindings = []unitBinding{
	{"shadow_buffer", int32(ImageUnitShadowBuffer)},
	{"shadow_texture_px", int32(ImageUnitShadowPX)},
	{"shadow_texture_nx", int32(ImageUnitShadowNX)},
	{"shadow_texture_py", int32(ImageUnitShadowPY)},
	{"shadow_texture_ny", int32(ImageUnitShadowNY)},
	{"shadow_texture_pz", int32(ImageUnitShadowPZ)},
	{"shadow_texture_nz", int32(ImageUnitShadowNZ)},
}

// bindingNegotiator resolves named resources of freshly created programs to
// the fixed binding numbers above. Names the compiler stripped are skipped.
type bindingNegotiator struct {
	driver Driver
	layout Layout
}

// negotiate binds uniform blocks and, when samplers is set, sampler and
// image units.
func (n *bindingNegotiator) negotiate(program Handle, samplers bool) error {
	if err := n.bindUniformBlocks(program); err != nil {
		return err
	}
	if samplers {
		n.bindSamplers(program)
	}
	return nil
}

func (n *bindingNegotiator) bindUniformBlocks(program Handle) error {
	for _, b := range uniformBlockBindings {
		index, ok := n.driver.UniformBlockIndex(program, b.name)
		if !ok {
			continue
		}
		got, want := n.driver.UniformBlockSize(program, index), b.size(n.layout)
		if got != want {
			return &BlockSizeError{Block: b.name, Got: got, Want: want}
		}
		n.driver.UniformBlockBinding(program, index, uint32(b.binding))
	}
	return nil
}

// bindSamplers sets sampler and image uniforms, which apply to the current
// program. The previously current program is restored on return.
func (n *bindingNegotiator) bindSamplers(program Handle) {
	previous := n.driver.UseProgram(program)
	defer n.driver.UseProgram(previous)

	for _, b := range samplerBindings {
		if loc := n.driver.UniformLocation(program, b.name); loc != -1 {
			n.driver.Uniform1i(loc, b.unit)
		}
	}
	for _, b := range imageBindings {
		if loc := n.driver.UniformLocation(program, b.name); loc != -1 {
			n.driver.Uniform1i(loc, b.unit)
		}
	}
}
