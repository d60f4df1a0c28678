package native

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadercache"
)

// Device implements shadercache.Driver on a WebGPU HAL device. Shaders are
// WGSL, compiled to SPIR-V by naga.
//
// WebGPU fixes resource slots in the shader and has no geometry stage. The
// binding numbers negotiated through the Driver interface are therefore
// recorded per program (see Bindings) for the host to route its buffers and
// textures with, while the bind group layouts follow the declared
// @group/@binding attributes. Geometry stages must be left empty.
//
// A Device is not safe for concurrent use.
type Device struct {
	device        hal.Device
	log           *slog.Logger
	info          shadercache.DriverInfo
	colorFormat   gputypes.TextureFormat
	vertexBuffers []gputypes.VertexBufferLayout

	next      shadercache.Handle
	shaders   map[shadercache.Handle]*stageCode
	programs  map[shadercache.Handle]*program
	pipelines map[shadercache.Handle]*pipelineObject
	current   shadercache.Handle
}

var _ shadercache.Driver = (*Device)(nil)

// program is a linked program: one stage when separable, a vertex and a
// fragment stage with a render pipeline otherwise.
type program struct {
	separable bool
	stages    []*stageCode // vertex first
	resources []resource
	pipe      *renderPipeline

	blocks map[string]uint32
	units  map[string]int32
}

func (p *program) stage(kind shadercache.StageKind) *stageCode {
	for _, s := range p.stages {
		if s.kind == kind {
			return s
		}
	}
	return nil
}

// ProgramBindings are the binding numbers negotiated for a program.
type ProgramBindings struct {
	// Blocks maps uniform block names to binding points.
	Blocks map[string]uint32

	// Units maps sampler and image names to unit numbers.
	Units map[string]int32
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger. Defaults to shadercache.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// WithAdapterInfo sets the vendor and renderer reported by Info. The
// renderer also tags exported program binaries.
func WithAdapterInfo(vendor, renderer string) Option {
	return func(d *Device) {
		d.info.Vendor = vendor
		d.info.Renderer = renderer
	}
}

// WithColorFormat sets the render target format. Defaults to BGRA8Unorm.
func WithColorFormat(f gputypes.TextureFormat) Option {
	return func(d *Device) {
		d.colorFormat = f
	}
}

// WithVertexBuffers sets the vertex buffer layout of every render
// pipeline. Defaults to DefaultVertexBuffers.
func WithVertexBuffers(layouts []gputypes.VertexBufferLayout) Option {
	return func(d *Device) {
		d.vertexBuffers = layouts
	}
}

// New creates a driver on device.
func New(device hal.Device, opts ...Option) (*Device, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	d := &Device{
		device: device,
		info: shadercache.DriverInfo{
			Vendor:                 "gogpu",
			Renderer:               "wgpu-hal",
			Version:                "naga/spirv",
			SeparableShaderObjects: true,
		},
		colorFormat:   gputypes.TextureFormatBGRA8Unorm,
		vertexBuffers: DefaultVertexBuffers,
		shaders:       make(map[shadercache.Handle]*stageCode),
		programs:      make(map[shadercache.Handle]*program),
		pipelines:     make(map[shadercache.Handle]*pipelineObject),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = shadercache.Logger()
	}
	return d, nil
}

func (d *Device) handle() shadercache.Handle {
	d.next++
	return d.next
}

// Info describes the driver. Stages are always separable.
func (d *Device) Info() shadercache.DriverInfo {
	return d.info
}

// CompileShader compiles WGSL source for a vertex or fragment stage.
func (d *Device) CompileShader(kind shadercache.StageKind, source string) (shadercache.Handle, error) {
	if kind == shadercache.StageGeometry {
		return 0, fmt.Errorf("%w: %s", ErrStageUnsupported, kind)
	}
	code, err := compileStage(kind, source)
	if err != nil {
		return 0, err
	}
	if err := d.createModule(code); err != nil {
		return 0, err
	}
	h := d.handle()
	d.shaders[h] = code
	d.log.Debug("native: shader compiled", "kind", kind, "handle", h, "words", len(code.spirv))
	return h, nil
}

func (d *Device) createModule(code *stageCode) error {
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  code.kind.String() + "_" + code.entry,
		Source: hal.ShaderSource{SPIRV: code.spirv},
	})
	if err != nil {
		return fmt.Errorf("native: create %s shader module: %w", code.kind, err)
	}
	code.module = module
	code.refs = 1
	return nil
}

func (d *Device) release(code *stageCode) {
	code.refs--
	if code.refs == 0 && code.module != nil {
		d.device.DestroyShaderModule(code.module)
		code.module = nil
	}
}

// DeleteShader releases a shader. Programs linked from it keep the module.
func (d *Device) DeleteShader(shader shadercache.Handle) {
	if code, ok := d.shaders[shader]; ok {
		delete(d.shaders, shader)
		d.release(code)
	}
}

// LinkProgram links shaders into a program. A separable program holds a
// single stage; a monolithic program needs a vertex and a fragment stage
// and creates its render pipeline here.
func (d *Device) LinkProgram(separable bool, shaders ...shadercache.Handle) (shadercache.Handle, error) {
	var stages []*stageCode
	for _, h := range shaders {
		if h == 0 {
			continue
		}
		code, ok := d.shaders[h]
		if !ok {
			return 0, fmt.Errorf("%w: shader %d", ErrUnknownHandle, h)
		}
		stages = append(stages, code)
	}
	if separable && len(stages) != 1 {
		return 0, fmt.Errorf("native: separable program needs one stage, got %d", len(stages))
	}
	return d.newProgram(separable, stages)
}

func (d *Device) newProgram(separable bool, stages []*stageCode) (shadercache.Handle, error) {
	p := &program{
		separable: separable,
		blocks:    make(map[string]uint32),
		units:     make(map[string]int32),
	}
	// Vertex first, so ordering of resources and binaries is stable.
	for _, kind := range []shadercache.StageKind{shadercache.StageVertex, shadercache.StageFragment} {
		for _, s := range stages {
			if s.kind == kind {
				p.stages = append(p.stages, s)
			}
		}
	}
	if len(p.stages) != len(stages) {
		return 0, fmt.Errorf("%w: geometry", ErrStageUnsupported)
	}

	seen := make(map[string]bool)
	for _, s := range p.stages {
		for _, r := range s.resources {
			if !seen[r.name] {
				seen[r.name] = true
				p.resources = append(p.resources, r)
			}
		}
	}

	h := d.handle()
	if !separable {
		if len(p.stages) != 2 || p.stage(shadercache.StageVertex) == nil || p.stage(shadercache.StageFragment) == nil {
			return 0, ErrIncompleteProgram
		}
		pipe, err := d.buildPipeline(fmt.Sprintf("program%d", h), p.stages[0], p.stages[1])
		if err != nil {
			return 0, err
		}
		p.pipe = pipe
	}
	for _, s := range p.stages {
		s.refs++
	}
	d.programs[h] = p
	return h, nil
}

// DeleteProgram releases a program and every pipeline built from it.
func (d *Device) DeleteProgram(h shadercache.Handle) {
	p, ok := d.programs[h]
	if !ok {
		return
	}
	delete(d.programs, h)
	for _, o := range d.pipelines {
		o.forget(d.device, h)
	}
	if p.pipe != nil {
		p.pipe.destroy(d.device)
	}
	for _, s := range p.stages {
		d.release(s)
	}
	if d.current == h {
		d.current = 0
	}
}

// ProgramBinary exports a monolithic program as SPIR-V with its
// reflection data. Separable programs are not exported.
func (d *Device) ProgramBinary(h shadercache.Handle) (uint32, []byte) {
	p, ok := d.programs[h]
	if !ok || p.separable {
		return 0, nil
	}
	return BinaryFormat, encodeProgram(d.info.Renderer, p.stages)
}

// LoadProgramBinary recreates a monolithic program. Binaries from another
// renderer or that fail to decode are rejected with 0.
func (d *Device) LoadProgramBinary(format uint32, data []byte) shadercache.Handle {
	if format != BinaryFormat {
		return 0
	}
	renderer, stages, err := decodeProgram(data)
	if err != nil {
		d.log.Debug("native: rejected program binary", "err", err)
		return 0
	}
	if renderer != d.info.Renderer {
		d.log.Debug("native: rejected program binary from another renderer", "renderer", renderer)
		return 0
	}

	for i, s := range stages {
		if err := d.createModule(s); err != nil {
			for _, c := range stages[:i] {
				d.release(c)
			}
			d.log.Debug("native: rejected program binary", "err", err)
			return 0
		}
	}
	h, err := d.newProgram(false, stages)
	// newProgram took its own references.
	for _, s := range stages {
		d.release(s)
	}
	if err != nil {
		d.log.Debug("native: rejected program binary", "err", err)
		return 0
	}
	return h
}

func (d *Device) resource(h shadercache.Handle, index int, class func(resourceClass) bool) (*program, *resource) {
	p, ok := d.programs[h]
	if !ok || index < 0 || index >= len(p.resources) || !class(p.resources[index].class) {
		return nil, nil
	}
	return p, &p.resources[index]
}

func isBlock(c resourceClass) bool { return c == classUniform }
func isUnit(c resourceClass) bool  { return c != classUniform }

// UniformBlockIndex resolves a uniform block by variable name.
func (d *Device) UniformBlockIndex(h shadercache.Handle, name string) (uint32, bool) {
	p, ok := d.programs[h]
	if !ok {
		return 0, false
	}
	for i, r := range p.resources {
		if r.class == classUniform && r.name == name {
			return uint32(i), true //nolint:gosec // G115: bounded by resource count
		}
	}
	return 0, false
}

// UniformBlockSize returns the block's struct span.
func (d *Device) UniformBlockSize(h shadercache.Handle, index uint32) int {
	if _, r := d.resource(h, int(index), isBlock); r != nil {
		return int(r.size)
	}
	return 0
}

func (d *Device) UniformBlockBinding(h shadercache.Handle, index, binding uint32) {
	if p, r := d.resource(h, int(index), isBlock); r != nil {
		p.blocks[r.name] = binding
	}
}

// UniformLocation resolves a sampler, texture or image by variable name.
func (d *Device) UniformLocation(h shadercache.Handle, name string) int32 {
	p, ok := d.programs[h]
	if !ok {
		return -1
	}
	for i, r := range p.resources {
		if r.class != classUniform && r.name == name {
			return int32(i) //nolint:gosec // G115: bounded by resource count
		}
	}
	return -1
}

// Uniform1i records a unit number on the current program.
func (d *Device) Uniform1i(location, value int32) {
	if p, r := d.resource(d.current, int(location), isUnit); r != nil {
		p.units[r.name] = value
	}
}

func (d *Device) UseProgram(h shadercache.Handle) shadercache.Handle {
	previous := d.current
	d.current = h
	return previous
}

func (d *Device) CreatePipeline() (shadercache.Handle, error) {
	h := d.handle()
	d.pipelines[h] = &pipelineObject{built: make(map[[2]shadercache.Handle]*renderPipeline)}
	return h, nil
}

func (d *Device) DeletePipeline(h shadercache.Handle) {
	if o, ok := d.pipelines[h]; ok {
		o.destroy(d.device)
		delete(d.pipelines, h)
	}
}

func (d *Device) UseProgramStages(h shadercache.Handle, stages shadercache.StageBits, program shadercache.Handle) {
	o, ok := d.pipelines[h]
	if !ok {
		return
	}
	for kind := shadercache.StageVertex; kind <= shadercache.StageFragment; kind++ {
		if stages&kind.Bit() != 0 {
			o.slots[kind] = program
		}
	}
}

// RenderPipeline returns the HAL render pipeline for an assembled state:
// the program's own pipeline in monolithic mode, or the pipeline built for
// the current slots of the pipeline object in separable mode.
func (d *Device) RenderPipeline(state shadercache.DriverState) (hal.RenderPipeline, error) {
	if state.Pipeline == 0 {
		p, ok := d.programs[state.Program]
		if !ok || p.pipe == nil {
			return nil, fmt.Errorf("%w: program %d", ErrUnknownHandle, state.Program)
		}
		return p.pipe.pipeline, nil
	}

	o, ok := d.pipelines[state.Pipeline]
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %d", ErrUnknownHandle, state.Pipeline)
	}
	if o.slots[shadercache.StageGeometry] != 0 {
		return nil, fmt.Errorf("%w: geometry", ErrStageUnsupported)
	}
	key := [2]shadercache.Handle{o.slots[shadercache.StageVertex], o.slots[shadercache.StageFragment]}
	if p, ok := o.built[key]; ok {
		return p.pipeline, nil
	}

	vs, fs := d.programs[key[0]], d.programs[key[1]]
	if vs == nil || fs == nil {
		return nil, ErrIncompleteProgram
	}
	p, err := d.buildPipeline(fmt.Sprintf("pipeline%d_%d_%d", state.Pipeline, key[0], key[1]),
		vs.stage(shadercache.StageVertex), fs.stage(shadercache.StageFragment))
	if err != nil {
		return nil, err
	}
	o.built[key] = p
	return p.pipeline, nil
}

// Bindings returns the binding numbers negotiated for a program.
func (d *Device) Bindings(h shadercache.Handle) (ProgramBindings, bool) {
	p, ok := d.programs[h]
	if !ok {
		return ProgramBindings{}, false
	}
	return ProgramBindings{Blocks: maps.Clone(p.blocks), Units: maps.Clone(p.units)}, true
}

// Live returns the number of shaders, programs and pipeline objects not yet
// deleted.
func (d *Device) Live() int {
	return len(d.shaders) + len(d.programs) + len(d.pipelines)
}

// Destroy releases every object still alive. The HAL device itself is
// owned by the caller.
func (d *Device) Destroy() {
	for h := range d.pipelines {
		d.DeletePipeline(h)
	}
	for h := range d.programs {
		d.DeleteProgram(h)
	}
	for h := range d.shaders {
		d.DeleteShader(h)
	}
}
