package shadercache

import "fmt"

// Handle names a driver-resident object: a compiled shader, a program or a
// pipeline object. Zero is never a valid object.
type Handle uint32

// StageKind identifies one stage of the emulated pipeline.
type StageKind uint8

// Pipeline stages, in assembly order.
const (
	StageVertex StageKind = iota
	StageGeometry
	StageFragment

	numStageKinds
)

// String returns the stage name.
func (k StageKind) String() string {
	switch k {
	case StageVertex:
		return "vertex"
	case StageGeometry:
		return "geometry"
	case StageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("StageKind(%d)", uint8(k))
	}
}

// Bit returns the pipeline slot mask for k.
func (k StageKind) Bit() StageBits {
	return 1 << k
}

// StageBits is a set of pipeline object stage slots.
type StageBits uint8

// Pipeline object slot masks.
const (
	VertexBit   = StageBits(1 << StageVertex)
	GeometryBit = StageBits(1 << StageGeometry)
	FragmentBit = StageBits(1 << StageFragment)

	AllStageBits = VertexBit | GeometryBit | FragmentBit
)

// DriverInfo describes the graphics driver, read once at startup.
type DriverInfo struct {
	Vendor   string
	Renderer string
	Version  string

	// SeparableShaderObjects reports support for independently linked
	// stages bound through pipeline objects.
	SeparableShaderObjects bool
}

// Driver is the graphics driver surface used by the manager.
//
// All calls happen on the goroutine that owns the graphics context. Lookup
// methods report absence with a false flag or a -1 location rather than an
// error: absence is expected when the compiler strips unused declarations.
type Driver interface {
	// Info describes the driver and its capabilities.
	Info() DriverInfo

	// CompileShader compiles source for one stage.
	CompileShader(kind StageKind, source string) (Handle, error)

	// DeleteShader releases a compiled shader.
	DeleteShader(shader Handle)

	// LinkProgram links the given shaders into a program. Zero handles are
	// skipped. A separable program can be bound to pipeline object slots.
	LinkProgram(separable bool, shaders ...Handle) (Handle, error)

	// DeleteProgram releases a linked program.
	DeleteProgram(program Handle)

	// ProgramBinary exports a linked program. An empty result means the
	// driver cannot export this program.
	ProgramBinary(program Handle) (format uint32, data []byte)

	// LoadProgramBinary recreates a program from an exported binary.
	// It returns 0 when the driver rejects the format or the bytes.
	LoadProgramBinary(format uint32, data []byte) Handle

	// UniformBlockIndex resolves a named uniform block.
	UniformBlockIndex(program Handle, name string) (index uint32, ok bool)

	// UniformBlockSize reports the data size in bytes of a uniform block.
	UniformBlockSize(program Handle, index uint32) int

	// UniformBlockBinding assigns a uniform block to a binding point.
	UniformBlockBinding(program Handle, index, binding uint32)

	// UniformLocation resolves a named sampler or image uniform,
	// returning -1 when the program does not use it.
	UniformLocation(program Handle, name string) int32

	// Uniform1i sets an integer uniform of the current program.
	Uniform1i(location, value int32)

	// UseProgram makes program current and returns the previously
	// current program.
	UseProgram(program Handle) (previous Handle)

	// CreatePipeline creates an empty pipeline object.
	CreatePipeline() (Handle, error)

	// DeletePipeline releases a pipeline object.
	DeletePipeline(pipeline Handle)

	// UseProgramStages binds program to the given slots of pipeline.
	// A zero program clears the slots.
	UseProgramStages(pipeline Handle, stages StageBits, program Handle)
}

// DriverState is the part of the host state tracker that selects what the
// next draw call executes. Exactly one of the fields is non-zero after
// Assemble.
type DriverState struct {
	// Program is the monolithic program to use.
	Program Handle

	// Pipeline is the pipeline object aggregating separable stages.
	Pipeline Handle
}
