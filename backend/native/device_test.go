package native

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/shadercache"
	"github.com/gogpu/shadercache/config"
	"github.com/gogpu/shadercache/hashkey"
)

const vertexSource = `
struct ShaderData {
    data: array<vec4<f32>, 79>,
}

@group(0) @binding(0) var<uniform> shader_data: ShaderData;

@vertex
fn vs_main(@location(0) position: vec4<f32>) -> @builtin(position) vec4<f32> {
    return position * shader_data.data[0].x;
}
`

const fragmentSource = `
struct ShaderData {
    data: array<vec4<f32>, 79>,
}

@group(0) @binding(0) var<uniform> shader_data: ShaderData;
@group(1) @binding(0) var tex0: texture_2d<f32>;
@group(1) @binding(1) var tex0_sampler: sampler;

@fragment
fn fs_main(@builtin(position) pos: vec4<f32>) -> @location(0) vec4<f32> {
    return textureSample(tex0, tex0_sampler, pos.xy) * shader_data.data[0];
}
`

// createNoopDevice creates a noop HAL device for testing.
func createNoopDevice(t *testing.T) hal.Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device
}

func newDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	d, err := New(createNoopDevice(t), opts...)
	require.NoError(t, err)
	t.Cleanup(d.Destroy)
	return d
}

// wgslGenerator serves one vertex and one fragment source for every key.
type wgslGenerator struct{}

func (wgslGenerator) Generate(kind shadercache.StageKind, _ hashkey.Key, _ bool) (string, bool) {
	switch kind {
	case shadercache.StageVertex:
		return vertexSource, true
	case shadercache.StageFragment:
		return fragmentSource, true
	default:
		return "", false
	}
}

func (wgslGenerator) TrivialVertex(bool) string { return vertexSource }

func TestNewNilDevice(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilDevice)
}

func TestInfo(t *testing.T) {
	d := newDevice(t, WithAdapterInfo("AMD", "Radeon"))
	info := d.Info()
	assert.Equal(t, "AMD", info.Vendor)
	assert.Equal(t, "Radeon", info.Renderer)
	assert.True(t, info.SeparableShaderObjects)
}

func TestCompileShaderReflects(t *testing.T) {
	d := newDevice(t)

	h, err := d.CompileShader(shadercache.StageVertex, vertexSource)
	require.NoError(t, err)
	code := d.shaders[h]
	require.NotNil(t, code)

	assert.Equal(t, "vs_main", code.entry)
	require.NotEmpty(t, code.spirv)
	assert.Equal(t, uint32(0x07230203), code.spirv[0], "SPIR-V magic")
	require.Len(t, code.resources, 1)
	assert.Equal(t, resource{
		name:  "shader_data",
		class: classUniform,
		size:  shadercache.DefaultCommonBlockSize,
	}, code.resources[0])
	assert.NotNil(t, code.module)

	d.DeleteShader(h)
	assert.Zero(t, d.Live())
	assert.Nil(t, code.module)
}

func TestCompileShaderErrors(t *testing.T) {
	d := newDevice(t)

	_, err := d.CompileShader(shadercache.StageGeometry, vertexSource)
	assert.ErrorIs(t, err, ErrStageUnsupported)

	_, err = d.CompileShader(shadercache.StageFragment, vertexSource)
	assert.ErrorIs(t, err, ErrNoEntryPoint)

	_, err = d.CompileShader(shadercache.StageVertex, "fn (")
	assert.Error(t, err)
	assert.Zero(t, d.Live())
}

func TestLinkProgram(t *testing.T) {
	d := newDevice(t)
	vs, err := d.CompileShader(shadercache.StageVertex, vertexSource)
	require.NoError(t, err)
	fs, err := d.CompileShader(shadercache.StageFragment, fragmentSource)
	require.NoError(t, err)

	_, err = d.LinkProgram(false, vs)
	assert.ErrorIs(t, err, ErrIncompleteProgram)
	_, err = d.LinkProgram(true, vs, fs)
	assert.Error(t, err)
	_, err = d.LinkProgram(false, vs, 999)
	assert.ErrorIs(t, err, ErrUnknownHandle)

	// Zero handles are skipped.
	p, err := d.LinkProgram(false, vs, 0, fs)
	require.NoError(t, err)

	// Shaders can go once linked.
	d.DeleteShader(vs)
	d.DeleteShader(fs)
	pipeline, err := d.RenderPipeline(shadercache.DriverState{Program: p})
	require.NoError(t, err)
	assert.NotNil(t, pipeline)

	idx, ok := d.UniformBlockIndex(p, "shader_data")
	require.True(t, ok)
	assert.Equal(t, shadercache.DefaultCommonBlockSize, d.UniformBlockSize(p, idx))
	_, ok = d.UniformBlockIndex(p, "vs_config")
	assert.False(t, ok)
	assert.Equal(t, int32(-1), d.UniformLocation(p, "tex1"))
	assert.Equal(t, int32(-1), d.UniformLocation(p, "shader_data"))

	d.DeleteProgram(p)
	assert.Zero(t, d.Live())
}

func TestSeparableManager(t *testing.T) {
	d := newDevice(t)
	m, err := shadercache.New(d, wgslGenerator{})
	require.NoError(t, err)
	require.True(t, m.Profile().Separable)

	ok, err := m.SelectVertexStage(hashkey.Raw{1})
	require.NoError(t, err)
	require.True(t, ok)
	m.SelectTrivialGeometryStage()
	require.NoError(t, m.SelectFragmentStage(hashkey.Raw{2}))

	var state shadercache.DriverState
	require.NoError(t, m.Assemble(&state))
	require.NotZero(t, state.Pipeline)

	pipeline, err := d.RenderPipeline(state)
	require.NoError(t, err)
	assert.NotNil(t, pipeline)
	_, err = d.RenderPipeline(state)
	require.NoError(t, err)
	o := d.pipelines[state.Pipeline]
	assert.Len(t, o.built, 1)

	b, ok := d.Bindings(o.slots[shadercache.StageFragment])
	require.True(t, ok)
	assert.Equal(t, map[string]uint32{"shader_data": 0}, b.Blocks)
	assert.Equal(t, map[string]int32{"tex0": 0}, b.Units)

	require.NoError(t, m.Close())
	assert.Zero(t, d.Live())
}

func TestSelectGeometryUnsupported(t *testing.T) {
	m, err := shadercache.New(newDevice(t), geometryGenerator{})
	require.NoError(t, err)
	defer m.Close()

	err = m.SelectGeometryStage(hashkey.Raw{1})
	assert.ErrorIs(t, err, shadercache.ErrCompileLink)
	assert.ErrorIs(t, err, ErrStageUnsupported)
}

type geometryGenerator struct{ wgslGenerator }

func (geometryGenerator) Generate(shadercache.StageKind, hashkey.Key, bool) (string, bool) {
	return vertexSource, true
}

func TestMonolithicBinaryRoundTrip(t *testing.T) {
	s := config.Default()
	s.CacheDir = t.TempDir()
	opts := []shadercache.Option{
		shadercache.WithSettings(s),
		shadercache.WithTitleID(1),
		shadercache.WithProfile(shadercache.Profile{}),
	}
	hd := createNoopDevice(t)

	run := func() (shadercache.Stats, *Device) {
		d, err := New(hd)
		require.NoError(t, err)
		m, err := shadercache.New(d, wgslGenerator{}, opts...)
		require.NoError(t, err)

		m.SelectTrivialVertexStage()
		m.SelectTrivialGeometryStage()
		require.NoError(t, m.SelectFragmentStage(hashkey.Raw{2}))
		var state shadercache.DriverState
		require.NoError(t, m.Assemble(&state))

		pipeline, err := d.RenderPipeline(state)
		require.NoError(t, err)
		assert.NotNil(t, pipeline)

		b, ok := d.Bindings(state.Program)
		require.True(t, ok)
		assert.Equal(t, map[string]int32{"tex0": 0}, b.Units)

		st := m.Stats()
		require.NoError(t, m.Close())
		return st, d
	}

	first, d1 := run()
	assert.Equal(t, uint64(1), first.Links)
	assert.Zero(t, d1.Live())

	second, d2 := run()
	assert.Zero(t, second.Links)
	assert.Equal(t, uint64(1), second.BinaryLoads)
	assert.Zero(t, d2.Live())
}

func TestLoadProgramBinaryRejects(t *testing.T) {
	d := newDevice(t)
	vs, err := d.CompileShader(shadercache.StageVertex, vertexSource)
	require.NoError(t, err)
	fs, err := d.CompileShader(shadercache.StageFragment, fragmentSource)
	require.NoError(t, err)
	p, err := d.LinkProgram(false, vs, fs)
	require.NoError(t, err)

	format, data := d.ProgramBinary(p)
	require.Equal(t, BinaryFormat, format)
	require.NotEmpty(t, data)

	assert.NotZero(t, d.LoadProgramBinary(format, data))
	assert.Zero(t, d.LoadProgramBinary(format+1, data))
	assert.Zero(t, d.LoadProgramBinary(format, data[:len(data)/2]))

	other := newDevice(t, WithAdapterInfo("gogpu", "other"))
	assert.Zero(t, other.LoadProgramBinary(format, data))
	assert.Zero(t, other.Live())

	sep, err := d.LinkProgram(true, vs)
	require.NoError(t, err)
	_, data = d.ProgramBinary(sep)
	assert.Empty(t, data)
}
