package shadercache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gogpu/shadercache/config"
)

func TestIsAMD(t *testing.T) {
	tests := []struct {
		vendor string
		want   bool
	}{
		{"ATI Technologies Inc.", true},
		{"Advanced Micro Devices, Inc.", true},
		{"AMD", true},
		{"amd", true},
		{"NVIDIA Corporation", false},
		{"Intel", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAMD(tt.vendor), "IsAMD(%q)", tt.vendor)
	}
}

func TestDetectProfile(t *testing.T) {
	on := config.Default()
	off := config.Default()
	off.SeparableShader = false

	sso := DriverInfo{Vendor: "Intel", SeparableShaderObjects: true}
	assert.Equal(t, Profile{Separable: true}, DetectProfile(sso, on))
	assert.Equal(t, Profile{}, DetectProfile(sso, off))
	assert.Equal(t, Profile{}, DetectProfile(DriverInfo{Vendor: "Intel"}, on))
	assert.Equal(t, Profile{ResetStagesOnRebind: true}, DetectProfile(DriverInfo{Vendor: "AMD"}, off))
}

// stageRecorder records UseProgramStages calls. Other Driver methods are
// unused by rebindStages.
type stageRecorder struct {
	Driver
	calls [][3]uint32
}

func (r *stageRecorder) UseProgramStages(pipeline Handle, stages StageBits, program Handle) {
	r.calls = append(r.calls, [3]uint32{uint32(pipeline), uint32(stages), uint32(program)})
}

func TestRebindStages(t *testing.T) {
	r := &stageRecorder{}
	rebindStages(r, 7, false, 1, 0, 3)
	assert.Equal(t, [][3]uint32{
		{7, uint32(VertexBit), 1},
		{7, uint32(GeometryBit), 0},
		{7, uint32(FragmentBit), 3},
	}, r.calls)

	r = &stageRecorder{}
	rebindStages(r, 7, true, 1, 2, 3)
	assert.Equal(t, [][3]uint32{
		{7, uint32(AllStageBits), 0},
		{7, uint32(VertexBit), 1},
		{7, uint32(GeometryBit), 2},
		{7, uint32(FragmentBit), 3},
	}, r.calls)
}

func TestStageKind(t *testing.T) {
	assert.Equal(t, "vertex", StageVertex.String())
	assert.Equal(t, "geometry", StageGeometry.String())
	assert.Equal(t, "fragment", StageFragment.String())
	assert.Equal(t, "StageKind(9)", StageKind(9).String())
	assert.Equal(t, FragmentBit, StageFragment.Bit())
	assert.Equal(t, StageBits(7), AllStageBits)
}

func TestCombinedHashOrder(t *testing.T) {
	a := &compiledStage{kind: StageVertex, shader: 1, hash: 10}
	b := &compiledStage{kind: StageGeometry, hash: 0}
	c := &compiledStage{kind: StageFragment, shader: 2, hash: 30}

	assert.Equal(t, combinedHash(a, b, c), combinedHash(a, b, c))
	assert.NotEqual(t, combinedHash(a, b, c), combinedHash(c, b, a))
	// Handles do not participate.
	a2 := &compiledStage{kind: StageVertex, shader: 99, hash: 10}
	assert.Equal(t, combinedHash(a, b, c), combinedHash(a2, b, c))
}
