package native

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadercache"
)

// DefaultVertexBuffers is the vertex layout of the emulated hardware
// vertex: position, color, two texture coordinates, the third coordinate's
// w, the normal quaternion and the view vector, all float32.
var DefaultVertexBuffers = []gputypes.VertexBufferLayout{
	{
		ArrayStride: 20 * 4,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 32, ShaderLocation: 2},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 40, ShaderLocation: 3},
			{Format: gputypes.VertexFormatFloat32, Offset: 48, ShaderLocation: 4},
			{Format: gputypes.VertexFormatFloat32x4, Offset: 52, ShaderLocation: 5},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 68, ShaderLocation: 6},
		},
	},
}

// renderPipeline holds the HAL objects backing one vertex+fragment pair.
type renderPipeline struct {
	groups   []hal.BindGroupLayout
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline
}

// destroy releases the pipeline in reverse creation order. Safe on a
// partially built pipeline.
func (p *renderPipeline) destroy(device hal.Device) {
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	for _, g := range p.groups {
		if g != nil {
			device.DestroyBindGroupLayout(g)
		}
	}
	p.groups = nil
}

// bindGroupEntries builds one layout entry list per bind group from the
// resources both stages declare. Groups are dense from 0; a group neither
// stage uses gets an empty layout. A resource declared by both stages is
// visible to both.
func bindGroupEntries(stages ...*stageCode) [][]gputypes.BindGroupLayoutEntry {
	type slot struct{ group, binding uint32 }
	index := make(map[slot]int)
	var flat []gputypes.BindGroupLayoutEntry
	var groupOf []uint32
	maxGroup := -1

	for _, s := range stages {
		for _, r := range s.resources {
			k := slot{r.group, r.binding}
			i, ok := index[k]
			if !ok {
				i = len(flat)
				index[k] = i
				flat = append(flat, layoutEntry(r))
				groupOf = append(groupOf, r.group)
				maxGroup = max(maxGroup, int(r.group))
			}
			if s.kind == shadercache.StageVertex {
				flat[i].Visibility |= gputypes.ShaderStageVertex
			} else {
				flat[i].Visibility |= gputypes.ShaderStageFragment
			}
		}
	}

	groups := make([][]gputypes.BindGroupLayoutEntry, maxGroup+1)
	for i, e := range flat {
		groups[groupOf[i]] = append(groups[groupOf[i]], e)
	}
	for _, g := range groups {
		slices.SortFunc(g, func(a, b gputypes.BindGroupLayoutEntry) int {
			return int(a.Binding) - int(b.Binding)
		})
	}
	return groups
}

func layoutEntry(r resource) gputypes.BindGroupLayoutEntry {
	e := gputypes.BindGroupLayoutEntry{Binding: r.binding}
	view := gputypes.TextureViewDimension2D
	if r.cube {
		view = gputypes.TextureViewDimensionCube
	}
	switch r.class {
	case classUniform:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case classSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case classTexture:
		e.Texture = &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeFloat, ViewDimension: view}
	case classDepthTexture:
		e.Texture = &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeDepth, ViewDimension: view}
	case classStorageImage:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        gputypes.TextureFormatR32Uint,
			ViewDimension: view,
		}
	}
	return e
}

// buildPipeline creates the bind group layouts, pipeline layout and render
// pipeline for a vertex and fragment stage.
func (d *Device) buildPipeline(label string, vs, fs *stageCode) (*renderPipeline, error) {
	if vs == nil || fs == nil {
		return nil, ErrIncompleteProgram
	}

	p := &renderPipeline{}
	for i, entries := range bindGroupEntries(vs, fs) {
		g, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_group%d", label, i),
			Entries: entries,
		})
		if err != nil {
			p.destroy(d.device)
			return nil, fmt.Errorf("native: create bind group layout %d: %w", i, err)
		}
		p.groups = append(p.groups, g)
	}

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_layout",
		BindGroupLayouts: p.groups,
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("native: create pipeline layout: %w", err)
	}
	p.layout = layout

	pipeline, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     vs.module,
			EntryPoint: vs.entry,
			Buffers:    d.vertexBuffers,
		},
		Fragment: &hal.FragmentState{
			Module:     fs.module,
			EntryPoint: fs.entry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    d.colorFormat,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("native: create render pipeline: %w", err)
	}
	p.pipeline = pipeline
	return p, nil
}

// pipelineObject is the separable-mode aggregate of three stage slots.
// Render pipelines are built lazily per slot combination.
type pipelineObject struct {
	slots [3]shadercache.Handle
	built map[[2]shadercache.Handle]*renderPipeline
}

func (o *pipelineObject) destroy(device hal.Device) {
	for k, p := range o.built {
		p.destroy(device)
		delete(o.built, k)
	}
}

// forget drops built pipelines that reference program.
func (o *pipelineObject) forget(device hal.Device, program shadercache.Handle) {
	for k, p := range o.built {
		if k[0] == program || k[1] == program {
			p.destroy(device)
			delete(o.built, k)
		}
	}
}
