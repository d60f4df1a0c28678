// Package native implements shadercache.Driver on a gogpu/wgpu HAL device.
//
// Stage sources are WGSL. naga parses them, reflects their uniform blocks,
// samplers and images, and emits SPIR-V for the HAL shader module. Linking
// a monolithic program creates its bind group layouts, pipeline layout and
// render pipeline; separable programs are combined into a render pipeline
// on demand by RenderPipeline.
//
//	dev, err := native.New(halDevice, native.WithAdapterInfo(info.Vendor, info.Name))
//	if err != nil {
//	    return err
//	}
//	defer dev.Destroy()
//
//	m, err := shadercache.New(dev, generator)
//	...
//	if err := m.Assemble(&state); err != nil {
//	    return err
//	}
//	pipeline, err := dev.RenderPipeline(state)
//
// Program binaries carry SPIR-V together with the reflection data and are
// tagged with the renderer name, so binaries from another adapter are
// rejected and relinked.
package native
