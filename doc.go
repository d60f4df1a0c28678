// Package shadercache turns hardware-derived pipeline configurations of an
// emulated GPU into ready-to-bind host GPU programs, compiling and linking
// each distinct configuration only once.
//
// # Overview
//
// The renderer describes the emulated pipeline for each draw call with three
// configuration keys, one per stage. A [ShaderProgramManager] maps each key
// to a compiled stage and the selected stages to something the driver can
// execute:
//
//	m, err := shadercache.New(driver, generator,
//	    shadercache.WithSettings(settings),
//	    shadercache.WithTitleID(titleID),
//	)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	ok, err := m.SelectVertexStage(vsKey)
//	if err != nil {
//	    return err
//	}
//	if !ok {
//	    m.SelectTrivialVertexStage()
//	}
//	m.SelectTrivialGeometryStage()
//	if err := m.SelectFragmentStage(fsKey); err != nil {
//	    return err
//	}
//
//	var state shadercache.DriverState
//	if err := m.Assemble(&state); err != nil {
//	    return err
//	}
//
// # Caching
//
// Stages are cached on two levels. A configuration key seen before is
// answered without generating source. A new key whose generated source was
// already compiled shares the existing stage.
//
// # Assembly
//
// When the driver supports separable shader objects each stage is its own
// program and assembly rebinds the slots of one pipeline object. Otherwise
// stages are linked into one program per combination, keyed by the combined
// hash of the three stage content hashes. Linked programs are exported as
// driver binaries and persisted per title by package binarycache, so a later
// run can skip linking.
//
// # Drivers
//
// The manager talks to the graphics driver through the [Driver] interface.
// Package backend/native implements it on a WebGPU HAL device with WGSL
// compiled by naga.
//
// # Logging
//
// The package logs through [log/slog]. By default nothing is printed; use
// [SetLogger] or [WithLogger] to enable output.
package shadercache
