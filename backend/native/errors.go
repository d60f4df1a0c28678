package native

import "errors"

// Package errors for the native driver.
var (
	// ErrNilDevice is returned when creating a driver without a HAL device.
	ErrNilDevice = errors.New("native: HAL device is nil")

	// ErrStageUnsupported is returned for stages WebGPU has no equivalent
	// for. Geometry stages must be left empty.
	ErrStageUnsupported = errors.New("native: stage not supported")

	// ErrNoEntryPoint is returned when a shader has no entry point for the
	// requested stage.
	ErrNoEntryPoint = errors.New("native: no entry point for stage")

	// ErrUnknownHandle is returned for handles this driver did not create.
	ErrUnknownHandle = errors.New("native: unknown handle")

	// ErrIncompleteProgram is returned when linking or drawing without both
	// a vertex and a fragment stage.
	ErrIncompleteProgram = errors.New("native: program needs vertex and fragment stages")

	// ErrBadBinary is returned when a program binary cannot be decoded.
	ErrBadBinary = errors.New("native: malformed program binary")
)
