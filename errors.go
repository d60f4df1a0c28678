package shadercache

import (
	"errors"
	"fmt"
)

// Manager errors.
var (
	// ErrNilDriver is returned when creating a manager without a driver.
	ErrNilDriver = errors.New("shadercache: driver is nil")

	// ErrNilGenerator is returned when creating a manager without a generator.
	ErrNilGenerator = errors.New("shadercache: generator is nil")

	// ErrCompileLink reports a driver compile or link failure. Inputs are
	// deterministic, so the same request would fail again.
	ErrCompileLink = errors.New("shadercache: compile/link failed")

	// ErrBlockSize reports a uniform block whose size disagrees with the
	// host data layout.
	ErrBlockSize = errors.New("shadercache: uniform block size mismatch")

	// ErrNoSource is returned when the generator declines to produce a
	// geometry or fragment stage.
	ErrNoSource = errors.New("shadercache: generator returned no source")

	// ErrNoStage is returned by Assemble when a stage was not selected.
	ErrNoStage = errors.New("shadercache: stage not selected")

	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("shadercache: manager closed")
)

// CompileError describes a stage the driver failed to build.
type CompileError struct {
	Kind       StageKind
	SourceHash uint64
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shadercache: build %s stage %016x: %v", e.Kind, e.SourceHash, e.Err)
}

// Unwrap returns ErrCompileLink and the driver error.
func (e *CompileError) Unwrap() []error {
	return []error{ErrCompileLink, e.Err}
}

// LinkError describes a monolithic program the driver failed to link.
type LinkError struct {
	Hash uint64
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("shadercache: link program %016x: %v", e.Hash, e.Err)
}

// Unwrap returns ErrCompileLink and the driver error.
func (e *LinkError) Unwrap() []error {
	return []error{ErrCompileLink, e.Err}
}

// BlockSizeError reports a uniform block size mismatch.
type BlockSizeError struct {
	Block string
	Got   int
	Want  int
}

func (e *BlockSizeError) Error() string {
	return fmt.Sprintf("shadercache: uniform block %q is %d bytes, want %d", e.Block, e.Got, e.Want)
}

// Unwrap returns ErrBlockSize.
func (e *BlockSizeError) Unwrap() error {
	return ErrBlockSize
}
