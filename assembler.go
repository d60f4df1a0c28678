package shadercache

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/shadercache/binarycache"
	"github.com/gogpu/shadercache/hashkey"
)

// assembler turns the three selected stages into what the next draw call
// executes.
type assembler interface {
	assemble(vs, gs, fs Stage, state *DriverState) error
	release()
}

// separableAssembler rebinds the slots of one pipeline object.
type separableAssembler struct {
	driver   Driver
	pipeline Handle
	reset    bool
}

func newSeparableAssembler(d Driver, reset bool) (*separableAssembler, error) {
	pipeline, err := d.CreatePipeline()
	if err != nil {
		return nil, fmt.Errorf("shadercache: create pipeline: %w", err)
	}
	return &separableAssembler{driver: d, pipeline: pipeline, reset: reset}, nil
}

func (a *separableAssembler) assemble(vs, gs, fs Stage, state *DriverState) error {
	rebindStages(a.driver, a.pipeline, a.reset, vs.Handle(), gs.Handle(), fs.Handle())
	state.Program = 0
	state.Pipeline = a.pipeline
	return nil
}

func (a *separableAssembler) release() {
	if a.pipeline != 0 {
		a.driver.DeletePipeline(a.pipeline)
		a.pipeline = 0
	}
}

// monolithicAssembler links one program per stage combination, keyed by the
// combined hash of the three stage content hashes.
//
// programs holds only valid handles; a failed link leaves no entry behind so
// the next request links again. binaries holds the driver-exported form of
// programs, loaded from and saved to the per-title cache file.
type monolithicAssembler struct {
	driver     Driver
	negotiator *bindingNegotiator
	log        *slog.Logger

	programs map[uint64]Handle
	binaries map[uint64]binarycache.Entry

	programHits    uint64
	links          uint64
	binaryLoads    uint64
	binaryRejected uint64
}

func newMonolithicAssembler(d Driver, n *bindingNegotiator, log *slog.Logger) *monolithicAssembler {
	return &monolithicAssembler{
		driver:     d,
		negotiator: n,
		log:        log,
		programs:   make(map[uint64]Handle),
		binaries:   make(map[uint64]binarycache.Entry),
	}
}

// combinedHash identifies a stage combination. Order is vs, gs, fs.
func combinedHash(vs, gs, fs Stage) uint64 {
	return hashkey.Combine(vs.ContentHash(), gs.ContentHash(), fs.ContentHash())
}

func (a *monolithicAssembler) assemble(vs, gs, fs Stage, state *DriverState) error {
	hash := combinedHash(vs, gs, fs)
	program, ok := a.programs[hash]
	if ok {
		a.programHits++
	} else {
		var err error
		program, err = a.create(hash, vs.Handle(), gs.Handle(), fs.Handle())
		if err != nil {
			return err
		}
		if err := a.negotiator.negotiate(program, true); err != nil {
			a.driver.DeleteProgram(program)
			return err
		}
		a.programs[hash] = program
	}
	state.Program = program
	state.Pipeline = 0
	return nil
}

// create obtains a program for hash, preferring a stored binary over
// linking from the compiled stages.
func (a *monolithicAssembler) create(hash uint64, vs, gs, fs Handle) (Handle, error) {
	if entry, ok := a.binaries[hash]; ok {
		if program := a.driver.LoadProgramBinary(entry.Format, entry.Binary); program != 0 {
			a.binaryLoads++
			a.log.Debug("shadercache: program loaded from binary", "hash", hash, "handle", program)
			return program, nil
		}
		// A rejected binary usually means a driver update; none of the
		// stored binaries can be trusted any more.
		a.binaryRejected++
		a.log.Warn("shadercache: driver rejected cached binary, discarding binary cache",
			"hash", hash, "format", entry.Format, "entries", len(a.binaries))
		clear(a.binaries)
	}

	program, err := a.driver.LinkProgram(false, vs, gs, fs)
	if err != nil {
		return 0, &LinkError{Hash: hash, Err: err}
	}
	if program == 0 {
		return 0, &LinkError{Hash: hash, Err: errors.New("driver returned no program")}
	}
	a.links++
	a.log.Debug("shadercache: program linked", "hash", hash, "handle", program)

	if format, data := a.driver.ProgramBinary(program); len(data) > 0 {
		a.binaries[hash] = binarycache.Entry{Format: format, Binary: data}
	}
	return program, nil
}

// loadBinaries fills the binary table from the cache file. Damaged files
// are deleted by binarycache and only logged here.
func (a *monolithicAssembler) loadBinaries(path string) {
	entries, err := binarycache.Load(path)
	if err != nil {
		a.log.Warn("shadercache: discarded program cache file", "path", path, "kept", len(entries), "err", err)
	}
	for h, e := range entries {
		a.binaries[h] = e
	}
	a.log.Info("shadercache: program cache loaded", "path", path, "entries", len(entries))
}

// saveBinaries writes the binary table to the cache file. A failure skips
// persistence for this run.
func (a *monolithicAssembler) saveBinaries(path string) {
	if err := binarycache.Save(path, a.binaries); err != nil {
		a.log.Warn("shadercache: could not save program cache", "path", path, "err", err)
		return
	}
	a.log.Info("shadercache: program cache saved", "path", path, "entries", len(a.binaries))
}

func (a *monolithicAssembler) release() {
	for _, program := range a.programs {
		a.driver.DeleteProgram(program)
	}
	a.programs = make(map[uint64]Handle)
}
