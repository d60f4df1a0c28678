// Package drivertest provides an in-memory shadercache.Driver that records
// every call, and a deterministic shadercache.Generator.
//
// The driver models a program's resources from the identifiers in its
// sources: a uniform block or sampler exists when its name appears as an
// identifier in one of the linked shaders.
package drivertest

import (
	"errors"
	"slices"
	"strings"
	"unicode"

	"github.com/gogpu/shadercache"
)

// BinaryFormat is the program binary format exported by Driver.
const BinaryFormat uint32 = 0xD7

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("drivertest: injected failure")

// uniformBlocks are the block names the driver knows, by index.
var uniformBlocks = []string{"shader_data", "vs_config"}

// Program is a linked program.
type Program struct {
	Separable bool
	Sources   []string

	// Bindings records UniformBlockBinding calls by block name.
	Bindings map[string]uint32

	// Units records Uniform1i calls by uniform name.
	Units map[string]int32

	// FromBinary is set when the program was created by LoadProgramBinary.
	FromBinary bool

	idents    map[string]bool
	locations []string
}

func (p *Program) has(name string) bool {
	return p.idents[name]
}

// StageCall is one UseProgramStages call.
type StageCall struct {
	Pipeline shadercache.Handle
	Stages   shadercache.StageBits
	Program  shadercache.Handle
}

// Driver is a recording in-memory driver. The zero value is not usable;
// create one with New.
type Driver struct {
	// DriverInfo is returned by Info.
	DriverInfo shadercache.DriverInfo

	// BlockSizes overrides the reported size of uniform blocks by name.
	// Blocks not listed report the default layout size.
	BlockSizes map[string]int

	// ExportBinaries makes ProgramBinary return data.
	ExportBinaries bool

	// RejectBinaries makes LoadProgramBinary fail.
	RejectBinaries bool

	// FailCompile, when set, decides whether a compile fails.
	FailCompile func(kind shadercache.StageKind, source string) bool

	// FailLink, when set, decides whether a link fails.
	FailLink func(separable bool, shaders []shadercache.Handle) bool

	Shaders   map[shadercache.Handle]string
	Programs  map[shadercache.Handle]*Program
	Pipelines map[shadercache.Handle]bool

	// Current is the program made current by UseProgram.
	Current shadercache.Handle

	// StageCalls logs UseProgramStages calls in order.
	StageCalls []StageCall

	Compiles        int
	Links           int
	BinaryLoads     int
	UseProgramCalls int
	DeletedShaders  int
	DeletedPrograms int

	next shadercache.Handle
}

var _ shadercache.Driver = (*Driver)(nil)

// New returns a driver reporting info.
func New(info shadercache.DriverInfo) *Driver {
	return &Driver{
		DriverInfo: info,
		BlockSizes: make(map[string]int),
		Shaders:    make(map[shadercache.Handle]string),
		Programs:   make(map[shadercache.Handle]*Program),
		Pipelines:  make(map[shadercache.Handle]bool),
	}
}

// Live returns the number of shaders, programs and pipelines not yet
// deleted.
func (d *Driver) Live() int {
	return len(d.Shaders) + len(d.Programs) + len(d.Pipelines)
}

func (d *Driver) handle() shadercache.Handle {
	d.next++
	return d.next
}

func (d *Driver) Info() shadercache.DriverInfo {
	return d.DriverInfo
}

func (d *Driver) CompileShader(kind shadercache.StageKind, source string) (shadercache.Handle, error) {
	if d.FailCompile != nil && d.FailCompile(kind, source) {
		return 0, ErrInjected
	}
	d.Compiles++
	h := d.handle()
	d.Shaders[h] = source
	return h, nil
}

func (d *Driver) DeleteShader(shader shadercache.Handle) {
	if _, ok := d.Shaders[shader]; ok {
		delete(d.Shaders, shader)
		d.DeletedShaders++
	}
}

func (d *Driver) LinkProgram(separable bool, shaders ...shadercache.Handle) (shadercache.Handle, error) {
	if d.FailLink != nil && d.FailLink(separable, shaders) {
		return 0, ErrInjected
	}
	var sources []string
	for _, s := range shaders {
		if s == 0 {
			continue
		}
		src, ok := d.Shaders[s]
		if !ok {
			return 0, errors.New("drivertest: link of unknown shader")
		}
		sources = append(sources, src)
	}
	d.Links++
	return d.newProgram(separable, sources), nil
}

func (d *Driver) newProgram(separable bool, sources []string) shadercache.Handle {
	p := &Program{
		Separable: separable,
		Sources:   sources,
		Bindings:  make(map[string]uint32),
		Units:     make(map[string]int32),
		idents:    make(map[string]bool),
	}
	for _, src := range sources {
		for _, id := range strings.FieldsFunc(src, notIdent) {
			p.idents[id] = true
		}
	}
	h := d.handle()
	d.Programs[h] = p
	return h
}

func notIdent(r rune) bool {
	return r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func (d *Driver) DeleteProgram(program shadercache.Handle) {
	if _, ok := d.Programs[program]; ok {
		delete(d.Programs, program)
		d.DeletedPrograms++
	}
}

// ProgramBinary exports the program's sources joined by NUL bytes.
func (d *Driver) ProgramBinary(program shadercache.Handle) (uint32, []byte) {
	p, ok := d.Programs[program]
	if !ok || !d.ExportBinaries {
		return 0, nil
	}
	return BinaryFormat, []byte(strings.Join(p.Sources, "\x00"))
}

func (d *Driver) LoadProgramBinary(format uint32, data []byte) shadercache.Handle {
	if d.RejectBinaries || format != BinaryFormat || len(data) == 0 {
		return 0
	}
	d.BinaryLoads++
	h := d.newProgram(false, strings.Split(string(data), "\x00"))
	d.Programs[h].FromBinary = true
	return h
}

func (d *Driver) UniformBlockIndex(program shadercache.Handle, name string) (uint32, bool) {
	p, ok := d.Programs[program]
	if !ok || !p.has(name) {
		return 0, false
	}
	i := slices.Index(uniformBlocks, name)
	if i < 0 {
		return 0, false
	}
	return uint32(i), true
}

func (d *Driver) UniformBlockSize(program shadercache.Handle, index uint32) int {
	name := uniformBlocks[index]
	if size, ok := d.BlockSizes[name]; ok {
		return size
	}
	if name == "vs_config" {
		return shadercache.DefaultVSBlockSize
	}
	return shadercache.DefaultCommonBlockSize
}

func (d *Driver) UniformBlockBinding(program shadercache.Handle, index, binding uint32) {
	if p, ok := d.Programs[program]; ok {
		p.Bindings[uniformBlocks[index]] = binding
	}
}

func (d *Driver) UniformLocation(program shadercache.Handle, name string) int32 {
	p, ok := d.Programs[program]
	if !ok || !p.has(name) {
		return -1
	}
	if i := slices.Index(p.locations, name); i >= 0 {
		return int32(i)
	}
	p.locations = append(p.locations, name)
	return int32(len(p.locations) - 1)
}

// Uniform1i records value on the current program.
func (d *Driver) Uniform1i(location, value int32) {
	p, ok := d.Programs[d.Current]
	if !ok || location < 0 || int(location) >= len(p.locations) {
		return
	}
	p.Units[p.locations[location]] = value
}

func (d *Driver) UseProgram(program shadercache.Handle) shadercache.Handle {
	d.UseProgramCalls++
	previous := d.Current
	d.Current = program
	return previous
}

func (d *Driver) CreatePipeline() (shadercache.Handle, error) {
	h := d.handle()
	d.Pipelines[h] = true
	return h, nil
}

func (d *Driver) DeletePipeline(pipeline shadercache.Handle) {
	delete(d.Pipelines, pipeline)
}

func (d *Driver) UseProgramStages(pipeline shadercache.Handle, stages shadercache.StageBits, program shadercache.Handle) {
	d.StageCalls = append(d.StageCalls, StageCall{Pipeline: pipeline, Stages: stages, Program: program})
}
