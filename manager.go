package shadercache

import (
	"log/slog"

	"github.com/gogpu/shadercache/binarycache"
	"github.com/gogpu/shadercache/hashkey"
)

// ShaderProgramManager selects pipeline stages for the emulated hardware
// configuration and assembles them into something the driver can execute,
// compiling and linking each distinct input only once.
//
// Per draw call the renderer selects a vertex, a geometry and a fragment
// stage, then calls Assemble. Selection is a cache lookup once a
// configuration has been seen.
//
// A manager owns all of its driver objects and must be closed when the
// render context goes away. It is not safe for concurrent use: every call
// must come from the goroutine that owns the graphics context.
type ShaderProgramManager struct {
	driver  Driver
	profile Profile
	log     *slog.Logger

	stages    *stageCache
	asm       assembler
	mono      *monolithicAssembler // nil in separable mode
	cachePath string               // empty when the binary cache is off

	trivialVertex   Stage
	trivialGeometry Stage

	current struct {
		vs, gs, fs Stage
	}

	closed bool
}

// Stats reports cache effectiveness counters.
type Stats struct {
	// Stages is the number of distinct compiled stages.
	Stages int

	// KeyHits counts selections answered from the configuration key table.
	KeyHits uint64

	// SourceHits counts new keys whose generated source was already compiled.
	SourceHits uint64

	// Compiles counts stages built by the driver.
	Compiles uint64

	// Programs is the number of linked monolithic programs.
	Programs int

	// ProgramHits counts assemblies answered from the program table.
	ProgramHits uint64

	// Links counts programs linked from compiled stages.
	Links uint64

	// BinaryLoads counts programs recreated from a stored binary.
	BinaryLoads uint64

	// BinaryRejected counts stored binaries the driver refused.
	BinaryRejected uint64

	// Binaries is the number of program binaries held for the cache file.
	Binaries int
}

// New creates a manager on driver, using gen for stage source.
//
// The assembly strategy is detected from driver.Info() and the settings
// unless WithProfile is given. In monolithic mode with the shader cache
// enabled, the title's program cache file is loaded here and saved by
// Close.
func New(driver Driver, gen Generator, opts ...Option) (*ShaderProgramManager, error) {
	if driver == nil {
		return nil, ErrNilDriver
	}
	if gen == nil {
		return nil, ErrNilGenerator
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := &ShaderProgramManager{
		driver: driver,
		log:    o.logger,
	}
	if m.log == nil {
		m.log = Logger()
	}
	if o.profile != nil {
		m.profile = *o.profile
	} else {
		m.profile = DetectProfile(driver.Info(), o.settings)
	}

	n := &bindingNegotiator{driver: driver, layout: o.layout}
	m.stages = newStageCache(driver, gen, n, m.profile.Separable, m.log)

	if m.profile.Separable {
		sep, err := newSeparableAssembler(driver, m.profile.ResetStagesOnRebind)
		if err != nil {
			return nil, err
		}
		m.asm = sep
	} else {
		m.mono = newMonolithicAssembler(driver, n, m.log)
		m.asm = m.mono
		if o.settings.UseShaderCache {
			dir, err := o.settings.CacheDirPath()
			if err != nil {
				m.log.Warn("shadercache: program cache disabled", "err", err)
			} else {
				m.cachePath = binarycache.Path(dir, o.titleID)
				m.mono.loadBinaries(m.cachePath)
			}
		}
	}

	trivial, err := buildStage(driver, n, m.profile.Separable, StageVertex, gen.TrivialVertex(m.profile.Separable), 0)
	if err != nil {
		m.asm.release()
		return nil, err
	}
	m.trivialVertex = trivial
	m.trivialGeometry = emptyStage(StageGeometry, m.profile.Separable)

	m.log.Info("shadercache: manager created",
		"separable", m.profile.Separable,
		"resetStages", m.profile.ResetStagesOnRebind,
		"programCache", m.cachePath)
	return m, nil
}

// Profile returns the assembly strategy in use.
func (m *ShaderProgramManager) Profile() Profile {
	return m.profile
}

// CachePath returns the program cache file path, or "" when the cache is
// not in use.
func (m *ShaderProgramManager) CachePath() string {
	return m.cachePath
}

// SelectVertexStage selects the programmable vertex stage for key. It
// returns false when the configuration needs no custom vertex stage; the
// caller must then fall back to fixed-function passthrough, typically by
// calling SelectTrivialVertexStage.
func (m *ShaderProgramManager) SelectVertexStage(key hashkey.Key) (bool, error) {
	if m.closed {
		return false, ErrClosed
	}
	s, err := m.stages.resolve(StageVertex, key)
	m.current.vs = s
	if err != nil {
		return false, err
	}
	return s != nil, nil
}

// SelectGeometryStage selects the fixed geometry stage for key.
func (m *ShaderProgramManager) SelectGeometryStage(key hashkey.Key) error {
	if m.closed {
		return ErrClosed
	}
	s, err := m.stages.resolve(StageGeometry, key)
	m.current.gs = s
	return err
}

// SelectFragmentStage selects the fragment stage for key.
func (m *ShaderProgramManager) SelectFragmentStage(key hashkey.Key) error {
	if m.closed {
		return ErrClosed
	}
	s, err := m.stages.resolve(StageFragment, key)
	m.current.fs = s
	return err
}

// SelectTrivialVertexStage selects the passthrough vertex stage.
func (m *ShaderProgramManager) SelectTrivialVertexStage() {
	m.current.vs = m.trivialVertex
}

// SelectTrivialGeometryStage leaves the geometry stage unbound.
func (m *ShaderProgramManager) SelectTrivialGeometryStage() {
	m.current.gs = m.trivialGeometry
}

// Assemble makes the selected stages executable and records the result in
// state: a pipeline object in separable mode, a linked program otherwise.
func (m *ShaderProgramManager) Assemble(state *DriverState) error {
	if m.closed {
		return ErrClosed
	}
	switch {
	case m.current.vs == nil:
		return &stageError{StageVertex}
	case m.current.gs == nil:
		return &stageError{StageGeometry}
	case m.current.fs == nil:
		return &stageError{StageFragment}
	}
	return m.asm.assemble(m.current.vs, m.current.gs, m.current.fs, state)
}

// Stats returns cache counters.
func (m *ShaderProgramManager) Stats() Stats {
	st := Stats{
		Stages:     m.stages.stages(),
		KeyHits:    m.stages.keyHits,
		SourceHits: m.stages.sourceHits,
		Compiles:   m.stages.compiles,
	}
	if m.mono != nil {
		st.Programs = len(m.mono.programs)
		st.ProgramHits = m.mono.programHits
		st.Links = m.mono.links
		st.BinaryLoads = m.mono.binaryLoads
		st.BinaryRejected = m.mono.binaryRejected
		st.Binaries = len(m.mono.binaries)
	}
	return st
}

// Close saves the program cache file when it is in use and releases every
// driver object owned by the manager. Persistence failures are logged, not
// returned. Close is idempotent.
func (m *ShaderProgramManager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	if m.mono != nil && m.cachePath != "" {
		m.mono.saveBinaries(m.cachePath)
	}

	m.asm.release()
	m.stages.release()
	m.trivialVertex.release(m.driver)
	m.current.vs, m.current.gs, m.current.fs = nil, nil, nil
	return nil
}

// stageError reports a stage missing at assembly time.
type stageError struct {
	kind StageKind
}

func (e *stageError) Error() string {
	return "shadercache: no " + e.kind.String() + " stage selected"
}

func (e *stageError) Unwrap() error {
	return ErrNoStage
}
