package shadercache

// Stage is one compiled pipeline stage, tagged with the hash of the source
// it was built from.
//
// A stage has one of two representations, fixed per manager by the driver
// profile: a bare compiled shader (monolithic mode, linked later together
// with the other two stages) or a single-stage separable program (separable
// mode, bound directly into a pipeline object slot). The set of variants is
// closed.
type Stage interface {
	// Kind returns the pipeline stage.
	Kind() StageKind

	// Handle returns the shader or program handle. Zero means the stage
	// is empty and the slot is left unbound.
	Handle() Handle

	// ContentHash returns the hash of the generated source.
	ContentHash() uint64

	release(d Driver)
}

// compiledStage is a bare compiled shader.
type compiledStage struct {
	kind   StageKind
	shader Handle
	hash   uint64
}

func (s *compiledStage) Kind() StageKind     { return s.kind }
func (s *compiledStage) Handle() Handle      { return s.shader }
func (s *compiledStage) ContentHash() uint64 { return s.hash }

func (s *compiledStage) release(d Driver) {
	if s.shader != 0 {
		d.DeleteShader(s.shader)
		s.shader = 0
	}
}

// linkedStage is a separately linked single-stage program.
type linkedStage struct {
	kind    StageKind
	program Handle
	hash    uint64
}

func (s *linkedStage) Kind() StageKind     { return s.kind }
func (s *linkedStage) Handle() Handle      { return s.program }
func (s *linkedStage) ContentHash() uint64 { return s.hash }

func (s *linkedStage) release(d Driver) {
	if s.program != 0 {
		d.DeleteProgram(s.program)
		s.program = 0
	}
}

// emptyStage returns the stage that leaves a slot unbound.
func emptyStage(kind StageKind, separable bool) Stage {
	if separable {
		return &linkedStage{kind: kind}
	}
	return &compiledStage{kind: kind}
}

// buildStage compiles source into a stage of the given representation.
// Separable stages are linked on their own and have their bindings
// negotiated immediately; the intermediate shader is deleted.
func buildStage(d Driver, n *bindingNegotiator, separable bool, kind StageKind, source string, hash uint64) (Stage, error) {
	shader, err := d.CompileShader(kind, source)
	if err != nil {
		return nil, &CompileError{Kind: kind, SourceHash: hash, Err: err}
	}
	if !separable {
		return &compiledStage{kind: kind, shader: shader, hash: hash}, nil
	}

	program, err := d.LinkProgram(true, shader)
	d.DeleteShader(shader)
	if err != nil {
		return nil, &CompileError{Kind: kind, SourceHash: hash, Err: err}
	}

	if err := n.negotiate(program, kind == StageFragment); err != nil {
		d.DeleteProgram(program)
		return nil, err
	}
	return &linkedStage{kind: kind, program: program, hash: hash}, nil
}
