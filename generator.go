package shadercache

import "github.com/gogpu/shadercache/hashkey"

// Generator produces shader source text from hardware configuration keys.
//
// Output must be a pure function of the arguments for the lifetime of a
// manager: the manager remembers both generated stages and "no stage"
// answers per key and never asks again.
type Generator interface {
	// Generate returns the source for a stage. ok is false when the
	// configuration needs no custom stage, which is only legal for the
	// vertex stage and means fixed-function passthrough.
	Generate(kind StageKind, key hashkey.Key, separable bool) (source string, ok bool)

	// TrivialVertex returns the passthrough vertex stage source.
	TrivialVertex(separable bool) string
}
