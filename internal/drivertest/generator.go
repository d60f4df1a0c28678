package drivertest

import (
	"encoding/hex"

	"github.com/gogpu/shadercache"
	"github.com/gogpu/shadercache/hashkey"
)

// TrivialVertexSource is the passthrough vertex source returned by
// Generator.
const TrivialVertexSource = "trivial_vs shader_data"

// Generator is a deterministic generator that counts its calls.
//
// By default a key produces source naming the stage and the packed key
// bytes, plus the shader_data block; distinct keys therefore produce
// distinct sources. Sources overrides that per packed key.
type Generator struct {
	// Sources maps a packed key to the source returned for it. An empty
	// string means the configuration needs no stage.
	Sources map[string]string

	// Calls counts Generate calls per stage kind.
	Calls map[shadercache.StageKind]int

	// TrivialCalls counts TrivialVertex calls.
	TrivialCalls int
}

var _ shadercache.Generator = (*Generator)(nil)

// NewGenerator returns a generator with no overrides.
func NewGenerator() *Generator {
	return &Generator{
		Sources: make(map[string]string),
		Calls:   make(map[shadercache.StageKind]int),
	}
}

// Packed returns the packed form of key, as used by Sources.
func Packed(key hashkey.Key) string {
	var e hashkey.Encoder
	key.EncodeKey(&e)
	return string(e.Packed())
}

// Set overrides the source generated for key.
func (g *Generator) Set(key hashkey.Key, source string) {
	g.Sources[Packed(key)] = source
}

func (g *Generator) Generate(kind shadercache.StageKind, key hashkey.Key, separable bool) (string, bool) {
	g.Calls[kind]++
	packed := Packed(key)
	if src, ok := g.Sources[packed]; ok {
		return src, src != ""
	}
	return kind.String() + "_" + hex.EncodeToString([]byte(packed)) + " shader_data", true
}

func (g *Generator) TrivialVertex(separable bool) string {
	g.TrivialCalls++
	return TrivialVertexSource
}
