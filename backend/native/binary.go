package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/shadercache"
	"github.com/gogpu/shadercache/hashkey"
)

// BinaryFormat tags program binaries exported by this driver.
const BinaryFormat uint32 = 0x53505256 // "SPRV"

const binaryMagic = "shadercache/spirv/1"

// BinaryStage describes one stage stored in a program binary.
type BinaryStage struct {
	Kind       shadercache.StageKind
	EntryPoint string
	Words      int
	Resources  []string
}

// BinaryInfo describes a decoded program binary.
type BinaryInfo struct {
	// Renderer is the renderer that exported the binary. A driver only
	// accepts binaries from the same renderer.
	Renderer string
	Stages   []BinaryStage
}

// encodeProgram serializes the stages of a linked program: SPIR-V words
// plus the reflection needed to rebuild its layouts without the source.
func encodeProgram(renderer string, stages []*stageCode) []byte {
	var e hashkey.Encoder
	e.String(binaryMagic)
	e.String(renderer)
	e.Uint8(uint8(len(stages))) //nolint:gosec // G115: at most two stages
	for _, s := range stages {
		e.Uint8(uint8(s.kind))
		e.String(s.entry)
		e.Uint32(uint32(len(s.spirv))) //nolint:gosec // G115: SPIR-V modules are far below 4G words
		for _, w := range s.spirv {
			e.Uint32(w)
		}
		e.Uint16(uint16(len(s.resources))) //nolint:gosec // G115: bounded by WebGPU binding limits
		for _, r := range s.resources {
			e.String(r.name)
			e.Uint8(uint8(r.class))
			e.Uint32(r.group)
			e.Uint32(r.binding)
			e.Uint32(r.size)
			e.Bool(r.cube)
		}
	}
	return e.Packed()
}

// decodeProgram is the inverse of encodeProgram. The returned stages have
// no shader module yet.
func decodeProgram(data []byte) (renderer string, stages []*stageCode, err error) {
	d := &decoder{b: data}
	if magic := d.string(); magic != binaryMagic {
		return "", nil, fmt.Errorf("%w: bad magic", ErrBadBinary)
	}
	renderer = d.string()
	n := int(d.uint8())
	for i := 0; i < n && d.err == nil; i++ {
		s := &stageCode{
			kind:  shadercache.StageKind(d.uint8()),
			entry: d.string(),
		}
		count := d.uint32()
		if uint64(count)*4 > uint64(len(d.b)) {
			return "", nil, fmt.Errorf("%w: %d SPIR-V words exceed remaining %d bytes", ErrBadBinary, count, len(d.b))
		}
		s.spirv = make([]uint32, count)
		for j := range s.spirv {
			s.spirv[j] = d.uint32()
		}
		resources := int(d.uint16())
		for j := 0; j < resources && d.err == nil; j++ {
			s.resources = append(s.resources, resource{
				name:    d.string(),
				class:   resourceClass(d.uint8()),
				group:   d.uint32(),
				binding: d.uint32(),
				size:    d.uint32(),
				cube:    d.uint8() != 0,
			})
		}
		stages = append(stages, s)
	}
	if d.err != nil {
		return "", nil, d.err
	}
	if len(d.b) != 0 {
		return "", nil, fmt.Errorf("%w: %d trailing bytes", ErrBadBinary, len(d.b))
	}
	return renderer, stages, nil
}

// DescribeBinary decodes a program binary exported by this driver without
// creating any GPU objects.
func DescribeBinary(format uint32, data []byte) (BinaryInfo, error) {
	if format != BinaryFormat {
		return BinaryInfo{}, fmt.Errorf("%w: format %#x, want %#x", ErrBadBinary, format, BinaryFormat)
	}
	renderer, stages, err := decodeProgram(data)
	if err != nil {
		return BinaryInfo{}, err
	}
	info := BinaryInfo{Renderer: renderer}
	for _, s := range stages {
		bs := BinaryStage{Kind: s.kind, EntryPoint: s.entry, Words: len(s.spirv)}
		for _, r := range s.resources {
			bs.Resources = append(bs.Resources, r.name)
		}
		info.Stages = append(info.Stages, bs)
	}
	return info, nil
}

// decoder reads little-endian fields and latches the first error.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n > len(d.b) {
		d.err = fmt.Errorf("%w: truncated", ErrBadBinary)
		return nil
	}
	out := d.b[:n]
	d.b = d.b[n:]
	return out
}

func (d *decoder) uint8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) uint16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) uint32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) string() string {
	n := d.uint32()
	if uint64(n) > uint64(len(d.b)) {
		if d.err == nil {
			d.err = fmt.Errorf("%w: string length %d exceeds remaining %d bytes", ErrBadBinary, n, len(d.b))
		}
		return ""
	}
	return string(d.take(int(n)))
}
