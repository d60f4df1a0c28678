// Package hashkey turns configuration records and shader source into the
// 64-bit content hashes used as cache keys by shadercache.
//
// Hashes are FNV-1a over an explicit byte sequence. Configuration keys never
// hash their in-memory layout; instead they write their fields, in a fixed
// order, into an [Encoder] which packs them tightly in little-endian form.
// The resulting hash is therefore stable across compilers and platforms and
// safe to persist.
//
//	type fragmentKey struct {
//	    combiner uint32
//	    fog      uint8
//	    shadow   bool
//	}
//
//	func (k fragmentKey) EncodeKey(e *hashkey.Encoder) {
//	    e.Uint32(k.combiner)
//	    e.Uint8(k.fog)
//	    e.Bool(k.shadow)
//	}
//
//	h := hashkey.Of(fragmentKey{combiner: 7})
package hashkey

import (
	"encoding/binary"
	"hash/fnv"
)

// Key is a fixed-layout configuration snapshot that can be hashed.
//
// EncodeKey must write the same bytes for equal keys and must not depend on
// map iteration order, pointers, or padding.
type Key interface {
	EncodeKey(e *Encoder)
}

// Raw is a Key made of an already packed byte sequence.
type Raw []byte

// EncodeKey implements Key.
func (r Raw) EncodeKey(e *Encoder) {
	e.buf = append(e.buf, r...)
}

// Encoder packs key fields into a deterministic byte sequence.
// The zero value is ready to use.
type Encoder struct {
	buf []byte
}

// Uint8 appends one byte.
func (e *Encoder) Uint8(v uint8) {
	e.buf = append(e.buf, v)
}

// Uint16 appends v in little-endian order.
func (e *Encoder) Uint16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

// Uint32 appends v in little-endian order.
func (e *Encoder) Uint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// Uint64 appends v in little-endian order.
func (e *Encoder) Uint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// Bool appends a single 0 or 1 byte.
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// Bytes appends b verbatim. Callers hashing variable-length data must write
// the length first so that adjacent fields cannot alias.
func (e *Encoder) Bytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// String appends the length of s followed by its bytes.
//
//nolint:gosec // G115: key strings are short identifiers
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Packed returns the encoded bytes. The slice aliases the encoder buffer.
func (e *Encoder) Packed() []byte {
	return e.buf
}

// Reset clears the buffer while keeping its capacity.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Sum64 returns the FNV-1a hash of the bytes written so far.
func (e *Encoder) Sum64() uint64 {
	return Bytes(e.buf)
}

// Bytes computes the FNV-1a hash of b.
func Bytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b) // fnv.Write never returns an error
	return h.Sum64()
}

// String computes the FNV-1a hash of the bytes of s.
func String(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Of encodes k and returns its hash.
func Of(k Key) uint64 {
	var e Encoder
	k.EncodeKey(&e)
	return e.Sum64()
}

// Combine hashes the little-endian concatenation of hs.
// The result depends on the order of its arguments.
func Combine(hs ...uint64) uint64 {
	buf := make([]byte, 0, 8*len(hs))
	for _, h := range hs {
		buf = binary.LittleEndian.AppendUint64(buf, h)
	}
	return Bytes(buf)
}
