// Package binarycache reads and writes the per-title program binary cache.
//
// A cache file stores driver-exported program binaries keyed by the combined
// hash of the stages they were linked from. The file is disposable: it is
// rewritten wholesale at shutdown, consulted opportunistically at link time,
// and deleted whenever it cannot be trusted.
//
// # File format
//
// All integers are little-endian.
//
//	u32 version          (Version)
//	i32 count
//	count x {
//	    u64 hash
//	    u32 format       driver-defined binary format tag
//	    u32 length
//	    length bytes
//	}
//
// A version bump invalidates every existing file; old files are deleted, not
// migrated.
package binarycache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
)

// Version is the on-disk format version.
const Version uint32 = 0x2

// Cache file errors.
var (
	// ErrVersionMismatch is returned when a file was written by another
	// format version. The file has been deleted.
	ErrVersionMismatch = errors.New("binarycache: version mismatch")

	// ErrCorrupt is returned when a file ends or goes invalid mid-entry.
	// The file has been deleted; entries read before the damage are kept.
	ErrCorrupt = errors.New("binarycache: corrupt cache file")
)

// Entry is one driver-exported program binary.
type Entry struct {
	// Format is the driver-defined binary format tag.
	Format uint32

	// Binary holds the raw program bytes.
	Binary []byte
}

// Path returns the cache file path for a title inside dir.
func Path(dir string, titleID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%016X.cache", titleID))
}

// Load reads the cache file at path.
//
// A missing or unreadable file yields an empty table and a nil error. A
// version mismatch deletes the file and returns ErrVersionMismatch with an
// empty table. A stream that breaks mid-entry deletes the file and returns
// ErrCorrupt together with every entry read before the break.
func Load(path string) (map[uint64]Entry, error) {
	entries := make(map[uint64]Entry)

	f, err := os.Open(path)
	if err != nil {
		return entries, nil
	}

	// Lengths larger than the remaining file are corruption, not allocations.
	remaining := int64(math.MaxInt64)
	if info, statErr := f.Stat(); statErr == nil {
		remaining = info.Size()
	}

	r := &reader{r: bufio.NewReader(f), remaining: remaining}

	version := r.uint32()
	if r.err != nil || version != Version {
		_ = f.Close()
		_ = os.Remove(path)
		if r.err != nil {
			return entries, fmt.Errorf("%w: reading version: %w", ErrCorrupt, r.err)
		}
		return entries, fmt.Errorf("%w: got %#x, want %#x", ErrVersionMismatch, version, Version)
	}

	count := int32(r.uint32()) //nolint:gosec // G115: count is stored as a signed 32-bit value
	for ; count > 0 && r.err == nil; count-- {
		hash := r.uint64()
		format := r.uint32()
		length := r.uint32()
		data := r.bytes(length)
		if r.err != nil {
			break
		}
		entries[hash] = Entry{Format: format, Binary: data}
	}

	_ = f.Close()
	if r.err != nil {
		_ = os.Remove(path)
		return entries, fmt.Errorf("%w: %d entries recovered: %w", ErrCorrupt, len(entries), r.err)
	}
	return entries, nil
}

// Save writes entries to path, replacing any existing file. Entries are
// written in ascending hash order so identical tables produce identical files.
// On any write failure the partial file is removed.
func Save(path string, entries map[uint64]Entry) (err error) {
	if len(entries) > math.MaxInt32 {
		return fmt.Errorf("binarycache: too many entries: %d", len(entries))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("binarycache: create cache dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("binarycache: create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	w := bufio.NewWriter(f)
	var buf [8]byte

	binary.LittleEndian.PutUint32(buf[:4], Version)
	if _, err := w.Write(buf[:4]); err != nil {
		return fmt.Errorf("binarycache: write header: %w", err)
	}
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(entries))) //nolint:gosec // G115: bounded above
	if _, err := w.Write(buf[:4]); err != nil {
		return fmt.Errorf("binarycache: write header: %w", err)
	}

	hashes := make([]uint64, 0, len(entries))
	for h := range entries {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)

	for _, h := range hashes {
		e := entries[h]
		if uint64(len(e.Binary)) > math.MaxUint32 {
			return fmt.Errorf("binarycache: entry %016x too large: %d bytes", h, len(e.Binary))
		}
		binary.LittleEndian.PutUint64(buf[:], h)
		if _, err := w.Write(buf[:8]); err != nil {
			return fmt.Errorf("binarycache: write entry %016x: %w", h, err)
		}
		binary.LittleEndian.PutUint32(buf[:4], e.Format)
		if _, err := w.Write(buf[:4]); err != nil {
			return fmt.Errorf("binarycache: write entry %016x: %w", h, err)
		}
		binary.LittleEndian.PutUint32(buf[:4], uint32(len(e.Binary))) //nolint:gosec // G115: checked above
		if _, err := w.Write(buf[:4]); err != nil {
			return fmt.Errorf("binarycache: write entry %016x: %w", h, err)
		}
		if _, err := w.Write(e.Binary); err != nil {
			return fmt.Errorf("binarycache: write entry %016x: %w", h, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("binarycache: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("binarycache: close: %w", err)
	}
	return nil
}

// Delete removes the cache file at path. A missing file is not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("binarycache: delete: %w", err)
	}
	return nil
}

// reader decodes little-endian fields and latches the first error.
type reader struct {
	r         io.Reader
	remaining int64
	err       error
	buf       [8]byte
}

func (r *reader) read(n int) []byte {
	if r.err != nil {
		return nil
	}
	if int64(n) > r.remaining {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		r.err = err
		return nil
	}
	r.remaining -= int64(n)
	return r.buf[:n]
}

func (r *reader) uint32() uint32 {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.read(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) bytes(n uint32) []byte {
	if r.err != nil {
		return nil
	}
	if int64(n) > r.remaining {
		r.err = fmt.Errorf("entry length %d exceeds remaining %d bytes: %w", n, r.remaining, io.ErrUnexpectedEOF)
		return nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		r.err = err
		return nil
	}
	r.remaining -= int64(n)
	return data
}
