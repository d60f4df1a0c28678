package binarycache

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() map[uint64]Entry {
	return map[uint64]Entry{
		0x1111111111111111: {Format: 0x8741, Binary: []byte{1, 2, 3, 4}},
		0x2222222222222222: {Format: 0x8741, Binary: []byte("program two")},
		0x0000000000000003: {Format: 7, Binary: []byte{}},
	}
}

func TestPath(t *testing.T) {
	got := Path("/var/cache/emu", 0x0004000000030800)
	assert.Equal(t, filepath.Join("/var/cache/emu", "0004000000030800.cache"), got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "title.cache")
	want := sampleEntries()

	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for h, e := range want {
		g, ok := got[h]
		require.True(t, ok, "missing hash %016x", h)
		assert.Equal(t, e.Format, g.Format)
		assert.Equal(t, len(e.Binary), len(g.Binary))
		if len(e.Binary) > 0 {
			assert.Equal(t, e.Binary, g.Binary)
		}
	}

	_, err = os.Stat(path)
	assert.NoError(t, err, "a good file must be kept")
}

func TestSaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.cache")
	b := filepath.Join(dir, "b.cache")
	require.NoError(t, Save(a, sampleEntries()))
	require.NoError(t, Save(b, sampleEntries()))

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestSaveLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.cache")
	require.NoError(t, Save(path, map[uint64]Entry{
		0x0102030405060708: {Format: 0xAABBCCDD, Binary: []byte{9, 8}},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 4+4+8+4+4+2)

	assert.Equal(t, Version, binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint64(0x0102030405060708), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint32(0xAABBCCDD), binary.LittleEndian.Uint32(data[16:20]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[20:24]))
	assert.Equal(t, []byte{9, 8}, data[24:26])
}

func TestSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "x.cache")
	require.NoError(t, Save(path, sampleEntries()))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.cache"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadVersionMismatchDeletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.cache")
	require.NoError(t, Save(path, sampleEntries()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersionMismatch))
	assert.Empty(t, got)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "file must be deleted")
}

func TestLoadTruncatedKeepsPartialEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.cache")
	entries := map[uint64]Entry{
		1: {Format: 1, Binary: []byte("first entry")},
		2: {Format: 1, Binary: []byte("second entry")},
	}
	require.NoError(t, Save(path, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Cut the file in the middle of the second entry's bytes.
	require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0o644))

	got, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
	require.Len(t, got, 1)
	assert.Equal(t, []byte("first entry"), got[1].Binary)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "file must be deleted")
}

func TestLoadOversizedLengthIsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.cache")
	var data []byte
	data = binary.LittleEndian.AppendUint32(data, Version)
	data = binary.LittleEndian.AppendUint32(data, 1)
	data = binary.LittleEndian.AppendUint64(data, 42)
	data = binary.LittleEndian.AppendUint32(data, 0)
	data = binary.LittleEndian.AppendUint32(data, 0xFFFFFFF0)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := Load(path)
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.Empty(t, got)
}

func TestLoadNegativeCountReadsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neg.cache")
	var data []byte
	data = binary.LittleEndian.AppendUint32(data, Version)
	data = binary.LittleEndian.AppendUint32(data, 0xFFFFFFFF) // -1
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadEmptyFileIsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.cache")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got, err := Load(path)
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.Empty(t, got)
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestSaveToDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	// A directory at the target path makes os.Create fail.
	path := filepath.Join(dir, "occupied")
	require.NoError(t, os.Mkdir(path, 0o755))

	err := Save(path, sampleEntries())
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.cache")
	require.NoError(t, Delete(path), "missing file is fine")
	require.NoError(t, Save(path, sampleEntries()))
	require.NoError(t, Delete(path))
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
