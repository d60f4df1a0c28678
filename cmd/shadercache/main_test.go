package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/shadercache/backend/native"
	"github.com/gogpu/shadercache/binarycache"
)

func setup(t *testing.T) (dir string, args []string) {
	t.Helper()
	dir = t.TempDir()
	args = []string{"-config", filepath.Join(dir, "missing.toml"), "-dir", dir}

	require.NoError(t, binarycache.Save(binarycache.Path(dir, 0x1234), map[uint64]binarycache.Entry{
		1: {Format: 0xD7, Binary: []byte("abc")},
		2: {Format: native.BinaryFormat, Binary: []byte("not a program")},
	}))
	require.NoError(t, binarycache.Save(binarycache.Path(dir, 0x5678), map[uint64]binarycache.Entry{
		3: {Format: 0xD7, Binary: []byte("x")},
	}))
	return dir, args
}

func TestUsage(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run(nil, &out), errUsage)
	_, args := setup(t)
	assert.ErrorIs(t, run(append(args, "frobnicate"), &out), errUsage)
}

func TestInspect(t *testing.T) {
	dir, args := setup(t)
	var out bytes.Buffer
	require.NoError(t, run(append(args, "-v", "inspect"), &out))

	s := out.String()
	assert.Contains(t, s, binarycache.Path(dir, 0x1234)+": 2 entries")
	assert.Contains(t, s, binarycache.Path(dir, 0x5678)+": 1 entries")
	assert.Contains(t, s, "0000000000000001 format=0xd7 size=3")
}

func TestInspectLeavesCorruptFile(t *testing.T) {
	dir, args := setup(t)
	path := binarycache.Path(dir, 0x9)
	require.NoError(t, os.WriteFile(path, []byte{1, 2}, 0o644))

	var out bytes.Buffer
	require.NoError(t, run(append(args, "inspect", "9"), &out))
	assert.Contains(t, out.String(), "corrupt")
	assert.FileExists(t, path)
}

func TestVerify(t *testing.T) {
	dir, args := setup(t)

	var out bytes.Buffer
	err := run(append(args, "verify"), &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), binarycache.Path(dir, 0x5678)+": ok, 1 entries")

	out.Reset()
	require.NoError(t, run(append(args, "-fix", "verify", "0x1234"), &out))
	entries, err := binarycache.Load(binarycache.Path(dir, 0x1234))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Contains(t, entries, uint64(1))

	out.Reset()
	require.NoError(t, run(append(args, "verify"), &out))
}

func TestPurge(t *testing.T) {
	dir, args := setup(t)

	var out bytes.Buffer
	require.NoError(t, run(append(args, "purge", "1234"), &out))
	assert.NoFileExists(t, binarycache.Path(dir, 0x1234))
	assert.FileExists(t, binarycache.Path(dir, 0x5678))

	require.NoError(t, run(append(args, "purge"), &out))
	assert.NoFileExists(t, binarycache.Path(dir, 0x5678))
}

func TestBadTitleID(t *testing.T) {
	_, args := setup(t)
	var out bytes.Buffer
	assert.Error(t, run(append(args, "purge", "xyz"), &out))
}
