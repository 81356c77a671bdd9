package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	wasm "github.com/wavmgo/wavm/internal/wasm"
	"github.com/wavmgo/wavm/internal/wasm/binary"
)

// noopStartWasm returns a minimal binary exporting an empty "_start", enough
// to exercise compile/run without needing WASI imports.
func noopStartWasm(t *testing.T) []byte {
	t.Helper()
	noArgsNoResults := &wasm.FunctionType{}
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{noArgsNoResults},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{wasm.OpcodeEnd}}},
		ExportSection:   []*wasm.Export{{Name: "_start", Kind: wasm.ExternTypeFunc, Index: 0}},
	}
	m.BuildIndexSpaces()
	return binary.EncodeModule(m)
}

func unreachableStartWasm(t *testing.T) []byte {
	t.Helper()
	noArgsNoResults := &wasm.FunctionType{}
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{noArgsNoResults},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{wasm.OpcodeUnreachable, wasm.OpcodeEnd}}},
		ExportSection:   []*wasm.Export{{Name: "_start", Kind: wasm.ExternTypeFunc, Index: 0}},
	}
	m.BuildIndexSpaces()
	return binary.EncodeModule(m)
}

func writeWasmFile(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "test.wasm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDoMain_noArgsPrintsUsage(t *testing.T) {
	var stdOut, stdErr bytes.Buffer
	os.Args = []string{"wavm"}
	rc := doMain(&stdOut, &stdErr)
	require.Equal(t, 0, rc)
	require.Contains(t, stdErr.String(), "Usage")
}

func TestDoMain_version(t *testing.T) {
	var stdOut, stdErr bytes.Buffer
	os.Args = []string{"wavm", "version"}
	rc := doMain(&stdOut, &stdErr)
	require.Equal(t, 0, rc)
	require.Contains(t, stdOut.String(), version)
}

func TestDoMain_invalidCommand(t *testing.T) {
	var stdOut, stdErr bytes.Buffer
	os.Args = []string{"wavm", "bogus"}
	rc := doMain(&stdOut, &stdErr)
	require.Equal(t, 1, rc)
	require.Contains(t, stdErr.String(), "invalid command")
}

func TestDoCompile(t *testing.T) {
	dir := t.TempDir()
	path := writeWasmFile(t, dir, noopStartWasm(t))

	var stdErr bytes.Buffer
	rc := doCompile([]string{path}, &stdErr)
	require.Equal(t, 0, rc, stdErr.String())
}

func TestDoCompile_missingFile(t *testing.T) {
	var stdErr bytes.Buffer
	rc := doCompile([]string{filepath.Join(t.TempDir(), "nope.wasm")}, &stdErr)
	require.Equal(t, 1, rc)
	require.Contains(t, stdErr.String(), "error reading wasm binary")
}

func TestDoCompile_withCacheDirReusesObject(t *testing.T) {
	dir := t.TempDir()
	path := writeWasmFile(t, dir, noopStartWasm(t))
	cacheDir := filepath.Join(dir, "cache")

	var stdErr bytes.Buffer
	rc := doCompile([]string{"-cachedir", cacheDir, path}, &stdErr)
	require.Equal(t, 0, rc, stdErr.String())

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "compiling should have populated the cache directory")

	// Second compile should hit the cache without erroring.
	var stdErr2 bytes.Buffer
	rc = doCompile([]string{"-cachedir", cacheDir, path}, &stdErr2)
	require.Equal(t, 0, rc, stdErr2.String())
}

func TestDoRun_noopStart(t *testing.T) {
	dir := t.TempDir()
	path := writeWasmFile(t, dir, noopStartWasm(t))

	var stdOut, stdErr bytes.Buffer
	rc := doRun([]string{path}, &stdOut, &stdErr)
	require.Equal(t, 0, rc, stdErr.String())
}

func TestDoRun_unreachableStartPrintsStackTrace(t *testing.T) {
	dir := t.TempDir()
	path := writeWasmFile(t, dir, unreachableStartWasm(t))

	var stdOut, stdErr bytes.Buffer
	rc := doRun([]string{path}, &stdOut, &stdErr)
	require.Equal(t, 1, rc)
	require.Contains(t, stdErr.String(), "wasm stack trace:")
	require.Contains(t, stdErr.String(), "._start")
}

func TestDoRun_mountRejectsMissingDir(t *testing.T) {
	dir := t.TempDir()
	path := writeWasmFile(t, dir, noopStartWasm(t))

	var stdOut, stdErr bytes.Buffer
	rc := doRun([]string{"-mount", filepath.Join(dir, "nonexistent"), path}, &stdOut, &stdErr)
	require.Equal(t, 1, rc)
	require.Contains(t, stdErr.String(), "invalid mount")
}

func TestDoRun_mountAcceptsRealDir(t *testing.T) {
	dir := t.TempDir()
	path := writeWasmFile(t, dir, noopStartWasm(t))
	guestRoot := filepath.Join(dir, "guest")
	require.NoError(t, os.Mkdir(guestRoot, 0o755))

	var stdOut, stdErr bytes.Buffer
	rc := doRun([]string{"-mount", guestRoot + ":/guest", path}, &stdOut, &stdErr)
	require.Equal(t, 0, rc, stdErr.String())
}

func TestDoRun_missingFile(t *testing.T) {
	var stdOut, stdErr bytes.Buffer
	rc := doRun([]string{filepath.Join(t.TempDir(), "nope.wasm")}, &stdOut, &stdErr)
	require.Equal(t, 1, rc)
	require.Contains(t, stdErr.String(), "error reading wasm binary")
}

func TestParseMount(t *testing.T) {
	dir := t.TempDir()
	var stdErr bytes.Buffer

	gotDir, gotGuest, rc := parseMount(dir+":/guest", &stdErr)
	require.Equal(t, 0, rc)
	require.Equal(t, dir, gotDir)
	require.Equal(t, "/guest", gotGuest)

	gotDir2, gotGuest2, rc2 := parseMount(dir, &stdErr)
	require.Equal(t, 0, rc2)
	require.Equal(t, dir, gotDir2)
	require.Equal(t, dir, gotGuest2)
}

func TestSliceFlag(t *testing.T) {
	var f sliceFlag
	require.NoError(t, f.Set("a"))
	require.NoError(t, f.Set("b"))
	require.Equal(t, "a,b", f.String())
	require.Equal(t, sliceFlag{"a", "b"}, f)
}
