package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func TestPrecompiledObject_roundTrips(t *testing.T) {
	encoded := EncodePrecompiledObject([][]byte{{0x01, 0x02}, {0x03}})
	m := &wasm.Module{CustomSections: []*wasm.CustomSection{
		{Name: PrecompiledObjectSectionName, Data: encoded},
	}}
	objects, ok := LoadPrecompiled(m)
	require.True(t, ok)
	require.Equal(t, [][]byte{{0x01, 0x02}, {0x03}}, objects)
}

func TestLoadPrecompiled_absentWhenNoSection(t *testing.T) {
	_, ok := LoadPrecompiled(&wasm.Module{})
	require.False(t, ok)
}

func TestLoadPrecompiled_rejectsWrongVersionTag(t *testing.T) {
	bad := append([]byte{}, make([]byte, 32)...)
	m := &wasm.Module{CustomSections: []*wasm.CustomSection{
		{Name: PrecompiledObjectSectionName, Data: bad},
	}}
	_, ok := LoadPrecompiled(m)
	require.False(t, ok)
}
