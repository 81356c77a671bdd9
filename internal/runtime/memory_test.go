package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func u32(v uint32) *uint32 { return &v }

func TestMemory_GrowAndBounds(t *testing.T) {
	c := NewCompartment()
	m, err := NewMemory(c, wasm.MemoryType{Limits: wasm.Limits{Min: 1, Max: u32(2)}})
	require.NoError(t, err)
	require.Equal(t, uint32(1), m.Size())

	require.True(t, m.Write(0, []byte{1, 2, 3}))
	data, ok := m.Read(0, 3)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3}, data)

	_, ok = m.Read(wasm.MemoryPageSize-1, 2)
	require.False(t, ok, "read straddling the committed boundary must fail")

	prev, ok := m.Grow(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), prev)
	require.Equal(t, uint32(2), m.Size())

	_, ok = m.Grow(1)
	require.False(t, ok, "growing past declared max must fail")
	require.Equal(t, uint32(2), m.Size(), "a failed grow must not mutate size")
}

func TestMemory_GrowZeroIsIdempotent(t *testing.T) {
	c := NewCompartment()
	m, err := NewMemory(c, wasm.MemoryType{Limits: wasm.Limits{Min: 3}})
	require.NoError(t, err)
	prev, ok := m.Grow(0)
	require.True(t, ok)
	require.Equal(t, uint32(3), prev)
	require.Equal(t, uint32(3), m.Size())
}

func TestMemory_WriteOutOfBoundsLeavesDataUntouched(t *testing.T) {
	c := NewCompartment()
	m, err := NewMemory(c, wasm.MemoryType{Limits: wasm.Limits{Min: 1}})
	require.NoError(t, err)
	require.False(t, m.Write(wasm.MemoryPageSize-2, []byte{1, 2, 3}))
	data, ok := m.Read(wasm.MemoryPageSize-2, 2)
	require.True(t, ok)
	require.Equal(t, []byte{0, 0}, data, "a rejected write must not partially land")
}
