package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func TestTable_GrowSetGetBiased(t *testing.T) {
	c := NewCompartment()
	tbl := NewTable(c, wasm.TableType{Limits: wasm.Limits{Min: 2, Max: u32(4)}, ElemType: wasm.ValueTypeFuncref}, nil)
	require.Equal(t, uint32(2), tbl.Size())

	ref, ok := tbl.Get(0)
	require.True(t, ok)
	require.Equal(t, uint64(0), ref, "a fresh slot is the null sentinel")

	require.True(t, tbl.Set(0, 5)) // funcIdx 4, biased
	ref, ok = tbl.Get(0)
	require.True(t, ok)
	require.Equal(t, uint64(5), ref)

	prev, ok := tbl.Grow(2, 0)
	require.True(t, ok)
	require.Equal(t, uint32(2), prev)
	require.Equal(t, uint32(4), tbl.Size())

	_, ok = tbl.Grow(1, 0)
	require.False(t, ok, "growing past declared max must fail")
}

func TestTable_FuncTypeIndexUnbias(t *testing.T) {
	c := NewCompartment()
	resolve := func(funcIdx uint32) (uint32, bool) {
		if funcIdx == 3 {
			return 7, true
		}
		return 0, false
	}
	tbl := NewTable(c, wasm.TableType{Limits: wasm.Limits{Min: 1}, ElemType: wasm.ValueTypeFuncref}, resolve)
	_, ok := tbl.FuncTypeIndex(0)
	require.False(t, ok, "a null slot has no function type")

	require.True(t, tbl.Set(0, 4)) // funcIdx 3, biased
	typeIdx, ok := tbl.FuncTypeIndex(0)
	require.True(t, ok)
	require.Equal(t, uint32(7), typeIdx)
}
