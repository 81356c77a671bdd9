package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func TestGlobal_Immutable(t *testing.T) {
	c := NewCompartment()
	g := NewGlobal(c, wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: false}, 42)
	require.Equal(t, uint64(42), g.Get(nil))
	require.Panics(t, func() { g.Set(c.NewContext(), 1) })
}

func TestGlobal_MutablePerContext(t *testing.T) {
	c := NewCompartment()
	g := NewGlobal(c, wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true}, 10)

	ctx1 := c.NewContext()
	ctx2 := c.NewContext()
	require.Equal(t, uint64(10), g.Get(ctx1))
	require.Equal(t, uint64(10), g.Get(ctx2))

	g.Set(ctx1, 99)
	require.Equal(t, uint64(99), g.Get(ctx1))
	require.Equal(t, uint64(10), g.Get(ctx2), "mutable globals are independent per context")
}

func TestContext_CloneDeepCopiesMutableSlots(t *testing.T) {
	c := NewCompartment()
	g := NewGlobal(c, wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true}, 1)
	ctx := c.NewContext()
	g.Set(ctx, 5)

	clone := ctx.Clone()
	require.Equal(t, uint64(5), g.Get(clone))

	g.Set(ctx, 6)
	require.Equal(t, uint64(5), g.Get(clone), "cloning must deep-copy, not alias, mutable state")
}
