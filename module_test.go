package wavm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wavmgo/wavm/internal/runtime"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// buildExportingModule returns a module exporting a memory, a mutable and
// an immutable global, and an imported answer function re-exported as
// "answer" - enough surface to exercise every moduleAdapter accessor.
func buildExportingModule() *wasm.Module {
	noArgsI32 := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{noArgsI32},
		ImportSection: []*wasm.Import{
			{Module: "env", Name: "answer", Kind: wasm.ExternTypeFunc, DescFunc: 0},
		},
		MemorySection: []*wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		GlobalSection: []*wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true},
				Init: wasm.ConstantExpression{Kind: wasm.ValueTypeI32, Data: []byte{7}}},
			{Type: wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: false},
				Init: wasm.ConstantExpression{Kind: wasm.ValueTypeI32, Data: []byte{9}}},
		},
		ExportSection: []*wasm.Export{
			{Name: "answer", Kind: wasm.ExternTypeFunc, Index: 0},
			{Name: "memory", Kind: wasm.ExternTypeMemory, Index: 0},
			{Name: "counter", Kind: wasm.ExternTypeGlobal, Index: 0},
			{Name: "constant", Kind: wasm.ExternTypeGlobal, Index: 1},
		},
	}
	m.BuildIndexSpaces()
	return m
}

func answerResolverForModuleTest() runtime.Resolver {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	fn := runtime.NewHostFunction(sig, func(context.Context, []uint64) ([]uint64, error) {
		return []uint64{42}, nil
	})
	return runtime.ResolverFunc(func(*wasm.Module, *wasm.Import) (runtime.ResolvedObject, bool) {
		return runtime.ResolvedObject{Kind: wasm.ExternTypeFunc, Func: fn}, true
	})
}

func newTestModuleAdapter(t *testing.T) *moduleAdapter {
	t.Helper()
	c := runtime.NewCompartment()
	rctx := c.NewContext()
	module := buildExportingModule()
	mi, err := runtime.Instantiate(context.Background(), c, rctx, module, "m", answerResolverForModuleTest())
	require.NoError(t, err)
	return &moduleAdapter{mi: mi, name: "m", rctx: rctx}
}

func TestModuleAdapter_NameAndString(t *testing.T) {
	m := newTestModuleAdapter(t)
	require.Equal(t, "m", m.Name())
	require.Contains(t, m.String(), "m")
}

func TestModuleAdapter_ExportedFunction(t *testing.T) {
	m := newTestModuleAdapter(t)
	fn := m.ExportedFunction("answer")
	require.NotNil(t, fn)
	results, err := fn.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)

	require.Nil(t, m.ExportedFunction("missing"))
}

func TestModuleAdapter_MemoryAndExportedMemory(t *testing.T) {
	m := newTestModuleAdapter(t)
	mem := m.Memory()
	require.NotNil(t, mem)
	require.Equal(t, uint32(65536), mem.Size(context.Background()))

	require.Same(t, mem.(*memoryAdapter).mem, m.ExportedMemory("memory").(*memoryAdapter).mem)
	require.Nil(t, m.ExportedMemory("missing"))

	ok := mem.Write(context.Background(), 0, []byte("hi"))
	require.True(t, ok)
	data, ok := mem.Read(context.Background(), 0, 2)
	require.True(t, ok)
	require.Equal(t, []byte("hi"), data)
}

func TestModuleAdapter_ExportedGlobal(t *testing.T) {
	m := newTestModuleAdapter(t)

	mutable := m.ExportedGlobal("counter")
	require.NotNil(t, mutable)
	require.Equal(t, uint64(7), mutable.Get(context.Background()))
	mg, ok := mutable.(interface {
		Set(ctx context.Context, v uint64)
	})
	require.True(t, ok, "counter must be settable")
	mg.Set(context.Background(), 100)
	require.Equal(t, uint64(100), mutable.Get(context.Background()))

	constant := m.ExportedGlobal("constant")
	require.NotNil(t, constant)
	require.Equal(t, uint64(9), constant.Get(context.Background()))
	_, settable := constant.(interface{ Set(context.Context, uint64) })
	require.False(t, settable, "constant must not be settable")

	require.Nil(t, m.ExportedGlobal("missing"))
}

func TestModuleAdapter_CloseWithExitCode(t *testing.T) {
	m := newTestModuleAdapter(t)
	require.NoError(t, m.CloseWithExitCode(context.Background(), 5))
	require.Equal(t, uint32(5), *m.exitCode)
}
