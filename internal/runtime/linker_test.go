package runtime

import (
	stdcontext "context"
	"testing"

	"github.com/stretchr/testify/require"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func addFuncType() *wasm.FunctionType {
	return &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
}

func TestLink_ResolvesAndTypeChecks(t *testing.T) {
	sig := addFuncType()
	module := &wasm.Module{
		TypeSection:   []*wasm.FunctionType{sig},
		ImportSection: []*wasm.Import{{Module: "env", Name: "add", Kind: wasm.ExternTypeFunc, DescFunc: 0}},
	}
	module.BuildIndexSpaces()

	fn := NewHostFunction(sig, func(stdcontext.Context, []uint64) ([]uint64, error) { return []uint64{1}, nil })
	resolver := ResolverFunc(func(m *wasm.Module, imp *wasm.Import) (ResolvedObject, bool) {
		return ResolvedObject{Kind: wasm.ExternTypeFunc, Func: fn}, true
	})

	result := Link(module, resolver)
	require.True(t, result.Success)
	require.Len(t, result.Resolved, 1)
	require.Same(t, fn, result.Resolved[0].Func)
}

func TestLink_TypeMismatchTreatedAsMissing(t *testing.T) {
	sig := addFuncType()
	module := &wasm.Module{
		TypeSection:   []*wasm.FunctionType{sig},
		ImportSection: []*wasm.Import{{Module: "env", Name: "add", Kind: wasm.ExternTypeFunc, DescFunc: 0}},
	}
	module.BuildIndexSpaces()

	wrongSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI64}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	fn := NewHostFunction(wrongSig, func(stdcontext.Context, []uint64) ([]uint64, error) { return []uint64{1}, nil })
	resolver := ResolverFunc(func(m *wasm.Module, imp *wasm.Import) (ResolvedObject, bool) {
		return ResolvedObject{Kind: wasm.ExternTypeFunc, Func: fn}, true
	})

	result := Link(module, resolver)
	require.False(t, result.Success)
	require.Len(t, result.Missing, 1)
}

func TestStubResolver_SynthesizesTrapOnCall(t *testing.T) {
	sig := addFuncType()
	module := &wasm.Module{
		TypeSection:   []*wasm.FunctionType{sig},
		ImportSection: []*wasm.Import{{Module: "env", Name: "add", Kind: wasm.ExternTypeFunc, DescFunc: 0}},
	}
	module.BuildIndexSpaces()

	c := NewCompartment()
	stub := StubResolver{Target: c}
	result := Link(module, stub)
	require.True(t, result.Success)
	require.NotNil(t, result.Resolved[0].Func)

	_, err := result.Resolved[0].Func.Call(stdcontext.Background(), nil, []uint64{1, 2})
	require.Error(t, err, "a stubbed function traps on call")
}
