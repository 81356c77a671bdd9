package runtime

import (
	stdcontext "context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wavmgo/wavm/internal/trap"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func zeroOffset() wasm.ConstantExpression {
	return wasm.ConstantExpression{Kind: wasm.ValueTypeI32, Data: []byte{0x00}}
}

// buildModule returns a module importing one i32-returning function at
// index 0, defining one memory, one table and an active data/element
// segment each, ready for Instantiate.
func buildModule() *wasm.Module {
	noArgsI32 := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{noArgsI32},
		ImportSection: []*wasm.Import{
			{Module: "env", Name: "answer", Kind: wasm.ExternTypeFunc, DescFunc: 0},
		},
		TableSection:  []*wasm.TableType{{Limits: wasm.Limits{Min: 2}, ElemType: wasm.ValueTypeFuncref}},
		MemorySection: []*wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		DataSection: []*wasm.DataSegment{
			{Mode: wasm.DataSegmentModeActive, MemoryIndex: 0, OffsetExpr: zeroOffset(), Init: []byte("abc")},
		},
		ElementSection: []*wasm.ElementSegment{
			{Mode: wasm.ElementSegmentModeActive, TableIndex: 0, ElemType: wasm.ValueTypeFuncref,
				OffsetExpr: zeroOffset(), Init: []wasm.ElementInit{{FuncIdx: 0}}},
		},
		ExportSection: []*wasm.Export{{Name: "answer", Kind: wasm.ExternTypeFunc, Index: 0}},
	}
	m.BuildIndexSpaces()
	return m
}

func answerResolver() Resolver {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	fn := NewHostFunction(sig, func(stdcontext.Context, []uint64) ([]uint64, error) {
		return []uint64{42}, nil
	})
	return ResolverFunc(func(m *wasm.Module, imp *wasm.Import) (ResolvedObject, bool) {
		return ResolvedObject{Kind: wasm.ExternTypeFunc, Func: fn}, true
	})
}

func TestInstantiate_ImportsAndActiveSegments(t *testing.T) {
	c := NewCompartment()
	rctx := c.NewContext()
	module := buildModule()

	mi, err := Instantiate(stdcontext.Background(), c, rctx, module, "m", answerResolver())
	require.NoError(t, err)

	data, ok := mi.memories[0].Read(0, 3)
	require.True(t, ok)
	require.Equal(t, []byte("abc"), data)

	ref, ok := mi.tables[0].Get(0)
	require.True(t, ok)
	require.Equal(t, uint64(1), ref, "the active element segment stores funcIdx 0 biased by one")

	fn, ok := mi.ExportedFunction("answer")
	require.True(t, ok)
	results, err := fn.Call(stdcontext.Background(), rctx, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestInstantiate_MissingImportFails(t *testing.T) {
	c := NewCompartment()
	rctx := c.NewContext()
	module := buildModule()

	absent := ResolverFunc(func(m *wasm.Module, imp *wasm.Import) (ResolvedObject, bool) {
		return ResolvedObject{}, false
	})
	_, err := Instantiate(stdcontext.Background(), c, rctx, module, "m", absent)
	require.Error(t, err)
}

func TestInstantiate_ElementSegmentOutOfBoundsTrapsButWritesPrefix(t *testing.T) {
	c := NewCompartment()
	rctx := c.NewContext()
	module := buildModule()
	// table has Min:2 but the segment asks for 3 slots starting at 1.
	module.ElementSection[0].OffsetExpr = wasm.ConstantExpression{Kind: wasm.ValueTypeI32, Data: []byte{0x01}}
	module.ElementSection[0].Init = []wasm.ElementInit{{FuncIdx: 0}, {FuncIdx: 0}, {FuncIdx: 0}}

	_, err := Instantiate(stdcontext.Background(), c, rctx, module, "m", answerResolver())
	require.Error(t, err, "writing past the table's declared size must trap and abort instantiation")
}

func TestInstantiate_StartFunctionRuns(t *testing.T) {
	c := NewCompartment()
	rctx := c.NewContext()
	module := buildModule()

	// Append a defined, no-result function whose body is just `end`, and
	// make it the start function.
	voidType := &wasm.FunctionType{}
	module.TypeSection = append(module.TypeSection, voidType)
	module.FunctionSection = []uint32{1}
	module.CodeSection = []*wasm.Code{{Body: []byte{wasm.OpcodeEnd}}}
	start := uint32(1) // function index space: import "answer" is 0, this defined function is 1
	module.StartSection = &start
	module.BuildIndexSpaces()

	mi, err := Instantiate(stdcontext.Background(), c, rctx, module, "m", answerResolver())
	require.NoError(t, err)
	require.NotNil(t, mi)
}

func TestInstantiate_StartFunctionTrapAbortsInstantiation(t *testing.T) {
	c := NewCompartment()
	rctx := c.NewContext()
	module := buildModule()

	voidType := &wasm.FunctionType{}
	module.TypeSection = append(module.TypeSection, voidType)
	module.FunctionSection = []uint32{1}
	module.CodeSection = []*wasm.Code{{Body: []byte{wasm.OpcodeUnreachable, wasm.OpcodeEnd}}}
	start := uint32(1)
	module.StartSection = &start
	module.BuildIndexSpaces()

	_, err := Instantiate(stdcontext.Background(), c, rctx, module, "m", answerResolver())
	require.Error(t, err, "a trapping start function must abort instantiation")
}

func TestFunctionInstance_Call_TrapReportsCallingFrame(t *testing.T) {
	c := NewCompartment()
	rctx := c.NewContext()
	module := buildModule()

	voidType := &wasm.FunctionType{}
	module.TypeSection = append(module.TypeSection, voidType)
	module.FunctionSection = []uint32{1}
	module.CodeSection = []*wasm.Code{{Body: []byte{wasm.OpcodeUnreachable, wasm.OpcodeEnd}}}
	module.ExportSection = append(module.ExportSection, &wasm.Export{Name: "boom", Kind: wasm.ExternTypeFunc, Index: 1})
	module.BuildIndexSpaces()

	mi, err := Instantiate(stdcontext.Background(), c, rctx, module, "m", answerResolver())
	require.NoError(t, err)

	fn, ok := mi.ExportedFunction("boom")
	require.True(t, ok)

	_, err = fn.Call(stdcontext.Background(), rctx, nil)
	var tr *trap.Trap
	require.ErrorAs(t, err, &tr)
	require.Equal(t, trap.KindUnreachable, tr.Kind)
	require.Len(t, tr.Frames, 1)
	require.Equal(t, "m", tr.Frames[0].ModuleName)
	require.Equal(t, "boom", tr.Frames[0].FuncName)
}
