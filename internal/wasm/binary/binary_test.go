package binary

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func u32(v uint32) *uint32 { return &v }

func TestEncodeDecodeModule_roundTrips(t *testing.T) {
	voidVoid := &wasm.FunctionType{}
	i32Ret := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}

	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{voidVoid, i32Ret},
		ImportSection: []*wasm.Import{
			{Module: "env", Name: "log", Kind: wasm.ExternTypeFunc, DescFunc: 0},
		},
		FunctionSection: []uint32{1},
		MemorySection:   []*wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: u32(2)}}},
		GlobalSection: []*wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true},
				Init: wasm.ConstantExpression{Kind: wasm.ValueTypeI32, Data: []byte{0x2a}}},
		},
		ExportSection: []*wasm.Export{
			{Name: "answer", Kind: wasm.ExternTypeFunc, Index: 1},
		},
		CodeSection: []*wasm.Code{
			{LocalTypes: nil, Body: []byte{wasm.OpcodeI32Const, 0x2a, wasm.OpcodeEnd}},
		},
		DataSection: []*wasm.DataSegment{
			{Mode: wasm.DataSegmentModeActive, MemoryIndex: 0,
				OffsetExpr: wasm.ConstantExpression{Kind: wasm.ValueTypeI32, Data: []byte{0x00}},
				Init:       []byte("hi")},
		},
	}
	m.BuildIndexSpaces()

	encoded := EncodeModule(m)
	require.Equal(t, Magic, encoded[:4])
	require.Equal(t, Version, encoded[4:8])

	decoded, err := DecodeModule(encoded)
	require.NoError(t, err)

	require.Len(t, decoded.TypeSection, 2)
	require.Empty(t, decoded.TypeSection[0].Params)
	require.Equal(t, []wasm.ValueType{wasm.ValueTypeI32}, decoded.TypeSection[1].Results)

	require.Len(t, decoded.ImportSection, 1)
	require.Equal(t, "env", decoded.ImportSection[0].Module)
	require.Equal(t, "log", decoded.ImportSection[0].Name)

	require.Equal(t, []uint32{1}, decoded.FunctionSection)

	require.Len(t, decoded.MemorySection, 1)
	require.Equal(t, uint32(1), decoded.MemorySection[0].Min)
	require.Equal(t, uint32(2), *decoded.MemorySection[0].Max)

	require.Len(t, decoded.GlobalSection, 1)
	require.True(t, decoded.GlobalSection[0].Type.Mutable)

	require.Len(t, decoded.ExportSection, 1)
	require.Equal(t, "answer", decoded.ExportSection[0].Name)

	require.Len(t, decoded.CodeSection, 1)
	require.Equal(t, m.CodeSection[0].Body, decoded.CodeSection[0].Body)

	require.Len(t, decoded.DataSection, 1)
	require.Equal(t, []byte("hi"), decoded.DataSection[0].Init)
}

func TestDecodeModule_rejectsBadMagic(t *testing.T) {
	_, err := DecodeModule([]byte{0x00, 0x61, 0x73, 0x6d + 1, 0x01, 0x00, 0x00, 0x00})
	require.Error(t, err)
}

func TestDecodeModule_rejectsOutOfOrderSections(t *testing.T) {
	data := append([]byte{}, Magic...)
	data = append(data, Version...)
	// function section (3) before type section (1): out of order.
	data = append(data, byte(sectionIDFunction), 0x01, 0x00)
	data = append(data, byte(sectionIDType), 0x01, 0x00)
	_, err := DecodeModule(data)
	require.Error(t, err)
}

func TestElementSegment_roundTripsExplicitReftype(t *testing.T) {
	m := &wasm.Module{
		TableSection: []*wasm.TableType{{ElemType: wasm.ValueTypeFuncref, Limits: wasm.Limits{Min: 1}}},
		ElementSection: []*wasm.ElementSegment{
			{Mode: wasm.ElementSegmentModeActive, TableIndex: 0, ElemType: wasm.ValueTypeFuncref,
				OffsetExpr: wasm.ConstantExpression{Kind: wasm.ValueTypeI32, Data: []byte{0x00}},
				Init:       []wasm.ElementInit{{FuncIdx: 3}, {RefNull: true}}},
		},
	}
	m.BuildIndexSpaces()
	decoded, err := DecodeModule(EncodeModule(m))
	require.NoError(t, err)
	require.Len(t, decoded.ElementSection, 1)
	require.Equal(t, wasm.ElementSegmentModeActive, decoded.ElementSection[0].Mode)
	require.Len(t, decoded.ElementSection[0].Init, 2)
	require.Equal(t, uint32(3), decoded.ElementSection[0].Init[0].FuncIdx)
	require.True(t, decoded.ElementSection[0].Init[1].RefNull)
}

func TestDecodeConstantExpression_globalGetResolvesImportType(t *testing.T) {
	m := &wasm.Module{
		ImportSection: []*wasm.Import{
			{Module: "env", Name: "base", Kind: wasm.ExternTypeGlobal,
				DescGlobal: wasm.GlobalType{ValType: wasm.ValueTypeI64, Mutable: false}},
		},
	}
	m.BuildIndexSpaces()
	body := []byte{wasm.OpcodeGlobalGet, 0x00, wasm.OpcodeEnd}
	r := bytes.NewReader(body)
	ce, err := decodeConstantExpression(r, m)
	require.NoError(t, err)
	require.Equal(t, wasm.ValueTypeI64, ce.Kind)
}
