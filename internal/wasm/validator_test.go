package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func funcTypeIdx(m *Module, ft *FunctionType) uint32 {
	for i, t := range m.TypeSection {
		if t.EqualTo(ft) {
			return uint32(i)
		}
	}
	m.TypeSection = append(m.TypeSection, ft)
	return uint32(len(m.TypeSection) - 1)
}

func moduleWithBody(ft *FunctionType, locals []ValueType, body []byte) *Module {
	m := &Module{}
	typeIdx := funcTypeIdx(m, ft)
	m.FunctionSection = []uint32{typeIdx}
	m.CodeSection = []*Code{{LocalTypes: locals, Body: body}}
	m.BuildIndexSpaces()
	return m
}

func TestValidate_validFunctions(t *testing.T) {
	tests := []struct {
		name string
		ft   *FunctionType
		body []byte
	}{
		{
			name: "empty void function",
			ft:   &FunctionType{},
			body: []byte{OpcodeEnd},
		},
		{
			name: "i32 const return",
			ft:   &FunctionType{Results: []ValueType{ValueTypeI32}},
			body: []byte{OpcodeI32Const, 0x2a, OpcodeEnd},
		},
		{
			name: "add two locals",
			ft:   &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}},
			body: []byte{OpcodeLocalGet, 0x00, OpcodeLocalGet, 0x01, OpcodeI32Add, OpcodeEnd},
		},
		{
			name: "if/else both produce i32",
			ft:   &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}},
			body: []byte{
				OpcodeLocalGet, 0x00,
				OpcodeIf, 0x7f, // blocktype i32
				OpcodeI32Const, 0x01,
				OpcodeElse,
				OpcodeI32Const, 0x00,
				OpcodeEnd,
				OpcodeEnd,
			},
		},
		{
			name: "loop with br_if",
			ft:   &FunctionType{},
			body: []byte{
				OpcodeLoop, 0x40, // empty blocktype
				OpcodeI32Const, 0x00,
				OpcodeBrIf, 0x00,
				OpcodeEnd,
				OpcodeEnd,
			},
		},
		{
			name: "unreachable polymorphism",
			ft:   &FunctionType{Results: []ValueType{ValueTypeI32}},
			body: []byte{OpcodeUnreachable, OpcodeEnd},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := moduleWithBody(tc.ft, nil, tc.body)
			require.NoError(t, m.Validate(Features20220419))
		})
	}
}

func TestValidate_invalidFunctions(t *testing.T) {
	tests := []struct {
		name string
		ft   *FunctionType
		body []byte
	}{
		{
			name: "type mismatch on return",
			ft:   &FunctionType{Results: []ValueType{ValueTypeI32}},
			body: []byte{OpcodeF32Const, 0x00, 0x00, 0x00, 0x00, OpcodeEnd},
		},
		{
			name: "stack underflow",
			ft:   &FunctionType{Results: []ValueType{ValueTypeI32}},
			body: []byte{OpcodeI32Add, OpcodeEnd},
		},
		{
			name: "values remain at end",
			ft:   &FunctionType{},
			body: []byte{OpcodeI32Const, 0x00, OpcodeEnd},
		},
		{
			name: "set immutable global",
			ft:   &FunctionType{},
			body: []byte{OpcodeI32Const, 0x00, OpcodeGlobalSet, 0x00, OpcodeEnd},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := moduleWithBody(tc.ft, nil, tc.body)
			if tc.name == "set immutable global" {
				m.GlobalSection = []*Global{{Type: GlobalType{ValType: ValueTypeI32, Mutable: false}, Init: ConstantExpression{Kind: ValueTypeI32}}}
				m.BuildIndexSpaces()
			}
			require.Error(t, m.Validate(Features20220419))
		})
	}
}

func TestValidate_featureGating(t *testing.T) {
	m := moduleWithBody(&FunctionType{}, nil, []byte{
		OpcodeAtomicPrefix, OpcodeAtomicFence, 0x00, OpcodeEnd,
	})
	require.Error(t, m.Validate(Features20220419&^FeatureAtomics))
	require.NoError(t, m.Validate(Features20220419))
}

func TestDecodeInstructions_roundTripsOffsets(t *testing.T) {
	body := []byte{OpcodeLocalGet, 0x00, OpcodeI32Const, 0x05, OpcodeI32Add, OpcodeEnd}
	instrs, err := DecodeInstructions(body)
	require.NoError(t, err)
	require.Len(t, instrs, 4)
	require.Equal(t, OpcodeLocalGet, instrs[0].Opcode)
	require.Equal(t, uint32(0), instrs[0].LocalIndex)
	require.Equal(t, OpcodeI32Const, instrs[1].Opcode)
	require.Equal(t, int32(5), instrs[1].ConstI32)
	require.Equal(t, uint32(2), instrs[1].Offset)
}
