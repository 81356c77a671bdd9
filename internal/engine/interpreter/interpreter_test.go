package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wavmgo/wavm/internal/trap"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

type fakeMemory struct{ data []byte }

func (f *fakeMemory) Size() uint32 { return uint32(len(f.data)) / wasm.MemoryPageSize }
func (f *fakeMemory) Grow(delta uint32) (uint32, bool) {
	prev := f.Size()
	f.data = append(f.data, make([]byte, delta*wasm.MemoryPageSize)...)
	return prev, true
}
func (f *fakeMemory) Read(offset, n uint32) ([]byte, bool) {
	if uint64(offset)+uint64(n) > uint64(len(f.data)) {
		return nil, false
	}
	return f.data[offset : offset+n], true
}
func (f *fakeMemory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(f.data)) {
		return false
	}
	copy(f.data[offset:], data)
	return true
}

type fakeTable struct {
	refs  []uint64
	types []uint32 // one entry per possible funcIdx (ref-1), shared across the test table
}

func (t *fakeTable) Size() uint32 { return uint32(len(t.refs)) }
func (t *fakeTable) Grow(delta uint32, init uint64) (uint32, bool) {
	prev := uint32(len(t.refs))
	grown := make([]uint64, delta)
	for i := range grown {
		grown[i] = init
	}
	t.refs = append(t.refs, grown...)
	return prev, true
}
func (t *fakeTable) Get(idx uint32) (uint64, bool) {
	if idx >= uint32(len(t.refs)) {
		return 0, false
	}
	return t.refs[idx], true
}
func (t *fakeTable) Set(idx uint32, ref uint64) bool {
	if idx >= uint32(len(t.refs)) {
		return false
	}
	t.refs[idx] = ref
	return true
}
func (t *fakeTable) FuncTypeIndex(idx uint32) (uint32, bool) {
	ref, ok := t.Get(idx)
	if !ok || ref == 0 {
		return 0, false
	}
	return t.types[ref-1], true
}

type fakeHost struct {
	globals  []uint64
	mem      *fakeMemory
	table    *fakeTable
	funcs    map[uint32]func(params []uint64) []uint64
	arities  map[uint32][2]int
	elemSegs map[uint32][]uint32
	dataSegs map[uint32][]byte
	dropped  map[uint32]bool
	dataDrop map[uint32]bool
}

func (h *fakeHost) Memory(idx uint32) (Memory, bool) {
	if idx != 0 || h.mem == nil {
		return nil, false
	}
	return h.mem, true
}
func (h *fakeHost) Table(idx uint32) (Table, bool) {
	if idx != 0 || h.table == nil {
		return nil, false
	}
	return h.table, true
}
func (h *fakeHost) GlobalGet(idx uint32) uint64    { return h.globals[idx] }
func (h *fakeHost) GlobalSet(idx uint32, v uint64) { h.globals[idx] = v }
func (h *fakeHost) FunctionArity(idx uint32) (int, int) {
	a := h.arities[idx]
	return a[0], a[1]
}
func (h *fakeHost) TypeArity(uint32) (int, int) { return 0, 0 }
func (h *fakeHost) Frames() []trap.Frame        { return nil }
func (h *fakeHost) CallFunction(idx uint32, params []uint64) ([]uint64, error) {
	return h.funcs[idx](params), nil
}
func (h *fakeHost) ElementSegment(idx uint32) ([]uint32, bool) {
	return h.elemSegs[idx], h.dropped[idx]
}
func (h *fakeHost) DataSegment(idx uint32) ([]byte, bool) {
	return h.dataSegs[idx], h.dataDrop[idx]
}
func (h *fakeHost) DropElement(idx uint32) { h.dropped[idx] = true }
func (h *fakeHost) DropData(idx uint32)    { h.dataDrop[idx] = true }
func (h *fakeHost) InstanceName() string   { return "test" }

func decode(t *testing.T, body []byte) []wasm.Instruction {
	t.Helper()
	instrs, err := wasm.DecodeInstructions(body)
	require.NoError(t, err)
	return instrs
}

func TestRun_addTwoLocals(t *testing.T) {
	body := []byte{
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	host := &fakeHost{}
	results, err := Run(instrs, []uint64{3, 4}, []wasm.ValueType{wasm.ValueTypeI32}, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)
}

func TestRun_ifElse(t *testing.T) {
	body := []byte{
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeIf, 0x7f,
		wasm.OpcodeI32Const, 0x01,
		wasm.OpcodeElse,
		wasm.OpcodeI32Const, 0x02,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	host := &fakeHost{}
	results, err := Run(instrs, []uint64{1}, []wasm.ValueType{wasm.ValueTypeI32}, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, results)

	results, err = Run(instrs, []uint64{0}, []wasm.ValueType{wasm.ValueTypeI32}, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, results)
}

func TestRun_loopBrIf(t *testing.T) {
	// sums 1..n via a loop counting down in local 0, accumulating into local 1.
	body := []byte{
		wasm.OpcodeLoop, 0x40,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeI32Add,
		wasm.OpcodeLocalSet, 0x01,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeI32Const, 0x01,
		wasm.OpcodeI32Sub,
		wasm.OpcodeLocalTee, 0x00,
		wasm.OpcodeBrIf, 0x00,
		wasm.OpcodeEnd,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	host := &fakeHost{}
	results, err := Run(instrs, []uint64{3, 0}, []wasm.ValueType{wasm.ValueTypeI32}, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{6}, results)
}

func TestRun_unreachableTraps(t *testing.T) {
	instrs := decode(t, []byte{wasm.OpcodeUnreachable, wasm.OpcodeEnd})
	_, err := Run(instrs, nil, nil, &fakeHost{})
	require.Error(t, err)
}

func TestRun_divideByZeroTraps(t *testing.T) {
	body := []byte{
		wasm.OpcodeI32Const, 0x01,
		wasm.OpcodeI32Const, 0x00,
		wasm.OpcodeI32DivS,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	_, err := Run(instrs, nil, []wasm.ValueType{wasm.ValueTypeI32}, &fakeHost{})
	require.Error(t, err)
}

func TestRun_memoryLoadStore(t *testing.T) {
	body := []byte{
		wasm.OpcodeI32Const, 0x00,
		wasm.OpcodeI32Const, 0x2a,
		wasm.OpcodeI32Store, 0x02, 0x00,
		wasm.OpcodeI32Const, 0x00,
		wasm.OpcodeI32Load, 0x02, 0x00,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	host := &fakeHost{mem: &fakeMemory{data: make([]byte, wasm.MemoryPageSize)}}
	results, err := Run(instrs, nil, []wasm.ValueType{wasm.ValueTypeI32}, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestRun_callDelegatesToHost(t *testing.T) {
	body := []byte{
		wasm.OpcodeI32Const, 0x05,
		wasm.OpcodeCall, 0x00,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	host := &fakeHost{
		funcs:   map[uint32]func([]uint64) []uint64{0: func(p []uint64) []uint64 { return []uint64{p[0] * 2} }},
		arities: map[uint32][2]int{0: {1, 1}},
	}
	results, err := Run(instrs, nil, []wasm.ValueType{wasm.ValueTypeI32}, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{10}, results)
}

func TestRun_refFuncAndTableGetSet(t *testing.T) {
	body := []byte{
		wasm.OpcodeI32Const, 0x00,
		wasm.OpcodeRefFunc, 0x02,
		wasm.OpcodeTableSet, 0x00,
		wasm.OpcodeI32Const, 0x00,
		wasm.OpcodeTableGet, 0x00,
		wasm.OpcodeRefIsNull,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	host := &fakeHost{table: &fakeTable{refs: make([]uint64, 1), types: []uint32{0, 0, 0}}}
	results, err := Run(instrs, nil, []wasm.ValueType{wasm.ValueTypeI32}, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, results) // not null: ref_is_null is false (0)
}

func TestRun_tableBulkOps(t *testing.T) {
	// table.init copies segment [1,2,3] (funcidx refs) into a 4-slot table,
	// table.grow extends it by 2 with null refs, table.size
	// reports the resulting length.
	body := []byte{
		wasm.OpcodeI32Const, 0x00, // dst
		wasm.OpcodeI32Const, 0x00, // src
		wasm.OpcodeI32Const, 0x03, // n
		wasm.OpcodeMiscPrefix, byte(wasm.OpcodeMiscTableInit), 0x00, 0x00,
		wasm.OpcodeMiscPrefix, byte(wasm.OpcodeMiscElemDrop), 0x00,
		wasm.OpcodeRefNull, wasm.ValueTypeFuncref,
		wasm.OpcodeI32Const, 0x02,
		wasm.OpcodeMiscPrefix, byte(wasm.OpcodeMiscTableGrow), 0x00,
		wasm.OpcodeDrop,
		wasm.OpcodeMiscPrefix, byte(wasm.OpcodeMiscTableSize), 0x00,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	host := &fakeHost{
		table:    &fakeTable{refs: make([]uint64, 4), types: []uint32{0, 0, 0}},
		elemSegs: map[uint32][]uint32{0: {0, 1, 2}},
		dropped:  map[uint32]bool{},
	}
	results, err := Run(instrs, nil, []wasm.ValueType{wasm.ValueTypeI32}, host)
	require.NoError(t, err)
	require.Equal(t, []uint64{6}, results)
	require.Equal(t, []uint64{1, 2, 3, 0, 0, 0}, host.table.refs)
}

func TestRun_memoryBulkOps(t *testing.T) {
	// memory.init writes a 3-byte passive segment at offset 10, then
	// memory.copy duplicates it to offset 20, then memory.fill zeroes
	// offset 0..4.
	body := []byte{
		wasm.OpcodeI32Const, 0x0a, // dst
		wasm.OpcodeI32Const, 0x00, // src
		wasm.OpcodeI32Const, 0x03, // n
		wasm.OpcodeMiscPrefix, byte(wasm.OpcodeMiscMemoryInit), 0x00, 0x00,
		wasm.OpcodeMiscPrefix, byte(wasm.OpcodeMiscDataDrop), 0x00,
		wasm.OpcodeI32Const, 0x14, // dst
		wasm.OpcodeI32Const, 0x0a, // src
		wasm.OpcodeI32Const, 0x03, // n
		wasm.OpcodeMiscPrefix, byte(wasm.OpcodeMiscMemoryCopy), 0x00, 0x00,
		wasm.OpcodeI32Const, 0x00, // dst
		wasm.OpcodeI32Const, 0x00, // val
		wasm.OpcodeI32Const, 0x04, // n
		wasm.OpcodeMiscPrefix, byte(wasm.OpcodeMiscMemoryFill), 0x00,
		wasm.OpcodeEnd,
	}
	instrs := decode(t, body)
	host := &fakeHost{
		mem:      &fakeMemory{data: make([]byte, wasm.MemoryPageSize)},
		dataSegs: map[uint32][]byte{0: {0xde, 0xad, 0xbe}},
		dataDrop: map[uint32]bool{},
	}
	_, err := Run(instrs, nil, nil, host)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe}, host.mem.data[10:13])
	require.Equal(t, []byte{0xde, 0xad, 0xbe}, host.mem.data[20:23])
	require.Equal(t, []byte{0, 0, 0, 0}, host.mem.data[0:4])
}

func TestRun_callIndirectTraps(t *testing.T) {
	callIndirectBody := func(elemIdx byte) []byte {
		return []byte{
			wasm.OpcodeI32Const, elemIdx,
			wasm.OpcodeCallIndirect, 0x00, 0x00, // type index 0, table index 0
			wasm.OpcodeEnd,
		}
	}

	tests := []struct {
		name     string
		host     *fakeHost
		elemIdx  byte
		wantKind trap.Kind
	}{
		{
			name:     "table index unresolved",
			host:     &fakeHost{},
			elemIdx:  0,
			wantKind: trap.KindOutOfBoundsTableAccess,
		},
		{
			name:     "elem index out of table bounds",
			host:     &fakeHost{table: &fakeTable{refs: make([]uint64, 1), types: []uint32{0}}},
			elemIdx:  5,
			wantKind: trap.KindOutOfBoundsTableAccess,
		},
		{
			name:     "slot never written",
			host:     &fakeHost{table: &fakeTable{refs: make([]uint64, 1), types: []uint32{0}}},
			elemIdx:  0,
			wantKind: trap.KindUninitializedElement,
		},
		{
			name: "signature mismatch",
			host: &fakeHost{table: &fakeTable{
				refs:  []uint64{1}, // biased funcIdx 0
				types: []uint32{1}, // that func's type is 1, but ins.TypeIndex is 0
			}},
			elemIdx:  0,
			wantKind: trap.KindIndirectCallTypeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrs := decode(t, callIndirectBody(tt.elemIdx))
			_, err := Run(instrs, nil, nil, tt.host)
			var tr *trap.Trap
			require.ErrorAs(t, err, &tr)
			require.Equal(t, tt.wantKind, tr.Kind)
		})
	}
}

func TestEngine_compileAndDecodeRoundTrips(t *testing.T) {
	code := &wasm.Code{Body: []byte{wasm.OpcodeI32Const, 0x07, wasm.OpcodeEnd}}
	e := Engine{}
	result, err := e.Compile(&wasm.Module{}, 0, &wasm.FunctionType{}, code, e.Target())
	require.NoError(t, err)
	instrs, err := Decode(result.Object)
	require.NoError(t, err)
	require.Len(t, instrs, 2)
}
