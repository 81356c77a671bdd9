// Package interpreter is the reference Codegen implementation (spec.md
// §4.3/component F): it tree-walks the validated instruction IR rather
// than emitting machine code, exactly as the teacher's own second engine
// (internal/engine/interpreter) does relative to its compiler engine. It
// satisfies internal/engine.Codegen; the "object bytes" it hands back from
// Compile are a gob-encoded copy of the decoded instruction stream (SPEC_FULL
// Open Question #3), not machine code, since spec.md §1 keeps the real
// backend an external, opaque collaborator.
package interpreter

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/bits"

	"github.com/wavmgo/wavm/internal/engine"
	"github.com/wavmgo/wavm/internal/trap"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// Engine is the interpreter's Codegen. It has no mutable state: every
// Compile call is independent, matching the teacher's own stateless
// per-module compile step (state that IS shared, the module's decoded
// function table, lives in Host/runtime territory, not here).
type Engine struct{}

var _ engine.Codegen = Engine{}

func (Engine) Target() engine.Target { return engine.TargetInterpreter }

func (Engine) Compile(module *wasm.Module, funcIdx uint32, sig *wasm.FunctionType, code *wasm.Code, target engine.Target) (engine.CompileResult, error) {
	instrs, err := wasm.DecodeInstructions(code.Body)
	if err != nil {
		return engine.CompileResult{}, fmt.Errorf("function %d: %w", funcIdx, err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(instrs); err != nil {
		return engine.CompileResult{}, fmt.Errorf("function %d: encoding object: %w", funcIdx, err)
	}
	return engine.CompileResult{Object: buf.Bytes()}, nil
}

// Decode recovers the []wasm.Instruction a CompileResult.Object was built
// from, whether it came fresh out of Compile or was loaded from a
// wavm.precompiled_object custom section.
func Decode(object []byte) ([]wasm.Instruction, error) {
	var instrs []wasm.Instruction
	if err := gob.NewDecoder(bytes.NewReader(object)).Decode(&instrs); err != nil {
		return nil, fmt.Errorf("decoding interpreter object: %w", err)
	}
	return instrs, nil
}

// Memory is the subset of the runtime's linear memory a running function
// needs (internal/runtime.Memory satisfies this). Kept narrow so this
// package doesn't import internal/runtime (which itself will depend on
// the engine to run start functions and host calls — internal/runtime is
// downstream of internal/engine, not the other way around).
type Memory interface {
	Size() uint32
	Grow(deltaPages uint32) (previous uint32, ok bool)
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, data []byte) bool
}

// Table is the subset of the runtime's table object a call_indirect or
// table instruction needs.
type Table interface {
	Size() uint32
	Grow(delta uint32, init uint64) (previous uint32, ok bool)
	Get(idx uint32) (ref uint64, ok bool)
	Set(idx uint32, ref uint64) bool
	FuncTypeIndex(idx uint32) (typeIdx uint32, ok bool)
}

// Host is everything the interpreter calls out to beyond pure computation:
// module-level state (globals, memories, tables) and function dispatch
// (so a call instruction can re-enter either another interpreted function
// or a host function without the interpreter knowing which).
type Host interface {
	Memory(idx uint32) (Memory, bool)
	Table(idx uint32) (Table, bool)
	GlobalGet(idx uint32) uint64
	GlobalSet(idx uint32, v uint64)
	// CallFunction invokes funcIdx (imported or defined, the Host decides
	// which) with params already in Wasm value-type-agnostic uint64 form
	// and returns its results the same way.
	CallFunction(funcIdx uint32, params []uint64) ([]uint64, error)
	// FunctionArity reports funcIdx's declared parameter and result counts,
	// so Call knows how many stack values to pop before invoking it and
	// push back afterward.
	FunctionArity(funcIdx uint32) (params, results int)
	// TypeArity resolves a type-index block's (params, results) counts,
	// needed for multi-value block/loop/if (BlockTypeKindTypeIndex).
	TypeArity(typeIdx uint32) (params, results int)
	// Frames snapshots the calling thread's current guest call stack,
	// innermost first, for Run's trap.Boundary to attach to a trap raised
	// directly in this invocation.
	Frames() []trap.Frame
	// ElementSegment/DataSegment/DropElement/DropData back the
	// active/passive segments a
	// bulk-memory op needs; kept on Host since segment storage is mutable
	// per-instance state, not part of the (immutable) decoded Module.
	ElementSegment(idx uint32) (funcIndices []uint32, dropped bool)
	DataSegment(idx uint32) (data []byte, dropped bool)
	DropElement(idx uint32)
	DropData(idx uint32)
	// InstanceName names the module instance this machine is running
	// inside of, for the Instance field of segment-access traps.
	InstanceName() string
}

// controlFrame mirrors validator.controlFrame's shape at runtime: enough
// to find a branch target's continuation point and arity.
type controlFrame struct {
	opcode      wasm.Opcode
	labelArity  int  // number of values a branch to this frame carries
	resultArity int  // number of values this frame leaves on completion
	stackHeight int  // value stack height at frame entry
	continuation int // instruction index to jump to on branch (loop: header; block/if: matching end+1)
	elseIdx     int  // instruction index of this frame's `else`, -1 if none (if-frames only)
}

// Run executes fn's instructions against host, given the function's
// already-initialized locals (params followed by zeroed declared locals),
// returning its results in the function type's declared order. Run is one
// full invocation; recursive calls happen via host.CallFunction, which may
// itself call back into Run for another interpreted function -- the
// teacher's own engine re-enters the same way.
func Run(instrs []wasm.Instruction, locals []uint64, resultTypes []wasm.ValueType, host Host) (results []uint64, err error) {
	defer trap.Boundary(&err, host.Frames)

	m := &machine{instrs: instrs, locals: locals, host: host}
	m.frames = append(m.frames, controlFrame{
		opcode: wasm.OpcodeBlock, resultArity: len(resultTypes), continuation: len(instrs),
		elseIdx: -1,
	})
	m.run()

	results = make([]uint64, len(resultTypes))
	for i := len(resultTypes) - 1; i >= 0; i-- {
		results[i] = m.pop()
	}
	return results, nil
}

type machine struct {
	instrs []wasm.Instruction
	locals []uint64
	stack  []uint64
	frames []controlFrame
	host   Host
	pc     int
}

func (m *machine) push(v uint64)  { m.stack = append(m.stack, v) }
func (m *machine) pop() uint64 {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}
func (m *machine) pushI32(v int32)     { m.push(uint64(uint32(v))) }
func (m *machine) popI32() int32       { return int32(uint32(m.pop())) }
func (m *machine) pushU32(v uint32)    { m.push(uint64(v)) }
func (m *machine) popU32() uint32      { return uint32(m.pop()) }
func (m *machine) pushI64(v int64)     { m.push(uint64(v)) }
func (m *machine) popI64() int64       { return int64(m.pop()) }
func (m *machine) pushU64(v uint64)    { m.push(v) }
func (m *machine) popU64() uint64      { return m.pop() }
func (m *machine) pushF32(v float32)   { m.push(uint64(math.Float32bits(v))) }
func (m *machine) popF32() float32     { return math.Float32frombits(uint32(m.pop())) }
func (m *machine) pushF64(v float64)   { m.push(math.Float64bits(v)) }
func (m *machine) popF64() float64     { return math.Float64frombits(m.pop()) }
func (m *machine) pushBool(b bool) {
	if b {
		m.pushI32(1)
	} else {
		m.pushI32(0)
	}
}

func (m *machine) curFrame() *controlFrame { return &m.frames[len(m.frames)-1] }

// branch unwinds to the depth-th enclosing frame (0 = innermost), drops its
// label-arity worth of values off the stack top, truncates the stack back
// to the frame's entry height and continues at the frame's continuation:
// loop headers re-enter, everything else resumes past the matching `end`.
func (m *machine) branch(depth int) {
	target := m.frames[len(m.frames)-1-depth]
	carried := make([]uint64, target.labelArity)
	for i := target.labelArity - 1; i >= 0; i-- {
		carried[i] = m.pop()
	}
	m.stack = m.stack[:target.stackHeight]
	for _, v := range carried {
		m.push(v)
	}
	m.frames = m.frames[:len(m.frames)-depth]
	if target.opcode == wasm.OpcodeLoop {
		m.pc = target.continuation
	} else {
		m.pc = target.continuation
		m.frames = m.frames[:len(m.frames)-1]
	}
}

func (m *machine) run() {
	for m.pc < len(m.instrs) {
		ins := m.instrs[m.pc]
		m.pc++
		m.step(ins)
		if len(m.frames) == 0 {
			return
		}
	}
}

func (m *machine) step(ins wasm.Instruction) {
	switch ins.Opcode {
	case wasm.OpcodeUnreachable:
		trap.New(trap.KindUnreachable)
	case wasm.OpcodeNop:
	case wasm.OpcodeBlock, wasm.OpcodeLoop:
		end := m.matchingEnd(m.pc - 1)
		arity := m.blockArity(ins)
		m.frames = append(m.frames, controlFrame{
			opcode: ins.Opcode, labelArity: labelArityFor(ins.Opcode, arity),
			resultArity: arity.results, stackHeight: len(m.stack) - arity.params,
			continuation: endContinuation(ins.Opcode, m.pc-1, end), elseIdx: -1,
		})
	case wasm.OpcodeIf:
		end := m.matchingEnd(m.pc - 1)
		elseIdx := m.matchingElse(m.pc-1, end)
		arity := m.blockArity(ins)
		cond := m.popI32()
		m.frames = append(m.frames, controlFrame{
			opcode: ins.Opcode, labelArity: arity.results,
			resultArity: arity.results, stackHeight: len(m.stack) - arity.params,
			continuation: end + 1, elseIdx: elseIdx,
		})
		if cond == 0 {
			if elseIdx >= 0 {
				m.pc = elseIdx + 1
			} else {
				m.pc = end + 1
				m.frames = m.frames[:len(m.frames)-1]
			}
		}
	case wasm.OpcodeElse:
		f := m.curFrame()
		m.pc = f.continuation
		m.frames = m.frames[:len(m.frames)-1]
	case wasm.OpcodeEnd:
		m.frames = m.frames[:len(m.frames)-1]
	case wasm.OpcodeBr:
		m.branch(int(ins.FuncIndex))
	case wasm.OpcodeBrIf:
		if m.popI32() != 0 {
			m.branch(int(ins.FuncIndex))
		}
	case wasm.OpcodeBrTable:
		idx := uint32(m.popI32())
		if idx < uint32(len(ins.Labels)) {
			m.branch(int(ins.Labels[idx]))
		} else {
			m.branch(int(ins.Default))
		}
	case wasm.OpcodeReturn:
		m.branch(len(m.frames) - 1)
	case wasm.OpcodeCall:
		m.call(ins.FuncIndex)
	case wasm.OpcodeCallIndirect:
		tbl, ok := m.host.Table(ins.TableIndex)
		elemIdx := m.popU32()
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, elemIdx)
		}
		ref, ok := tbl.Get(elemIdx)
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, elemIdx)
		}
		if ref == 0 {
			trap.New(trap.KindUninitializedElement)
		}
		gotType, ok := tbl.FuncTypeIndex(elemIdx)
		if !ok || gotType != ins.TypeIndex {
			trap.New(trap.KindIndirectCallTypeMismatch)
		}
		m.call(uint32(ref - 1))
	case wasm.OpcodeDrop:
		m.pop()
	case wasm.OpcodeSelect, wasm.OpcodeSelectWithType:
		cond := m.popI32()
		v2 := m.pop()
		v1 := m.pop()
		if cond != 0 {
			m.push(v1)
		} else {
			m.push(v2)
		}
	case wasm.OpcodeLocalGet:
		m.push(m.locals[ins.LocalIndex])
	case wasm.OpcodeLocalSet:
		m.locals[ins.LocalIndex] = m.pop()
	case wasm.OpcodeLocalTee:
		m.locals[ins.LocalIndex] = m.stack[len(m.stack)-1]
	case wasm.OpcodeGlobalGet:
		m.push(m.host.GlobalGet(ins.GlobalIndex))
	case wasm.OpcodeGlobalSet:
		m.host.GlobalSet(ins.GlobalIndex, m.pop())
	case wasm.OpcodeI32Const:
		m.pushI32(ins.ConstI32)
	case wasm.OpcodeI64Const:
		m.pushI64(ins.ConstI64)
	case wasm.OpcodeF32Const:
		m.push(uint64(ins.ConstF32))
	case wasm.OpcodeF64Const:
		m.push(ins.ConstF64)
	case wasm.OpcodeMemorySize:
		mem, ok := m.host.Memory(0)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(0, 0)
		}
		m.pushU32(mem.Size())
	case wasm.OpcodeMemoryGrow:
		mem, ok := m.host.Memory(0)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(0, 0)
		}
		prev, ok := mem.Grow(m.popU32())
		if !ok {
			m.pushI32(-1)
		} else {
			m.pushU32(prev)
		}
	case wasm.OpcodeRefNull:
		m.pushU32(0)
	case wasm.OpcodeRefIsNull:
		m.pushBool(m.pop() == 0)
	case wasm.OpcodeRefFunc:
		m.push(uint64(ins.FuncIndex) + 1)
	case wasm.OpcodeTableGet:
		tbl, ok := m.host.Table(ins.TableIndex)
		idx := m.popU32()
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, idx)
		}
		ref, ok := tbl.Get(idx)
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, idx)
		}
		m.push(ref)
	case wasm.OpcodeTableSet:
		tbl, ok := m.host.Table(ins.TableIndex)
		ref := m.pop()
		idx := m.popU32()
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, idx)
		}
		if !tbl.Set(idx, ref) {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, idx)
		}
	case wasm.OpcodeMiscPrefix:
		m.stepBulk(ins)
	default:
		if m.stepMemoryAccess(ins) {
			return
		}
		if m.stepNumeric(ins) {
			return
		}
		trap.New(trap.KindCalledUnimplementedIntrinsic)
	}
}

// stepBulk executes the 0xfc-prefixed bulk-memory/table and reference-types
// instructions (memory.init/copy/fill, data.drop, table.init/copy/fill/
// grow/size, elem.drop) plus the saturating float-to-int truncation
// instructions, which share the same prefix byte.
func (m *machine) stepBulk(ins wasm.Instruction) {
	switch ins.Misc {
	case wasm.OpcodeMiscI32TruncSatF32S:
		m.pushI32(int32(truncSatS(float64(m.popF32()), 32)))
	case wasm.OpcodeMiscI32TruncSatF32U:
		m.pushU32(uint32(truncSatU(float64(m.popF32()), 32)))
	case wasm.OpcodeMiscI32TruncSatF64S:
		m.pushI32(int32(truncSatS(m.popF64(), 32)))
	case wasm.OpcodeMiscI32TruncSatF64U:
		m.pushU32(uint32(truncSatU(m.popF64(), 32)))
	case wasm.OpcodeMiscI64TruncSatF32S:
		m.pushI64(truncSatS(float64(m.popF32()), 64))
	case wasm.OpcodeMiscI64TruncSatF32U:
		m.pushU64(truncSatU(float64(m.popF32()), 64))
	case wasm.OpcodeMiscI64TruncSatF64S:
		m.pushI64(truncSatS(m.popF64(), 64))
	case wasm.OpcodeMiscI64TruncSatF64U:
		m.pushU64(truncSatU(m.popF64(), 64))
	case wasm.OpcodeMiscMemoryInit:
		n, src, dst := m.popU32(), m.popU32(), m.popU32()
		data, dropped := m.host.DataSegment(ins.SegmentIdx)
		if dropped {
			data = nil
		}
		if uint64(src)+uint64(n) > uint64(len(data)) {
			trap.NewOutOfBoundsDataSegmentAccess(m.host.InstanceName(), ins.SegmentIdx, uint32(len(data)))
		}
		mem, ok := m.host.Memory(ins.MemoryIndex)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(ins.MemoryIndex, 0)
		}
		m.writePartial(ins.MemoryIndex, mem, dst, data[src:src+n])
	case wasm.OpcodeMiscDataDrop:
		m.host.DropData(ins.SegmentIdx)
	case wasm.OpcodeMiscMemoryCopy:
		n, src, dst := m.popU32(), m.popU32(), m.popU32()
		dstMem, ok := m.host.Memory(ins.MemoryIndex)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(ins.MemoryIndex, 0)
		}
		srcMem, ok := m.host.Memory(ins.TargetIdx)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(ins.TargetIdx, 0)
		}
		data, ok := srcMem.Read(src, n)
		if !ok {
			data = m.readPartial(ins.TargetIdx, srcMem, src, n)
			m.writePartial(ins.MemoryIndex, dstMem, dst, data)
			trap.NewOutOfBoundsMemoryAccess(ins.TargetIdx, uint64(src)+uint64(n))
		}
		m.writePartial(ins.MemoryIndex, dstMem, dst, data)
	case wasm.OpcodeMiscMemoryFill:
		n, v, dst := m.popU32(), byte(m.popU32()), m.popU32()
		mem, ok := m.host.Memory(ins.MemoryIndex)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(ins.MemoryIndex, 0)
		}
		fill := make([]byte, n)
		for i := range fill {
			fill[i] = v
		}
		m.writePartial(ins.MemoryIndex, mem, dst, fill)
	case wasm.OpcodeMiscTableInit:
		n, src, dst := m.popU32(), m.popU32(), m.popU32()
		funcs, dropped := m.host.ElementSegment(ins.SegmentIdx)
		if dropped {
			funcs = nil
		}
		if uint64(src)+uint64(n) > uint64(len(funcs)) {
			trap.NewOutOfBoundsElemSegmentAccess(m.host.InstanceName(), ins.SegmentIdx, uint32(len(funcs)))
		}
		tbl, ok := m.host.Table(ins.TableIndex)
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, dst)
		}
		for i := uint32(0); i < n; i++ {
			if !tbl.Set(dst+i, uint64(funcs[src+i])+1) {
				trap.NewOutOfBoundsTableAccess(ins.TableIndex, dst+i)
			}
		}
	case wasm.OpcodeMiscElemDrop:
		m.host.DropElement(ins.SegmentIdx)
	case wasm.OpcodeMiscTableCopy:
		n, src, dst := m.popU32(), m.popU32(), m.popU32()
		dstTbl, ok := m.host.Table(ins.TableIndex)
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, dst)
		}
		srcTbl, ok := m.host.Table(ins.TargetIdx)
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TargetIdx, src)
		}
		refs := make([]uint64, n)
		for i := uint32(0); i < n; i++ {
			ref, ok := srcTbl.Get(src + i)
			if !ok {
				trap.NewOutOfBoundsTableAccess(ins.TargetIdx, src+i)
			}
			refs[i] = ref
		}
		for i, ref := range refs {
			if !dstTbl.Set(dst+uint32(i), ref) {
				trap.NewOutOfBoundsTableAccess(ins.TableIndex, dst+uint32(i))
			}
		}
	case wasm.OpcodeMiscTableFill:
		n, val, dst := m.popU32(), m.pop(), m.popU32()
		tbl, ok := m.host.Table(ins.TableIndex)
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, dst)
		}
		for i := uint32(0); i < n; i++ {
			if !tbl.Set(dst+i, val) {
				trap.NewOutOfBoundsTableAccess(ins.TableIndex, dst+i)
			}
		}
	case wasm.OpcodeMiscTableGrow:
		delta, val := m.popU32(), m.pop()
		tbl, ok := m.host.Table(ins.TableIndex)
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, 0)
		}
		prev, ok := tbl.Grow(delta, val)
		if !ok {
			m.pushI32(-1)
		} else {
			m.pushU32(prev)
		}
	case wasm.OpcodeMiscTableSize:
		tbl, ok := m.host.Table(ins.TableIndex)
		if !ok {
			trap.NewOutOfBoundsTableAccess(ins.TableIndex, 0)
		}
		m.pushU32(tbl.Size())
	default:
		trap.New(trap.KindCalledUnimplementedIntrinsic)
	}
}

// writePartial writes as much of data as fits at dst before trapping, so a
// memory.init/copy/fill that runs past the end of memory still leaves its
// in-range prefix observable (spec.md §4.5).
func (m *machine) writePartial(memIdx uint32, mem Memory, dst uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	if mem.Write(dst, data) {
		return
	}
	size := uint64(mem.Size()) * uint64(wasm.MemoryPageSize)
	if uint64(dst) >= size {
		trap.NewOutOfBoundsMemoryAccess(memIdx, uint64(dst))
	}
	n := uint32(size - uint64(dst))
	if n > uint32(len(data)) {
		n = uint32(len(data))
	}
	mem.Write(dst, data[:n])
	trap.NewOutOfBoundsMemoryAccess(memIdx, uint64(dst)+uint64(len(data)))
}

// readPartial returns as many of the n bytes at src as are in range, for a
// memory.copy source read that will trap after writing its in-range prefix.
func (m *machine) readPartial(memIdx uint32, mem Memory, src, n uint32) []byte {
	size := uint64(mem.Size()) * uint64(wasm.MemoryPageSize)
	if uint64(src) >= size {
		return nil
	}
	avail := uint32(size - uint64(src))
	if avail > n {
		avail = n
	}
	b, _ := mem.Read(src, avail)
	return b
}

func (m *machine) call(funcIdx uint32) {
	paramCount, _ := m.host.FunctionArity(funcIdx)
	params := make([]uint64, paramCount)
	for i := paramCount - 1; i >= 0; i-- {
		params[i] = m.pop()
	}
	results, err := m.host.CallFunction(funcIdx, params)
	if err != nil {
		panic(err)
	}
	for _, r := range results {
		m.push(r)
	}
}

type blockArity struct{ params, results int }

func (m *machine) blockArity(ins wasm.Instruction) blockArity {
	switch ins.Block.Kind {
	case wasm.BlockTypeKindEmpty:
		return blockArity{}
	case wasm.BlockTypeKindValueType:
		return blockArity{results: 1}
	default:
		p, r := m.host.TypeArity(ins.Block.TypeIdx)
		return blockArity{params: p, results: r}
	}
}

func labelArityFor(op wasm.Opcode, a blockArity) int {
	if op == wasm.OpcodeLoop {
		return a.params
	}
	return a.results
}

func endContinuation(op wasm.Opcode, start, end int) int {
	if op == wasm.OpcodeLoop {
		return start + 1
	}
	return end + 1
}

// matchingEnd finds the `end` instruction closing the block/loop/if opened
// at idx, accounting for nesting.
func (m *machine) matchingEnd(idx int) int {
	depth := 0
	for i := idx + 1; i < len(m.instrs); i++ {
		switch m.instrs[i].Opcode {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			depth++
		case wasm.OpcodeEnd:
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return len(m.instrs)
}

// matchingElse finds ifIdx's else clause, if any, within [ifIdx, end).
func (m *machine) matchingElse(ifIdx, end int) int {
	depth := 0
	for i := ifIdx + 1; i < end; i++ {
		switch m.instrs[i].Opcode {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			depth++
		case wasm.OpcodeEnd:
			depth--
		case wasm.OpcodeElse:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (m *machine) stepMemoryAccess(ins wasm.Instruction) bool {
	load := func(size uint32) []byte {
		mem, ok := m.host.Memory(0)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(0, 0)
		}
		addr := m.popU32() + ins.Mem.Offset
		b, ok := mem.Read(addr, size)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(0, uint64(addr)+uint64(size))
		}
		return b
	}
	store := func(size uint32, data []byte) {
		mem, ok := m.host.Memory(0)
		if !ok {
			trap.NewOutOfBoundsMemoryAccess(0, 0)
		}
		addr := m.popU32() + ins.Mem.Offset
		if !mem.Write(addr, data) {
			trap.NewOutOfBoundsMemoryAccess(0, uint64(addr)+uint64(size))
		}
	}
	switch ins.Opcode {
	case wasm.OpcodeI32Load:
		b := load(4)
		m.pushU32(leU32(b))
	case wasm.OpcodeI64Load:
		b := load(8)
		m.pushI64(int64(leU64(b)))
	case wasm.OpcodeF32Load:
		b := load(4)
		m.push(uint64(leU32(b)))
	case wasm.OpcodeF64Load:
		b := load(8)
		m.push(leU64(b))
	case wasm.OpcodeI32Load8S:
		b := load(1)
		m.pushI32(int32(int8(b[0])))
	case wasm.OpcodeI32Load8U:
		b := load(1)
		m.pushU32(uint32(b[0]))
	case wasm.OpcodeI32Load16S:
		b := load(2)
		m.pushI32(int32(int16(leU32(pad(b, 4)))))
	case wasm.OpcodeI32Load16U:
		b := load(2)
		m.pushU32(uint32(leU32(pad(b, 4))))
	case wasm.OpcodeI32Store:
		v := m.popU32()
		store(4, leBytes32(v))
	case wasm.OpcodeI64Store:
		v := uint64(m.popI64())
		store(8, leBytes64(v))
	case wasm.OpcodeF32Store:
		v := uint32(m.pop())
		store(4, leBytes32(v))
	case wasm.OpcodeF64Store:
		v := m.pop()
		store(8, leBytes64(v))
	case wasm.OpcodeI32Store8:
		v := byte(m.popU32())
		store(1, []byte{v})
	case wasm.OpcodeI32Store16:
		v := uint16(m.popU32())
		store(2, leBytes32(uint32(v))[:2])
	default:
		return false
	}
	return true
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leU64(b []byte) uint64 {
	return uint64(leU32(b[:4])) | uint64(leU32(b[4:8]))<<32
}
func leBytes32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func leBytes64(v uint64) []byte {
	lo := leBytes32(uint32(v))
	hi := leBytes32(uint32(v >> 32))
	return append(lo, hi...)
}
func pad(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (m *machine) stepNumeric(ins wasm.Instruction) bool {
	switch ins.Opcode {
	case wasm.OpcodeI32Eqz:
		m.pushBool(m.popI32() == 0)
	case wasm.OpcodeI32Eq:
		b, a := m.popI32(), m.popI32()
		m.pushBool(a == b)
	case wasm.OpcodeI32Ne:
		b, a := m.popI32(), m.popI32()
		m.pushBool(a != b)
	case wasm.OpcodeI32LtS:
		b, a := m.popI32(), m.popI32()
		m.pushBool(a < b)
	case wasm.OpcodeI32LtU:
		b, a := m.popU32(), m.popU32()
		m.pushBool(a < b)
	case wasm.OpcodeI32GtS:
		b, a := m.popI32(), m.popI32()
		m.pushBool(a > b)
	case wasm.OpcodeI32GtU:
		b, a := m.popU32(), m.popU32()
		m.pushBool(a > b)
	case wasm.OpcodeI32LeS:
		b, a := m.popI32(), m.popI32()
		m.pushBool(a <= b)
	case wasm.OpcodeI32GeS:
		b, a := m.popI32(), m.popI32()
		m.pushBool(a >= b)
	case wasm.OpcodeI32LeU:
		b, a := m.popU32(), m.popU32()
		m.pushBool(a <= b)
	case wasm.OpcodeI32GeU:
		b, a := m.popU32(), m.popU32()
		m.pushBool(a >= b)
	case wasm.OpcodeI32Add:
		b, a := m.popI32(), m.popI32()
		m.pushI32(a + b)
	case wasm.OpcodeI32Sub:
		b, a := m.popI32(), m.popI32()
		m.pushI32(a - b)
	case wasm.OpcodeI32Mul:
		b, a := m.popI32(), m.popI32()
		m.pushI32(a * b)
	case wasm.OpcodeI32DivS:
		b, a := m.popI32(), m.popI32()
		if b == 0 {
			trap.New(trap.KindIntegerDivideByZero)
		}
		if a == math.MinInt32 && b == -1 {
			trap.New(trap.KindIntegerOverflow)
		}
		m.pushI32(a / b)
	case wasm.OpcodeI32DivU:
		b, a := m.popU32(), m.popU32()
		if b == 0 {
			trap.New(trap.KindIntegerDivideByZero)
		}
		m.pushU32(a / b)
	case wasm.OpcodeI32RemS:
		b, a := m.popI32(), m.popI32()
		if b == 0 {
			trap.New(trap.KindIntegerDivideByZero)
		}
		m.pushI32(a % b)
	case wasm.OpcodeI32RemU:
		b, a := m.popU32(), m.popU32()
		if b == 0 {
			trap.New(trap.KindIntegerDivideByZero)
		}
		m.pushU32(a % b)
	case wasm.OpcodeI32And:
		b, a := m.popU32(), m.popU32()
		m.pushU32(a & b)
	case wasm.OpcodeI32Or:
		b, a := m.popU32(), m.popU32()
		m.pushU32(a | b)
	case wasm.OpcodeI32Xor:
		b, a := m.popU32(), m.popU32()
		m.pushU32(a ^ b)
	case wasm.OpcodeI32Shl:
		b, a := m.popU32(), m.popU32()
		m.pushU32(a << (b & 31))
	case wasm.OpcodeI32ShrS:
		b, a := m.popU32(), m.popI32()
		m.pushI32(a >> (b & 31))
	case wasm.OpcodeI32ShrU:
		b, a := m.popU32(), m.popU32()
		m.pushU32(a >> (b & 31))
	case wasm.OpcodeI32Rotl:
		b, a := m.popU32(), m.popU32()
		m.pushU32(bits.RotateLeft32(a, int(b&31)))
	case wasm.OpcodeI32Rotr:
		b, a := m.popU32(), m.popU32()
		m.pushU32(bits.RotateLeft32(a, -int(b&31)))
	case wasm.OpcodeI32Clz:
		a := m.popU32()
		m.pushU32(uint32(bits.LeadingZeros32(a)))
	case wasm.OpcodeI32Ctz:
		a := m.popU32()
		m.pushU32(uint32(bits.TrailingZeros32(a)))
	case wasm.OpcodeI32Popcnt:
		a := m.popU32()
		m.pushU32(uint32(bits.OnesCount32(a)))
	case wasm.OpcodeI64Add:
		b, a := m.popI64(), m.popI64()
		m.pushI64(a + b)
	case wasm.OpcodeI64Sub:
		b, a := m.popI64(), m.popI64()
		m.pushI64(a - b)
	case wasm.OpcodeI64Mul:
		b, a := m.popI64(), m.popI64()
		m.pushI64(a * b)
	case wasm.OpcodeI64Eqz:
		m.pushBool(m.popI64() == 0)
	case wasm.OpcodeI64Eq:
		b, a := m.popI64(), m.popI64()
		m.pushBool(a == b)
	case wasm.OpcodeI64Ne:
		b, a := m.popI64(), m.popI64()
		m.pushBool(a != b)
	case wasm.OpcodeI64LtS:
		b, a := m.popI64(), m.popI64()
		m.pushBool(a < b)
	case wasm.OpcodeI64LtU:
		b, a := m.popU64(), m.popU64()
		m.pushBool(a < b)
	case wasm.OpcodeI64GtS:
		b, a := m.popI64(), m.popI64()
		m.pushBool(a > b)
	case wasm.OpcodeI64GtU:
		b, a := m.popU64(), m.popU64()
		m.pushBool(a > b)
	case wasm.OpcodeI64LeS:
		b, a := m.popI64(), m.popI64()
		m.pushBool(a <= b)
	case wasm.OpcodeI64LeU:
		b, a := m.popU64(), m.popU64()
		m.pushBool(a <= b)
	case wasm.OpcodeI64GeS:
		b, a := m.popI64(), m.popI64()
		m.pushBool(a >= b)
	case wasm.OpcodeI64GeU:
		b, a := m.popU64(), m.popU64()
		m.pushBool(a >= b)
	case wasm.OpcodeI64DivS:
		b, a := m.popI64(), m.popI64()
		if b == 0 {
			trap.New(trap.KindIntegerDivideByZero)
		}
		if a == math.MinInt64 && b == -1 {
			trap.New(trap.KindIntegerOverflow)
		}
		m.pushI64(a / b)
	case wasm.OpcodeI64DivU:
		b, a := m.popU64(), m.popU64()
		if b == 0 {
			trap.New(trap.KindIntegerDivideByZero)
		}
		m.pushU64(a / b)
	case wasm.OpcodeI64RemS:
		b, a := m.popI64(), m.popI64()
		if b == 0 {
			trap.New(trap.KindIntegerDivideByZero)
		}
		m.pushI64(a % b)
	case wasm.OpcodeI64RemU:
		b, a := m.popU64(), m.popU64()
		if b == 0 {
			trap.New(trap.KindIntegerDivideByZero)
		}
		m.pushU64(a % b)
	case wasm.OpcodeI64And:
		b, a := m.popU64(), m.popU64()
		m.pushU64(a & b)
	case wasm.OpcodeI64Or:
		b, a := m.popU64(), m.popU64()
		m.pushU64(a | b)
	case wasm.OpcodeI64Xor:
		b, a := m.popU64(), m.popU64()
		m.pushU64(a ^ b)
	case wasm.OpcodeI64Shl:
		b, a := m.popU64(), m.popU64()
		m.pushU64(a << (b & 63))
	case wasm.OpcodeI64ShrS:
		b, a := m.popU64(), m.popI64()
		m.pushI64(a >> (b & 63))
	case wasm.OpcodeI64ShrU:
		b, a := m.popU64(), m.popU64()
		m.pushU64(a >> (b & 63))
	case wasm.OpcodeI64Rotl:
		b, a := m.popU64(), m.popU64()
		m.pushU64(bits.RotateLeft64(a, int(b&63)))
	case wasm.OpcodeI64Rotr:
		b, a := m.popU64(), m.popU64()
		m.pushU64(bits.RotateLeft64(a, -int(b&63)))
	case wasm.OpcodeI64Clz:
		a := m.popU64()
		m.pushU64(uint64(bits.LeadingZeros64(a)))
	case wasm.OpcodeI64Ctz:
		a := m.popU64()
		m.pushU64(uint64(bits.TrailingZeros64(a)))
	case wasm.OpcodeI64Popcnt:
		a := m.popU64()
		m.pushU64(uint64(bits.OnesCount64(a)))

	case wasm.OpcodeF32Eq:
		b, a := m.popF32(), m.popF32()
		m.pushBool(a == b)
	case wasm.OpcodeF32Ne:
		b, a := m.popF32(), m.popF32()
		m.pushBool(a != b)
	case wasm.OpcodeF32Lt:
		b, a := m.popF32(), m.popF32()
		m.pushBool(a < b)
	case wasm.OpcodeF32Gt:
		b, a := m.popF32(), m.popF32()
		m.pushBool(a > b)
	case wasm.OpcodeF32Le:
		b, a := m.popF32(), m.popF32()
		m.pushBool(a <= b)
	case wasm.OpcodeF32Ge:
		b, a := m.popF32(), m.popF32()
		m.pushBool(a >= b)
	case wasm.OpcodeF64Eq:
		b, a := m.popF64(), m.popF64()
		m.pushBool(a == b)
	case wasm.OpcodeF64Ne:
		b, a := m.popF64(), m.popF64()
		m.pushBool(a != b)
	case wasm.OpcodeF64Lt:
		b, a := m.popF64(), m.popF64()
		m.pushBool(a < b)
	case wasm.OpcodeF64Gt:
		b, a := m.popF64(), m.popF64()
		m.pushBool(a > b)
	case wasm.OpcodeF64Le:
		b, a := m.popF64(), m.popF64()
		m.pushBool(a <= b)
	case wasm.OpcodeF64Ge:
		b, a := m.popF64(), m.popF64()
		m.pushBool(a >= b)

	case wasm.OpcodeF32Abs:
		m.pushF32(float32(math.Abs(float64(m.popF32()))))
	case wasm.OpcodeF32Neg:
		m.pushF32(-m.popF32())
	case wasm.OpcodeF32Ceil:
		m.pushF32(float32(math.Ceil(float64(m.popF32()))))
	case wasm.OpcodeF32Floor:
		m.pushF32(float32(math.Floor(float64(m.popF32()))))
	case wasm.OpcodeF32Trunc:
		m.pushF32(float32(math.Trunc(float64(m.popF32()))))
	case wasm.OpcodeF32Nearest:
		m.pushF32(wasmCompatNearestF32(m.popF32()))
	case wasm.OpcodeF32Sqrt:
		m.pushF32(float32(math.Sqrt(float64(m.popF32()))))
	case wasm.OpcodeF32Add:
		b, a := m.popF32(), m.popF32()
		m.pushF32(a + b)
	case wasm.OpcodeF32Sub:
		b, a := m.popF32(), m.popF32()
		m.pushF32(a - b)
	case wasm.OpcodeF32Mul:
		b, a := m.popF32(), m.popF32()
		m.pushF32(a * b)
	case wasm.OpcodeF32Div:
		b, a := m.popF32(), m.popF32()
		m.pushF32(a / b)
	case wasm.OpcodeF32Min:
		b, a := m.popF32(), m.popF32()
		m.pushF32(float32(wasmCompatMin(float64(a), float64(b))))
	case wasm.OpcodeF32Max:
		b, a := m.popF32(), m.popF32()
		m.pushF32(float32(wasmCompatMax(float64(a), float64(b))))
	case wasm.OpcodeF32Copysign:
		b, a := m.popF32(), m.popF32()
		m.pushF32(float32(math.Copysign(float64(a), float64(b))))

	case wasm.OpcodeF64Abs:
		m.pushF64(math.Abs(m.popF64()))
	case wasm.OpcodeF64Neg:
		m.pushF64(-m.popF64())
	case wasm.OpcodeF64Ceil:
		m.pushF64(math.Ceil(m.popF64()))
	case wasm.OpcodeF64Floor:
		m.pushF64(math.Floor(m.popF64()))
	case wasm.OpcodeF64Trunc:
		m.pushF64(math.Trunc(m.popF64()))
	case wasm.OpcodeF64Nearest:
		m.pushF64(wasmCompatNearestF64(m.popF64()))
	case wasm.OpcodeF64Sqrt:
		m.pushF64(math.Sqrt(m.popF64()))
	case wasm.OpcodeF64Add:
		b, a := m.popF64(), m.popF64()
		m.pushF64(a + b)
	case wasm.OpcodeF64Sub:
		b, a := m.popF64(), m.popF64()
		m.pushF64(a - b)
	case wasm.OpcodeF64Mul:
		b, a := m.popF64(), m.popF64()
		m.pushF64(a * b)
	case wasm.OpcodeF64Div:
		b, a := m.popF64(), m.popF64()
		m.pushF64(a / b)
	case wasm.OpcodeF64Min:
		b, a := m.popF64(), m.popF64()
		m.pushF64(wasmCompatMin(a, b))
	case wasm.OpcodeF64Max:
		b, a := m.popF64(), m.popF64()
		m.pushF64(wasmCompatMax(a, b))
	case wasm.OpcodeF64Copysign:
		b, a := m.popF64(), m.popF64()
		m.pushF64(math.Copysign(a, b))

	case wasm.OpcodeI32WrapI64:
		m.pushI32(int32(m.popI64()))
	case wasm.OpcodeI32TruncF32S:
		m.pushI32(int32(truncChecked(float64(m.popF32()), 32, true)))
	case wasm.OpcodeI32TruncF32U:
		m.pushU32(uint32(truncCheckedU(float64(m.popF32()), 32)))
	case wasm.OpcodeI32TruncF64S:
		m.pushI32(int32(truncChecked(m.popF64(), 32, true)))
	case wasm.OpcodeI32TruncF64U:
		m.pushU32(uint32(truncCheckedU(m.popF64(), 32)))
	case wasm.OpcodeI64ExtendI32S:
		m.pushI64(int64(m.popI32()))
	case wasm.OpcodeI64ExtendI32U:
		m.pushU64(uint64(m.popU32()))
	case wasm.OpcodeI64TruncF32S:
		m.pushI64(truncChecked(float64(m.popF32()), 64, true))
	case wasm.OpcodeI64TruncF32U:
		m.pushU64(truncCheckedU(float64(m.popF32()), 64))
	case wasm.OpcodeI64TruncF64S:
		m.pushI64(truncChecked(m.popF64(), 64, true))
	case wasm.OpcodeI64TruncF64U:
		m.pushU64(truncCheckedU(m.popF64(), 64))
	case wasm.OpcodeF32ConvertI32S:
		m.pushF32(float32(m.popI32()))
	case wasm.OpcodeF32ConvertI32U:
		m.pushF32(float32(m.popU32()))
	case wasm.OpcodeF32ConvertI64S:
		m.pushF32(float32(m.popI64()))
	case wasm.OpcodeF32ConvertI64U:
		m.pushF32(float32(m.popU64()))
	case wasm.OpcodeF32DemoteF64:
		m.pushF32(float32(m.popF64()))
	case wasm.OpcodeF64ConvertI32S:
		m.pushF64(float64(m.popI32()))
	case wasm.OpcodeF64ConvertI32U:
		m.pushF64(float64(m.popU32()))
	case wasm.OpcodeF64ConvertI64S:
		m.pushF64(float64(m.popI64()))
	case wasm.OpcodeF64ConvertI64U:
		m.pushF64(float64(m.popU64()))
	case wasm.OpcodeF64PromoteF32:
		m.pushF64(float64(m.popF32()))
	case wasm.OpcodeI32ReinterpretF32:
		m.pushU32(math.Float32bits(m.popF32()))
	case wasm.OpcodeI64ReinterpretF64:
		m.pushU64(math.Float64bits(m.popF64()))
	case wasm.OpcodeF32ReinterpretI32:
		m.pushF32(math.Float32frombits(m.popU32()))
	case wasm.OpcodeF64ReinterpretI64:
		m.pushF64(math.Float64frombits(m.popU64()))
	case wasm.OpcodeI32Extend8S:
		m.pushI32(int32(int8(m.popI32())))
	case wasm.OpcodeI32Extend16S:
		m.pushI32(int32(int16(m.popI32())))
	case wasm.OpcodeI64Extend8S:
		m.pushI64(int64(int8(m.popI64())))
	case wasm.OpcodeI64Extend16S:
		m.pushI64(int64(int16(m.popI64())))
	case wasm.OpcodeI64Extend32S:
		m.pushI64(int64(int32(m.popI64())))
	default:
		return false
	}
	return true
}
