package runtime

import (
	stdcontext "context"
	"fmt"

	"github.com/wavmgo/wavm/internal/engine/interpreter"
	"github.com/wavmgo/wavm/internal/trap"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// ModuleInstance is a ModuleInstance object (spec.md §4.4): resolved
// imports and locally defined objects in index-space order (imports
// first), the export map, and the passive segment vectors a running
// function's bulk-memory/table ops read through DataSegment/ElementSegment.
type ModuleInstance struct {
	object

	compartment *Compartment
	module      *wasm.Module
	Name        string

	funcs    []*FunctionInstance
	memories []*Memory
	tables   []*Table
	globals  []*Global
	excTypes []*ExceptionTypeInstance

	exports map[string]*wasm.Export

	elemSegs    [][]uint32
	droppedElem []bool
	dataSegs    [][]byte
	droppedData []bool
}

// hostView binds one ModuleInstance to one Context, satisfying
// interpreter.Host for the duration of a single Run. It is created fresh
// per call rather than stored on ModuleInstance, since a module instance
// may be entered concurrently by different contexts (spec.md §5
// "Scheduling").
type hostView struct {
	instance *ModuleInstance
	ctx      *Context
	goCtx    stdcontext.Context
}

var _ interpreter.Host = hostView{}

func (h hostView) Memory(idx uint32) (interpreter.Memory, bool) {
	if idx >= uint32(len(h.instance.memories)) {
		return nil, false
	}
	return h.instance.memories[idx], true
}

func (h hostView) Table(idx uint32) (interpreter.Table, bool) {
	if idx >= uint32(len(h.instance.tables)) {
		return nil, false
	}
	return h.instance.tables[idx], true
}

func (h hostView) GlobalGet(idx uint32) uint64 {
	return h.instance.globals[idx].Get(h.ctx)
}

func (h hostView) GlobalSet(idx uint32, v uint64) {
	h.instance.globals[idx].Set(h.ctx, v)
}

func (h hostView) CallFunction(funcIdx uint32, params []uint64) ([]uint64, error) {
	if funcIdx >= uint32(len(h.instance.funcs)) {
		return nil, fmt.Errorf("runtime: call to out-of-range function index %d", funcIdx)
	}
	return h.instance.funcs[funcIdx].Call(h.goCtx, h.ctx, params)
}

func (h hostView) FunctionArity(funcIdx uint32) (params, results int) {
	f := h.instance.funcs[funcIdx]
	return len(f.Type.Params), len(f.Type.Results)
}

func (h hostView) TypeArity(typeIdx uint32) (params, results int) {
	t := h.instance.module.TypeSection[typeIdx]
	return len(t.Params), len(t.Results)
}

func (h hostView) ElementSegment(idx uint32) (funcIndices []uint32, dropped bool) {
	return h.instance.elemSegs[idx], h.instance.droppedElem[idx]
}

func (h hostView) DataSegment(idx uint32) (data []byte, dropped bool) {
	return h.instance.dataSegs[idx], h.instance.droppedData[idx]
}

func (h hostView) DropElement(idx uint32) { h.instance.droppedElem[idx] = true }
func (h hostView) DropData(idx uint32)    { h.instance.droppedData[idx] = true }

func (h hostView) InstanceName() string { return h.instance.Name }

func (h hostView) Frames() []trap.Frame {
	if h.ctx == nil {
		return nil
	}
	return h.ctx.snapshotFrames()
}

// Instantiate runs the nine-step protocol of spec.md §4.4 against module,
// allocating its locally defined objects in compartment and resolving its
// imports through resolver. rctx is the calling thread's view, used to run
// the start function, if any, and to snapshot trap frames; it is not
// retained beyond this call.
func Instantiate(ctx stdcontext.Context, compartment *Compartment, rctx *Context, module *wasm.Module, name string, resolver Resolver) (mi *ModuleInstance, err error) {
	defer trap.Boundary(&err, func() []trap.Frame {
		if rctx == nil {
			return nil
		}
		return rctx.snapshotFrames()
	})

	mi = &ModuleInstance{compartment: compartment, module: module, Name: name}
	mi.object = object{kind: KindModuleInstance}

	// Step 2: resolve and subtype-check every import.
	link := Link(module, resolver)
	if !link.Success {
		names := make([]string, len(link.Missing))
		for i, imp := range link.Missing {
			names[i] = imp.Module + "." + imp.Name
		}
		return nil, fmt.Errorf("runtime: instantiation failed, missing imports: %v", names)
	}
	var importedGlobals []*Global
	for i, obj := range link.Resolved {
		imp := module.ImportSection[i]
		switch imp.Kind {
		case wasm.ExternTypeFunc:
			mi.funcs = append(mi.funcs, obj.Func)
		case wasm.ExternTypeTable:
			if err := checkCompartment(compartment, obj.Table.compartmentID); err != nil {
				return nil, err
			}
			mi.tables = append(mi.tables, obj.Table)
		case wasm.ExternTypeMemory:
			if err := checkCompartment(compartment, obj.Memory.compartmentID); err != nil {
				return nil, err
			}
			mi.memories = append(mi.memories, obj.Memory)
		case wasm.ExternTypeGlobal:
			if err := checkCompartment(compartment, obj.Global.compartmentID); err != nil {
				return nil, err
			}
			mi.globals = append(mi.globals, obj.Global)
			importedGlobals = append(importedGlobals, obj.Global)
		case wasm.ExternTypeException:
			if err := checkCompartment(compartment, obj.Exception.compartmentID); err != nil {
				return nil, err
			}
			mi.excTypes = append(mi.excTypes, obj.Exception)
		}
	}

	// Step 3: create locally defined tables/memories/globals/exception types.
	for _, tt := range module.TableSection {
		mi.tables = append(mi.tables, NewTable(compartment, *tt, mi.funcTypeOfIndex))
	}
	for _, mt := range module.MemorySection {
		m, err := NewMemory(compartment, *mt)
		if err != nil {
			return nil, fmt.Errorf("runtime: creating memory: %w", err)
		}
		mi.memories = append(mi.memories, m)
	}
	for _, et := range module.ExceptionTypeSection {
		mi.excTypes = append(mi.excTypes, NewExceptionType(compartment, et.Params, et.DebugName))
	}
	// Step 4: evaluate each defined global's initializer against already
	// resolved imported globals (the only kind a constant expression may
	// reference). ref.func initializers resolve immediately since this
	// implementation has no deferred native-pointer binding to wait on.
	for _, g := range module.GlobalSection {
		v, err := evaluateConstantExpression(g.Init, importedGlobals)
		if err != nil {
			return nil, fmt.Errorf("runtime: evaluating global initializer: %w", err)
		}
		mi.globals = append(mi.globals, NewGlobal(compartment, g.Type, v))
	}

	// Step 5: decode and bind each locally defined function's body.
	for i, code := range module.CodeSection {
		sig := module.TypeSection[module.FunctionSection[i]]
		instrs, err := wasm.DecodeInstructions(code.Body)
		if err != nil {
			return nil, fmt.Errorf("runtime: decoding function %d body: %w", i, err)
		}
		mi.funcs = append(mi.funcs, newDefinedFunction(mi, sig, instrs, code.LocalTypes))
	}

	// Passive segment vectors, needed before active-segment initialization
	// so data.drop/elem.drop indices line up even for segments never
	// written actively.
	mi.elemSegs = make([][]uint32, len(module.ElementSection))
	mi.droppedElem = make([]bool, len(module.ElementSection))
	for i, seg := range module.ElementSection {
		indices := make([]uint32, len(seg.Init))
		for j, init := range seg.Init {
			indices[j] = init.FuncIdx
		}
		mi.elemSegs[i] = indices
	}
	mi.dataSegs = make([][]byte, len(module.DataSection))
	mi.droppedData = make([]bool, len(module.DataSection))
	for i, seg := range module.DataSection {
		mi.dataSegs[i] = seg.Init
	}

	// Step 7: active data segments.
	for _, seg := range module.DataSection {
		if seg.Mode != wasm.DataSegmentModeActive {
			continue
		}
		offset, err := evaluateConstantExpression(seg.OffsetExpr, importedGlobals)
		if err != nil {
			return nil, fmt.Errorf("runtime: evaluating data segment offset: %w", err)
		}
		writeSegmentPartial(seg.MemoryIndex, mi.memories[seg.MemoryIndex], uint32(offset), seg.Init)
	}

	// Step 8: active element segments.
	for i, seg := range module.ElementSection {
		if seg.Mode != wasm.ElementSegmentModeActive {
			continue
		}
		offset, err := evaluateConstantExpression(seg.OffsetExpr, importedGlobals)
		if err != nil {
			return nil, fmt.Errorf("runtime: evaluating element segment offset: %w", err)
		}
		writeElemPartial(seg.TableIndex, mi.tables[seg.TableIndex], uint32(offset), mi.elemSegs[i])
	}

	mi.exports = map[string]*wasm.Export{}
	for _, e := range module.ExportSection {
		mi.exports[e.Name] = e
		if e.Kind == wasm.ExternTypeFunc {
			mi.funcs[e.Index].Name = e.Name
		}
	}

	handle := compartment.registerInstance(mi)
	_ = handle

	// Step 9: run the start function, if declared.
	if module.StartSection != nil {
		if _, err := mi.funcs[*module.StartSection].Call(ctx, rctx, nil); err != nil {
			return nil, fmt.Errorf("runtime: start function trapped: %w", err)
		}
	}
	return mi, nil
}

func checkCompartment(target *Compartment, objCompartmentID uint64) error {
	if objCompartmentID != 0 && objCompartmentID != target.id {
		return fmt.Errorf("runtime: import resolved to an object from a different compartment")
	}
	return nil
}

// funcTypeOfIndex resolves a module-local function index to its declared
// type index, satisfying the callback NewTable needs for
// Table.FuncTypeIndex (call_indirect's structural signature check).
func (mi *ModuleInstance) funcTypeOfIndex(funcIdx uint32) (uint32, bool) {
	ft, err := mi.module.TypeOfFunction(funcIdx)
	if err != nil {
		return 0, false
	}
	for i, candidate := range mi.module.TypeSection {
		if candidate == ft {
			return uint32(i), true
		}
	}
	return 0, false
}

// writeSegmentPartial copies data into mem at offset, writing the in-range
// prefix and then trapping if any byte would land out of bounds (spec.md
// §4.5 "the in-range prefix is written then a trap is thrown").
func writeSegmentPartial(memIdx uint32, mem *Memory, offset uint32, data []byte) {
	avail := mem.byteLen()
	if len(data) == 0 {
		return
	}
	if uint64(offset) >= avail {
		trap.NewOutOfBoundsMemoryAccess(memIdx, uint64(offset))
		return
	}
	end := uint64(offset) + uint64(len(data))
	if end <= avail {
		mem.Write(offset, data)
		return
	}
	mem.Write(offset, data[:avail-uint64(offset)])
	trap.NewOutOfBoundsMemoryAccess(memIdx, end)
}

// writeElemPartial is writeSegmentPartial's table analogue: writes the
// in-range prefix of biased function references, then traps.
func writeElemPartial(tblIdx uint32, t *Table, offset uint32, funcIndices []uint32) {
	if len(funcIndices) == 0 {
		return
	}
	size := uint64(t.Size())
	if uint64(offset) >= size {
		trap.NewOutOfBoundsTableAccess(tblIdx, offset)
		return
	}
	n := uint64(len(funcIndices))
	end := uint64(offset) + n
	limit := n
	if end > size {
		limit = size - uint64(offset)
	}
	for i := uint64(0); i < limit; i++ {
		t.Set(offset+uint32(i), uint64(funcIndices[i])+1)
	}
	if end > size {
		trap.NewOutOfBoundsTableAccess(tblIdx, uint32(end))
	}
}

// AddRoot/RemoveRoot let an embedder keep mi alive across
// Compartment.CollectGarbage passes (spec.md §4.9 "Reclamation is
// cooperative: the caller passes a root reference").
func (mi *ModuleInstance) AddRoot()    { mi.addRoot() }
func (mi *ModuleInstance) RemoveRoot() { mi.removeRoot() }

// Export looks up a module-level export by name.
func (mi *ModuleInstance) Export(name string) (*wasm.Export, bool) {
	e, ok := mi.exports[name]
	return e, ok
}

// ExportedFunction resolves an exported function by name.
func (mi *ModuleInstance) ExportedFunction(name string) (*FunctionInstance, bool) {
	e, ok := mi.exports[name]
	if !ok || e.Kind != wasm.ExternTypeFunc {
		return nil, false
	}
	return mi.funcs[e.Index], true
}

// ExportedMemory resolves an exported memory by name.
func (mi *ModuleInstance) ExportedMemory(name string) (*Memory, bool) {
	e, ok := mi.exports[name]
	if !ok || e.Kind != wasm.ExternTypeMemory {
		return nil, false
	}
	return mi.memories[e.Index], true
}

// ExportedTable resolves an exported table by name.
func (mi *ModuleInstance) ExportedTable(name string) (*Table, bool) {
	e, ok := mi.exports[name]
	if !ok || e.Kind != wasm.ExternTypeTable {
		return nil, false
	}
	return mi.tables[e.Index], true
}

// ExportedGlobal resolves an exported global by name.
func (mi *ModuleInstance) ExportedGlobal(name string) (*Global, bool) {
	e, ok := mi.exports[name]
	if !ok || e.Kind != wasm.ExternTypeGlobal {
		return nil, false
	}
	return mi.globals[e.Index], true
}

// ResolveExport resolves any export of mi by the importing module's
// descriptor, for use inside a Resolver (spec.md §4.8): the returned
// ResolvedObject's Kind always matches imp.Kind when found.
func (mi *ModuleInstance) ResolveExport(imp *wasm.Import) (ResolvedObject, bool) {
	e, ok := mi.exports[imp.Name]
	if !ok || e.Kind != imp.Kind {
		return ResolvedObject{}, false
	}
	switch e.Kind {
	case wasm.ExternTypeFunc:
		return ResolvedObject{Kind: wasm.ExternTypeFunc, Func: mi.funcs[e.Index]}, true
	case wasm.ExternTypeTable:
		return ResolvedObject{Kind: wasm.ExternTypeTable, Table: mi.tables[e.Index]}, true
	case wasm.ExternTypeMemory:
		return ResolvedObject{Kind: wasm.ExternTypeMemory, Memory: mi.memories[e.Index]}, true
	case wasm.ExternTypeGlobal:
		return ResolvedObject{Kind: wasm.ExternTypeGlobal, Global: mi.globals[e.Index]}, true
	case wasm.ExternTypeException:
		return ResolvedObject{Kind: wasm.ExternTypeException, Exception: mi.excTypes[e.Index]}, true
	}
	return ResolvedObject{}, false
}
