package wasm

var i32, i64, f32, f64, v128, funcref = ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeV128, ValueTypeFuncref

// fixedSignature is the (params, results) pair for every instruction whose
// type does not depend on module/control context (all numeric ops, most
// memory ops). Control-flow, variable-access and reference-type ops are
// handled separately in step since they need frame/module state.
func fixedSignature(op Opcode, mem MemArg) (params, results []ValueType, ok bool) {
	one := func(t ValueType) []ValueType { return []ValueType{t} }
	two := func(a, b ValueType) []ValueType { return []ValueType{a, b} }
	switch op {
	// Loads: i32 address -> value
	case OpcodeI32Load, OpcodeI32Load8S, OpcodeI32Load8U, OpcodeI32Load16S, OpcodeI32Load16U:
		return one(i32), one(i32), true
	case OpcodeI64Load, OpcodeI64Load8S, OpcodeI64Load8U, OpcodeI64Load16S, OpcodeI64Load16U, OpcodeI64Load32S, OpcodeI64Load32U:
		return one(i32), one(i64), true
	case OpcodeF32Load:
		return one(i32), one(f32), true
	case OpcodeF64Load:
		return one(i32), one(f64), true
	// Stores: i32 address, value -> nothing
	case OpcodeI32Store, OpcodeI32Store8, OpcodeI32Store16:
		return two(i32, i32), nil, true
	case OpcodeI64Store, OpcodeI64Store8, OpcodeI64Store16, OpcodeI64Store32:
		return two(i32, i64), nil, true
	case OpcodeF32Store:
		return two(i32, f32), nil, true
	case OpcodeF64Store:
		return two(i32, f64), nil, true
	// Consts
	case OpcodeI32Const:
		return nil, one(i32), true
	case OpcodeI64Const:
		return nil, one(i64), true
	case OpcodeF32Const:
		return nil, one(f32), true
	case OpcodeF64Const:
		return nil, one(f64), true
	// i32 comparisons and unary test
	case OpcodeI32Eqz:
		return one(i32), one(i32), true
	case OpcodeI32Eq, OpcodeI32Ne, OpcodeI32LtS, OpcodeI32LtU, OpcodeI32GtS, OpcodeI32GtU,
		OpcodeI32LeS, OpcodeI32LeU, OpcodeI32GeS, OpcodeI32GeU:
		return two(i32, i32), one(i32), true
	case OpcodeI64Eqz:
		return one(i64), one(i32), true
	case OpcodeI64Eq, OpcodeI64Ne, OpcodeI64LtS, OpcodeI64LtU, OpcodeI64GtS, OpcodeI64GtU,
		OpcodeI64LeS, OpcodeI64LeU, OpcodeI64GeS, OpcodeI64GeU:
		return two(i64, i64), one(i32), true
	case OpcodeF32Eq, OpcodeF32Ne, OpcodeF32Lt, OpcodeF32Gt, OpcodeF32Le, OpcodeF32Ge:
		return two(f32, f32), one(i32), true
	case OpcodeF64Eq, OpcodeF64Ne, OpcodeF64Lt, OpcodeF64Gt, OpcodeF64Le, OpcodeF64Ge:
		return two(f64, f64), one(i32), true
	// i32/i64 arithmetic, bitwise, shift
	case OpcodeI32Clz, OpcodeI32Ctz, OpcodeI32Popcnt:
		return one(i32), one(i32), true
	case OpcodeI32Add, OpcodeI32Sub, OpcodeI32Mul, OpcodeI32DivS, OpcodeI32DivU, OpcodeI32RemS, OpcodeI32RemU,
		OpcodeI32And, OpcodeI32Or, OpcodeI32Xor, OpcodeI32Shl, OpcodeI32ShrS, OpcodeI32ShrU, OpcodeI32Rotl, OpcodeI32Rotr:
		return two(i32, i32), one(i32), true
	case OpcodeI64Clz, OpcodeI64Ctz, OpcodeI64Popcnt:
		return one(i64), one(i64), true
	case OpcodeI64Add, OpcodeI64Sub, OpcodeI64Mul, OpcodeI64DivS, OpcodeI64DivU, OpcodeI64RemS, OpcodeI64RemU,
		OpcodeI64And, OpcodeI64Or, OpcodeI64Xor, OpcodeI64Shl, OpcodeI64ShrS, OpcodeI64ShrU, OpcodeI64Rotl, OpcodeI64Rotr:
		return two(i64, i64), one(i64), true
	// f32/f64 unary and binary
	case OpcodeF32Abs, OpcodeF32Neg, OpcodeF32Ceil, OpcodeF32Floor, OpcodeF32Trunc, OpcodeF32Nearest, OpcodeF32Sqrt:
		return one(f32), one(f32), true
	case OpcodeF32Add, OpcodeF32Sub, OpcodeF32Mul, OpcodeF32Div, OpcodeF32Min, OpcodeF32Max, OpcodeF32Copysign:
		return two(f32, f32), one(f32), true
	case OpcodeF64Abs, OpcodeF64Neg, OpcodeF64Ceil, OpcodeF64Floor, OpcodeF64Trunc, OpcodeF64Nearest, OpcodeF64Sqrt:
		return one(f64), one(f64), true
	case OpcodeF64Add, OpcodeF64Sub, OpcodeF64Mul, OpcodeF64Div, OpcodeF64Min, OpcodeF64Max, OpcodeF64Copysign:
		return two(f64, f64), one(f64), true
	// conversions
	case OpcodeI32WrapI64:
		return one(i64), one(i32), true
	case OpcodeI32TruncF32S, OpcodeI32TruncF32U:
		return one(f32), one(i32), true
	case OpcodeI32TruncF64S, OpcodeI32TruncF64U:
		return one(f64), one(i32), true
	case OpcodeI64ExtendI32S, OpcodeI64ExtendI32U:
		return one(i32), one(i64), true
	case OpcodeI64TruncF32S, OpcodeI64TruncF32U:
		return one(f32), one(i64), true
	case OpcodeI64TruncF64S, OpcodeI64TruncF64U:
		return one(f64), one(i64), true
	case OpcodeF32ConvertI32S, OpcodeF32ConvertI32U:
		return one(i32), one(f32), true
	case OpcodeF32ConvertI64S, OpcodeF32ConvertI64U:
		return one(i64), one(f32), true
	case OpcodeF32DemoteF64:
		return one(f64), one(f32), true
	case OpcodeF64ConvertI32S, OpcodeF64ConvertI32U:
		return one(i32), one(f64), true
	case OpcodeF64ConvertI64S, OpcodeF64ConvertI64U:
		return one(i64), one(f64), true
	case OpcodeF64PromoteF32:
		return one(f32), one(f64), true
	case OpcodeI32ReinterpretF32:
		return one(f32), one(i32), true
	case OpcodeI64ReinterpretF64:
		return one(f64), one(i64), true
	case OpcodeF32ReinterpretI32:
		return one(i32), one(f32), true
	case OpcodeF64ReinterpretI64:
		return one(i64), one(f64), true
	// sign extension
	case OpcodeI32Extend8S, OpcodeI32Extend16S:
		return one(i32), one(i32), true
	case OpcodeI64Extend8S, OpcodeI64Extend16S, OpcodeI64Extend32S:
		return one(i64), one(i64), true
	case OpcodeRefIsNull:
		return one(valueTypeUnknown), one(i32), true
	}
	return nil, nil, false
}

// step applies one decoded Instruction to the value/control stacks,
// implementing spec.md §4.2 steps 1-5.
func (v *funcValidator) step(ins Instruction) error {
	if params, results, ok := fixedSignature(ins.Opcode, ins.Mem); ok {
		if err := v.popN(ins.Offset, params); err != nil {
			return err
		}
		v.pushN(results)
		return nil
	}

	switch ins.Opcode {
	case OpcodeUnreachable:
		v.setUnreachable()
		return nil
	case OpcodeNop:
		return nil
	case OpcodeBlock, OpcodeLoop, OpcodeIf, OpcodeTry:
		return v.enterBlock(ins)
	case OpcodeElse:
		return v.enterElse(ins)
	case OpcodeEnd:
		return v.endFrame(ins.Offset)
	case OpcodeBr:
		labelTypes, err := v.branchTo(ins.Offset, ins.FuncIndex)
		if err != nil {
			return err
		}
		if err := v.popN(ins.Offset, labelTypes); err != nil {
			return err
		}
		v.setUnreachable()
		return nil
	case OpcodeBrIf:
		if _, err := v.pop(ins.Offset, i32); err != nil {
			return err
		}
		labelTypes, err := v.branchTo(ins.Offset, ins.FuncIndex)
		if err != nil {
			return err
		}
		if err := v.popN(ins.Offset, labelTypes); err != nil {
			return err
		}
		v.pushN(labelTypes)
		return nil
	case OpcodeBrTable:
		if _, err := v.pop(ins.Offset, i32); err != nil {
			return err
		}
		defaultTypes, err := v.branchTo(ins.Offset, ins.Default)
		if err != nil {
			return err
		}
		for _, l := range ins.Labels {
			lt, err := v.branchTo(ins.Offset, l)
			if err != nil {
				return err
			}
			if len(lt) != len(defaultTypes) {
				return v.fail(ins.Offset, "br_table labels disagree on arity")
			}
		}
		if err := v.popN(ins.Offset, defaultTypes); err != nil {
			return err
		}
		v.setUnreachable()
		return nil
	case OpcodeReturn:
		if err := v.popN(ins.Offset, v.sig.Results); err != nil {
			return err
		}
		v.setUnreachable()
		return nil
	case OpcodeCall:
		ft, err := v.m.TypeOfFunction(ins.FuncIndex)
		if err != nil {
			return v.fail(ins.Offset, "%s", err)
		}
		return v.applyCall(ins.Offset, ft)
	case OpcodeCallIndirect:
		if ins.TableIndex >= v.m.TableIndexSpace() {
			return v.fail(ins.Offset, "call_indirect: table index %d out of range", ins.TableIndex)
		}
		ft, err := v.m.typeAt(ins.TypeIndex)
		if err != nil {
			return v.fail(ins.Offset, "%s", err)
		}
		if _, err := v.pop(ins.Offset, i32); err != nil {
			return err
		}
		return v.applyCall(ins.Offset, ft)
	case OpcodeDrop:
		_, err := v.popUnknown(ins.Offset)
		return err
	case OpcodeSelect:
		if _, err := v.pop(ins.Offset, i32); err != nil {
			return err
		}
		a, err := v.popUnknown(ins.Offset)
		if err != nil {
			return err
		}
		if _, err := v.pop(ins.Offset, a); err != nil {
			return err
		}
		v.push(a)
		return nil
	case OpcodeSelectWithType:
		if _, err := v.pop(ins.Offset, i32); err != nil {
			return err
		}
		if err := v.popN(ins.Offset, []ValueType{ins.RefType, ins.RefType}); err != nil {
			return err
		}
		v.push(ins.RefType)
		return nil
	case OpcodeLocalGet:
		t, err := v.localType(ins.Offset, ins.LocalIndex)
		if err != nil {
			return err
		}
		v.push(t)
		return nil
	case OpcodeLocalSet:
		t, err := v.localType(ins.Offset, ins.LocalIndex)
		if err != nil {
			return err
		}
		_, err = v.pop(ins.Offset, t)
		return err
	case OpcodeLocalTee:
		t, err := v.localType(ins.Offset, ins.LocalIndex)
		if err != nil {
			return err
		}
		if _, err := v.pop(ins.Offset, t); err != nil {
			return err
		}
		v.push(t)
		return nil
	case OpcodeGlobalGet:
		g, err := v.globalType(ins.Offset, ins.GlobalIndex)
		if err != nil {
			return err
		}
		v.push(g.ValType)
		return nil
	case OpcodeGlobalSet:
		g, err := v.globalType(ins.Offset, ins.GlobalIndex)
		if err != nil {
			return err
		}
		if !g.Mutable {
			return v.fail(ins.Offset, "global.set on immutable global %d", ins.GlobalIndex)
		}
		_, err = v.pop(ins.Offset, g.ValType)
		return err
	case OpcodeTableGet:
		tt, err := v.tableType(ins.Offset, ins.TableIndex)
		if err != nil {
			return err
		}
		if _, err := v.pop(ins.Offset, i32); err != nil {
			return err
		}
		v.push(tt.ElemType)
		return nil
	case OpcodeTableSet:
		tt, err := v.tableType(ins.Offset, ins.TableIndex)
		if err != nil {
			return err
		}
		if err := v.popN(ins.Offset, []ValueType{i32, tt.ElemType}); err != nil {
			return err
		}
		return nil
	case OpcodeMemorySize:
		if err := v.requireMemory(ins.Offset); err != nil {
			return err
		}
		v.push(i32)
		return nil
	case OpcodeMemoryGrow:
		if err := v.requireMemory(ins.Offset); err != nil {
			return err
		}
		if _, err := v.pop(ins.Offset, i32); err != nil {
			return err
		}
		v.push(i32)
		return nil
	case OpcodeRefNull:
		v.push(ins.RefType)
		return nil
	case OpcodeRefFunc:
		if ins.FuncIndex >= v.m.FunctionIndexSpace() {
			return v.fail(ins.Offset, "ref.func index %d out of range", ins.FuncIndex)
		}
		v.push(funcref)
		return nil
	case OpcodeMiscPrefix:
		return v.stepMisc(ins)
	case OpcodeSIMDPrefix:
		return v.stepSIMD(ins)
	case OpcodeAtomicPrefix:
		return v.stepAtomic(ins)
	case OpcodeThrow, OpcodeRethrow, OpcodeTry, OpcodeCatch, OpcodeCatchAll, OpcodeDelegate:
		return v.stepException(ins)
	}
	return v.fail(ins.Offset, "unhandled opcode %#x", ins.Opcode)
}

func (v *funcValidator) applyCall(offset uint32, ft *FunctionType) error {
	if err := v.popN(offset, ft.Params); err != nil {
		return err
	}
	v.pushN(ft.Results)
	return nil
}

func (v *funcValidator) localType(offset uint32, idx uint32) (ValueType, error) {
	if int(idx) >= len(v.locals) {
		return 0, v.fail(offset, "local index %d out of range", idx)
	}
	return v.locals[idx], nil
}

func (v *funcValidator) globalType(offset uint32, idx uint32) (*GlobalType, error) {
	if idx >= v.m.GlobalIndexSpace() {
		return nil, v.fail(offset, "global index %d out of range", idx)
	}
	if imp, ok := v.globalImport(idx); ok {
		return &imp.DescGlobal, nil
	}
	g := v.m.GlobalSection[idx-v.m.importGlobalCount]
	return &g.Type, nil
}

func (v *funcValidator) globalImport(idx uint32) (*Import, bool) {
	for _, imp := range v.m.ImportSection {
		if imp.Kind != ExternTypeGlobal {
			continue
		}
		if idx == 0 {
			return imp, true
		}
		idx--
	}
	return nil, false
}

func (v *funcValidator) tableType(offset uint32, idx uint32) (*TableType, error) {
	if idx >= v.m.TableIndexSpace() {
		return nil, v.fail(offset, "table index %d out of range", idx)
	}
	for _, imp := range v.m.ImportSection {
		if imp.Kind == ExternTypeTable {
			if idx == 0 {
				return &imp.DescTable, nil
			}
			idx--
		}
	}
	return v.m.TableSection[idx], nil
}

func (v *funcValidator) requireMemory(offset uint32) error {
	if v.m.MemoryIndexSpace() == 0 {
		return v.fail(offset, "memory instruction without a memory")
	}
	return nil
}

// enterBlock implements step 4's block/loop/if/try entry: resolve the
// BlockType against the module, push params, then push a control frame
// whose label_types are the loop's params (branching re-enters the loop
// header) or the block's results (branching exits).
func (v *funcValidator) enterBlock(ins Instruction) error {
	params, results, err := ins.Block.ParamResultTypes(v.m)
	if err != nil {
		return v.fail(ins.Offset, "%s", err)
	}
	if ins.Opcode == OpcodeIf {
		if _, err := v.pop(ins.Offset, i32); err != nil {
			return err
		}
	}
	if err := v.popN(ins.Offset, params); err != nil {
		return err
	}
	label := results
	if ins.Opcode == OpcodeLoop {
		label = params
	}
	v.frames = append(v.frames, controlFrame{
		opcode: ins.Opcode, params: params, labelTypes: label, endTypes: results, heightAtEntry: len(v.stack),
	})
	v.pushN(params)
	return nil
}

// enterElse implements the `else` boundary of an `if`: verify the `then`
// arm produced the block's results, then reopen the frame with params
// restored for the `else` arm.
func (v *funcValidator) enterElse(ins Instruction) error {
	f := v.curFrame()
	if f.opcode != OpcodeIf {
		return v.fail(ins.Offset, "else without matching if")
	}
	if err := v.popN(ins.Offset, f.endTypes); err != nil {
		return err
	}
	if len(v.stack) != f.heightAtEntry {
		return v.fail(ins.Offset, "values remain on stack before else")
	}
	f.unreachable = false
	f.elseSeen = true
	v.pushN(f.params)
	return nil
}

func (v *funcValidator) stepException(ins Instruction) error {
	if err := v.enabled.RequireEnabled(FeatureExceptionHandling, "exception-handling"); err != nil {
		return v.fail(ins.Offset, "%s", err)
	}
	switch ins.Opcode {
	case OpcodeThrow:
		if ins.ExceptIndex >= v.m.ExceptionTypeIndexSpace() {
			return v.fail(ins.Offset, "throw: exception index %d out of range", ins.ExceptIndex)
		}
		v.setUnreachable()
		return nil
	case OpcodeRethrow, OpcodeDelegate:
		v.setUnreachable()
		return nil
	case OpcodeTry:
		return v.enterBlock(ins)
	case OpcodeCatch, OpcodeCatchAll:
		f := v.curFrame()
		f.unreachable = false
		return nil
	}
	return nil
}

func (v *funcValidator) stepMisc(ins Instruction) error {
	switch Opcode(ins.Misc) {
	case OpcodeMiscI32TruncSatF32S, OpcodeMiscI32TruncSatF32U:
		return v.applyFixed(ins.Offset, []ValueType{f32}, []ValueType{i32})
	case OpcodeMiscI32TruncSatF64S, OpcodeMiscI32TruncSatF64U:
		return v.applyFixed(ins.Offset, []ValueType{f64}, []ValueType{i32})
	case OpcodeMiscI64TruncSatF32S, OpcodeMiscI64TruncSatF32U:
		return v.applyFixed(ins.Offset, []ValueType{f32}, []ValueType{i64})
	case OpcodeMiscI64TruncSatF64S, OpcodeMiscI64TruncSatF64U:
		return v.applyFixed(ins.Offset, []ValueType{f64}, []ValueType{i64})
	case OpcodeMiscMemoryInit:
		if err := v.requireMemory(ins.Offset); err != nil {
			return err
		}
		return v.applyFixed(ins.Offset, []ValueType{i32, i32, i32}, nil)
	case OpcodeMiscDataDrop:
		return nil
	case OpcodeMiscMemoryCopy, OpcodeMiscMemoryFill:
		if err := v.requireMemory(ins.Offset); err != nil {
			return err
		}
		return v.applyFixed(ins.Offset, []ValueType{i32, i32, i32}, nil)
	case OpcodeMiscTableInit:
		tt, err := v.tableType(ins.Offset, ins.TableIndex)
		if err != nil {
			return err
		}
		_ = tt
		return v.applyFixed(ins.Offset, []ValueType{i32, i32, i32}, nil)
	case OpcodeMiscElemDrop:
		return nil
	case OpcodeMiscTableCopy:
		return v.applyFixed(ins.Offset, []ValueType{i32, i32, i32}, nil)
	case OpcodeMiscTableGrow:
		tt, err := v.tableType(ins.Offset, ins.TableIndex)
		if err != nil {
			return err
		}
		if err := v.popN(ins.Offset, []ValueType{tt.ElemType, i32}); err != nil {
			return err
		}
		v.push(i32)
		return nil
	case OpcodeMiscTableSize:
		if _, err := v.tableType(ins.Offset, ins.TableIndex); err != nil {
			return err
		}
		v.push(i32)
		return nil
	case OpcodeMiscTableFill:
		tt, err := v.tableType(ins.Offset, ins.TableIndex)
		if err != nil {
			return err
		}
		return v.applyFixed(ins.Offset, []ValueType{i32, tt.ElemType, i32}, nil)
	}
	return v.fail(ins.Offset, "unhandled misc opcode %#x", ins.Misc)
}

// stepSIMD type-checks the representative SIMD subset declared in
// opcode.go; every lane op here shares v128,v128->v128 or scalar->v128
// shapes, matching the WebAssembly SIMD proposal's actual signatures for
// these mnemonics.
func (v *funcValidator) stepSIMD(ins Instruction) error {
	if err := v.enabled.RequireEnabled(FeatureSIMD, "simd"); err != nil {
		return v.fail(ins.Offset, "%s", err)
	}
	switch Opcode(ins.Misc) {
	case OpcodeSIMDV128Load:
		if err := v.requireMemory(ins.Offset); err != nil {
			return err
		}
		return v.applyFixed(ins.Offset, []ValueType{i32}, []ValueType{v128})
	case OpcodeSIMDV128Store:
		if err := v.requireMemory(ins.Offset); err != nil {
			return err
		}
		return v.applyFixed(ins.Offset, []ValueType{i32, v128}, nil)
	case OpcodeSIMDV128Const:
		v.push(v128)
		return nil
	case OpcodeSIMDI8x16Shuffle:
		return v.applyFixed(ins.Offset, []ValueType{v128, v128}, []ValueType{v128})
	case OpcodeSIMDI8x16Splat:
		return v.applyFixed(ins.Offset, []ValueType{i32}, []ValueType{v128})
	case OpcodeSIMDI32x4Splat:
		return v.applyFixed(ins.Offset, []ValueType{i32}, []ValueType{v128})
	case OpcodeSIMDI64x2Splat:
		return v.applyFixed(ins.Offset, []ValueType{i64}, []ValueType{v128})
	case OpcodeSIMDF32x4Splat:
		return v.applyFixed(ins.Offset, []ValueType{f32}, []ValueType{v128})
	case OpcodeSIMDF64x2Splat:
		return v.applyFixed(ins.Offset, []ValueType{f64}, []ValueType{v128})
	case OpcodeSIMDI32x4Add, OpcodeSIMDI32x4Sub, OpcodeSIMDI32x4Mul,
		OpcodeSIMDI64x2Add, OpcodeSIMDF32x4Add, OpcodeSIMDF64x2Add:
		return v.applyFixed(ins.Offset, []ValueType{v128, v128}, []ValueType{v128})
	}
	return v.fail(ins.Offset, "unhandled simd opcode %#x", ins.Misc)
}

func (v *funcValidator) stepAtomic(ins Instruction) error {
	if err := v.enabled.RequireEnabled(FeatureAtomics, "threads"); err != nil {
		return v.fail(ins.Offset, "%s", err)
	}
	mt, hasMem := v.memoryTypeForAtomics()
	if v.enabled.Get(FeatureRequireSharedFlagForAtomics) && hasMem && !mt.Shared {
		return v.fail(ins.Offset, "atomic instruction on a non-shared memory")
	}
	switch Opcode(ins.Misc) {
	case OpcodeAtomicFence:
		return nil
	case OpcodeAtomicMemoryNotify:
		return v.applyFixed(ins.Offset, []ValueType{i32, i32}, []ValueType{i32})
	case OpcodeAtomicMemoryWait32:
		return v.applyFixed(ins.Offset, []ValueType{i32, i32, i64}, []ValueType{i32})
	case OpcodeAtomicMemoryWait64:
		return v.applyFixed(ins.Offset, []ValueType{i32, i64, i64}, []ValueType{i32})
	case OpcodeAtomicI32Load:
		return v.applyFixed(ins.Offset, []ValueType{i32}, []ValueType{i32})
	case OpcodeAtomicI64Load:
		return v.applyFixed(ins.Offset, []ValueType{i32}, []ValueType{i64})
	case OpcodeAtomicI32Store:
		return v.applyFixed(ins.Offset, []ValueType{i32, i32}, nil)
	case OpcodeAtomicI64Store:
		return v.applyFixed(ins.Offset, []ValueType{i32, i64}, nil)
	case OpcodeAtomicI32RmwAdd:
		return v.applyFixed(ins.Offset, []ValueType{i32, i32}, []ValueType{i32})
	case OpcodeAtomicI64RmwAdd:
		return v.applyFixed(ins.Offset, []ValueType{i32, i64}, []ValueType{i64})
	case OpcodeAtomicI32RmwCmpxchg:
		return v.applyFixed(ins.Offset, []ValueType{i32, i32, i32}, []ValueType{i32})
	case OpcodeAtomicI64RmwCmpxchg:
		return v.applyFixed(ins.Offset, []ValueType{i32, i64, i64}, []ValueType{i64})
	}
	return v.fail(ins.Offset, "unhandled atomic opcode %#x", ins.Misc)
}

func (v *funcValidator) memoryTypeForAtomics() (MemoryType, bool) {
	for _, imp := range v.m.ImportSection {
		if imp.Kind == ExternTypeMemory {
			return imp.DescMem, true
		}
	}
	if len(v.m.MemorySection) > 0 {
		return *v.m.MemorySection[0], true
	}
	return MemoryType{}, false
}

func (v *funcValidator) applyFixed(offset uint32, params, results []ValueType) error {
	if err := v.popN(offset, params); err != nil {
		return err
	}
	v.pushN(results)
	return nil
}

