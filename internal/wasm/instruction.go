package wasm

// MemArg is the alignment hint and offset immediate carried by every load,
// store and atomic memory instruction.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Instruction is one decoded operator in the Instruction IR (spec.md §2
// component C: "Opcode enumeration with per-opcode immediate shape and
// function-type signature"). DecodeInstructions (decode.go) decodes a
// function body into a flat []Instruction; the validator (validator.go)
// walks it once to type-check, and the reference Codegen
// (engine/interpreter) walks it again (or a post-validation lowered form)
// to execute it.
type Instruction struct {
	Opcode Opcode
	// Misc carries the second opcode byte for 0xfc/0xfd/0xfe-prefixed
	// instructions; zero otherwise.
	Misc uint32

	// Immediates. Which fields are meaningful is determined entirely by
	// Opcode (and Misc for prefixed opcodes); see shapeOf in
	// operator_table.go.
	Block       BlockType
	LocalIndex  uint32
	GlobalIndex uint32
	FuncIndex   uint32
	TypeIndex   uint32
	TableIndex  uint32
	MemoryIndex uint32
	SegmentIdx  uint32
	TargetIdx   uint32 // second table/memory index for *.copy
	Labels      []uint32
	Default     uint32
	Mem         MemArg
	ConstI32    int32
	ConstI64    int64
	ConstF32    uint32 // raw bits
	ConstF64    uint64 // raw bits
	ConstV128   V128
	RefType     ValueType
	ExceptIndex uint32
	Lanes       []byte // shuffle lane immediate / lane index for extract/replace

	// Offset is the byte offset of this instruction in the function body,
	// used by ValidationError{byte_offset} (spec.md §4.2 "Failure produces
	// ValidationError{function_index, byte_offset, reason}").
	Offset uint32
}

// immediateShape classifies how many bytes/what shape of immediate follows
// an opcode, driving both the decoder and the validator's dispatch. This is
// the single table spec.md §9 calls for ("replace macro-generated opcode
// tables with one table ... {encoding, mnemonic, immediate_kind,
// signature_template, required_feature}"); the "mnemonic" and
// "signature_template" columns live in fixedSignature and step
// (validator_step.go)
// since they need feature/module context the pure shape does not.
type immediateShape byte

const (
	shapeNone immediateShape = iota
	shapeBlockType
	shapeLocalIndex
	shapeGlobalIndex
	shapeFuncIndex
	shapeTypeIndexAndTable // call_indirect: type index then table index
	shapeTableIndex
	shapeMemArg
	shapeMemoryIndexByte // memory.size / memory.grow's reserved 0x00 byte
	shapeBrTable
	shapeI32Const
	shapeI64Const
	shapeF32Const
	shapeF64Const
	shapeV128Const
	shapeRefType
	shapeSelectT
	shapeExceptIndex
	shapeMemoryInit  // misc: segment idx + memory idx (reserved byte)
	shapeDataDrop    // misc: segment idx
	shapeMemoryCopy  // misc: dst mem idx + src mem idx (reserved bytes)
	shapeMemoryFill  // misc: reserved byte
	shapeTableInit   // misc: segment idx + table idx
	shapeElemDrop    // misc: segment idx
	shapeTableCopy   // misc: dst table idx + src table idx
	shapeTableGrowFillSize // misc: table idx
	shapeLaneIndex   // simd extract/replace lane: table-less 1-byte lane
	shapeShuffle     // simd i8x16.shuffle: 16 lane bytes
	shapeMemArgLane  // simd load_lane/store_lane: memarg + 1-byte lane
)
