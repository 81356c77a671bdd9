package wasm

import (
	"bytes"
	"fmt"

	"github.com/wavmgo/wavm/internal/leb128"
)

// DecodeInstructions turns a function body's raw expression bytes (as
// stored in Code.Body by the binary package) into the flat Instruction IR
// that both the validator and the reference interpreter walk. Keeping this
// in the wasm package, rather than binary, avoids a dependency cycle: the
// shape table (operator_table.go) only needs opcode constants already
// defined here.
func DecodeInstructions(body []byte) ([]Instruction, error) {
	var out []Instruction
	pos := uint32(0)
	for pos < uint32(len(body)) {
		offset := pos
		op := Opcode(body[pos])
		pos++
		misc := uint32(0)
		if isPrefix(op) {
			m, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("decode misc opcode at %#x: %w", offset, err)
			}
			misc = m
			pos += uint32(n)
		}
		instr := Instruction{Opcode: op, Misc: misc, Offset: offset}
		n, err := decodeImmediate(&instr, body[pos:], shapeOf(op, misc))
		if err != nil {
			return nil, fmt.Errorf("decode immediate for opcode %#x at %#x: %w", op, offset, err)
		}
		pos += n
		out = append(out, instr)
	}
	return out, nil
}

func decodeImmediate(instr *Instruction, b []byte, shape immediateShape) (uint32, error) {
	var pos uint32
	readU32 := func() (uint32, error) {
		v, n, err := leb128.LoadUint32(b[pos:])
		pos += uint32(n)
		return v, err
	}
	readI32 := func() (int32, error) {
		v, n, err := leb128.LoadInt32(b[pos:])
		pos += uint32(n)
		return v, err
	}
	readI64 := func() (int64, error) {
		v, n, err := leb128.LoadInt64(b[pos:])
		pos += uint32(n)
		return v, err
	}
	readByte := func() (byte, error) {
		if int(pos) >= len(b) {
			return 0, fmt.Errorf("unexpected end of body")
		}
		v := b[pos]
		pos++
		return v, nil
	}
	readMemArg := func() (MemArg, error) {
		align, err := readU32()
		if err != nil {
			return MemArg{}, err
		}
		offset, err := readU32()
		if err != nil {
			return MemArg{}, err
		}
		return MemArg{Align: align, Offset: offset}, nil
	}

	switch shape {
	case shapeNone:
		return 0, nil
	case shapeBlockType:
		// Either 0x40 (empty), a value type byte, or a signed LEB128 type
		// index (33-bit signed, spec.md §3 "blocktype is s33").
		v, n, err := leb128.DecodeInt33AsInt64(bytes.NewReader(b))
		if err != nil {
			return 0, err
		}
		pos = uint32(n)
		switch {
		case v == -0x40:
			instr.Block = BlockType{Kind: BlockTypeKindEmpty}
		case v < 0:
			instr.Block = BlockType{Kind: BlockTypeKindValueType, ValType: ValueType(v & 0x7f)}
		default:
			instr.Block = BlockType{Kind: BlockTypeKindTypeIndex, TypeIdx: uint32(v)}
		}
		return pos, nil
	case shapeLocalIndex:
		v, err := readU32()
		instr.LocalIndex = v
		return pos, err
	case shapeGlobalIndex:
		v, err := readU32()
		instr.GlobalIndex = v
		return pos, err
	case shapeFuncIndex:
		v, err := readU32()
		instr.FuncIndex = v
		return pos, err
	case shapeExceptIndex:
		v, err := readU32()
		instr.ExceptIndex = v
		return pos, err
	case shapeTypeIndexAndTable:
		t, err := readU32()
		if err != nil {
			return pos, err
		}
		instr.TypeIndex = t
		tbl, err := readU32()
		instr.TableIndex = tbl
		return pos, err
	case shapeTableIndex:
		v, err := readU32()
		instr.TableIndex = v
		return pos, err
	case shapeMemArg:
		m, err := readMemArg()
		instr.Mem = m
		return pos, err
	case shapeMemoryIndexByte:
		v, err := readByte()
		instr.MemoryIndex = uint32(v)
		return pos, err
	case shapeBrTable:
		count, err := readU32()
		if err != nil {
			return pos, err
		}
		labels := make([]uint32, count+1)
		for i := range labels {
			labels[i], err = readU32()
			if err != nil {
				return pos, err
			}
		}
		instr.Labels = labels[:count]
		instr.Default = labels[count]
		return pos, nil
	case shapeI32Const:
		v, err := readI32()
		instr.ConstI32 = v
		return pos, err
	case shapeI64Const:
		v, err := readI64()
		instr.ConstI64 = v
		return pos, err
	case shapeF32Const:
		if len(b) < 4 {
			return pos, fmt.Errorf("unexpected end of body")
		}
		instr.ConstF32 = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return 4, nil
	case shapeF64Const:
		if len(b) < 8 {
			return pos, fmt.Errorf("unexpected end of body")
		}
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(b[i]) << (8 * i)
		}
		instr.ConstF64 = v
		return 8, nil
	case shapeV128Const:
		if len(b) < 16 {
			return pos, fmt.Errorf("unexpected end of body")
		}
		copy(instr.ConstV128[:], b[:16])
		return 16, nil
	case shapeRefType:
		v, err := readByte()
		instr.RefType = ValueType(v)
		return pos, err
	case shapeSelectT:
		count, err := readU32()
		if err != nil {
			return pos, err
		}
		if count != 1 {
			return pos, fmt.Errorf("select with type expects exactly one result type, got %d", count)
		}
		v, err := readByte()
		instr.RefType = ValueType(v)
		return pos, err
	case shapeMemoryInit:
		seg, err := readU32()
		if err != nil {
			return pos, err
		}
		instr.SegmentIdx = seg
		mem, err := readByte()
		instr.MemoryIndex = uint32(mem)
		return pos, err
	case shapeDataDrop:
		v, err := readU32()
		instr.SegmentIdx = v
		return pos, err
	case shapeMemoryCopy:
		dst, err := readByte()
		if err != nil {
			return pos, err
		}
		src, err := readByte()
		instr.MemoryIndex = uint32(dst)
		instr.TargetIdx = uint32(src)
		return pos, err
	case shapeMemoryFill:
		v, err := readByte()
		instr.MemoryIndex = uint32(v)
		return pos, err
	case shapeTableInit:
		seg, err := readU32()
		if err != nil {
			return pos, err
		}
		instr.SegmentIdx = seg
		tbl, err := readU32()
		instr.TableIndex = tbl
		return pos, err
	case shapeElemDrop:
		v, err := readU32()
		instr.SegmentIdx = v
		return pos, err
	case shapeTableCopy:
		dst, err := readU32()
		if err != nil {
			return pos, err
		}
		src, err := readU32()
		instr.TableIndex = dst
		instr.TargetIdx = src
		return pos, err
	case shapeTableGrowFillSize:
		v, err := readU32()
		instr.TableIndex = v
		return pos, err
	case shapeLaneIndex:
		v, err := readByte()
		instr.Lanes = []byte{v}
		return pos, err
	case shapeShuffle:
		if len(b) < 16 {
			return pos, fmt.Errorf("unexpected end of body")
		}
		instr.Lanes = append([]byte(nil), b[:16]...)
		return 16, nil
	case shapeMemArgLane:
		m, err := readMemArg()
		if err != nil {
			return pos, err
		}
		instr.Mem = m
		v, err := readByte()
		instr.Lanes = []byte{v}
		return pos, err
	}
	return pos, fmt.Errorf("unhandled immediate shape %d", shape)
}
