package wasm

import "fmt"

// ValueType is a WebAssembly 2.0 value type: i32, i64, f32, f64, v128,
// funcref or anyref (externref). See api.ValueType for the encoding table;
// this alias exists so the validator and binary codec can live outside the
// api package without an import cycle.
type ValueType = byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f

	// valueTypeUnknown and valueTypeNullRef never appear in a decoded
	// Module; they are internal lattice members used only by the
	// func-body validator's polymorphic stack (spec.md §4.2, §3 Scalars).
	valueTypeUnknown ValueType = 0xff
	valueTypeNullRef ValueType = 0xfe
)

// ValueTypeName returns the WebAssembly text format name of t.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	case valueTypeUnknown:
		return "unknown"
	case valueTypeNullRef:
		return "nullref"
	}
	return fmt.Sprintf("0x%x", t)
}

// isReferenceType reports whether t is funcref or externref (anyref).
func isReferenceType(t ValueType) bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref || t == valueTypeNullRef
}

// V128 is the 128-bit vector value described in spec.md §3: sixteen bytes,
// interpreted lane-wise as i8x16, i16x8, i32x4, i64x2, f32x4 or f64x2
// depending on the operator that consumes it.
type V128 [16]byte

// Lanes8/16/32/64 reinterpret v as 16, 8, 4 or 2 little-endian lanes. Each
// returns a copy: writes to the result are not reflected back into v;
// PutLanes64 builds a V128 from two 64-bit lanes.
func (v V128) Lanes8() [16]byte { return v }

func (v V128) Lanes16() [8]uint16 {
	var out [8]uint16
	for i := range out {
		out[i] = uint16(v[i*2]) | uint16(v[i*2+1])<<8
	}
	return out
}

func (v V128) Lanes32() [4]uint32 {
	var out [4]uint32
	for i := range out {
		o := i * 4
		out[i] = uint32(v[o]) | uint32(v[o+1])<<8 | uint32(v[o+2])<<16 | uint32(v[o+3])<<24
	}
	return out
}

func (v V128) Lanes64() [2]uint64 {
	var out [2]uint64
	for i := range out {
		o := i * 8
		var u uint64
		for b := 0; b < 8; b++ {
			u |= uint64(v[o+b]) << (8 * b)
		}
		out[i] = u
	}
	return out
}

// PutLanes64 writes two 64-bit lanes into a new V128.
func PutLanes64(lo, hi uint64) (v V128) {
	for b := 0; b < 8; b++ {
		v[b] = byte(lo >> (8 * b))
		v[8+b] = byte(hi >> (8 * b))
	}
	return v
}
